package postprocess

import "sort"

// NMSBoxes follows cv::dnn::NMSBoxes: boxes scoring above scoreThreshold are
// visited in descending score order (ties keep input order) and a box is kept
// when its IoU with every box kept before it is at most nmsThreshold. The
// returned indices are in keep order.
func NMSBoxes(boxes []Box, scores []float32, scoreThreshold, nmsThreshold float32) []int {
	return nms(boxes, scores, scoreThreshold, nmsThreshold, nil)
}

// Suppress runs NMS over decoded candidates. With classAware set, boxes of
// different classes never suppress each other.
func Suppress(cands []Candidate, confThreshold, nmsThreshold float32, classAware bool) []Candidate {
	if len(cands) == 0 {
		return nil
	}
	boxes := make([]Box, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		boxes[i] = c.Box
		scores[i] = c.Confidence
	}
	var same func(i, j int) bool
	if classAware {
		same = func(i, j int) bool { return cands[i].ClassID == cands[j].ClassID }
	}
	keep := nms(boxes, scores, confThreshold, nmsThreshold, same)
	out := make([]Candidate, 0, len(keep))
	for _, i := range keep {
		out = append(out, cands[i])
	}
	return out
}

func nms(boxes []Box, scores []float32, scoreThreshold, nmsThreshold float32, same func(i, j int) bool) []int {
	order := make([]int, 0, len(scores))
	for i, s := range scores {
		if i < len(boxes) && s > scoreThreshold {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	kept := make([]int, 0, len(order))
	for _, idx := range order {
		keep := true
		for _, k := range kept {
			if same != nil && !same(idx, k) {
				continue
			}
			if IoU(boxes[idx], boxes[k]) > nmsThreshold {
				keep = false
				break
			}
		}
		if keep {
			kept = append(kept, idx)
		}
	}
	return kept
}
