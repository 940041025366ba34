package postprocess

import "fmt"

// rows are [cx, cy, w, h, objectness, class scores...]
const scoreOffset = 5

// Output is one raw network output tensor in row-major order.
type Output struct {
	Data []float32
	Cols int
}

func (o Output) Rows() int {
	if o.Cols == 0 {
		return 0
	}
	return len(o.Data) / o.Cols
}

// Candidate is a decoded detection before suppression.
type Candidate struct {
	ClassID    int
	Confidence float32
	Box        Box
}

// Decode scans every row of every output and keeps the rows whose best class
// score is strictly greater than confThreshold.
func Decode(outs []Output, proj Projection, confThreshold float32) ([]Candidate, error) {
	var cands []Candidate
	for n, out := range outs {
		if out.Cols <= scoreOffset {
			return nil, fmt.Errorf("output %d has %d columns, need more than %d", n, out.Cols, scoreOffset)
		}
		if len(out.Data)%out.Cols != 0 {
			return nil, fmt.Errorf("output %d: %d values is not a multiple of %d columns", n, len(out.Data), out.Cols)
		}
		for r := 0; r < out.Rows(); r++ {
			row := out.Data[r*out.Cols : (r+1)*out.Cols]
			classID, confidence := argmax(row[scoreOffset:])
			if confidence <= confThreshold {
				continue
			}
			cands = append(cands, Candidate{
				ClassID:    classID,
				Confidence: confidence,
				Box:        proj.Project(row[0], row[1], row[2], row[3]),
			})
		}
	}
	return cands, nil
}

// argmax returns the first index holding the largest score.
func argmax(scores []float32) (int, float32) {
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return best, scores[best]
}
