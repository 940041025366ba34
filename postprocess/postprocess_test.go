package postprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// row builds one YOLO output row with three classes.
func row(cx, cy, w, h float32, scores ...float32) []float32 {
	r := []float32{cx, cy, w, h, 1}
	return append(r, scores...)
}

func flatten(rows ...[]float32) Output {
	out := Output{Cols: len(rows[0])}
	for _, r := range rows {
		out.Data = append(out.Data, r...)
	}
	return out
}

func TestIoU(t *testing.T) {
	a := Box{Left: 0, Top: 0, Width: 100, Height: 100}
	b := Box{Left: 50, Top: 50, Width: 100, Height: 100}
	assert.InDelta(t, 2500.0/17500.0, IoU(a, b), 1e-6)
	assert.InDelta(t, 1.0, IoU(a, a), 1e-6)
	assert.Zero(t, IoU(a, Box{Left: 200, Top: 200, Width: 10, Height: 10}))
	assert.Equal(t, float32(1), IoU(Box{}, Box{}))
}

func TestStretchProject(t *testing.T) {
	box := Stretch{FrameWidth: 640, FrameHeight: 480}.Project(0.5, 0.5, 0.25, 0.5)
	assert.Equal(t, Box{Left: 240, Top: 120, Width: 160, Height: 240}, box)
}

func TestLetterbox(t *testing.T) {
	lb := NewLetterbox(640, 320, 416, 416)
	assert.InDelta(t, 0.65, lb.Scale, 1e-6)
	assert.Equal(t, 416, lb.ScaledWidth)
	assert.Equal(t, 208, lb.ScaledHeight)
	assert.Equal(t, 0, lb.PadX)
	assert.Equal(t, 104, lb.PadY)

	// the whole scaled frame maps back onto the whole original frame
	box := lb.Project(0.5, 0.5, 1, 208.0/416.0)
	assert.Equal(t, Box{Left: 0, Top: 0, Width: 640, Height: 320}, box)
}

func TestDecode_ConfidenceThreshold(t *testing.T) {
	out := flatten(
		row(0.5, 0.5, 0.2, 0.2, 0.9, 0.1, 0.0),
		row(0.2, 0.2, 0.1, 0.1, 0.1, 0.5, 0.2), // equal to threshold, dropped
		row(0.8, 0.8, 0.1, 0.1, 0.1, 0.2, 0.51),
		row(0.3, 0.3, 0.1, 0.1, 0.4, 0.3, 0.2),
	)
	cands, err := Decode([]Output{out}, Stretch{FrameWidth: 100, FrameHeight: 100}, 0.5)
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, 0, cands[0].ClassID)
	assert.InDelta(t, 0.9, cands[0].Confidence, 1e-6)
	assert.Equal(t, Box{Left: 40, Top: 40, Width: 20, Height: 20}, cands[0].Box)
	assert.Equal(t, 2, cands[1].ClassID)
}

func TestDecode_ArgmaxTakesFirst(t *testing.T) {
	out := flatten(row(0.5, 0.5, 0.2, 0.2, 0.7, 0.7, 0.7))
	cands, err := Decode([]Output{out}, Stretch{FrameWidth: 10, FrameHeight: 10}, 0.5)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, 0, cands[0].ClassID)
}

func TestDecode_MultipleOutputs(t *testing.T) {
	a := flatten(row(0.5, 0.5, 0.2, 0.2, 0.9, 0, 0))
	b := flatten(row(0.1, 0.1, 0.1, 0.1, 0, 0.8, 0), row(0.1, 0.1, 0.1, 0.1, 0, 0, 0.1))
	cands, err := Decode([]Output{a, b}, Stretch{FrameWidth: 10, FrameHeight: 10}, 0.5)
	require.NoError(t, err)
	assert.Len(t, cands, 2)
}

func TestDecode_BadShape(t *testing.T) {
	_, err := Decode([]Output{{Data: []float32{1, 2, 3, 4, 5}, Cols: 5}}, Stretch{}, 0.5)
	assert.Error(t, err)
	_, err = Decode([]Output{{Data: make([]float32, 13), Cols: 7}}, Stretch{}, 0.5)
	assert.Error(t, err)

	cands, err := Decode(nil, Stretch{}, 0.5)
	assert.NoError(t, err)
	assert.Empty(t, cands)
}

func TestNMSBoxes(t *testing.T) {
	boxes := []Box{
		{Left: 0, Top: 0, Width: 100, Height: 100},   // 0.9 kept
		{Left: 10, Top: 0, Width: 100, Height: 100},  // IoU 0.818 with 0, suppressed
		{Left: 50, Top: 50, Width: 100, Height: 100}, // IoU 0.143 with 0, kept
		{Left: 300, Top: 300, Width: 20, Height: 20}, // below score threshold
		{Left: 55, Top: 50, Width: 100, Height: 100}, // IoU 0.905 with 2, suppressed
	}
	scores := []float32{0.9, 0.8, 0.7, 0.4, 0.6}
	assert.Equal(t, []int{0, 2}, NMSBoxes(boxes, scores, 0.5, 0.4))

	// a looser threshold lets the 0.818 overlap through
	assert.Equal(t, []int{0, 1, 2}, NMSBoxes(boxes, scores, 0.5, 0.85))
}

func TestNMSBoxes_StableTies(t *testing.T) {
	boxes := []Box{
		{Left: 0, Top: 0, Width: 10, Height: 10},
		{Left: 0, Top: 0, Width: 10, Height: 10},
	}
	assert.Equal(t, []int{0}, NMSBoxes(boxes, []float32{0.8, 0.8}, 0.5, 0.4))
	assert.Empty(t, NMSBoxes(nil, nil, 0.5, 0.4))
}

func TestSuppress_ClassAware(t *testing.T) {
	cands := []Candidate{
		{ClassID: 0, Confidence: 0.9, Box: Box{Width: 100, Height: 100}},
		{ClassID: 1, Confidence: 0.8, Box: Box{Left: 5, Width: 100, Height: 100}},
		{ClassID: 0, Confidence: 0.7, Box: Box{Left: 5, Width: 100, Height: 100}},
	}
	agnostic := Suppress(cands, 0.5, 0.4, false)
	require.Len(t, agnostic, 1)
	assert.Equal(t, 0, agnostic[0].ClassID)

	aware := Suppress(cands, 0.5, 0.4, true)
	require.Len(t, aware, 2)
	assert.Equal(t, 0, aware[0].ClassID)
	assert.Equal(t, 1, aware[1].ClassID)

	assert.Nil(t, Suppress(nil, 0.5, 0.4, true))
}
