// Package postprocess decodes raw YOLO output rows into boxes and filters
// them with non-maximum suppression.
package postprocess

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
)

// Box is an integer pixel rectangle in left/top/width/height form.
type Box struct {
	Left, Top, Width, Height int
}

func (b Box) Right() int  { return b.Left + b.Width }
func (b Box) Bottom() int { return b.Top + b.Height }

func (b Box) Area() int {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

func (b Box) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Right(), b.Bottom())
}

func (b Box) String() string {
	return fmt.Sprintf("[%d,%d %dx%d]", b.Left, b.Top, b.Width, b.Height)
}

// IoU is the intersection over union of two boxes. Two empty boxes count as
// fully overlapping, matching the OpenCV rect overlap.
func IoU(a, b Box) float32 {
	areaA, areaB := a.Area(), b.Area()
	if areaA+areaB <= 0 {
		return 1
	}
	w := min(a.Right(), b.Right()) - max(a.Left, b.Left)
	h := min(a.Bottom(), b.Bottom()) - max(a.Top, b.Top)
	inter := float32(0)
	if w > 0 && h > 0 {
		inter = float32(w * h)
	}
	return inter / math32.Max(float32(areaA+areaB)-inter, 1e-12)
}

// Projection maps a box centred at (cx, cy) with size (w, h), expressed as
// fractions of the network input, to frame pixels.
type Projection interface {
	Project(cx, cy, w, h float32) Box
}

// Stretch undoes a plain resize of the frame to the network input.
type Stretch struct {
	FrameWidth, FrameHeight int
}

func (s Stretch) Project(cx, cy, w, h float32) Box {
	centerX := int(cx * float32(s.FrameWidth))
	centerY := int(cy * float32(s.FrameHeight))
	width := int(w * float32(s.FrameWidth))
	height := int(h * float32(s.FrameHeight))
	return Box{
		Left:   int(float32(centerX) - float32(width)/2),
		Top:    int(float32(centerY) - float32(height)/2),
		Width:  width,
		Height: height,
	}
}

// Letterbox describes an aspect preserving resize into a fixed input with
// constant padding around the scaled frame.
type Letterbox struct {
	InputWidth, InputHeight int
	Scale                   float32
	PadX, PadY              int
	ScaledWidth             int
	ScaledHeight            int
}

func NewLetterbox(frameWidth, frameHeight, inputWidth, inputHeight int) Letterbox {
	lb := Letterbox{InputWidth: inputWidth, InputHeight: inputHeight, Scale: 1}
	if frameWidth <= 0 || frameHeight <= 0 {
		return lb
	}
	lb.Scale = math32.Min(float32(inputWidth)/float32(frameWidth), float32(inputHeight)/float32(frameHeight))
	lb.ScaledWidth = int(math32.Round(float32(frameWidth) * lb.Scale))
	lb.ScaledHeight = int(math32.Round(float32(frameHeight) * lb.Scale))
	lb.PadX = (inputWidth - lb.ScaledWidth) / 2
	lb.PadY = (inputHeight - lb.ScaledHeight) / 2
	return lb
}

func (l Letterbox) Project(cx, cy, w, h float32) Box {
	centerX := (cx*float32(l.InputWidth) - float32(l.PadX)) / l.Scale
	centerY := (cy*float32(l.InputHeight) - float32(l.PadY)) / l.Scale
	width := w * float32(l.InputWidth) / l.Scale
	height := h * float32(l.InputHeight) / l.Scale
	return Box{
		Left:   int(centerX - width/2),
		Top:    int(centerY - height/2),
		Width:  int(width),
		Height: int(height),
	}
}
