package engine

import (
	"fmt"
	"image/color"

	"github.com/pkg/errors"
)

const UNREGISTERED = 0x0001
const REGISTERED = 0x0002
const IDLE = 0x0003
const BUSY = 0x0004

var (
	ErrBusy       = errors.New("detector is busy")
	ErrNotLoaded  = errors.New("model not loaded")
	ErrEmptyFrame = errors.New("frame is empty")
)

// drawing colours; gocv turns color.RGBA into a BGR scalar
var (
	boxColor   = color.RGBA{R: 255}
	labelColor = color.RGBA{G: 255}
	padColor   = color.RGBA{R: 114, G: 114, B: 114}
)

// LoadError reports a detector that could not be constructed because one of
// its model files is missing, unreadable or rejected by the inference engine.
type LoadError struct {
	NetName string
	Path    string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("load %s: %v", e.NetName, e.Err)
	}
	return fmt.Sprintf("load %s from %s: %v", e.NetName, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Cause keeps github.com/pkg/errors.Cause working through a LoadError.
func (e *LoadError) Cause() error { return e.Err }

func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}
