package iface

import (
	"context"

	"gocv.io/x/gocv"
)

type Position struct {
	X, Y float32
}

type Box struct {
	LT Position
	RT Position
	RB Position
	LB Position
}

// Detection is one box that survived suppression, in frame pixels.
type Detection struct {
	ClassID int      `json:"classId"`
	Label   string   `json:"label"`
	Conf    float32  `json:"confidence"`
	Left    int      `json:"left"`
	Top     int      `json:"top"`
	Right   int      `json:"right"`
	Bottom  int      `json:"bottom"`
	Box     Box      `json:"-"`
	Center  Position `json:"center"`
}

func NewDetection(classID int, label string, conf float32, left, top, right, bottom int) Detection {
	box := Box{
		LT: Position{X: float32(left), Y: float32(top)},
		RT: Position{X: float32(right), Y: float32(top)},
		RB: Position{X: float32(right), Y: float32(bottom)},
		LB: Position{X: float32(left), Y: float32(bottom)},
	}
	return Detection{
		ClassID: classID,
		Label:   label,
		Conf:    conf,
		Left:    left,
		Top:     top,
		Right:   right,
		Bottom:  bottom,
		Box:     box,
		Center: Position{
			X: (box.LT.X + box.RB.X) / 2,
			Y: (box.LT.Y + box.RB.Y) / 2,
		},
	}
}

type EngineConfig struct {
	NetName            string   `json:"netname"`
	ModelConfiguration string   `json:"modelConfiguration"`
	ModelWeights       string   `json:"modelWeights"`
	Names              []string `json:"names"`
	Conf               float32  `json:"confThreshold"`
	Nms                float32  `json:"nmsThreshold"`
	InpWidth           int      `json:"inpWidth"`
	InpHeight          int      `json:"inpHeight"`
	Backend            string   `json:"backend"`
	Target             string   `json:"target"`
	Letterbox          bool     `json:"letterbox"`
}

// Backend is the part of a detector the service layers rely on.
type Backend interface {
	Detect(frame *gocv.Mat) ([]Detection, error)
	Infer(frame *gocv.Mat) ([]Detection, error)
	CheckConfig() EngineConfig
	Close() error
}

// Job is a single image handed to a detector pool.
type Job struct {
	Profile  string
	Image    []byte
	Annotate bool
}

type JobResult struct {
	ID         string
	Profile    string
	Detections []Detection
	Annotated  []byte
	Width      int
	Height     int
}

// Runner executes jobs; the worker pool implements it and the transports consume it.
type Runner interface {
	Run(ctx context.Context, job Job) (JobResult, error)
	Engines() []EngineConfig
}
