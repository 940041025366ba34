package profile

import (
	"errors"
	"fmt"
	"path/filepath"
)

var ErrUnknownProfile = errors.New("unknown model profile")

// ModelProfile holds the hyperparameters and model files of one YOLO network.
type ModelProfile struct {
	ConfThreshold      float32 `yaml:"confThreshold" json:"confThreshold"` // Confidence threshold
	NMSThreshold       float32 `yaml:"nmsThreshold" json:"nmsThreshold"`   // Non-maximum suppression threshold
	InpWidth           int     `yaml:"inpWidth" json:"inpWidth"`           // Width of network's input image
	InpHeight          int     `yaml:"inpHeight" json:"inpHeight"`         // Height of network's input image
	ClassesFile        string  `yaml:"classesFile" json:"classesFile"`
	ModelConfiguration string  `yaml:"modelConfiguration" json:"modelConfiguration"`
	ModelWeights       string  `yaml:"modelWeights" json:"modelWeights"`
	NetName            string  `yaml:"netname" json:"netname"`
}

var yoloNets = [...]ModelProfile{
	{0.5, 0.4, 416, 416, "coco.names", "yolov3/yolov3.cfg", "yolov3/yolov3.weights", "yolov3"},
	{0.5, 0.4, 608, 608, "coco.names", "yolov4/yolov4.cfg", "yolov4/yolov4.weights", "yolov4"},
	{0.5, 0.4, 320, 320, "coco.names", "yolo-fastest/yolo-fastest-xl.cfg", "yolo-fastest/yolo-fastest-xl.weights", "yolo-fastest"},
	{0.5, 0.4, 320, 320, "coco.names", "yolobile/csdarknet53s-panet-spp.cfg", "yolobile/yolobile.weights", "yolobile"},
}

var byName = func() map[string]int {
	m := make(map[string]int, len(yoloNets))
	for i, p := range yoloNets {
		m[p.NetName] = i
	}
	return m
}()

// Lookup returns a copy of the profile registered under name.
func Lookup(name string) (ModelProfile, error) {
	i, ok := byName[name]
	if !ok {
		return ModelProfile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return yoloNets[i], nil
}

// ByIndex keeps the numeric net_type selection of the command line.
func ByIndex(i int) (ModelProfile, error) {
	if i < 0 || i >= len(yoloNets) {
		return ModelProfile{}, fmt.Errorf("%w: index %d", ErrUnknownProfile, i)
	}
	return yoloNets[i], nil
}

func All() []ModelProfile {
	out := make([]ModelProfile, len(yoloNets))
	copy(out, yoloNets[:])
	return out
}

func Names() []string {
	names := make([]string, 0, len(yoloNets))
	for _, p := range yoloNets {
		names = append(names, p.NetName)
	}
	return names
}

// Validate checks the invariants every usable profile satisfies.
func (p ModelProfile) Validate() error {
	if p.NetName == "" {
		return errors.New("profile name cannot be empty")
	}
	if p.ConfThreshold <= 0 || p.ConfThreshold > 1 {
		return fmt.Errorf("%s: confidence threshold must be in (0, 1], got %f", p.NetName, p.ConfThreshold)
	}
	if p.NMSThreshold <= 0 || p.NMSThreshold > 1 {
		return fmt.Errorf("%s: nms threshold must be in (0, 1], got %f", p.NetName, p.NMSThreshold)
	}
	if p.InpWidth <= 0 || p.InpHeight <= 0 || p.InpWidth%32 != 0 || p.InpHeight%32 != 0 {
		return fmt.Errorf("%s: input size %dx%d must be positive multiples of 32", p.NetName, p.InpWidth, p.InpHeight)
	}
	if p.ClassesFile == "" || p.ModelConfiguration == "" || p.ModelWeights == "" {
		return fmt.Errorf("%s: classes, configuration and weights paths are required", p.NetName)
	}
	return nil
}

// Resolve prefixes relative model paths with dir.
func (p ModelProfile) Resolve(dir string) ModelProfile {
	if dir == "" {
		return p
	}
	join := func(path string) string {
		if path == "" || filepath.IsAbs(path) {
			return path
		}
		return filepath.Join(dir, path)
	}
	p.ClassesFile = join(p.ClassesFile)
	p.ModelConfiguration = join(p.ModelConfiguration)
	p.ModelWeights = join(p.ModelWeights)
	return p
}

func (p ModelProfile) String() string {
	return fmt.Sprintf("%s (%dx%d conf=%.2f nms=%.2f)", p.NetName, p.InpWidth, p.InpHeight, p.ConfThreshold, p.NMSThreshold)
}
