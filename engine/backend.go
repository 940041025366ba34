package engine

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Network is the slice of the inference engine a Detector needs: feed one
// input blob, get the raw output tensors back.
type Network interface {
	Forward(blob gocv.Mat) ([]gocv.Mat, error)
	Close() error
}

type opencvNet struct {
	net      gocv.Net
	outNames []string
}

// names gocv.ParseNetBackend / ParseNetTarget understand; anything else
// silently maps to the default backend / CPU.
var (
	netBackends = map[string]bool{"default": true, "halide": true, "openvino": true, "opencv": true, "vulkan": true, "cuda": true}
	netTargets  = map[string]bool{"cpu": true, "fp32": true, "fp16": true, "vpu": true, "vulkan": true, "fpga": true, "cuda": true, "cudafp16": true}
)

// KnownBackend reports whether name selects a real DNN backend. Empty means
// "leave the engine default".
func KnownBackend(name string) bool { return name == "" || netBackends[name] }

// KnownTarget reports whether name selects a real DNN target.
func KnownTarget(name string) bool { return name == "" || netTargets[name] }

// gocv keeps the last OpenCV exception in one process-wide slot.
var exceptionMu sync.Mutex

// loadDarknet reads a darknet cfg/weights pair with the OpenCV DNN module.
func loadDarknet(cfgPath, weightsPath, backend, target string, log *zap.Logger) (*opencvNet, error) {
	for _, p := range []string{cfgPath, weightsPath} {
		info, err := os.Stat(p)
		if err != nil {
			return nil, errors.Wrapf(err, "stat %s", p)
		}
		if info.IsDir() {
			return nil, errors.Errorf("%s is a directory", p)
		}
	}
	if !KnownBackend(backend) {
		log.Warn("unknown dnn backend, using engine default", zap.String("backend", backend))
	}
	if !KnownTarget(target) {
		log.Warn("unknown dnn target, using cpu", zap.String("target", target))
	}

	exceptionMu.Lock()
	defer exceptionMu.Unlock()

	gocv.ClearLastException()
	net := gocv.ReadNet(weightsPath, cfgPath)
	// a parser failure leaves a NULL net behind; touching it would crash
	if err := gocv.LastExceptionError(); err != nil {
		return nil, errors.Wrapf(err, "inference engine rejected %s / %s", cfgPath, weightsPath)
	}
	if net.Empty() {
		_ = net.Close()
		return nil, errors.Errorf("inference engine rejected %s / %s", cfgPath, weightsPath)
	}
	if backend != "" {
		err := net.SetPreferableBackend(gocv.ParseNetBackend(backend))
		if err == nil {
			err = gocv.LastExceptionError()
		}
		if err != nil {
			_ = net.Close()
			return nil, errors.Wrapf(err, "set backend %s", backend)
		}
	}
	if target != "" {
		err := net.SetPreferableTarget(gocv.ParseNetTarget(target))
		if err == nil {
			err = gocv.LastExceptionError()
		}
		if err != nil {
			_ = net.Close()
			return nil, errors.Wrapf(err, "set target %s", target)
		}
	}
	n := &opencvNet{net: net, outNames: outputLayerNames(&net)}
	if len(n.outNames) == 0 {
		_ = net.Close()
		return nil, errors.New("network has no output layers")
	}
	return n, nil
}

// outputLayerNames lists the unconnected output layers, i.e. the YOLO heads.
func outputLayerNames(net *gocv.Net) []string {
	var names []string
	for _, id := range net.GetUnconnectedOutLayers() {
		layer := net.GetLayer(id)
		if name := layer.GetName(); name != "_input" {
			names = append(names, name)
		}
		_ = layer.Close()
	}
	return names
}

func (n *opencvNet) Forward(blob gocv.Mat) ([]gocv.Mat, error) {
	n.net.SetInput(blob, "")
	outs := n.net.ForwardLayers(n.outNames)
	if len(outs) == 0 {
		return nil, errors.New("forward pass returned no outputs")
	}
	return outs, nil
}

func (n *opencvNet) Close() error {
	return n.net.Close()
}
