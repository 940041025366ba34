package engine

import "go.uber.org/zap"

type options struct {
	backend    string
	target     string
	letterbox  bool
	classAware bool
	modelDir   string
	logger     *zap.Logger
	network    Network
}

type Option func(*options)

// WithBackend selects the DNN backend by name ("opencv", "cuda", "openvino", ...).
func WithBackend(name string) Option {
	return func(o *options) { o.backend = name }
}

// WithTarget selects the DNN target by name ("cpu", "cuda", "cuda fp16", ...).
func WithTarget(name string) Option {
	return func(o *options) { o.target = name }
}

// WithLetterbox keeps the frame's aspect ratio and pads it to the input size
// instead of stretching it.
func WithLetterbox(on bool) Option {
	return func(o *options) { o.letterbox = on }
}

func WithClassAware(on bool) Option {
	return func(o *options) { o.classAware = on }
}

// WithModelDir resolves the profile's relative paths against dir.
func WithModelDir(dir string) Option {
	return func(o *options) { o.modelDir = dir }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithNetwork uses n instead of reading the profile's model files. Class
// labels are still loaded from the profile.
func WithNetwork(n Network) Option {
	return func(o *options) { o.network = n }
}
