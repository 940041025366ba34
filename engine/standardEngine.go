package engine

import (
	iface "YoloDetServer/interface"
	"YoloDetServer/logger"
	"YoloDetServer/postprocess"
	"YoloDetServer/profile"
	"fmt"
	"image"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Detector runs one YOLO network. It is not safe for concurrent Detect calls;
// a second caller gets ErrBusy instead of blocking.
type Detector struct {
	NetName   string
	Names     []string
	Conf      float32
	Nms       float32
	InpWidth  int
	InpHeight int
	State     int

	prof profile.ModelProfile
	opts options
	net  Network
	mu   sync.Mutex
	log  *zap.Logger
}

// NewDetector loads labels and network for p. On any failure it returns a
// *LoadError and no detector.
func NewDetector(p profile.ModelProfile, opts ...Option) (*Detector, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Log()
	}
	if err := p.Validate(); err != nil {
		return nil, &LoadError{NetName: p.NetName, Err: err}
	}
	p = p.Resolve(o.modelDir)
	o.logger.Info("Net use", zap.String("netname", p.NetName))

	names, err := profile.LoadClassNames(p.ClassesFile)
	if err != nil {
		return nil, &LoadError{NetName: p.NetName, Path: p.ClassesFile, Err: errors.Wrap(err, "read class names")}
	}

	net := o.network
	if net == nil {
		dn, err := loadDarknet(p.ModelConfiguration, p.ModelWeights, o.backend, o.target, o.logger)
		if err != nil {
			return nil, &LoadError{NetName: p.NetName, Path: p.ModelWeights, Err: err}
		}
		net = dn
	}

	d := &Detector{
		NetName:   p.NetName,
		Names:     names,
		Conf:      p.ConfThreshold,
		Nms:       p.NMSThreshold,
		InpWidth:  p.InpWidth,
		InpHeight: p.InpHeight,
		State:     IDLE,
		prof:      p,
		opts:      o,
		net:       net,
		log:       o.logger.With(zap.String("netname", p.NetName)),
	}
	d.log.Info("Detector loaded",
		zap.Int("classes", len(names)),
		zap.Float32("Confidence", d.Conf),
		zap.Float32("NMS", d.Nms),
		zap.Int("inpWidth", d.InpWidth),
		zap.Int("inpHeight", d.InpHeight),
		zap.String("backend", o.backend),
		zap.String("target", o.target),
	)
	return d, nil
}

func (d *Detector) CheckConfig() iface.EngineConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return iface.EngineConfig{
		NetName:            d.NetName,
		ModelConfiguration: d.prof.ModelConfiguration,
		ModelWeights:       d.prof.ModelWeights,
		Names:              append([]string(nil), d.Names...),
		Conf:               d.Conf,
		Nms:                d.Nms,
		InpWidth:           d.InpWidth,
		InpHeight:          d.InpHeight,
		Backend:            d.opts.backend,
		Target:             d.opts.target,
		Letterbox:          d.opts.letterbox,
	}
}

// Detect runs one forward pass over frame, draws every surviving box onto it
// and returns the detections. No detections is not an error.
func (d *Detector) Detect(frame *gocv.Mat) ([]iface.Detection, error) {
	return d.run(frame, true)
}

// Infer is Detect without drawing on the frame.
func (d *Detector) Infer(frame *gocv.Mat) ([]iface.Detection, error) {
	return d.run(frame, false)
}

func (d *Detector) acquire() (Network, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.State {
	case UNREGISTERED, REGISTERED:
		return nil, ErrNotLoaded
	case BUSY:
		return nil, ErrBusy
	}
	d.State = BUSY
	return d.net, nil
}

func (d *Detector) release() {
	d.mu.Lock()
	if d.State == BUSY {
		d.State = IDLE
	}
	d.mu.Unlock()
}

func (d *Detector) run(frame *gocv.Mat, annotate bool) ([]iface.Detection, error) {
	net, err := d.acquire()
	if err != nil {
		return nil, err
	}
	defer d.release()
	if frame == nil || frame.Empty() {
		return nil, ErrEmptyFrame
	}

	blob, proj := d.blobFromFrame(*frame)
	defer blob.Close()

	// Runs the forward pass to get output of the output layers
	outs, err := net.Forward(blob)
	if err != nil {
		return nil, errors.Wrap(err, "forward")
	}
	defer func() {
		for i := range outs {
			_ = outs[i].Close()
		}
	}()
	return d.postprocess(frame, outs, proj, annotate)
}

// blobFromFrame scales pixels to [0,1], swaps BGR to RGB and sizes the frame
// to the network input, stretched or letterboxed.
func (d *Detector) blobFromFrame(frame gocv.Mat) (gocv.Mat, postprocess.Projection) {
	size := image.Pt(d.InpWidth, d.InpHeight)
	if !d.opts.letterbox {
		blob := gocv.BlobFromImage(frame, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
		return blob, postprocess.Stretch{FrameWidth: frame.Cols(), FrameHeight: frame.Rows()}
	}

	lb := postprocess.NewLetterbox(frame.Cols(), frame.Rows(), d.InpWidth, d.InpHeight)
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(frame, &resized, image.Pt(lb.ScaledWidth, lb.ScaledHeight), 0, 0, gocv.InterpolationLinear)
	padded := gocv.NewMat()
	defer padded.Close()
	gocv.CopyMakeBorder(resized, &padded,
		lb.PadY, d.InpHeight-lb.ScaledHeight-lb.PadY,
		lb.PadX, d.InpWidth-lb.ScaledWidth-lb.PadX,
		gocv.BorderConstant, padColor)
	blob := gocv.BlobFromImage(padded, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	return blob, lb
}

// Postprocess turns raw output tensors into detections, drops the low
// confidence ones, suppresses overlaps and draws the survivors onto frame.
func (d *Detector) Postprocess(frame *gocv.Mat, outs []gocv.Mat) ([]iface.Detection, error) {
	if _, err := d.acquire(); err != nil {
		return nil, err
	}
	defer d.release()
	if frame == nil || frame.Empty() {
		return nil, ErrEmptyFrame
	}
	var proj postprocess.Projection = postprocess.Stretch{FrameWidth: frame.Cols(), FrameHeight: frame.Rows()}
	if d.opts.letterbox {
		proj = postprocess.NewLetterbox(frame.Cols(), frame.Rows(), d.InpWidth, d.InpHeight)
	}
	return d.postprocess(frame, outs, proj, true)
}

func (d *Detector) postprocess(frame *gocv.Mat, outs []gocv.Mat, proj postprocess.Projection, annotate bool) ([]iface.Detection, error) {
	raw := make([]postprocess.Output, 0, len(outs))
	for i := range outs {
		out, err := matToOutput(outs[i])
		if err != nil {
			return nil, errors.Wrapf(err, "output %d", i)
		}
		raw = append(raw, out)
	}
	cands, err := postprocess.Decode(raw, proj, d.Conf)
	if err != nil {
		return nil, err
	}
	// Perform non maximum suppression to eliminate redundant overlapping boxes with
	// lower confidences.
	kept := postprocess.Suppress(cands, d.Conf, d.Nms, d.opts.classAware)

	dets := make([]iface.Detection, 0, len(kept))
	for _, c := range kept {
		left, top := c.Box.Left, c.Box.Top
		right, bottom := c.Box.Right(), c.Box.Bottom()
		dets = append(dets, iface.NewDetection(c.ClassID, d.label(c.ClassID), c.Confidence, left, top, right, bottom))
		if annotate {
			d.DrawPred(c.ClassID, c.Confidence, left, top, right, bottom, frame)
		}
	}
	d.log.Debug("postprocess", zap.Int("candidates", len(cands)), zap.Int("kept", len(dets)))
	return dets, nil
}

func matToOutput(m gocv.Mat) (postprocess.Output, error) {
	if m.Type() != gocv.MatTypeCV32F {
		return postprocess.Output{}, fmt.Errorf("unexpected mat type %v", m.Type())
	}
	sizes := m.Size()
	if len(sizes) == 0 {
		return postprocess.Output{}, errors.New("output has no dimensions")
	}
	data, err := m.DataPtrFloat32()
	if err != nil {
		return postprocess.Output{}, err
	}
	return postprocess.Output{Data: data, Cols: sizes[len(sizes)-1]}, nil
}

func (d *Detector) label(classID int) string {
	if classID < 0 || classID >= len(d.Names) {
		return ""
	}
	return d.Names[classID]
}

// DrawPred draws a bounding box and its "class:confidence" label on frame.
func (d *Detector) DrawPred(classID int, conf float32, left, top, right, bottom int, frame *gocv.Mat) {
	gocv.Rectangle(frame, image.Rect(left, top, right, bottom), boxColor, 4)

	label := fmt.Sprintf("%.2f", conf)
	if name := d.label(classID); name != "" {
		label = fmt.Sprintf("%s:%s", name, label)
	}

	// Display the label at the top of the bounding box
	labelSize := gocv.GetTextSize(label, gocv.FontHersheySimplex, 0.5, 1)
	top = max(top, labelSize.Y)
	gocv.PutText(frame, label, image.Pt(left, top-10), gocv.FontHersheySimplex, 1, labelColor, 2)
}

func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.State {
	case UNREGISTERED:
		return nil
	case BUSY:
		return ErrBusy
	}
	var err error
	if d.net != nil {
		err = d.net.Close()
	}
	d.net = nil
	d.State = UNREGISTERED
	d.log.Info("Detector destroyed")
	return err
}
