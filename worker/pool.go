package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"YoloDetServer/engine"
	iface "YoloDetServer/interface"
	"YoloDetServer/logger"
	"YoloDetServer/monitor"
	"YoloDetServer/profile"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("worker pool closed")

// Factory builds one detector for a profile; every worker owns its own.
type Factory func(p profile.ModelProfile) (iface.Backend, error)

func DetectorFactory(opts ...engine.Option) Factory {
	return func(p profile.ModelProfile) (iface.Backend, error) {
		return engine.NewDetector(p, opts...)
	}
}

type jobPackage struct {
	ctx    context.Context
	id     string
	job    iface.Job
	result chan jobResult
}

type jobResult struct {
	res iface.JobResult
	err error
}

// Pool runs workersNum single-threaded detectors per enabled profile behind
// one job queue per profile.
type Pool struct {
	mu      sync.RWMutex
	closed  bool
	order   []string
	queues  map[string]chan jobPackage
	workers map[string][]iface.Backend
	wg      sync.WaitGroup
	log     *zap.Logger
}

func NewPool(profiles []profile.ModelProfile, workersNum int, factory Factory) (*Pool, error) {
	if workersNum <= 0 {
		workersNum = 1
	}
	p := &Pool{
		queues:  make(map[string]chan jobPackage, len(profiles)),
		workers: make(map[string][]iface.Backend, len(profiles)),
		log:     logger.Log().Named("worker"),
	}
	for _, prof := range profiles {
		if _, dup := p.queues[prof.NetName]; dup {
			continue
		}
		dets := make([]iface.Backend, 0, workersNum)
		for i := 0; i < workersNum; i++ {
			det, err := factory(prof)
			if err != nil {
				for _, d := range dets {
					_ = d.Close()
				}
				p.closeDetectors()
				return nil, err
			}
			dets = append(dets, det)
		}
		p.order = append(p.order, prof.NetName)
		p.queues[prof.NetName] = make(chan jobPackage, workersNum)
		p.workers[prof.NetName] = dets
	}
	for name, dets := range p.workers {
		for i, det := range dets {
			p.wg.Add(1)
			go p.runWorker(name, i, det, p.queues[name])
		}
	}
	return p, nil
}

func (p *Pool) runWorker(name string, workerID int, det iface.Backend, queue <-chan jobPackage) {
	defer p.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	p.log.Info("Worker created", zap.String("netname", name), zap.Int("worker", workerID))
	for pkg := range queue {
		if err := pkg.ctx.Err(); err != nil {
			pkg.result <- jobResult{err: err}
			continue
		}
		res, err := p.process(name, det, pkg)
		if err != nil {
			p.log.Warn("job failed", zap.String("job", pkg.id), zap.String("netname", name), zap.Int("worker", workerID), zap.Error(err))
		}
		pkg.result <- jobResult{res: res, err: err}
	}
}

func (p *Pool) process(name string, det iface.Backend, pkg jobPackage) (res iface.JobResult, err error) {
	// 防止 Detect 内部 panic 导致服务崩溃
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	mat, err := DecodeImage(pkg.job.Image)
	if err != nil {
		return res, err
	}
	defer mat.Close()

	busy := monitor.BusyWorkers.WithLabelValues(name)
	busy.Inc()
	defer busy.Dec()

	start := time.Now()
	var dets []iface.Detection
	if pkg.job.Annotate {
		dets, err = det.Detect(&mat)
	} else {
		dets, err = det.Infer(&mat)
	}
	if err != nil {
		return res, err
	}
	monitor.ObserveDetect(name, time.Since(start), len(dets))

	res = iface.JobResult{
		ID:         pkg.id,
		Profile:    name,
		Detections: dets,
		Width:      mat.Cols(),
		Height:     mat.Rows(),
	}
	if pkg.job.Annotate {
		if res.Annotated, err = EncodeJPEG(mat); err != nil {
			return res, fmt.Errorf("encode annotated frame: %w", err)
		}
	}
	return res, nil
}

// Run queues job on its profile's workers and waits for the result or ctx.
func (p *Pool) Run(ctx context.Context, job iface.Job) (iface.JobResult, error) {
	pkg := jobPackage{
		ctx:    ctx,
		id:     uuid.NewString(),
		job:    job,
		result: make(chan jobResult, 1),
	}
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return iface.JobResult{}, ErrPoolClosed
	}
	queue, ok := p.queues[job.Profile]
	if !ok {
		p.mu.RUnlock()
		return iface.JobResult{}, fmt.Errorf("%w: %q is not served here", profile.ErrUnknownProfile, job.Profile)
	}
	select {
	case queue <- pkg:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return iface.JobResult{}, ctx.Err()
	}

	select {
	case r := <-pkg.result:
		return r.res, r.err
	case <-ctx.Done():
		return iface.JobResult{}, ctx.Err()
	}
}

// Engines reports the configuration of each served profile.
func (p *Pool) Engines() []iface.EngineConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]iface.EngineConfig, 0, len(p.order))
	for _, name := range p.order {
		if dets := p.workers[name]; len(dets) > 0 {
			out = append(out, dets[0].CheckConfig())
		}
	}
	return out
}

func (p *Pool) Workers(name string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.workers[name])
}

// Close stops accepting jobs, lets queued ones finish and destroys every detector.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()
	p.wg.Wait()
	return p.closeDetectors()
}

func (p *Pool) closeDetectors() error {
	var errs []error
	for name, dets := range p.workers {
		for _, d := range dets {
			if err := d.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}
