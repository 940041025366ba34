package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"YoloDetServer/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

var (
	registry = prometheus.NewRegistry()

	memUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memory_usage_Megabytes",
		Help: "Memory usage in Megabytes",
	})
	cpuUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cpu_usage_percent",
		Help: "CPU usage in percent",
	})

	// RequestsTotal counts requests per transport ("grpc", "http", "ws").
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "yolo_requests_total",
		Help: "Total number of detection requests processed",
	}, []string{"transport"})

	DetectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "yolo_detections_total",
		Help: "Boxes returned after non-maximum suppression",
	}, []string{"netname"})

	InferenceSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "yolo_inference_seconds",
		Help:    "Time spent in one detect call",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"netname"})

	BusyWorkers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "yolo_busy_workers",
		Help: "Workers currently running a forward pass",
	}, []string{"netname"})
)

func init() {
	registry.MustRegister(memUsage, cpuUsage, RequestsTotal, DetectionsTotal, InferenceSeconds, BusyWorkers)
}

// Handler serves the metrics of this process.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// ObserveDetect records one finished detect call.
func ObserveDetect(netname string, took time.Duration, boxes int) {
	InferenceSeconds.WithLabelValues(netname).Observe(took.Seconds())
	DetectionsTotal.WithLabelValues(netname).Add(float64(boxes))
}

func checkProcessInfo(p *process.Process) {
	if memInfo, err := p.MemoryInfo(); err == nil {
		memUsage.Set(float64(memInfo.RSS / 1024 / 1024))
	}
	if cpuPercent, err := p.CPUPercent(); err == nil {
		cpuUsage.Set(math.Round(cpuPercent*100) / 100)
	}
}

// StartMon serves /metrics on port and samples this process every 500ms
// until ctx is cancelled.
func StartMon(ctx context.Context, port int) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Log().Error("monitor: cannot inspect own process", zap.Error(err))
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log().Error("Prometheus server ListenAndServe error", zap.Error(err))
		}
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
checkPcs:
	for {
		select {
		case <-ctx.Done():
			break checkPcs
		case <-ticker.C:
			checkProcessInfo(p)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log().Error("Prometheus server Shutdown error", zap.Error(err))
	}
}
