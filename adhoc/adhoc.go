package adhoc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"YoloDetServer/logger"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DmlInstance    = 0x2001
	CpuInstance    = 0x2002
	CudaInstance   = 0x2003
	RocmInstance   = 0x2004
	TimeOutSeconds = 5
)

// InstanceClass maps the config spelling onto the registry constants; unknown
// names fall back to CpuInstance.
func InstanceClass(name string) int {
	switch name {
	case "Dml":
		return DmlInstance
	case "Cuda":
		return CudaInstance
	case "Rocm":
		return RocmInstance
	default:
		return CpuInstance
	}
}

type RegisterRequest struct {
	Id            string   `json:"id"`
	IP            string   `json:"ip"`
	Port          int      `json:"port"`
	InstanceClass int      `json:"instanceClass"`
	Profiles      []string `json:"profiles"`
	TimeStamp     int64    `json:"timestamp"`
}

type RegisterResponse struct {
	Id      string `json:"id"`
	Success bool   `json:"success"`
}

// Registrar announces this instance to a registration server.
type Registrar struct {
	id       string
	url      string
	ip       string
	port     int
	class    int
	profiles []string
	interval time.Duration
	client   *resty.Client
	log      *zap.Logger
}

func NewRegistrar(regHost string, regPort int, ip string, port int, instanceClass int, profiles []string) *Registrar {
	return &Registrar{
		id:       uuid.NewString(),
		url:      fmt.Sprintf("http://%s:%d/api/register", regHost, regPort),
		ip:       ip,
		port:     port,
		class:    instanceClass,
		profiles: append([]string(nil), profiles...),
		interval: TimeOutSeconds * time.Second,
		client:   resty.New().SetTimeout(TimeOutSeconds * time.Second), // 总超时
		log:      logger.Log().Named("adhoc"),
	}
}

func (r *Registrar) ID() string { return r.id }

// Beat sends one heartbeat.
func (r *Registrar) Beat(ctx context.Context) error {
	var respBody RegisterResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(RegisterRequest{
			Id:            r.id,
			IP:            r.ip,
			Port:          r.port,
			InstanceClass: r.class,
			Profiles:      r.profiles,
			TimeStamp:     time.Now().Unix(),
		}).
		SetResult(&respBody). // 2xx 自动反序列化到 respBody
		Post(r.url)
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}
	// 检查 HTTP 状态码
	if resp.IsError() {
		return fmt.Errorf("server returned error: %s, body: %s", resp.Status(), resp.String())
	}
	if !respBody.Success {
		return fmt.Errorf("registration rejected for %s", r.id)
	}
	return nil
}

func (r *Registrar) safeBeat(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("heartbeat panic recovered", zap.Any("panic", p))
		}
	}()
	if err := r.Beat(ctx); err != nil && ctx.Err() == nil {
		r.log.Error("heartbeat failed", zap.String("url", r.url), zap.Error(err))
	}
}

// SendAliveMessage beats once immediately, then every interval until ctx is done.
func SendAliveMessage(ctx context.Context, wg *sync.WaitGroup, r *Registrar) {
	defer wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.safeBeat(ctx)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("SendAliveMessage context cancelled, exiting goroutine.")
			return
		case <-ticker.C:
			r.safeBeat(ctx)
		}
	}
}
