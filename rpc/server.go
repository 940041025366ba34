package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"

	"YoloDetServer/engine"
	iface "YoloDetServer/interface"
	"YoloDetServer/logger"
	"YoloDetServer/monitor"
	"YoloDetServer/profile"
	"YoloDetServer/worker"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_zap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

type Server struct {
	runner iface.Runner
}

func NewServer(runner iface.Runner) *Server {
	return &Server{runner: runner}
}

func (s *Server) Detect(ctx context.Context, req *DetectRequest) (*DetectResponse, error) {
	if req.Profile == "" {
		return nil, status.Error(codes.InvalidArgument, "profile cannot be empty")
	}
	if len(req.ImgData) == 0 {
		return nil, status.Error(codes.InvalidArgument, "image data cannot be empty")
	}
	res, err := s.runner.Run(ctx, iface.Job{
		Profile:  req.Profile,
		Image:    req.ImgData,
		Annotate: req.Annotate,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	results := make([]*SingleResult, 0, len(res.Detections))
	for _, d := range res.Detections {
		results = append(results, &SingleResult{
			Name:       d.Label,
			ClassId:    int32(d.ClassID),
			Confidence: d.Conf,
			Box: []*Position{
				toPosition(d.Box.LT),
				toPosition(d.Box.RT),
				toPosition(d.Box.RB),
				toPosition(d.Box.LB),
			},
			Center: toPosition(d.Center),
		})
	}
	return &DetectResponse{
		Success:   true,
		Id:        res.ID,
		Profile:   res.Profile,
		Width:     int32(res.Width),
		Height:    int32(res.Height),
		Results:   results,
		Annotated: res.Annotated,
	}, nil
}

func (s *Server) ListProfiles(ctx context.Context, _ *emptypb.Empty) (*ListProfilesResponse, error) {
	served := make(map[string]bool)
	for _, e := range s.runner.Engines() {
		served[e.NetName] = true
	}
	all := profile.All()
	out := make([]*ProfileInfo, 0, len(all))
	for _, p := range all {
		out = append(out, &ProfileInfo{
			NetName:            p.NetName,
			ConfThreshold:      p.ConfThreshold,
			NmsThreshold:       p.NMSThreshold,
			InpWidth:           int32(p.InpWidth),
			InpHeight:          int32(p.InpHeight),
			ModelConfiguration: p.ModelConfiguration,
			ModelWeights:       p.ModelWeights,
			ClassesFile:        p.ClassesFile,
			Served:             served[p.NetName],
		})
	}
	return &ListProfilesResponse{Profiles: out}, nil
}

func (s *Server) CheckEngine(ctx context.Context, req *CheckEngineRequest) (*EngineInfo, error) {
	for _, e := range s.runner.Engines() {
		if e.NetName != req.Profile {
			continue
		}
		return &EngineInfo{
			NetName:            e.NetName,
			ModelConfiguration: e.ModelConfiguration,
			ModelWeights:       e.ModelWeights,
			Names:              e.Names,
			Confidence:         e.Conf,
			Nms:                e.Nms,
			InpWidth:           int32(e.InpWidth),
			InpHeight:          int32(e.InpHeight),
			Backend:            e.Backend,
			Target:             e.Target,
			Letterbox:          e.Letterbox,
		}, nil
	}
	return nil, status.Errorf(codes.NotFound, "detector for %q not found", req.Profile)
}

func toPosition(p iface.Position) *Position {
	return &Position{X: int32(p.X), Y: int32(p.Y)}
}

// toStatus maps pool and detector errors onto gRPC codes.
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, profile.ErrUnknownProfile):
		code = codes.NotFound
	case errors.Is(err, worker.ErrInvalidImage), errors.Is(err, engine.ErrEmptyFrame):
		code = codes.InvalidArgument
	case errors.Is(err, worker.ErrPoolClosed), errors.Is(err, engine.ErrNotLoaded):
		code = codes.Unavailable
	case errors.Is(err, engine.ErrBusy):
		code = codes.ResourceExhausted
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

func countRequests(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	monitor.RequestsTotal.WithLabelValues("grpc").Inc()
	return handler(ctx, req)
}

func recoveryInterceptorOpt() grpc_recovery.Option {
	return grpc_recovery.WithRecoveryHandler(func(p any) error {
		return status.Errorf(codes.Internal, "panic triggered: %v", p)
	})
}

// NewGRPCServer builds a server with the detect service registered on it.
func NewGRPCServer(runner iface.Runner, log *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	if log == nil {
		log = logger.Log()
	}
	opts = append([]grpc.ServerOption{
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
			countRequests,
			grpc_zap.UnaryServerInterceptor(log),
			grpc_recovery.UnaryServerInterceptor(recoveryInterceptorOpt()),
		)),
	}, opts...)
	s := grpc.NewServer(opts...)
	RegisterDetectServiceServer(s, NewServer(runner))
	return s
}

func StartGRPCServer(port int, runner iface.Runner) (*grpc.Server, error) {
	addr := fmt.Sprintf(":%d", port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	log := logger.Log().Named("grpc")
	s := NewGRPCServer(runner, log)
	go func() {
		log.Info("server listening", zap.String("addr", addr))
		if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("failed to serve gRPC server", zap.Error(err))
		}
	}()
	return s, nil
}
