package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"YoloDetServer/adhoc"
	"YoloDetServer/api"
	"YoloDetServer/config"
	"YoloDetServer/engine"
	"YoloDetServer/logger"
	"YoloDetServer/monitor"
	"YoloDetServer/rpc"
	"YoloDetServer/worker"

	"go.uber.org/zap"
)

func GetOutboundIP() (string, error) {
	// 8.8.8.8 是 Google DNS，这里只是为了建立路由路径得到本地出口 IP
	// 实际并没有真正的物理连接，所以不需要联网也可以（只要有路由表）
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)

	return localAddr.IP.String(), nil
}

func main() {
	cfgPath := flag.String("config", config.DefaultPath, "path to the yaml config")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.LogMode, cfg.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to init logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Log()

	fmt.Println(strings.Repeat("#", 64))
	fmt.Printf("CPU Cores: %d\n", runtime.NumCPU())
	fmt.Println(" gRPC  Port:", cfg.RPCPort)
	fmt.Println(" HTTP  Port:", cfg.HTTPPort)
	fmt.Println(" Mon   Port:", cfg.MonitorPort)
	fmt.Println("Configured Workers Num:", cfg.WorkersNum, "per profile")
	fmt.Println("Profiles:", strings.Join(cfg.Profiles, ", "))
	fmt.Println(strings.Repeat("#", 64))
	for _, w := range cfg.Warnings {
		log.Warn(w)
	}

	ip, err := GetOutboundIP()
	if err != nil {
		log.Warn("Failed to get outbound IP, using loopback", zap.Error(err))
		ip = "127.0.0.1"
	}

	pool, err := worker.NewPool(cfg.EnabledProfiles(), cfg.WorkersNum, worker.DetectorFactory(
		engine.WithBackend(cfg.Backend),
		engine.WithTarget(cfg.Target),
		engine.WithModelDir(cfg.ModelDir),
		engine.WithLetterbox(cfg.Letterbox),
		engine.WithClassAware(cfg.ClassAware),
		engine.WithLogger(log.Named("engine")),
	))
	if err != nil {
		log.Fatal("Failed to load detectors", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if cfg.UseRegServer {
		reg := adhoc.NewRegistrar(cfg.RegServerHost, cfg.RegServerPort, ip, cfg.RPCPort, adhoc.InstanceClass(cfg.InstanceClass), cfg.Profiles)
		wg.Add(1)
		go adhoc.SendAliveMessage(ctx, &wg, reg)
	} else {
		log.Info("UseRegServer is set to false, skipping registration")
	}

	grpcSrv, err := rpc.StartGRPCServer(cfg.RPCPort, pool)
	if err != nil {
		_ = pool.Close()
		log.Fatal("Failed to start gRPC server", zap.Error(err))
	}
	httpSrv := api.New(pool)
	httpSrv.Start(cfg.HTTPPort)

	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.StartMon(ctx, cfg.MonitorPort)
	}()

	<-ctx.Done()
	log.Warn("Shutting down...")
	grpcSrv.GracefulStop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	cancel()
	if err := pool.Close(); err != nil {
		log.Error("closing detectors", zap.Error(err))
	}
	wg.Wait()
	log.Info("Safely exited")
}
