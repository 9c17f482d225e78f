package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	adhoc "IntakeDetServer/Adhoc"
	"IntakeDetServer/config"
	"IntakeDetServer/detect"
	"IntakeDetServer/engine"
	rpc "IntakeDetServer/gRPC"
	iface "IntakeDetServer/interface"
	"IntakeDetServer/logger"
	"IntakeDetServer/mailer"
	"IntakeDetServer/monitor"
	"IntakeDetServer/server"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	envErr := godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log.Mode); err != nil {
		return err
	}
	defer logger.Sync()
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		logger.Log().Warn("Failed to load .env file", zap.Error(envErr))
	}
	if cfg.Log.Mode != logger.ModeDevelopment {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Log().Info(strings.Repeat("#", 64))
	logger.Log().Info("Starting "+server.ServiceName,
		zap.Int("port", cfg.Server.Port),
		zap.Int("adminPort", cfg.Server.AdminPort),
		zap.Int("rpcPort", cfg.Server.RPCPort),
		zap.String("backend", cfg.Model.Backend),
		zap.Int("workers", cfg.Model.Workers),
		zap.Int("cpus", runtime.NumCPU()))
	if cfg.Model.Workers > runtime.NumCPU() {
		logger.Log().Warn("model.workers exceeds CPU cores, which may lead to performance degradation")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mon, err := monitor.New()
	if err != nil {
		return err
	}

	model := engine.NewModel(func() (iface.Backend, error) {
		return engine.NewBackend(iface.EngineConfig{
			Backend:      cfg.Model.Backend,
			ModelPath:    cfg.Model.Path,
			InferenceURL: cfg.Model.InferenceURL,
			Names:        cfg.Model.Names,
			Iou:          cfg.Model.Iou,
			InputSize:    cfg.Model.InputSize,
			Workers:      cfg.Model.Workers,
		})
	})
	defer func() {
		if err := model.Close(); err != nil {
			logger.Log().Error("Failed to close detection model", zap.Error(err))
		}
	}()

	var wg sync.WaitGroup
	goFn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	goFn(func() {
		if err := mon.Start(ctx, cfg.Server.AdminPort); err != nil {
			logger.Log().Error("Metrics server failed", zap.Error(err))
		}
	})
	goFn(func() {
		select {
		case <-model.Ready():
			mon.SetModelLoaded(true)
		case <-ctx.Done():
		}
	})

	grpcServer := rpc.NewServer(model, mon)
	if err := grpcServer.Listen(cfg.Server.RPCPort); err != nil {
		return err
	}
	defer grpcServer.Stop()
	goFn(func() { grpcServer.Watch(ctx) })

	if cfg.Registry.Enabled {
		ip := adhoc.GetOutboundIP()
		hb := adhoc.NewHeartbeat(cfg.Registry.Host, cfg.Registry.Port, ip, cfg.Server.Port,
			time.Duration(cfg.Registry.IntervalSeconds)*time.Second, model.Loaded)
		logger.Log().Info("Registering with registry server",
			zap.String("id", hb.ID), zap.String("ip", ip),
			zap.String("registry", fmt.Sprintf("%s:%d", cfg.Registry.Host, cfg.Registry.Port)))
		goFn(func() { hb.Run(ctx) })
	} else {
		logger.Log().Info("registry.enabled is false, skipping registration")
	}

	if cfg.Model.Preload {
		goFn(func() { model.Preload() })
	}

	mail := mailer.NewResendFactory(cfg.Email.BaseURL, time.Duration(cfg.Email.TimeoutSeconds)*time.Second)
	srv, err := server.New(cfg, model, detect.NewService(model, cfg.Detect.Padding), mail, mon)
	if err != nil {
		return err
	}
	runErr := srv.Run(ctx)

	stop()
	wg.Wait()
	logger.Log().Info("Safely exited")
	return runErr
}
