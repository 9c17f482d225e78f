package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"IntakeDetServer/config"
	"IntakeDetServer/detect"
	"IntakeDetServer/logger"
	"IntakeDetServer/mailer"
	"IntakeDetServer/monitor"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ServiceName = "CBD Intake Detection API"

	shutdownTimeout = 10 * time.Second
)

// Detector runs detection on one encoded image.
type Detector interface {
	Detect(ctx context.Context, data []byte, conf float32) (*detect.Result, error)
}

// ModelState reports whether the detection model has been loaded.
type ModelState interface {
	Loaded() bool
}

type Server struct {
	cfg      *config.Config
	model    ModelState
	detector Detector
	mail     mailer.Factory
	mon      *monitor.Monitor
	origins  *originPolicy
	engine   *gin.Engine
}

// New wires the HTTP routes. mon may be nil.
func New(cfg *config.Config, model ModelState, detector Detector, mail mailer.Factory, mon *monitor.Monitor) (*Server, error) {
	origins, err := newOriginPolicy(cfg.Cors.Origins, cfg.Cors.OriginPattern)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:      cfg,
		model:    model,
		detector: detector,
		mail:     mail,
		mon:      mon,
		origins:  origins,
	}

	r := gin.New()
	r.MaxMultipartMemory = s.maxUploadBytes()
	r.Use(requestID(), s.accessLog(), recovery(), s.origins.middleware())

	r.GET("/", s.root)
	r.GET("/health", s.health)
	r.POST("/detect", s.detect)
	r.POST("/send-email", s.sendEmail)
	r.GET("/ws/detect", s.detectStream)
	s.engine = r
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) maxUploadBytes() int64 {
	return int64(s.cfg.Detect.MaxUploadMB) << 20
}

// Run serves on the configured port until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log().Info("HTTP server listening", zap.Int("port", s.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	logger.Log().Info("HTTP server stopped")
	return nil
}
