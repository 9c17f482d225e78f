package rpc

import (
	"context"
	"fmt"
	"net"

	"IntakeDetServer/engine"
	"IntakeDetServer/logger"
	"IntakeDetServer/monitor"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceName is the name probes pass to Health/Check for the detector.
const ServiceName = "cbd.intake.Detection"

// Server exposes the standard gRPC health service. Both the detector
// service and the empty overall name report NOT_SERVING until the model
// has loaded once.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	model  *engine.Model
}

func NewServer(model *engine.Model, mon *monitor.Monitor) *Server {
	s := &Server{
		grpc:   grpc.NewServer(grpc.ChainUnaryInterceptor(observeUnary(mon))),
		health: health.NewServer(),
		model:  model,
	}
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	return s
}

func observeUnary(mon *monitor.Monitor) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		mon.ObserveRPC(info.FullMethod, status.Code(err).String())
		return resp, err
	}
}

func (s *Server) setStatus(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus(ServiceName, st)
	s.health.SetServingStatus("", st)
}

// Watch flips the health status to SERVING once the model is ready and
// returns when ctx is done.
func (s *Server) Watch(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-s.model.Ready():
		s.setStatus(healthpb.HealthCheckResponse_SERVING)
		logger.Log().Info("gRPC health status set to SERVING", zap.String("service", ServiceName))
	}
	<-ctx.Done()
}

// Serve blocks serving on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("serve grpc: %w", err)
	}
	return nil
}

// Listen opens port and serves in the background.
func (s *Server) Listen(port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", port, err)
	}
	go func() {
		logger.Log().Info("gRPC server listening", zap.Int("port", port))
		if err := s.Serve(lis); err != nil {
			logger.Log().Error("gRPC server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop marks every service NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
