package grpc_control

import (
	"fmt"
	"net"
	"time"

	"market-feed/src/logger"
	"market-feed/src/models"
	"market-feed/src/stream"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service names reported through the standard grpc health protocol, so
// orchestrators can probe the feed without a custom proto.
const (
	ServiceFeed    = "marketfeed.StreamHub"
	ServiceOverall = ""
)

// -----------------------------------------------------------------------------

// ControlService exposes process liveness over grpc. Serving status for the
// hub flips to NOT_SERVING when every update loop is gone while connections
// remain, which is the "stuck scheduler" smell worth alerting on.
type ControlService struct {
	Config *models.MConfig
	Hub    *stream.StreamHub
	Logger *logger.Logger

	server *grpc.Server
	health *health.Server
	done   chan struct{}
}

// -----------------------------------------------------------------------------

func NewControlService(cfg *models.MConfig, hub *stream.StreamHub, log *logger.Logger) *ControlService {
	return &ControlService{
		Config: cfg,
		Hub:    hub,
		Logger: log,
		done:   make(chan struct{}),
	}
}

// -----------------------------------------------------------------------------

// Start listens on the configured grpc address and begins serving health
// probes. Non-blocking; serving errors are logged.
func (s *ControlService) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.GrpcHost, s.Config.GrpcPort)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc control failed to listen on %s: %w", addr, err)
	}

	s.server = grpc.NewServer()
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.server, s.health)

	s.health.SetServingStatus(ServiceOverall, healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceFeed, healthpb.HealthCheckResponse_SERVING)

	go func() {
		if err := s.server.Serve(lis); err != nil {
			s.Logger.Error("grpc control server stopped: %v", err)
		}
	}()

	go s.watchHub()

	s.Logger.Info("grpc control listening on %s", addr)
	return nil
}

// -----------------------------------------------------------------------------

// watchHub refreshes the hub's serving status periodically.
func (s *ControlService) watchHub() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			status := healthpb.HealthCheckResponse_SERVING
			if s.Hub.ConnectionCount() > 0 && s.Hub.LoopCount() == 0 {
				status = healthpb.HealthCheckResponse_NOT_SERVING
			}
			s.health.SetServingStatus(ServiceFeed, status)
		}
	}
}

// -----------------------------------------------------------------------------

// Stop drains in-flight RPCs and shuts the listener. Idempotent enough for
// a shutdown path: a nil server means Start never ran.
func (s *ControlService) Stop() {
	close(s.done)
	if s.server != nil {
		s.health.Shutdown()
		s.server.GracefulStop()
	}
}
