package infrastructure

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

type GRPCServer struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
}

type GRPCServerConfig struct {
	Port             string
	EnableReflection bool
}

// NewGRPCServer builds the internal gRPC listener exposing the standard health service.
func NewGRPCServer(cfg GRPCServerConfig) (*GRPCServer, error) {
	port := strings.TrimSpace(cfg.Port)
	if port == "" {
		return nil, fmt.Errorf("grpc port is required")
	}
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	lis, err := net.Listen("tcp", port)
	if err != nil {
		return nil, fmt.Errorf("listen grpc: %w", err)
	}

	server := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)

	if cfg.EnableReflection {
		reflection.Register(server)
	}

	return &GRPCServer{server: server, health: healthServer, listener: lis}, nil
}

func (g *GRPCServer) Start() error {
	logrus.WithField("addr", g.listener.Addr().String()).Info("grpc server starting")
	return g.server.Serve(g.listener)
}

// SetServing flips the status reported for service. An empty name is the overall server status.
func (g *GRPCServer) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus(service, status)
}

// WatchHealth polls check every interval and publishes the result for service.
func (g *GRPCServer) WatchHealth(ctx context.Context, service string, interval time.Duration, check func(ctx context.Context) error) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			checkCtx, cancel := context.WithTimeout(ctx, interval)
			err := check(checkCtx)
			cancel()
			if err != nil {
				logrus.WithField("service", service).Warnf("health check failed: %v", err)
			}
			g.SetServing(service, err == nil)

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (g *GRPCServer) Shutdown(ctx context.Context) error {
	g.health.Shutdown()

	done := make(chan struct{})
	go func() {
		g.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		g.server.Stop()
		return ctx.Err()
	}
}
