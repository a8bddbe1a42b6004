// ============================================================================
// backend/internal/shared/health.go
// gRPC health endpoint probed by the LMS orchestration
// ============================================================================

package shared

import (
	"log"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HealthServer wraps a gRPC server exposing only the health and reflection
// services
type HealthServer struct {
	service string
	server  *grpc.Server
	health  *health.Server
}

// NewHealthServer creates the health endpoint for service. It reports
// NOT_SERVING until SetServing is called.
func NewHealthServer(service string, cfg GRPCConfig) *HealthServer {
	var opts []grpc.ServerOption
	if cfg.MaxRecvMsgSize > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(cfg.MaxRecvMsgSize))
	}
	if cfg.MaxSendMsgSize > 0 {
		opts = append(opts, grpc.MaxSendMsgSize(cfg.MaxSendMsgSize))
	}

	s := grpc.NewServer(opts...)
	h := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, h)
	h.SetServingStatus(service, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	// Register reflection service (useful for debugging with grpcurl)
	reflection.Register(s)

	return &HealthServer{service: service, server: s, health: h}
}

// Serve blocks serving health checks on lis
func (hs *HealthServer) Serve(lis net.Listener) error {
	log.Printf("INFO: gRPC health endpoint listening on %s", lis.Addr())
	return hs.server.Serve(lis)
}

// SetServing flips the status reported for the service
func (hs *HealthServer) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	hs.health.SetServingStatus(hs.service, status)
	hs.health.SetServingStatus("", status)
}

// Stop marks the service NOT_SERVING and drains the server
func (hs *HealthServer) Stop() {
	hs.health.Shutdown()
	hs.server.GracefulStop()
}
