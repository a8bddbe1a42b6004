package shared

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

func TestHealthServer(t *testing.T) {
	lis := bufconn.Listen(bufSize)
	hs := NewHealthServer("grading.GradingService", GRPCConfig{})
	go func() { hs.Serve(lis) }()
	defer hs.Stop()

	conn, err := grpc.NewClient("passthrough://bufnet",
		grpc.WithContextDialer(func(ctx context.Context, s string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("Failed to dial bufnet: %v", err)
	}
	defer conn.Close()

	client := grpc_health_v1.NewHealthClient(conn)
	check := func() grpc_health_v1.HealthCheckResponse_ServingStatus {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: "grading.GradingService"})
		if err != nil {
			t.Fatalf("Health check failed: %v", err)
		}
		return resp.Status
	}

	t.Run("Not serving before startup completes", func(t *testing.T) {
		if got := check(); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
			t.Errorf("Expected NOT_SERVING, got %v", got)
		}
	})

	t.Run("Serving after SetServing", func(t *testing.T) {
		hs.SetServing(true)
		if got := check(); got != grpc_health_v1.HealthCheckResponse_SERVING {
			t.Errorf("Expected SERVING, got %v", got)
		}
	})
}
