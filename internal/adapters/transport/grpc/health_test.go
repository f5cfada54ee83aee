package grpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func check(t *testing.T, r *HealthReporter, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := r.Server().Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealthReporter(t *testing.T) {
	r := NewHealthReporter()
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, r, ""))
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, r, ServiceName))

	r.SetServing(true)
	require.True(t, r.Serving())
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, r, ServiceName))

	r.SetServing(false)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, r, ServiceName))

	r.SetServing(true)
	r.Shutdown()
	require.False(t, r.Serving())
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, r, ServiceName))
}
