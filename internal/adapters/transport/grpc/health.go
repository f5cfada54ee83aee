package grpc

import (
	"sync/atomic"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service entry for the database-backed API.
const ServiceName = "agile.platform.api"

// HealthReporter publishes the watcher's verdict through the standard gRPC
// health service.
type HealthReporter struct {
	srv     *health.Server
	serving atomic.Bool
}

func NewHealthReporter() *HealthReporter {
	r := &HealthReporter{srv: health.NewServer()}
	r.srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	r.srv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return r
}

func (r *HealthReporter) Server() healthpb.HealthServer { return r.srv }

func (r *HealthReporter) SetServing(serving bool) {
	r.serving.Store(serving)
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	r.srv.SetServingStatus(ServiceName, st)
}

func (r *HealthReporter) Serving() bool { return r.serving.Load() }

// Shutdown marks every service NOT_SERVING so clients drain before stop.
func (r *HealthReporter) Shutdown() {
	r.serving.Store(false)
	r.srv.Shutdown()
}
