package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const healthQuery = "SELECT 1 AS health_check"

// Querier is the part of the pool the probe needs. It is satisfied by
// db.Pool and by pgxmock pools in tests.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Health struct {
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	Metrics   Metrics   `json:"metrics"`
	Timestamp time.Time `json:"timestamp"`
}

type Probe struct {
	db      Querier
	metrics Snapshotter
	timeout time.Duration
}

// NewProbe returns a probe whose round trip is bounded by timeout. A zero
// timeout leaves the bound to the pool and ctx.
func NewProbe(db Querier, metrics Snapshotter, timeout time.Duration) *Probe {
	return &Probe{db: db, metrics: metrics, timeout: timeout}
}

// Check borrows a connection, runs a trivial query and releases it. It
// always returns a result; failures are reported through Healthy and Error.
func (p *Probe) Check(ctx context.Context) (h Health) {
	defer func() {
		if r := recover(); r != nil {
			h.Healthy = false
			h.Error = fmt.Sprintf("health probe panic: %v", r)
		}
		h.Metrics = p.metrics.Snapshot()
		h.Timestamp = p.metrics.Now().UTC()
	}()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var one int
	if err := p.db.QueryRow(ctx, healthQuery).Scan(&one); err != nil {
		return Health{Healthy: false, Error: err.Error()}
	}
	if one != 1 {
		return Health{Healthy: false, Error: fmt.Sprintf("unexpected health check result %d", one)}
	}
	return Health{Healthy: true}
}
