package pool

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// HealthReporter receives the outcome of each watcher tick.
type HealthReporter interface {
	SetServing(serving bool)
}

type Watcher struct {
	probe      *Probe
	monitor    *Monitor
	reporter   HealthReporter
	interval   time.Duration
	warnWaiter int
	log        *zap.Logger
}

func NewWatcher(probe *Probe, monitor *Monitor, reporter HealthReporter, interval time.Duration, log *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Watcher{
		probe:      probe,
		monitor:    monitor,
		reporter:   reporter,
		interval:   interval,
		warnWaiter: 3,
		log:        log,
	}
}

// Tick runs one probe, applies error decay and checks for escalation.
func (w *Watcher) Tick(ctx context.Context) Health {
	h := w.probe.Check(ctx)

	if !h.Healthy {
		w.log.Warn("database health check failed",
			zap.String("error", h.Error),
			zap.Int("waiting", h.Metrics.WaitingRequests),
			zap.Int("total", h.Metrics.TotalConnections),
		)
	}
	if h.Metrics.WaitingRequests > w.warnWaiter {
		w.log.Warn("database pool has waiting requests",
			zap.Int("waiting", h.Metrics.WaitingRequests),
			zap.Int("idle", h.Metrics.IdleConnections),
			zap.Int("total", h.Metrics.TotalConnections),
		)
	}

	w.monitor.DecayTick()
	w.monitor.CheckEscalation()

	if w.reporter != nil {
		w.reporter.SetServing(h.Healthy)
	}
	return h
}

func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}
