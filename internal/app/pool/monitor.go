package pool

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type EventKind int

const (
	Connect EventKind = iota
	Release
	Error
)

func (k EventKind) String() string {
	switch k {
	case Connect:
		return "connect"
	case Release:
		return "release"
	case Error:
		return "error"
	}
	return "unknown"
}

// Event is a pool lifecycle signal. For Release, a non-nil Err means the
// connection was released in a broken state.
type Event struct {
	Kind EventKind
	Err  error
}

// EscalationPolicy controls error decay and the attack cooldown.
type EscalationPolicy struct {
	DecayAfter  time.Duration
	ErrorsAbove int
	Window      time.Duration
	Cooldown    time.Duration
}

func DefaultEscalationPolicy() EscalationPolicy {
	return EscalationPolicy{
		DecayAfter:  5 * time.Minute,
		ErrorsAbove: 10,
		Window:      time.Minute,
		Cooldown:    30 * time.Second,
	}
}

type Monitor struct {
	mu            sync.Mutex
	established   int
	// releases applied before their matching connect
	early         int
	errors        int
	lastErrorAt   time.Time
	cooldownUntil time.Time
	cooldownTimer *time.Timer

	gauges GaugeSource
	events chan Event
	policy EscalationPolicy
	now    func() time.Time
	log    *zap.Logger
}

type Option func(*Monitor)

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

func WithGauges(g GaugeSource) Option {
	return func(m *Monitor) { m.gauges = g }
}

func WithEscalationPolicy(p EscalationPolicy) Option {
	return func(m *Monitor) { m.policy = p }
}

func WithBuffer(n int) Option {
	return func(m *Monitor) { m.events = make(chan Event, n) }
}

func NewMonitor(log *zap.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		events: make(chan Event, 256),
		policy: DefaultEscalationPolicy(),
		now:    time.Now,
		log:    log,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// AttachGauges sets the live gauge source once the pool exists. The pool
// needs the monitor for its hooks, so it cannot be passed to NewMonitor.
func (m *Monitor) AttachGauges(g GaugeSource) {
	m.mu.Lock()
	m.gauges = g
	m.mu.Unlock()
}

func (m *Monitor) Now() time.Time { return m.now() }

// Publish queues e for Run. It never blocks: when the queue is full the
// event is applied on the caller's goroutine, possibly ahead of queued ones.
// Connect and Release commute, so established stays exact either way.
func (m *Monitor) Publish(e Event) {
	select {
	case m.events <- e:
	default:
		m.Apply(e)
	}
}

// Run applies queued events until ctx is done, then drains what is left.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		select {
		case e := <-m.events:
			m.Apply(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-m.events:
					m.Apply(e)
				default:
					m.stopCooldown()
					return nil
				}
			}
		}
	}
}

func (m *Monitor) Apply(e Event) {
	switch e.Kind {
	case Connect:
		m.OnConnect()
	case Release:
		m.OnRelease(e.Err)
	case Error:
		m.OnError(e.Err)
	}
}

func (m *Monitor) OnConnect() {
	m.mu.Lock()
	if m.early > 0 {
		m.early--
	} else {
		m.established++
	}
	n := m.established
	m.mu.Unlock()

	m.log.Debug("database connection established", zap.Int("established", n))
}

// OnRelease records a connection returning to the pool. A non-nil err
// counts as a pool error instead of a release.
func (m *Monitor) OnRelease(err error) {
	if err != nil {
		m.recordError()
		m.log.Error("database connection released with error", zap.Error(err))
		return
	}

	m.mu.Lock()
	if m.established > 0 {
		m.established--
	} else {
		m.early++
	}
	n := m.established
	m.mu.Unlock()

	m.log.Debug("database connection released", zap.Int("established", n))
}

func (m *Monitor) OnError(err error) {
	n := m.recordError()
	m.log.Error("database pool error", zap.Error(err), zap.Int("error_count", n))
}

func (m *Monitor) recordError() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
	m.lastErrorAt = m.now()
	return m.errors
}

// DecayTick removes one error once the last error is older than the decay
// window. It never erases an active burst.
func (m *Monitor) DecayTick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errors == 0 || m.lastErrorAt.IsZero() {
		return
	}
	if m.now().Sub(m.lastErrorAt) > m.policy.DecayAfter {
		m.errors--
	}
}

// CheckEscalation opens a cooldown window when the error count is above the
// escalation threshold within the escalation window. It reports whether a new
// window was opened. The cooldown is only observed, it does not reject traffic.
func (m *Monitor) CheckEscalation() bool {
	m.mu.Lock()
	now := m.now()
	if m.errors <= m.policy.ErrorsAbove ||
		m.lastErrorAt.IsZero() || now.Sub(m.lastErrorAt) >= m.policy.Window ||
		now.Before(m.cooldownUntil) {
		m.mu.Unlock()
		return false
	}
	errs := m.errors
	m.cooldownUntil = now.Add(m.policy.Cooldown)
	if m.cooldownTimer != nil {
		m.cooldownTimer.Stop()
	}
	m.cooldownTimer = time.AfterFunc(m.policy.Cooldown, func() {
		m.log.Info("cooldown elapsed, resuming normal connection operations")
	})
	m.mu.Unlock()

	m.log.Error("possible connection exhaustion attack",
		zap.Bool("critical", true),
		zap.Int("error_count", errs),
		zap.Duration("cooldown", m.policy.Cooldown),
	)
	return true
}

func (m *Monitor) stopCooldown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cooldownTimer != nil {
		m.cooldownTimer.Stop()
		m.cooldownTimer = nil
	}
}

func (m *Monitor) Snapshot() Metrics {
	m.mu.Lock()
	now := m.now()
	s := Metrics{
		EstablishedCount: m.established,
		ErrorCount:       m.errors,
		LastErrorAt:      m.lastErrorAt,
		CoolingDown:      now.Before(m.cooldownUntil),
	}
	g := m.gauges
	m.mu.Unlock()

	if g != nil {
		live := g.Gauges()
		s.TotalConnections = live.Total
		s.IdleConnections = live.Idle
		s.WaitingRequests = live.Waiting
	}
	return s
}
