package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeGauges struct{ g Gauges }

func (f *fakeGauges) Gauges() Gauges { return f.g }

func newTestMonitor(t *testing.T) (*Monitor, *fakeClock, *fakeGauges, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	clock := newFakeClock()
	gauges := &fakeGauges{}
	m := NewMonitor(zap.New(core), WithClock(clock.Now), WithGauges(gauges))
	return m, clock, gauges, logs
}

func TestMonitor_ConnectRelease(t *testing.T) {
	m, _, _, _ := newTestMonitor(t)

	m.OnConnect()
	m.OnConnect()
	m.OnRelease(nil)
	require.Equal(t, 1, m.Snapshot().EstablishedCount)

	m.OnRelease(nil)
	m.OnRelease(nil)
	require.Equal(t, 0, m.Snapshot().EstablishedCount, "established never goes negative")
}

func TestMonitor_ReleaseWithErrorCountsError(t *testing.T) {
	m, clock, _, _ := newTestMonitor(t)
	m.OnConnect()

	m.OnRelease(errors.New("conn closed"))
	s := m.Snapshot()
	require.Equal(t, 1, s.EstablishedCount)
	require.Equal(t, 1, s.ErrorCount)
	require.Equal(t, clock.Now(), s.LastErrorAt)
}

func TestMonitor_SnapshotReadsLiveGauges(t *testing.T) {
	m, _, gauges, _ := newTestMonitor(t)

	gauges.g = Gauges{Total: 7, Idle: 2, Waiting: 4}
	s := m.Snapshot()
	require.Equal(t, 7, s.TotalConnections)
	require.Equal(t, 2, s.IdleConnections)
	require.Equal(t, 4, s.WaitingRequests)

	gauges.g.Waiting = 0
	require.Equal(t, 0, m.Snapshot().WaitingRequests)
}

func TestMonitor_DecayTick(t *testing.T) {
	m, clock, _, _ := newTestMonitor(t)

	m.DecayTick()
	require.Equal(t, 0, m.Snapshot().ErrorCount)

	m.OnError(errors.New("boom"))
	m.OnError(errors.New("boom"))

	clock.Advance(299 * time.Second)
	m.DecayTick()
	require.Equal(t, 2, m.Snapshot().ErrorCount)

	clock.Advance(time.Second)
	m.DecayTick()
	require.Equal(t, 2, m.Snapshot().ErrorCount, "exactly 300s is not older than the window")

	clock.Advance(time.Second)
	m.DecayTick()
	require.Equal(t, 1, m.Snapshot().ErrorCount)
	m.DecayTick()
	require.Equal(t, 0, m.Snapshot().ErrorCount)
	m.DecayTick()
	require.Equal(t, 0, m.Snapshot().ErrorCount)
}

func TestMonitor_PublishAndRun(t *testing.T) {
	m, _, _, _ := newTestMonitor(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()

	m.Publish(Event{Kind: Connect})
	m.Publish(Event{Kind: Connect})
	m.Publish(Event{Kind: Release})
	m.Publish(Event{Kind: Error, Err: errors.New("dial tcp: refused")})

	cancel()
	<-done

	s := m.Snapshot()
	require.Equal(t, 1, s.EstablishedCount)
	require.Equal(t, 1, s.ErrorCount)
}

func TestMonitor_PublishFullBufferAppliesInline(t *testing.T) {
	core, _ := observer.New(zap.DebugLevel)
	m := NewMonitor(zap.New(core), WithBuffer(1))

	m.Publish(Event{Kind: Connect})
	m.Publish(Event{Kind: Connect})
	m.Publish(Event{Kind: Connect})

	require.Equal(t, 2, m.Snapshot().EstablishedCount)
	m.Apply(<-m.events)
	require.Equal(t, 3, m.Snapshot().EstablishedCount)
}

func TestMonitor_PublishOverflowKeepsEstablishedExact(t *testing.T) {
	core, _ := observer.New(zap.DebugLevel)
	m := NewMonitor(zap.New(core), WithBuffer(1))

	m.Publish(Event{Kind: Connect})
	m.Publish(Event{Kind: Release})
	require.Equal(t, 0, m.Snapshot().EstablishedCount)

	m.Apply(<-m.events)
	require.Equal(t, 0, m.Snapshot().EstablishedCount, "late connect matches the early release")

	m.OnConnect()
	require.Equal(t, 1, m.Snapshot().EstablishedCount)
}

func TestMonitor_Escalation(t *testing.T) {
	m, clock, _, logs := newTestMonitor(t)

	for i := 0; i < 10; i++ {
		m.OnError(errors.New("boom"))
	}
	require.False(t, m.CheckEscalation(), "10 errors is not above the threshold")

	m.OnError(errors.New("boom"))
	clock.Advance(59 * time.Second)
	require.True(t, m.CheckEscalation())
	require.True(t, m.Snapshot().CoolingDown)
	require.Equal(t, 1, logs.FilterMessage("possible connection exhaustion attack").Len())

	require.False(t, m.CheckEscalation(), "no second window while cooling down")

	clock.Advance(30 * time.Second)
	require.False(t, m.Snapshot().CoolingDown)
	require.False(t, m.CheckEscalation(), "last error is older than the window")

	m.stopCooldown()
}

func TestGuardPolicy_Evaluate(t *testing.T) {
	p := DefaultGuardPolicy()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		m     Metrics
		want  Decision
		retry time.Duration
		warn  bool
	}{
		{name: "idle", m: Metrics{}, want: Admit},
		{name: "exhausted", m: Metrics{WaitingRequests: 11}, want: Reject, retry: 5 * time.Second, warn: true},
		{name: "at exhaustion threshold", m: Metrics{WaitingRequests: 10}, want: Admit, warn: true},
		{name: "soft warning", m: Metrics{WaitingRequests: 6}, want: Admit, warn: true},
		{name: "at warn threshold", m: Metrics{WaitingRequests: 5}, want: Admit},
		{
			name: "recent burst", m: Metrics{ErrorCount: 6, LastErrorAt: now.Add(-10 * time.Second)},
			want: Throttle, retry: 2 * time.Second,
		},
		{
			name: "stale burst", m: Metrics{ErrorCount: 6, LastErrorAt: now.Add(-40 * time.Second)},
			want: Admit,
		},
		{
			name: "burst at threshold", m: Metrics{ErrorCount: 5, LastErrorAt: now.Add(-time.Second)},
			want: Admit,
		},
		{
			name: "exhaustion wins over burst",
			m:    Metrics{WaitingRequests: 11, ErrorCount: 50, LastErrorAt: now},
			want: Reject, retry: 5 * time.Second, warn: true,
		},
		{
			name: "burst while queue is warm",
			m:    Metrics{WaitingRequests: 7, ErrorCount: 6, LastErrorAt: now},
			want: Throttle, retry: 2 * time.Second, warn: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := p.Evaluate(tt.m, now)
			assert.Equal(t, tt.want, v.Decision)
			assert.Equal(t, tt.retry, v.RetryAfter)
			assert.Equal(t, tt.warn, v.Warn)
		})
	}
}

func TestProbe_Healthy(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT 1 AS health_check").
		WillReturnRows(pgxmock.NewRows([]string{"health_check"}).AddRow(1))

	m, clock, gauges, _ := newTestMonitor(t)
	gauges.g = Gauges{Total: 3, Idle: 2}

	h := NewProbe(mock, m, time.Second).Check(context.Background())
	require.True(t, h.Healthy)
	require.Empty(t, h.Error)
	require.Equal(t, 3, h.Metrics.TotalConnections)
	require.Equal(t, clock.Now(), h.Timestamp)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProbe_Failure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT 1 AS health_check").WillReturnError(errors.New("connection refused"))

	m, _, gauges, _ := newTestMonitor(t)
	gauges.g = Gauges{Total: 20, Waiting: 12}

	h := NewProbe(mock, m, 0).Check(context.Background())
	require.False(t, h.Healthy)
	require.Contains(t, h.Error, "connection refused")
	require.Equal(t, 12, h.Metrics.WaitingRequests)
	require.False(t, h.Timestamp.IsZero())
}

type panicQuerier struct{}

func (panicQuerier) QueryRow(context.Context, string, ...any) pgx.Row { panic("nil pool") }

func TestProbe_NeverPanics(t *testing.T) {
	m, _, _, _ := newTestMonitor(t)
	h := NewProbe(panicQuerier{}, m, 0).Check(context.Background())
	require.False(t, h.Healthy)
	require.Contains(t, h.Error, "nil pool")
}

type recordingReporter struct{ serving []bool }

func (r *recordingReporter) SetServing(s bool) { r.serving = append(r.serving, s) }

func TestWatcher_Tick(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	m, clock, gauges, _ := newTestMonitor(t)
	core, logs := observer.New(zap.WarnLevel)
	rep := &recordingReporter{}
	w := NewWatcher(NewProbe(mock, m, 0), m, rep, time.Minute, zap.New(core))

	mock.ExpectQuery("SELECT 1 AS health_check").
		WillReturnRows(pgxmock.NewRows([]string{"health_check"}).AddRow(1))
	gauges.g = Gauges{Total: 20, Waiting: 4}
	m.OnError(errors.New("boom"))
	clock.Advance(6 * time.Minute)

	h := w.Tick(context.Background())
	require.True(t, h.Healthy)
	require.Equal(t, 1, logs.FilterMessage("database pool has waiting requests").Len())
	require.Equal(t, 0, m.Snapshot().ErrorCount, "tick applies decay")

	mock.ExpectQuery("SELECT 1 AS health_check").WillReturnError(errors.New("timeout"))
	gauges.g = Gauges{}
	h = w.Tick(context.Background())
	require.False(t, h.Healthy)
	require.Equal(t, 1, logs.FilterMessage("database health check failed").Len())
	require.Equal(t, []bool{true, false}, rep.serving)
	require.NoError(t, mock.ExpectationsWereMet())
}
