package pool

import "time"

// Metrics is a point-in-time copy of the pool counters merged with the live
// pool gauges.
type Metrics struct {
	TotalConnections int       `json:"totalConnections"`
	IdleConnections  int       `json:"idleConnections"`
	WaitingRequests  int       `json:"waitingRequests"`
	EstablishedCount int       `json:"establishedCount"`
	ErrorCount       int       `json:"errorCount"`
	LastErrorAt      time.Time `json:"lastErrorTimestamp,omitempty"`
	CoolingDown      bool      `json:"coolingDown"`
}

// SinceLastError reports how long ago the last error was recorded.
// ok is false when no error has been seen.
func (m Metrics) SinceLastError(now time.Time) (d time.Duration, ok bool) {
	if m.LastErrorAt.IsZero() {
		return 0, false
	}
	return now.Sub(m.LastErrorAt), true
}

// Gauges are read from the pool at call time and never cached.
type Gauges struct {
	Total   int
	Idle    int
	Waiting int
}

type GaugeSource interface {
	Gauges() Gauges
}

type Snapshotter interface {
	Snapshot() Metrics
	Now() time.Time
}
