package pool

import "time"

type Decision int

const (
	Admit Decision = iota
	Throttle
	Reject
)

func (d Decision) String() string {
	switch d {
	case Admit:
		return "admit"
	case Throttle:
		return "throttle"
	case Reject:
		return "reject"
	}
	return "unknown"
}

// GuardPolicy holds the admission thresholds. All comparisons are strict.
type GuardPolicy struct {
	ExhaustedAbove      int
	WarnAbove           int
	BurstErrorsAbove    int
	BurstWindow         time.Duration
	ExhaustedRetryAfter time.Duration
	BurstRetryAfter     time.Duration
}

func DefaultGuardPolicy() GuardPolicy {
	return GuardPolicy{
		ExhaustedAbove:      10,
		WarnAbove:           5,
		BurstErrorsAbove:    5,
		BurstWindow:         30 * time.Second,
		ExhaustedRetryAfter: 5 * time.Second,
		BurstRetryAfter:     2 * time.Second,
	}
}

type Verdict struct {
	Decision   Decision
	RetryAfter time.Duration
	// Warn is set when the queue is above the soft threshold.
	Warn bool
}

// Evaluate applies the admission rules in order: queue exhaustion, soft
// queue warning, then error burst.
func (p GuardPolicy) Evaluate(m Metrics, now time.Time) Verdict {
	if m.WaitingRequests > p.ExhaustedAbove {
		return Verdict{Decision: Reject, RetryAfter: p.ExhaustedRetryAfter, Warn: true}
	}
	v := Verdict{Decision: Admit, Warn: m.WaitingRequests > p.WarnAbove}

	if m.ErrorCount > p.BurstErrorsAbove {
		if since, ok := m.SinceLastError(now); ok && since < p.BurstWindow {
			v.Decision = Throttle
			v.RetryAfter = p.BurstRetryAfter
		}
	}
	return v
}
