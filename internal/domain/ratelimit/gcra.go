package ratelimit

import (
	"math"
	"time"
)

// Limit is a GCRA rate: Rate requests per second with Burst requests of tolerance.
type Limit struct {
	Rate  float64
	Burst int
}

// Emission is the interval between conforming requests (1/r).
func (l Limit) Emission() time.Duration {
	return time.Duration(float64(time.Second) / l.Rate)
}

// Tolerance is the burst window (b/r).
func (l Limit) Tolerance() time.Duration {
	return time.Duration(l.Burst) * l.Emission()
}

// Result is a single admission decision.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration
	RetryAfter time.Duration
}

// Step applies one arrival at now to a key whose theoretical arrival time is tat.
// A zero tat means the key has no history. It returns the TAT to store and the decision.
func Step(tat, now time.Time, l Limit) (time.Time, Result) {
	if tat.Before(now) {
		tat = now
	}
	next := tat.Add(l.Emission())
	if now.Before(next.Add(-l.Tolerance())) {
		return tat, Describe(false, tat, now, l)
	}
	return next, Describe(true, next, now, l)
}

// Describe derives the header values for a decision from the stored TAT.
func Describe(allowed bool, tat, now time.Time, l Limit) Result {
	res := Result{Allowed: allowed, Limit: l.Burst}
	reset := tat.Sub(now)
	if reset < 0 {
		reset = 0
	}
	res.ResetAfter = reset

	if allowed {
		remaining := int((l.Tolerance() - reset) / l.Emission())
		res.Remaining = min(max(remaining, 0), l.Burst)
		return res
	}
	res.RetryAfter = tat.Add(l.Emission()).Add(-l.Tolerance()).Sub(now)
	if res.RetryAfter < 0 {
		res.RetryAfter = 0
	}
	return res
}

// Seconds rounds d up to whole seconds.
func Seconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}
