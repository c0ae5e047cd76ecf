package types

import (
	"fmt"
	"math"
	"time"
)

// Time is an instant in nanoseconds since the Unix epoch.
type Time int64

const (
	// Genesis is the lowest representable instant. Throttles start their
	// cooldown from it and hold sources are seeded at it.
	Genesis Time = math.MinInt64

	// Horizon is the highest representable instant. Constants report it so
	// they never drive a merge forward.
	Horizon Time = math.MaxInt64
)

// FromTime converts a wall-clock time.
func FromTime(t time.Time) Time {
	return Time(t.UnixNano())
}

// FromMillis converts a Prometheus millisecond timestamp.
func FromMillis(ms int64) Time {
	return Time(ms * int64(time.Millisecond))
}

// Std returns t as a time.Time in UTC.
func (t Time) Std() time.Time {
	return time.Unix(0, int64(t)).UTC()
}

// Add returns t advanced by d, saturating at the sentinels.
func (t Time) Add(d time.Duration) Time {
	s := t + Time(d)
	switch {
	case d > 0 && s < t:
		return Horizon
	case d < 0 && s > t:
		return Genesis
	}
	return s
}

// Sub returns t-u, saturating at the duration limits.
func (t Time) Sub(u Time) time.Duration {
	d := t - u
	switch {
	case u < 0 && d < t:
		return time.Duration(math.MaxInt64)
	case u > 0 && d > t:
		return time.Duration(math.MinInt64)
	}
	return time.Duration(d)
}

func (t Time) String() string {
	switch t {
	case Genesis:
		return "genesis"
	case Horizon:
		return "horizon"
	}
	return t.Std().Format(time.RFC3339Nano)
}

// Sample is one time-stamped value of a metric.
type Sample struct {
	Time  Time
	Value float64
}

func (s Sample) String() string {
	return fmt.Sprintf("(%s, %g)", s.Time, s.Value)
}
