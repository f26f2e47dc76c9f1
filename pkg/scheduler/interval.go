package scheduler

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// MinPeriod is the floor applied to every auto-capture interval.
	MinPeriod = 200 * time.Millisecond

	// MaxPeriod caps absurd intervals so the duration cannot overflow.
	MaxPeriod = 24 * time.Hour

	// DefaultInterval is used when no interval text is supplied.
	DefaultInterval = 3 * time.Second
)

// EffectivePeriod converts an interval in seconds into the ticker period:
// max(200ms, seconds*1000ms). NaN, infinities and negatives give the floor.
func EffectivePeriod(seconds float64) time.Duration {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return MinPeriod
	}
	ns := seconds * float64(time.Second)
	if ns < float64(MinPeriod) {
		return MinPeriod
	}
	if ns > float64(MaxPeriod) {
		return MaxPeriod
	}
	return time.Duration(math.Round(ns))
}

// ParseInterval converts the free-text interval input. Empty text means the
// default; text that is not a number gets the floor.
func ParseInterval(text string) time.Duration {
	text = strings.TrimSpace(text)
	if text == "" {
		return DefaultInterval
	}
	seconds, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return MinPeriod
	}
	return EffectivePeriod(seconds)
}
