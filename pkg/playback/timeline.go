package playback

import (
	"math"
	"time"
)

// Speed bounds.
const (
	MinSpeed = 0.1
	MaxSpeed = 10.0
)

// Timeline is a simulated clock bounded by [start, end], in nanoseconds
// since the epoch. It is not safe for concurrent use.
type Timeline struct {
	start   uint64
	end     uint64
	current uint64
	speed   float64
}

// NewTimeline returns a timeline positioned at start, running at speed 1.
func NewTimeline(start, end uint64) *Timeline {
	if end < start {
		end = start
	}
	return &Timeline{start: start, end: end, current: start, speed: 1}
}

func (t *Timeline) Start() uint64   { return t.start }
func (t *Timeline) End() uint64     { return t.end }
func (t *Timeline) Current() uint64 { return t.current }
func (t *Timeline) Speed() float64  { return t.speed }

// AtEnd reports whether the cursor has reached the end.
func (t *Timeline) AtEnd() bool { return t.current >= t.end }

// Seek moves the cursor to ts, clamped into [start, end], and returns the
// new position.
func (t *Timeline) Seek(ts uint64) uint64 {
	switch {
	case ts < t.start:
		ts = t.start
	case ts > t.end:
		ts = t.end
	}
	t.current = ts
	return ts
}

// SetSpeed sets the speed multiplier, clamped into [MinSpeed, MaxSpeed],
// and returns the value applied.
func (t *Timeline) SetSpeed(v float64) float64 {
	t.speed = ClampSpeed(v)
	return t.speed
}

// ClampSpeed clamps v into [MinSpeed, MaxSpeed]. NaN maps to 1.
func ClampSpeed(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 1
	case v < MinSpeed:
		return MinSpeed
	case v > MaxSpeed:
		return MaxSpeed
	}
	return v
}

// Advance moves the cursor by wall-clock d scaled by the speed. It returns
// true once the end has been reached.
func (t *Timeline) Advance(d time.Duration) bool {
	if d > 0 {
		delta := uint64(float64(d) * t.speed)
		if delta >= t.end-t.current {
			t.current = t.end
		} else {
			t.current += delta
		}
	}
	return t.AtEnd()
}

// Progress returns the position of the cursor in [0, 1]. An empty range
// reports 0.
func (t *Timeline) Progress() float64 { return fraction(t.start, t.end, t.current) }

func fraction(start, end, current uint64) float64 {
	if end <= start || current <= start {
		return 0
	}
	if current >= end {
		return 1
	}
	return float64(current-start) / float64(end-start)
}

// Reset moves the cursor back to start.
func (t *Timeline) Reset() { t.current = t.start }
