package replay

import (
	"sync"
	"time"
)

// Clock supplies wall-clock time to the scheduler.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock is a Clock moved by hand, for tests and dry runs.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// VideoClock reports the current playback position of the video in ms.
type VideoClock interface {
	CurrentTimeMs() int64
}

// VideoClockFunc adapts a function to VideoClock.
type VideoClockFunc func() int64

func (f VideoClockFunc) CurrentTimeMs() int64 { return f() }

// ManualVideo is a VideoClock positioned by hand.
type ManualVideo struct {
	mu sync.Mutex
	ms int64
}

func (v *ManualVideo) CurrentTimeMs() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ms
}

// Seek jumps to ms, which may be earlier than the current position.
func (v *ManualVideo) Seek(ms int64) {
	v.mu.Lock()
	v.ms = ms
	v.mu.Unlock()
}
