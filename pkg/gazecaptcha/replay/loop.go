package replay

import (
	"sync"
	"time"
)

// DefaultFrameInterval approximates a 60Hz display.
const DefaultFrameInterval = 16 * time.Millisecond

// FrameLoop calls frame once per rendered frame until the returned stop
// function is called. stop must be safe to call more than once.
type FrameLoop interface {
	Start(frame func()) (stop func())
}

// TickerLoop drives frames from a time.Ticker on its own goroutine.
type TickerLoop struct {
	Interval time.Duration
}

func (l TickerLoop) Start(frame func()) func() {
	interval := l.Interval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				frame()
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// ManualLoop runs a frame only when Step is called.
type ManualLoop struct {
	mu    sync.Mutex
	frame func()
	token int
}

func (l *ManualLoop) Start(frame func()) func() {
	l.mu.Lock()
	l.token++
	tok := l.token
	l.frame = frame
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		if l.token == tok {
			l.frame = nil
		}
		l.mu.Unlock()
	}
}

// Step runs one frame. It reports false when nothing is installed.
func (l *ManualLoop) Step() bool {
	l.mu.Lock()
	frame := l.frame
	l.mu.Unlock()

	if frame == nil {
		return false
	}
	frame()
	return true
}

// Active reports whether a frame callback is installed.
func (l *ManualLoop) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frame != nil
}
