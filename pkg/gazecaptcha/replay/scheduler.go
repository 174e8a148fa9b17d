package replay

import (
	"sync"
	"time"

	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/model"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/session"
)

// Frame is the visible part of both streams at one rendered frame.
// Gaze and Clicks are prefixes of the loaded, sorted streams.
type Frame struct {
	Gaze        []model.GazeSample
	Clicks      []model.ClickEvent
	VideoTimeMs int64
}

// Scheduler reveals a gaze stream by elapsed wall-clock time and a click
// stream by video time, restarting the clicks when the video jumps back.
type Scheduler struct {
	mu    sync.Mutex
	clock Clock

	gaze   []model.GazeSample
	clicks []model.ClickEvent

	gazeCursor  int
	clickCursor int
	lastVideoMs int64
	startedAt   time.Time

	gen     uint64
	running bool
	stop    func()
}

// NewScheduler creates an empty Scheduler. A nil clock means SystemClock.
func NewScheduler(clock Clock) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scheduler{clock: clock, startedAt: clock.Now()}
}

// Load replaces both streams with sorted copies and rewinds the cursors.
func (s *Scheduler) Load(gaze []model.GazeSample, clicks []model.ClickEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gaze = session.SortGazeByWall(gaze)
	s.clicks = session.SortClicksByVideo(clicks)
	s.begin(0)
}

// Begin marks the start of playback at the given video position.
func (s *Scheduler) Begin(videoMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begin(videoMs)
}

func (s *Scheduler) begin(videoMs int64) {
	s.gazeCursor = 0
	s.clickCursor = 0
	s.lastVideoMs = videoMs
	s.startedAt = s.clock.Now()
}

// Tick advances both cursors for the given video time and returns the
// currently visible prefixes.
func (s *Scheduler) Tick(videoMs int64) Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick(videoMs)
}

func (s *Scheduler) tick(videoMs int64) Frame {
	if len(s.gaze) > 0 {
		elapsed := s.clock.Now().Sub(s.startedAt).Milliseconds()
		base := s.gaze[0].T
		for s.gazeCursor < len(s.gaze) && s.gaze[s.gazeCursor].T-base <= elapsed {
			s.gazeCursor++
		}
	}

	if videoMs < s.lastVideoMs {
		s.clickCursor = 0
	}
	s.lastVideoMs = videoMs

	for s.clickCursor < len(s.clicks) && s.clicks[s.clickCursor].T <= videoMs {
		s.clickCursor++
	}

	return Frame{
		Gaze:        s.gaze[:s.gazeCursor:s.gazeCursor],
		Clicks:      s.clicks[:s.clickCursor:s.clickCursor],
		VideoTimeMs: videoMs,
	}
}

// Start begins playback on loop, reading the video position from video
// and handing each frame to onFrame. A running playback is cancelled first.
func (s *Scheduler) Start(loop FrameLoop, video VideoClock, onFrame func(Frame)) {
	s.Cancel()

	s.mu.Lock()
	s.begin(video.CurrentTimeMs())
	s.gen++
	gen := s.gen
	s.running = true
	s.mu.Unlock()

	stop := loop.Start(func() {
		s.mu.Lock()
		if !s.running || s.gen != gen {
			s.mu.Unlock()
			return
		}
		f := s.tick(video.CurrentTimeMs())
		s.mu.Unlock()
		onFrame(f)
	})

	s.mu.Lock()
	if s.gen == gen {
		s.stop = stop
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	stop()
}

// Cancel stops playback. Frames already scheduled are ignored.
// It is safe to call when nothing is running.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	s.gen++
	s.running = false
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Running reports whether a playback is installed.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Len reports the sizes of the loaded streams.
func (s *Scheduler) Len() (gaze, clicks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.gaze), len(s.clicks)
}
