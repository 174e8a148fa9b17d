package session

import (
	"fmt"

	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/model"
)

// State is the recording state of a Session.
type State int

const (
	Recording State = iota
	Calibrating
	Paused
	Replaying
)

func (s State) String() string {
	switch s {
	case Recording:
		return "recording"
	case Calibrating:
		return "calibrating"
	case Paused:
		return "paused"
	case Replaying:
		return "replaying"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ParseState maps a state name back to a State.
func ParseState(name string) (State, error) {
	switch name {
	case "recording":
		return Recording, nil
	case "calibrating":
		return Calibrating, nil
	case "paused":
		return Paused, nil
	case "replaying":
		return Replaying, nil
	}
	return Recording, fmt.Errorf("unknown session state %q", name)
}

// Options tune coordinate handling for a Session.
type Options struct {
	ToggleRadius float64
	Precision    int
}

// DefaultOptions returns the toggle radius and rounding used by the recorder.
func DefaultOptions() Options {
	return Options{ToggleRadius: DefaultToggleRadius, Precision: DefaultPrecision}
}

// Snapshot is an immutable copy of a session's streams taken for
// verification, export or replay.
type Snapshot struct {
	ChallengeID string
	Gaze        []model.GazeSample
	Clicks      []model.ClickEvent
	Answers     []model.AnswerPoint
}

// Session is the state of one subject working on one challenge.
// It is not safe for concurrent use; callers serialize access.
type Session struct {
	ID string

	challenge    model.Challenge
	state        State
	videoStarted bool
	opts         Options

	store    SampleStore
	recorder *Recorder
}

// New creates a Session for the given challenge. The session starts in
// Recording with empty buffers.
func New(id string, challenge model.Challenge, opts Options) *Session {
	if opts.ToggleRadius <= 0 {
		opts.ToggleRadius = DefaultToggleRadius
	}
	if opts.Precision <= 0 {
		opts.Precision = DefaultPrecision
	}
	s := &Session{ID: id, challenge: challenge, state: Recording, opts: opts}
	s.recorder = NewRecorder(&s.store, opts.ToggleRadius, opts.Precision)
	return s
}

func (s *Session) Challenge() model.Challenge { return s.challenge }

func (s *Session) State() State { return s.state }

func (s *Session) VideoStarted() bool { return s.videoStarted }

// SetState moves the session to st. Leaving Replaying is only possible
// through Reset, since the buffers then hold an uploaded pair.
func (s *Session) SetState(st State) error {
	if s.state == Replaying && st != Replaying {
		return fmt.Errorf("session %s is replaying an upload; reset first", s.ID)
	}
	s.state = st
	return nil
}

// MarkVideoStarted records that playback has begun. Gaze before this point is dropped.
func (s *Session) MarkVideoStarted() {
	s.videoStarted = true
}

// AcceptsGaze reports whether a gaze sample would be recorded right now.
func (s *Session) AcceptsGaze() bool {
	return s.state == Recording && s.videoStarted
}

// IngestGaze records a gaze sample given in canvas pixels. It reports
// whether the sample was kept.
func (s *Session) IngestGaze(xPx, yPx, canvasW, canvasH float64, tWall, tVideo int64) bool {
	if !s.AcceptsGaze() {
		return false
	}
	xn, yn, ok := Normalize(xPx, yPx, canvasW, canvasH, s.opts.Precision)
	if !ok {
		return false
	}
	s.store.AppendGaze(model.GazeSample{T: tWall, TV: tVideo, XN: xn, YN: yn})
	return true
}

// IngestGazeNormalized records a gaze sample already in [0,1] space.
func (s *Session) IngestGazeNormalized(xn, yn float64, tWall, tVideo int64) bool {
	if !s.AcceptsGaze() {
		return false
	}
	s.store.AppendGaze(model.GazeSample{
		T:  tWall,
		TV: tVideo,
		XN: NormalizeCoord(xn, s.opts.Precision),
		YN: NormalizeCoord(yn, s.opts.Precision),
	})
	return true
}

func (s *Session) acceptsToggle() bool {
	return s.state == Recording || s.state == Paused
}

// RecordToggle adds a click at (xn, yn) or removes the nearest one.
func (s *Session) RecordToggle(xn, yn float64, tVideo int64) ToggleResult {
	if !s.acceptsToggle() {
		return Ignored
	}
	return s.recorder.Toggle(xn, yn, tVideo)
}

// RecordTogglePx is RecordToggle for a position given in canvas pixels.
func (s *Session) RecordTogglePx(xPx, yPx, canvasW, canvasH float64, tVideo int64) ToggleResult {
	if !s.acceptsToggle() || canvasW <= 0 || canvasH <= 0 {
		return Ignored
	}
	return s.RecordToggle(xPx/canvasW, yPx/canvasH, tVideo)
}

// Snapshot copies the current streams and the challenge's answer set.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ChallengeID: s.challenge.ID,
		Gaze:        s.store.Gaze(),
		Clicks:      s.store.Clicks(),
		Answers:     append([]model.AnswerPoint(nil), s.challenge.Answer...),
	}
}

// Counts reports how many gaze samples and clicks are buffered.
func (s *Session) Counts() (gaze, clicks int) {
	return s.store.Len()
}

// Reset clears both buffers and returns the session to Recording.
// The video-started flag survives: the same video keeps playing.
func (s *Session) Reset() {
	s.store.Reset()
	s.state = Recording
}

// Load swaps in a new challenge, clearing all buffers and the video flag.
func (s *Session) Load(challenge model.Challenge) {
	s.challenge = challenge
	s.store.Reset()
	s.state = Recording
	s.videoStarted = false
}

// LoadUploaded replaces the buffers with an uploaded pair for replay.
// Recording is suspended until Reset.
func (s *Session) LoadUploaded(gaze []model.GazeSample, clicks []model.ClickEvent) {
	s.store.Replace(gaze, clicks)
	s.state = Replaying
}
