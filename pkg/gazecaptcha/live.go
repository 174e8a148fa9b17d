package gazecaptcha

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/model"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/session"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/upload"
	"github.com/himanishpuri/GazeCaptcha/pkg/utils"
)

// LiveSession is the one interactive session a service hosts at a time.
// Its methods are safe to call from several goroutines.
type LiveSession struct {
	svc *captchaService
	id  string

	mu      sync.Mutex
	sess    *session.Session
	payload model.ChallengePayload
	closed  bool
}

// OpenSession claims the live session slot. It fails with ErrSessionBusy
// while another LiveSession is open.
func (s *captchaService) OpenSession() (*LiveSession, error) {
	if !s.liveOpen.CompareAndSwap(false, true) {
		return nil, ErrSessionBusy
	}
	ls := &LiveSession{svc: s, id: utils.GenerateUUID()}
	s.log.Infof("Live session %s opened", ls.id)
	return ls, nil
}

func (l *LiveSession) ID() string { return l.id }

func (l *LiveSession) sessionOptions() session.Options {
	return session.Options{
		ToggleRadius: l.svc.config.ToggleRadius,
		Precision:    l.svc.config.Precision,
	}
}

// Load fetches a challenge and makes it current. An empty id draws the next
// one from the pool. On failure the previous challenge and buffers stay.
func (l *LiveSession) Load(ctx context.Context, challengeID string) (model.ChallengePayload, error) {
	payload, ch, err := l.fetch(ctx, challengeID)
	if err != nil {
		l.svc.log.Errorf("Live session %s: loading challenge failed: %v", l.id, err)
		return model.ChallengePayload{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return model.ChallengePayload{}, ErrSessionClosed
	}
	l.install(ch, payload)
	return payload, nil
}

func (l *LiveSession) fetch(ctx context.Context, challengeID string) (model.ChallengePayload, model.Challenge, error) {
	var payload model.ChallengePayload
	if challengeID == "" {
		p, err := l.svc.NextChallenge(ctx)
		if err != nil {
			return payload, model.Challenge{}, err
		}
		payload = p
	} else {
		ch, err := l.svc.storage.GetChallenge(ctx, challengeID)
		if err != nil {
			return payload, model.Challenge{}, fmt.Errorf("%w: %w", ErrChallengeLoad, err)
		}
		round, remaining := l.svc.pool.stats()
		payload = l.svc.payload(ch, round, remaining)
	}

	ch := model.Challenge{ID: payload.ID, Question: payload.Question, Answer: payload.Answer}
	return payload, ch, nil
}

// install must be called with l.mu held.
func (l *LiveSession) install(ch model.Challenge, payload model.ChallengePayload) {
	if l.sess == nil {
		l.sess = session.New(l.id, ch, l.sessionOptions())
	} else {
		l.sess.Load(ch)
	}
	l.payload = payload
	l.svc.log.Debugf("Live session %s now on challenge %s (round %d, %d left)",
		l.id, payload.ID, payload.Round, payload.Remaining)
}

func (l *LiveSession) current() (*session.Session, error) {
	if l.closed {
		return nil, ErrSessionClosed
	}
	if l.sess == nil {
		return nil, ErrNoSessionChallenge
	}
	return l.sess, nil
}

// Challenge returns the payload of the challenge being shown.
func (l *LiveSession) Challenge() (model.ChallengePayload, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.current(); err != nil {
		return model.ChallengePayload{}, err
	}
	return l.payload, nil
}

// Gaze records one gaze sample in canvas pixels. It reports whether the
// sample was kept; samples outside Recording or before playback are dropped.
func (l *LiveSession) Gaze(xPx, yPx, canvasW, canvasH float64, tWall, tVideo int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sess, err := l.current()
	if err != nil {
		return false, err
	}
	return sess.IngestGaze(xPx, yPx, canvasW, canvasH, tWall, tVideo), nil
}

// Click toggles a click at a canvas position.
func (l *LiveSession) Click(xPx, yPx, canvasW, canvasH float64, tVideo int64) (session.ToggleResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sess, err := l.current()
	if err != nil {
		return session.Ignored, err
	}
	return sess.RecordTogglePx(xPx, yPx, canvasW, canvasH, tVideo), nil
}

func (l *LiveSession) SetState(name string) error {
	st, err := session.ParseState(name)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	sess, err := l.current()
	if err != nil {
		return err
	}
	return sess.SetState(st)
}

func (l *LiveSession) VideoStarted() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	sess, err := l.current()
	if err != nil {
		return err
	}
	sess.MarkVideoStarted()
	return nil
}

// Submit verifies the buffered streams. Either way a fresh challenge is
// loaded next; a failed attempt clears the buffers first. A session that is
// replaying an upload is never verified: the attempt counts as failed.
// When verification itself errors (the challenge vanished, say) the attempt
// also counts as failed and the error is returned with the new payload.
// When the follow-up load fails the verdict is still returned, the payload
// is nil and err wraps ErrChallengeLoad.
func (l *LiveSession) Submit(ctx context.Context) (model.Verdict, *model.ChallengePayload, error) {
	l.mu.Lock()
	sess, err := l.current()
	if err != nil {
		l.mu.Unlock()
		return model.Fail(model.ReasonNoData), nil, err
	}
	replaying := sess.State() == session.Replaying
	snap := sess.Snapshot()
	l.mu.Unlock()

	var verdict model.Verdict
	var verifyErr error
	if replaying {
		l.svc.log.Warnf("Live session %s: submit while replaying an upload, counted as failed", l.id)
		verdict = model.Fail(model.ReasonNoData)
	} else {
		verdict, verifyErr = l.svc.Verify(ctx, snap.ChallengeID, snap.Gaze, snap.Clicks)
		if verifyErr != nil {
			l.svc.log.Errorf("Live session %s: verifying challenge %s failed: %v", l.id, snap.ChallengeID, verifyErr)
			verdict = model.Fail(model.ReasonNoData)
		}
	}

	if !verdict.Passed {
		l.mu.Lock()
		if l.sess != nil {
			l.sess.Reset()
		}
		l.mu.Unlock()
	}

	payload, err := l.Load(ctx, "")
	if err != nil {
		if !errors.Is(err, ErrChallengeLoad) {
			err = fmt.Errorf("%w: %w", ErrChallengeLoad, err)
		}
		return verdict, nil, errors.Join(verifyErr, err)
	}
	return verdict, &payload, verifyErr
}

// Reset clears the buffers and returns to Recording on the same challenge.
func (l *LiveSession) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	sess, err := l.current()
	if err != nil {
		return err
	}
	sess.Reset()
	return nil
}

// LoadUploaded puts an uploaded stream pair into the buffers for replay.
// A side missing from the upload keeps its current contents.
func (l *LiveSession) LoadUploaded(res upload.Result) error {
	if res.Empty() {
		return fmt.Errorf("%w: no gaze or click stream found", ErrMalformedUpload)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	sess, err := l.current()
	if err != nil {
		return err
	}

	snap := sess.Snapshot()
	gaze, clicks := snap.Gaze, snap.Clicks
	if res.HasGaze {
		gaze = res.Gaze
	}
	if res.HasClicks {
		clicks = res.Clicks
	}
	sess.LoadUploaded(gaze, clicks)
	l.svc.log.Infof("Live session %s replaying upload (%d gaze, %d clicks)", l.id, len(gaze), len(clicks))
	return nil
}

func (l *LiveSession) Snapshot() (session.Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sess, err := l.current()
	if err != nil {
		return session.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

func (l *LiveSession) State() (session.State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sess, err := l.current()
	if err != nil {
		return session.Recording, err
	}
	return sess.State(), nil
}

// Close releases the live session slot. It is safe to call more than once.
func (l *LiveSession) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.svc.liveOpen.Store(false)
	l.svc.log.Infof("Live session %s closed", l.id)
}
