package gazecaptcha

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/model"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/upload"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/verify"
	"github.com/himanishpuri/GazeCaptcha/pkg/logger"
	"github.com/himanishpuri/GazeCaptcha/pkg/utils"
)

// captchaService is the default implementation of the Service interface.
type captchaService struct {
	storage Storage
	log     Logger
	config  *Config
	pool    *challengePool
	loader  *upload.Loader

	mu      sync.RWMutex
	matcher *verify.Matcher

	liveOpen atomic.Bool
}

func NewService(opts ...Option) (Service, error) {
	return newService(opts...)
}

func newService(opts ...Option) (*captchaService, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	var stor Storage
	var err error
	if cfg.Storage != nil {
		stor = cfg.Storage
	} else {
		dsn := cfg.DBDSN
		if dsn == "" {
			dsn = cfg.DBPath
		}
		stor, err = NewDBStorage(cfg.DBDriver, dsn, cfg.SQLLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
	}

	return &captchaService{
		storage: stor,
		log:     cfg.Logger,
		config:  cfg,
		pool:    newChallengePool(cfg.Seed),
		loader:  upload.NewLoader(cfg.Precision),
		matcher: verify.NewMatcher(cfg.Matcher),
	}, nil
}

// AddChallenge validates and stores a challenge with its answer set.
func (s *captchaService) AddChallenge(ctx context.Context, question, videoURL string, answers []model.AnswerPoint) (string, error) {
	if err := utils.ValidateVideoURL(videoURL); err != nil {
		return "", err
	}
	for i, a := range answers {
		if a.XN < 0 || a.XN > 1 || a.YN < 0 || a.YN > 1 {
			return "", fmt.Errorf("answer %d is outside the normalized range: (%v, %v)", i, a.XN, a.YN)
		}
	}

	id, err := s.storage.CreateChallenge(ctx, strings.TrimSpace(question), videoURL, answers)
	if err != nil {
		return "", fmt.Errorf("failed to store challenge: %w", err)
	}
	s.log.Infof("Stored challenge %s (%d answer points)", id, len(answers))
	return id, nil
}

func (s *captchaService) GetChallenge(ctx context.Context, id string) (model.Challenge, error) {
	return s.storage.GetChallenge(ctx, id)
}

func (s *captchaService) ListChallenges(ctx context.Context) ([]model.Challenge, error) {
	return s.storage.ListChallenges(ctx)
}

func (s *captchaService) DeleteChallenge(ctx context.Context, id string) error {
	if err := s.storage.DeleteChallenge(ctx, id); err != nil {
		return err
	}
	s.pool.remove(id)
	s.log.Infof("Deleted challenge %s", id)
	return nil
}

// NextChallenge draws the next challenge from the non-repeating pool.
// Ids whose challenge has disappeared are skipped.
func (s *captchaService) NextChallenge(ctx context.Context) (model.ChallengePayload, error) {
	reloads := 0
	for {
		id, round, remaining, reloaded, err := s.pool.next(ctx, s.storage.ListChallengeIDs)
		if err != nil {
			return model.ChallengePayload{}, err
		}
		if reloaded {
			reloads++
			s.log.Infof("Challenge pool reset (round %d, %d challenges)", round, remaining+1)
			if reloads > 1 {
				return model.ChallengePayload{}, ErrNoChallenge
			}
		}

		ch, err := s.storage.GetChallenge(ctx, id)
		if errors.Is(err, ErrNotFound) {
			s.log.Warnf("Challenge %s vanished from the store, skipping", id)
			continue
		}
		if err != nil {
			return model.ChallengePayload{}, fmt.Errorf("%w: %v", ErrChallengeLoad, err)
		}
		return s.payload(ch, round, remaining), nil
	}
}

func (s *captchaService) payload(ch model.Challenge, round, remaining int) model.ChallengePayload {
	question := ch.Question
	if question == "" {
		question = DefaultQuestion
	}
	answers := ch.Answer
	if answers == nil {
		answers = []model.AnswerPoint{}
	}
	return model.ChallengePayload{
		ID:        ch.ID,
		Question:  question,
		Answer:    answers,
		VideoPath: s.config.VideoPathPrefix + ch.ID,
		Round:     round,
		Remaining: remaining,
	}
}

// Verify deduplicates the clicks and runs the correlation matcher against
// the challenge's answers. A pass is stored as a recording.
func (s *captchaService) Verify(ctx context.Context, challengeID string, gaze []model.GazeSample, clicks []model.ClickEvent) (model.Verdict, error) {
	ch, err := s.storage.GetChallenge(ctx, challengeID)
	if err != nil {
		return model.Fail(model.ReasonNoData), err
	}

	verdict, cleaned := s.currentMatcher().Submit(clicks, gaze, ch.Answer)
	s.log.Infof("Verdict for challenge %s: passed=%t reason=%s (%d gaze, %d/%d clicks kept)",
		challengeID, verdict.Passed, verdict.Reason, len(gaze), len(cleaned), len(clicks))

	if verdict.Passed && s.config.PersistRecordings {
		rec := model.Recording{ChallengeID: challengeID, Gaze: gaze, Clicks: cleaned}
		if id, err := s.storage.SaveRecording(ctx, rec); err != nil {
			s.log.Errorf("Failed to store recording for challenge %s: %v", challengeID, err)
		} else {
			s.log.Debugf("Stored recording %s", id)
		}
	}
	return verdict, nil
}

// VerifyClicksOnly checks deduplicated clicks against the answers without gaze.
func (s *captchaService) VerifyClicksOnly(ctx context.Context, challengeID string, clicks []model.ClickEvent) (model.Verdict, error) {
	ch, err := s.storage.GetChallenge(ctx, challengeID)
	if err != nil {
		return model.Fail(model.ReasonNoData), err
	}

	p := s.MatcherParams()
	cleaned := verify.Dedup(clicks, p.DedupRadius, p.DedupWindowMs)
	verdict := verify.ClickOnly(cleaned, ch.Answer, verify.DefaultClickTolerance, verify.DefaultClickToleranceMs, s.config.Precision)
	s.log.Infof("Click-only verdict for challenge %s: passed=%t reason=%s", challengeID, verdict.Passed, verdict.Reason)
	return verdict, nil
}

func (s *captchaService) Recordings(ctx context.Context, challengeID string) ([]model.Recording, error) {
	return s.storage.ListRecordings(ctx, challengeID)
}

// ClassifyUploads decodes uploaded files, logging and skipping bad ones.
func (s *captchaService) ClassifyUploads(files []upload.File) upload.Result {
	res := s.loader.LoadFiles(files)
	for _, sk := range res.Skipped {
		s.log.Warnf("Skipping upload %s: %v", sk.Name, sk.Err)
	}
	return res
}

func (s *captchaService) currentMatcher() *verify.Matcher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matcher
}

func (s *captchaService) MatcherParams() verify.Params {
	return s.currentMatcher().Params()
}

// SetMatcherParams swaps the matcher thresholds, e.g. after a config reload.
func (s *captchaService) SetMatcherParams(p verify.Params) {
	m := verify.NewMatcher(p)
	s.mu.Lock()
	s.matcher = m
	s.mu.Unlock()
	s.log.Infof("Matcher parameters updated: radius=%.3f minDwell=%dms entryRule=%t",
		m.Params().Radius, m.Params().MinDwellMs, m.Params().EntryRule)
}

func (s *captchaService) Close() error {
	return s.storage.Close()
}
