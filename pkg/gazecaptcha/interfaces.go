package gazecaptcha

import (
	"context"

	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/model"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/upload"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/verify"
)

type Service interface {
	AddChallenge(ctx context.Context, question, videoURL string, answers []model.AnswerPoint) (string, error)
	GetChallenge(ctx context.Context, id string) (model.Challenge, error)
	ListChallenges(ctx context.Context) ([]model.Challenge, error)
	DeleteChallenge(ctx context.Context, id string) error
	NextChallenge(ctx context.Context) (model.ChallengePayload, error)
	Verify(ctx context.Context, challengeID string, gaze []model.GazeSample, clicks []model.ClickEvent) (model.Verdict, error)
	VerifyClicksOnly(ctx context.Context, challengeID string, clicks []model.ClickEvent) (model.Verdict, error)
	Recordings(ctx context.Context, challengeID string) ([]model.Recording, error)
	ClassifyUploads(files []upload.File) upload.Result
	OpenSession() (*LiveSession, error)
	MatcherParams() verify.Params
	SetMatcherParams(p verify.Params)
	Close() error
}

type Storage interface {
	CreateChallenge(ctx context.Context, question, videoURL string, answers []model.AnswerPoint) (string, error)
	GetChallenge(ctx context.Context, id string) (model.Challenge, error)
	ListChallenges(ctx context.Context) ([]model.Challenge, error)
	ListChallengeIDs(ctx context.Context) ([]string, error)
	DeleteChallenge(ctx context.Context, id string) error
	SaveRecording(ctx context.Context, rec model.Recording) (string, error)
	ListRecordings(ctx context.Context, challengeID string) ([]model.Recording, error)
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
