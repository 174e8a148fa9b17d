package gazecaptcha

import (
	"context"

	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/model"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/storage"
	gormlogger "gorm.io/gorm/logger"
)

// storageAdapter adapts the storage.DBClient to implement the Storage interface.
type storageAdapter struct {
	db *storage.DBClient
}

// NewDBStorage opens a storage backend for the given gorm driver. A nil
// sqlLog keeps gorm's SQL log silent.
func NewDBStorage(driver, dsn string, sqlLog gormlogger.Interface) (Storage, error) {
	db, err := storage.Open(storage.Options{Driver: driver, DSN: dsn, Logger: sqlLog})
	if err != nil {
		return nil, err
	}
	return &storageAdapter{db: db}, nil
}

func (s *storageAdapter) CreateChallenge(ctx context.Context, question, videoURL string, answers []model.AnswerPoint) (string, error) {
	return s.db.CreateChallenge(ctx, question, videoURL, answers)
}

func (s *storageAdapter) GetChallenge(ctx context.Context, id string) (model.Challenge, error) {
	return s.db.GetChallenge(ctx, id)
}

func (s *storageAdapter) ListChallenges(ctx context.Context) ([]model.Challenge, error) {
	return s.db.ListChallenges(ctx)
}

func (s *storageAdapter) ListChallengeIDs(ctx context.Context) ([]string, error) {
	return s.db.ListChallengeIDs(ctx)
}

func (s *storageAdapter) DeleteChallenge(ctx context.Context, id string) error {
	return s.db.DeleteChallengeByID(ctx, id)
}

func (s *storageAdapter) SaveRecording(ctx context.Context, rec model.Recording) (string, error) {
	return s.db.SaveRecording(ctx, rec)
}

func (s *storageAdapter) ListRecordings(ctx context.Context, challengeID string) ([]model.Recording, error) {
	return s.db.ListRecordings(ctx, challengeID)
}

func (s *storageAdapter) Close() error {
	return s.db.Close()
}
