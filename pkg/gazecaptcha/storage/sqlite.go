//go:build !js && !wasm
// +build !js,!wasm

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/model"
	"github.com/himanishpuri/GazeCaptcha/pkg/utils"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const DefaultDBFile = "gazecaptcha.sqlite3"
const errDBClientNil = "db client is nil"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNotFound is returned when a challenge does not exist.
var ErrNotFound = errors.New("not found")

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

type Challenge struct {
	ID        string        `gorm:"primaryKey;type:varchar(36)"`
	Question  string        `gorm:"uniqueIndex:idx_challenge_unique,priority:2" json:"question"`
	VideoURL  string        `gorm:"uniqueIndex:idx_challenge_unique,priority:1" json:"video_url"`
	Answers   []AnswerPoint `gorm:"foreignKey:ChallengeID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
}

type AnswerPoint struct {
	ID          uint    `gorm:"primaryKey;autoIncrement"`
	ChallengeID string  `gorm:"type:varchar(36);index:idx_answer_challenge" json:"challenge_id"`
	Seq         int     `json:"seq"`
	TMs         *int64  `json:"t_ms"`
	XN          float64 `json:"xn"`
	YN          float64 `json:"yn"`
}

type Recording struct {
	ID          string `gorm:"primaryKey;type:varchar(36)"`
	ChallengeID string `gorm:"type:varchar(36);index:idx_recording_challenge" json:"challenge_id"`
	GazeJSON    string `gorm:"type:text" json:"gaze"`
	ClicksJSON  string `gorm:"type:text" json:"clicks"`
	GazeCount   int    `json:"gaze_count"`
	ClickCount  int    `json:"click_count"`
	CreatedAt   time.Time
}

// Options selects the database backend.
type Options struct {
	Driver string
	// DSN is a file path for sqlite and a connection string for postgres.
	DSN string
	// Logger receives gorm's SQL log. Nil keeps it silent.
	Logger logger.Interface
}

// Open connects to the configured backend and migrates the schema.
func Open(opts Options) (*DBClient, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(opts.Driver) {
	case "", DriverSQLite:
		dbPath := opts.DSN
		if dbPath == "" {
			dbPath = DefaultDBFile
		}
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := utils.MakeDir(dir); err != nil {
				return nil, fmt.Errorf("creating db dir: %w", err)
			}
		}
		dialector = sqlite.Open(dbPath + "?_pragma=foreign_keys(1)")
	case DriverPostgres:
		if opts.DSN == "" {
			return nil, errors.New("postgres driver needs a DSN")
		}
		dialector = postgres.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	if opts.Logger != nil {
		gormConfig.Logger = opts.Logger
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening %s db: %w", opts.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Challenge{}, &AnswerPoint{}, &Recording{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// CreateChallenge stores a challenge with its answer set. A challenge with
// the same video and question is reused and its id returned.
func (c *DBClient) CreateChallenge(ctx context.Context, question, videoURL string, answers []model.AnswerPoint) (string, error) {
	if c == nil || c.DB == nil {
		return "", errors.New(errDBClientNil)
	}
	db := c.DB.WithContext(ctx)

	var existing Challenge
	err := db.Where("video_url = ? AND question = ?", videoURL, question).First(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("querying existing challenge: %w", err)
	}

	id := utils.GenerateUUID()
	row := Challenge{ID: id, Question: question, VideoURL: videoURL, Answers: toAnswerRows(id, answers)}
	if err := db.Create(&row).Error; err != nil {
		if isConstraintErr(err) {
			if fetchErr := db.Where("video_url = ? AND question = ?", videoURL, question).First(&existing).Error; fetchErr != nil {
				return "", fmt.Errorf("fetching challenge after constraint violation: %w", fetchErr)
			}
			return existing.ID, nil
		}
		return "", fmt.Errorf("creating challenge: %w", err)
	}
	return id, nil
}

func (c *DBClient) GetChallenge(ctx context.Context, id string) (model.Challenge, error) {
	if c == nil || c.DB == nil {
		return model.Challenge{}, errors.New(errDBClientNil)
	}

	var row Challenge
	err := c.DB.WithContext(ctx).
		Preload("Answers", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Challenge{}, fmt.Errorf("challenge %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Challenge{}, fmt.Errorf("querying challenge: %w", err)
	}
	return row.toModel(), nil
}

func (c *DBClient) ListChallenges(ctx context.Context) ([]model.Challenge, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}

	var rows []Challenge
	err := c.DB.WithContext(ctx).
		Preload("Answers", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Order("created_at ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing challenges: %w", err)
	}

	out := make([]model.Challenge, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (c *DBClient) ListChallengeIDs(ctx context.Context) ([]string, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var ids []string
	if err := c.DB.WithContext(ctx).Model(&Challenge{}).Order("created_at ASC").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("listing challenge ids: %w", err)
	}
	return ids, nil
}

// DeleteChallengeByID removes a challenge, its answers and its recordings.
func (c *DBClient) DeleteChallengeByID(ctx context.Context, id string) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	return c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("challenge_id = ?", id).Delete(&Recording{}).Error; err != nil {
			return err
		}
		if err := tx.Where("challenge_id = ?", id).Delete(&AnswerPoint{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&Challenge{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("challenge %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

// SaveRecording persists a passed attempt and returns its id.
func (c *DBClient) SaveRecording(ctx context.Context, rec model.Recording) (string, error) {
	if c == nil || c.DB == nil {
		return "", errors.New(errDBClientNil)
	}

	gazeJSON, err := json.Marshal(rec.Gaze)
	if err != nil {
		return "", fmt.Errorf("encoding gaze: %w", err)
	}
	clicksJSON, err := json.Marshal(rec.Clicks)
	if err != nil {
		return "", fmt.Errorf("encoding clicks: %w", err)
	}

	id := rec.ID
	if id == "" {
		id = utils.GenerateUUID()
	}
	row := Recording{
		ID:          id,
		ChallengeID: rec.ChallengeID,
		GazeJSON:    string(gazeJSON),
		ClicksJSON:  string(clicksJSON),
		GazeCount:   len(rec.Gaze),
		ClickCount:  len(rec.Clicks),
	}
	if err := c.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("creating recording: %w", err)
	}
	return id, nil
}

func (c *DBClient) ListRecordings(ctx context.Context, challengeID string) ([]model.Recording, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}

	var rows []Recording
	if err := c.DB.WithContext(ctx).Where("challenge_id = ?", challengeID).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing recordings: %w", err)
	}

	out := make([]model.Recording, 0, len(rows))
	for _, r := range rows {
		rec := model.Recording{ID: r.ID, ChallengeID: r.ChallengeID, CreatedAt: r.CreatedAt}
		if err := json.Unmarshal([]byte(r.GazeJSON), &rec.Gaze); err != nil {
			return nil, fmt.Errorf("decoding gaze of recording %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(r.ClicksJSON), &rec.Clicks); err != nil {
			return nil, fmt.Errorf("decoding clicks of recording %s: %w", r.ID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (c *DBClient) CountRecordings(ctx context.Context, challengeID string) (int64, error) {
	if c == nil || c.DB == nil {
		return 0, errors.New(errDBClientNil)
	}
	var n int64
	q := c.DB.WithContext(ctx).Model(&Recording{})
	if challengeID != "" {
		q = q.Where("challenge_id = ?", challengeID)
	}
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting recordings: %w", err)
	}
	return n, nil
}

func toAnswerRows(challengeID string, answers []model.AnswerPoint) []AnswerPoint {
	rows := make([]AnswerPoint, 0, len(answers))
	for i, a := range answers {
		var t *int64
		if a.T != nil {
			t = model.Int64Ptr(*a.T)
		}
		rows = append(rows, AnswerPoint{ChallengeID: challengeID, Seq: i, TMs: t, XN: a.XN, YN: a.YN})
	}
	return rows
}

func (r Challenge) toModel() model.Challenge {
	answers := make([]model.AnswerPoint, 0, len(r.Answers))
	for _, a := range r.Answers {
		answers = append(answers, model.AnswerPoint{T: a.TMs, XN: a.XN, YN: a.YN})
	}
	return model.Challenge{
		ID:        r.ID,
		Question:  r.Question,
		VideoURL:  r.VideoURL,
		Answer:    answers,
		CreatedAt: r.CreatedAt,
	}
}

func isConstraintErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed") ||
		strings.Contains(msg, "duplicate key")
}
