//go:build !js && !wasm

package main

import (
	"fmt"
	"time"

	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/model"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/upload"
)

// Request limits
const (
	// MaxVerifySamples caps gaze samples per verify request (~30 fps for 10 minutes).
	MaxVerifySamples = 20000

	// MaxVerifyClicks caps clicks per verify request.
	MaxVerifyClicks = 500

	// MaxUploadBytes caps a classify upload.
	MaxUploadBytes = 32 << 20
)

// CreateChallengeRequest is the request body for POST /api/challenges
type CreateChallengeRequest struct {
	Question string              `json:"question"`
	VideoURL string              `json:"videoUrl"`
	Answer   []model.AnswerPoint `json:"answer"`
}

// Validate checks if the request is valid
func (r *CreateChallengeRequest) Validate() error {
	if r.VideoURL == "" {
		return fmt.Errorf("videoUrl is required")
	}
	if len(r.Answer) == 0 {
		return fmt.Errorf("answer must contain at least one point")
	}
	return nil
}

// CreateChallengeResponse is the response for successful challenge creation
type CreateChallengeResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// ChallengeDTO represents a challenge in API responses
type ChallengeDTO struct {
	ID        string              `json:"id"`
	Question  string              `json:"question"`
	VideoURL  string              `json:"videoUrl"`
	Answer    []model.AnswerPoint `json:"answer"`
	CreatedAt time.Time           `json:"createdAt"`
}

func toChallengeDTO(ch model.Challenge) ChallengeDTO {
	answers := ch.Answer
	if answers == nil {
		answers = []model.AnswerPoint{}
	}
	return ChallengeDTO{
		ID:        ch.ID,
		Question:  ch.Question,
		VideoURL:  ch.VideoURL,
		Answer:    answers,
		CreatedAt: ch.CreatedAt,
	}
}

// ListChallengesResponse is the response for GET /api/challenges
type ListChallengesResponse struct {
	Challenges []ChallengeDTO `json:"challenges"`
	Count      int            `json:"count"`
}

// DeleteChallengeResponse is the response for DELETE /api/challenges/{id}
type DeleteChallengeResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// VerifyRequest is the request body for POST /api/challenges/{id}/verify
type VerifyRequest struct {
	Gaze   []model.GazeSample `json:"gaze"`
	Clicks []model.ClickEvent `json:"clicks"`
}

// Validate checks if the request is valid
func (r *VerifyRequest) Validate() error {
	if len(r.Gaze) > MaxVerifySamples {
		return fmt.Errorf("too many gaze samples: %d (maximum: %d)", len(r.Gaze), MaxVerifySamples)
	}
	if len(r.Clicks) > MaxVerifyClicks {
		return fmt.Errorf("too many clicks: %d (maximum: %d)", len(r.Clicks), MaxVerifyClicks)
	}
	for i, c := range r.Clicks {
		if c.XN < 0 || c.XN > 1 || c.YN < 0 || c.YN > 1 {
			return fmt.Errorf("click %d is outside the normalized range", i)
		}
	}
	return nil
}

// VerifyResponse is the response for a verification attempt.
// Why an attempt failed is logged, never returned.
type VerifyResponse struct {
	Passed bool `json:"passed"`
}

// RecordingDTO summarizes a stored passed attempt
type RecordingDTO struct {
	ID         string    `json:"id"`
	GazeCount  int       `json:"gazeCount"`
	ClickCount int       `json:"clickCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ListRecordingsResponse is the response for GET /api/challenges/{id}/recordings
type ListRecordingsResponse struct {
	Recordings []RecordingDTO `json:"recordings"`
	Count      int            `json:"count"`
}

// SkippedDTO names an upload that could not be read
type SkippedDTO struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// ClassifyResponse is the response for POST /api/uploads/classify
type ClassifyResponse struct {
	Label     string             `json:"label"`
	Gaze      []model.GazeSample `json:"gaze"`
	Clicks    []model.ClickEvent `json:"clicks"`
	HasGaze   bool               `json:"hasGaze"`
	HasClicks bool               `json:"hasClicks"`
	Skipped   []SkippedDTO       `json:"skipped"`
}

func toClassifyResponse(names []string, res upload.Result) ClassifyResponse {
	out := ClassifyResponse{
		Label:     upload.Label(names),
		Gaze:      res.Gaze,
		Clicks:    res.Clicks,
		HasGaze:   res.HasGaze,
		HasClicks: res.HasClicks,
		Skipped:   make([]SkippedDTO, 0, len(res.Skipped)),
	}
	if out.Gaze == nil {
		out.Gaze = []model.GazeSample{}
	}
	if out.Clicks == nil {
		out.Clicks = []model.ClickEvent{}
	}
	for _, s := range res.Skipped {
		out.Skipped = append(out.Skipped, SkippedDTO{Name: s.Name, Error: s.Err.Error()})
	}
	return out
}

// ExportRequest is the request body for POST /api/export
type ExportRequest struct {
	Gaze   []model.GazeSample `json:"gaze"`
	Clicks []model.ClickEvent `json:"clicks"`
}

// ExportFileDTO is one file of an export, ready to be saved by the page
type ExportFileDTO struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ExportResponse is the response for POST /api/export
type ExportResponse struct {
	Files []ExportFileDTO `json:"files"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
