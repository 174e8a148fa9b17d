package model

import "time"

// GazeSample is one normalized gaze reading.
// T is the wall-clock timestamp (ms since epoch), TV the video offset (ms)
// at the moment the sample was taken.
type GazeSample struct {
	T  int64   `json:"t"`
	TV int64   `json:"tv"`
	XN float64 `json:"xn"`
	YN float64 `json:"yn"`
}

// ClickEvent is a recorded pointer response. T is the video offset in ms.
type ClickEvent struct {
	T  int64   `json:"t"`
	XN float64 `json:"xn"`
	YN float64 `json:"yn"`
}

// AnswerPoint is one reference location for a challenge.
// A nil T means the point is valid at any video time.
type AnswerPoint struct {
	T  *int64  `json:"t"`
	XN float64 `json:"xn"`
	YN float64 `json:"yn"`
}

// Challenge is a question about a video plus its reference answer set.
type Challenge struct {
	ID        string        `json:"id"`
	Question  string        `json:"question"`
	VideoURL  string        `json:"videoUrl"`
	Answer    []AnswerPoint `json:"answer"`
	CreatedAt time.Time     `json:"createdAt"`
}

// ChallengePayload is what the page receives when it asks for the next challenge.
type ChallengePayload struct {
	ID        string        `json:"id"`
	Question  string        `json:"question"`
	Answer    []AnswerPoint `json:"answer"`
	VideoPath string        `json:"videoPath"`
	Round     int           `json:"round"`
	Remaining int           `json:"remaining"`
}

// Recording is a passed attempt kept for later replay.
type Recording struct {
	ID          string       `json:"id"`
	ChallengeID string       `json:"challengeId"`
	Gaze        []GazeSample `json:"gaze"`
	Clicks      []ClickEvent `json:"clicks"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Verdict reasons. They are for logs only and never reach the subject.
const (
	ReasonOK      = "ok"
	ReasonNoData  = "no_data"
	ReasonNoMatch = "no_match"
)

// Verdict is the outcome of a submission.
type Verdict struct {
	Passed bool
	Reason string
}

// Pass returns a passing verdict.
func Pass() Verdict { return Verdict{Passed: true, Reason: ReasonOK} }

// Fail returns a failing verdict with the given reason.
func Fail(reason string) Verdict { return Verdict{Passed: false, Reason: reason} }

// Int64Ptr is a small helper for building AnswerPoints with a fixed time.
func Int64Ptr(v int64) *int64 { return &v }
