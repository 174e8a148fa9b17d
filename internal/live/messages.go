package live

import "github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/model"

// Inbound message types.
const (
	TypeLoad   = "load"
	TypeGaze   = "gaze"
	TypeClick  = "click"
	TypeState  = "state"
	TypeVideo  = "video"
	TypeSubmit = "submit"
	TypeReset  = "reset"
)

// Outbound message types.
const (
	TypeToggle    = "toggle"
	TypeVerdict   = "verdict"
	TypeChallenge = "challenge"
	TypeError     = "error"
)

// Inbound is any message the page sends. Fields unused by a type stay zero.
type Inbound struct {
	Type        string  `json:"type"`
	ChallengeID string  `json:"challengeId,omitempty"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	W           float64 `json:"w"`
	H           float64 `json:"h"`
	T           int64   `json:"t"`
	TV          int64   `json:"tv"`
	State       string  `json:"state,omitempty"`
	Started     bool    `json:"started,omitempty"`
}

type ToggleMessage struct {
	Type   string `json:"type"`
	Result string `json:"result"`
}

// VerdictMessage carries pass or fail only; the reason stays in the logs.
type VerdictMessage struct {
	Type   string `json:"type"`
	Passed bool   `json:"passed"`
}

type ChallengeMessage struct {
	Type string `json:"type"`
	model.ChallengePayload
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func errorMessage(err error) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: err.Error()}
}
