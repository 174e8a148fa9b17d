package gazecaptcha

import (
	"errors"

	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/storage"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/upload"
)

var (
	// ErrChallengeLoad means the next challenge could not be fetched. The
	// caller keeps whatever it was showing before.
	ErrChallengeLoad = errors.New("challenge load failed")
	// ErrNoChallenge means the store holds no challenges at all.
	ErrNoChallenge = errors.New("no challenge available")
	// ErrSessionBusy is returned when a second live session is requested.
	ErrSessionBusy = errors.New("a live session is already open")
	// ErrNoSessionChallenge is returned when a live session is used before a challenge is loaded.
	ErrNoSessionChallenge = errors.New("no challenge loaded in session")
	// ErrSessionClosed is returned by a LiveSession after Close.
	ErrSessionClosed = errors.New("session closed")

	ErrNotFound        = storage.ErrNotFound
	ErrMalformedUpload = upload.ErrMalformed
)
