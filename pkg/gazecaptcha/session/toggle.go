package session

import "github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/model"

// DefaultToggleRadius is the normalized distance within which a click
// removes an existing one instead of adding a new event.
const DefaultToggleRadius = 0.025

// ToggleResult reports what a toggle did to the click buffer.
type ToggleResult int

const (
	Ignored ToggleResult = iota
	Added
	Removed
)

func (r ToggleResult) String() string {
	switch r {
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "ignored"
	}
}

// Recorder turns pointer input into add-or-remove-nearest click events.
type Recorder struct {
	store     *SampleStore
	radius    float64
	precision int
}

// NewRecorder creates a Recorder writing into store.
func NewRecorder(store *SampleStore, radius float64, precision int) *Recorder {
	if radius <= 0 {
		radius = DefaultToggleRadius
	}
	return &Recorder{store: store, radius: radius, precision: precision}
}

// Toggle removes the nearest click within the toggle radius or, when there
// is none, appends a new click at the rounded position.
func (r *Recorder) Toggle(xn, yn float64, tVideo int64) ToggleResult {
	xn = NormalizeCoord(xn, r.precision)
	yn = NormalizeCoord(yn, r.precision)

	if idx := r.nearest(xn, yn); idx != -1 {
		r.store.removeClick(idx)
		return Removed
	}
	r.store.appendClick(model.ClickEvent{T: tVideo, XN: xn, YN: yn})
	return Added
}

// nearest scans newest to oldest. A later click only replaces the current
// best when it is strictly closer, so equal distances resolve to the newest.
func (r *Recorder) nearest(xn, yn float64) int {
	clicks := r.store.clicks
	best, bestDist := -1, r.radius
	for i := len(clicks) - 1; i >= 0; i-- {
		d := Dist(clicks[i].XN, clicks[i].YN, xn, yn)
		if d > bestDist {
			continue
		}
		if best == -1 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
