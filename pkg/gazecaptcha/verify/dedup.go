package verify

import "github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/model"

const (
	// DefaultDedupRadius is the normalized distance under which two clicks
	// count as the same point for deduplication.
	DefaultDedupRadius = 0.015
	// DefaultDedupWindowMs is the video-time window for deduplication.
	DefaultDedupWindowMs = 700
)

// Dedup collapses add-then-remove pairs left in a click stream. Each click
// is compared with the survivors so far; a survivor within radius and
// windowMs (both inclusive) is cancelled together with the click, otherwise
// the click survives. The input slice is not modified.
func Dedup(clicks []model.ClickEvent, radius float64, windowMs int64) []model.ClickEvent {
	out := make([]model.ClickEvent, 0, len(clicks))
	for _, c := range clicks {
		idx := -1
		for i, o := range out {
			if abs64(o.T-c.T) <= windowMs && dist(o.XN, o.YN, c.XN, c.YN) <= radius {
				idx = i
				break
			}
		}
		if idx >= 0 {
			out = append(out[:idx], out[idx+1:]...)
			continue
		}
		out = append(out, c)
	}
	return out
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
