package session

import (
	"sort"

	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/model"
)

// SampleStore holds the two ordered buffers of a session: gaze samples in
// arrival order and the current set of click events.
type SampleStore struct {
	gaze   []model.GazeSample
	clicks []model.ClickEvent
}

// AppendGaze adds one gaze sample at the end of the gaze buffer.
func (s *SampleStore) AppendGaze(g model.GazeSample) {
	s.gaze = append(s.gaze, g)
}

// appendClick adds a click at the end of the click buffer.
func (s *SampleStore) appendClick(c model.ClickEvent) {
	s.clicks = append(s.clicks, c)
}

// removeClick deletes the click at idx, keeping the order of the rest.
func (s *SampleStore) removeClick(idx int) {
	s.clicks = append(s.clicks[:idx], s.clicks[idx+1:]...)
}

// Gaze returns a copy of the gaze buffer.
func (s *SampleStore) Gaze() []model.GazeSample {
	out := make([]model.GazeSample, len(s.gaze))
	copy(out, s.gaze)
	return out
}

// Clicks returns a copy of the click buffer.
func (s *SampleStore) Clicks() []model.ClickEvent {
	out := make([]model.ClickEvent, len(s.clicks))
	copy(out, s.clicks)
	return out
}

// Len reports the number of gaze samples and clicks held.
func (s *SampleStore) Len() (gaze, clicks int) {
	return len(s.gaze), len(s.clicks)
}

// Replace swaps both buffers for copies of the given streams.
func (s *SampleStore) Replace(gaze []model.GazeSample, clicks []model.ClickEvent) {
	s.gaze = append([]model.GazeSample(nil), gaze...)
	s.clicks = append([]model.ClickEvent(nil), clicks...)
}

// Reset drops everything.
func (s *SampleStore) Reset() {
	s.gaze = nil
	s.clicks = nil
}

// SortGazeByWall returns a copy of gaze ordered by wall-clock time.
// Samples with equal timestamps keep their insertion order.
func SortGazeByWall(gaze []model.GazeSample) []model.GazeSample {
	out := append([]model.GazeSample(nil), gaze...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].T < out[j].T })
	return out
}

// SortClicksByVideo returns a copy of clicks ordered by video time.
// Clicks with equal times keep their insertion order.
func SortClicksByVideo(clicks []model.ClickEvent) []model.ClickEvent {
	out := append([]model.ClickEvent(nil), clicks...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].T < out[j].T })
	return out
}
