package verify

import (
	"math"

	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/model"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/session"
)

// RadiusScale widens the configured radius into the effective radius.
const RadiusScale = 1.15

// Params controls the correlation matcher.
type Params struct {
	Radius        float64 `mapstructure:"radius" json:"radius"`
	DwellBeforeMs int64   `mapstructure:"dwell_before_ms" json:"dwellBeforeMs"`
	DwellAfterMs  int64   `mapstructure:"dwell_after_ms" json:"dwellAfterMs"`
	MinDwellMs    int64   `mapstructure:"min_dwell_ms" json:"minDwellMs"`
	EntryRule     bool    `mapstructure:"entry_rule" json:"entryRule"`
	EntryWindowMs int64   `mapstructure:"entry_window_ms" json:"entryWindowMs"`
	EntryRadius   float64 `mapstructure:"entry_radius" json:"entryRadius"`
	DedupRadius   float64 `mapstructure:"dedup_radius" json:"dedupRadius"`
	DedupWindowMs int64   `mapstructure:"dedup_window_ms" json:"dedupWindowMs"`
}

// DefaultParams returns the tuned production thresholds.
func DefaultParams() Params {
	return Params{
		Radius:        0.11,
		DwellBeforeMs: 1000,
		DwellAfterMs:  300,
		MinDwellMs:    140,
		EntryRule:     false,
		EntryWindowMs: 600,
		DedupRadius:   DefaultDedupRadius,
		DedupWindowMs: DefaultDedupWindowMs,
	}
}

// EffectiveRadius is the radius actually used for proximity and dwell.
func (p Params) EffectiveRadius() float64 {
	return p.Radius * RadiusScale
}

// entryRadius falls back to half the effective radius when unset.
func (p Params) entryRadius() float64 {
	if p.EntryRadius > 0 {
		return p.EntryRadius
	}
	return p.EffectiveRadius() / 2
}

// Matcher decides whether a click stream correlates with the answer set,
// backed by the gaze stream.
type Matcher struct {
	params Params
}

// NewMatcher creates a Matcher. A non-positive radius and negative
// windows or dwell fall back to defaults; zero windows and a zero minimum
// dwell are honoured as given.
func NewMatcher(p Params) *Matcher {
	def := DefaultParams()
	if p.Radius <= 0 {
		p.Radius = def.Radius
	}
	if p.DwellBeforeMs < 0 {
		p.DwellBeforeMs = def.DwellBeforeMs
	}
	if p.DwellAfterMs < 0 {
		p.DwellAfterMs = def.DwellAfterMs
	}
	if p.MinDwellMs < 0 {
		p.MinDwellMs = def.MinDwellMs
	}
	if p.EntryWindowMs < 0 {
		p.EntryWindowMs = def.EntryWindowMs
	}
	if p.DedupRadius < 0 {
		p.DedupRadius = def.DedupRadius
	}
	if p.DedupWindowMs < 0 {
		p.DedupWindowMs = def.DedupWindowMs
	}
	return &Matcher{params: p}
}

// Params returns the matcher's effective configuration.
func (m *Matcher) Params() Params { return m.params }

// Verify runs the correlation test on already-cleaned clicks.
// It passes when some click lies within the effective radius of some
// answer, has enough gaze dwell around its time, and satisfies the entry
// rule when that is enabled.
func (m *Matcher) Verify(clicks []model.ClickEvent, gaze []model.GazeSample, answers []model.AnswerPoint) model.Verdict {
	if len(clicks) == 0 || len(answers) == 0 {
		return model.Fail(model.ReasonNoData)
	}

	sorted := session.SortGazeByWall(gaze)
	r := m.params.EffectiveRadius()

	for _, c := range clicks {
		if !nearAnswer(c, answers, r) {
			continue
		}
		if !m.dwell(c, sorted, r) {
			continue
		}
		if m.params.EntryRule && !m.entered(c, sorted, m.params.entryRadius()) {
			continue
		}
		return model.Pass()
	}
	return model.Fail(model.ReasonNoMatch)
}

// Submit deduplicates the raw click stream and then verifies it.
// The cleaned clicks are returned alongside the verdict.
func (m *Matcher) Submit(clicks []model.ClickEvent, gaze []model.GazeSample, answers []model.AnswerPoint) (model.Verdict, []model.ClickEvent) {
	cleaned := Dedup(clicks, m.params.DedupRadius, m.params.DedupWindowMs)
	return m.Verify(cleaned, gaze, answers), cleaned
}

func nearAnswer(c model.ClickEvent, answers []model.AnswerPoint, r float64) bool {
	for _, a := range answers {
		if dist(c.XN, c.YN, a.XN, a.YN) <= r {
			return true
		}
	}
	return false
}

// dwell accumulates the part of each gaze segment that overlaps the
// window around the click, for segments with at least one endpoint inside r.
func (m *Matcher) dwell(c model.ClickEvent, gaze []model.GazeSample, r float64) bool {
	start := c.T - m.params.DwellBeforeMs
	end := c.T + m.params.DwellAfterMs

	var total int64
	for i := 1; i < len(gaze); i++ {
		g0, g1 := gaze[i-1], gaze[i]
		t0, t1 := g0.TV, g1.TV
		if t1 < start || t0 > end {
			continue
		}

		in0 := dist(g0.XN, g0.YN, c.XN, c.YN) <= r
		in1 := dist(g1.XN, g1.YN, c.XN, c.YN) <= r
		if !in0 && !in1 {
			continue
		}

		segStart := max(t0, start)
		segEnd := min(t1, end)
		if segEnd > segStart {
			total += segEnd - segStart
		}
		if total >= m.params.MinDwellMs {
			return true
		}
	}
	return false
}

// entered looks for a gaze transition from outside to inside r within the
// entry window before the click. The last sample before the window may
// serve as the outside sample.
func (m *Matcher) entered(c model.ClickEvent, gaze []model.GazeSample, r float64) bool {
	start := c.T - m.params.EntryWindowMs
	end := c.T

	var prev *model.GazeSample
	for i := range gaze {
		g := &gaze[i]
		if g.TV < start {
			prev = g
			continue
		}
		if g.TV > end {
			break
		}
		if prev != nil {
			outPrev := dist(prev.XN, prev.YN, c.XN, c.YN) > r
			inNow := dist(g.XN, g.YN, c.XN, c.YN) <= r
			if outPrev && inNow {
				return true
			}
		}
		prev = g
	}
	return false
}

func dist(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x1-x2, y1-y2)
}
