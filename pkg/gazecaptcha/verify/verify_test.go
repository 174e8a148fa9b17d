package verify

import (
	"testing"

	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/model"
)

const wallBase = int64(1690000000000)

// gazeTrack builds samples every stepMs over [fromMs, toMs] at a fixed point.
func gazeTrack(t *testing.T, fromMs, toMs, stepMs int64, xn, yn float64) []model.GazeSample {
	t.Helper()

	var out []model.GazeSample
	for tv := fromMs; tv <= toMs; tv += stepMs {
		out = append(out, model.GazeSample{T: wallBase + tv, TV: tv, XN: xn, YN: yn})
	}
	return out
}

func center() []model.AnswerPoint {
	return []model.AnswerPoint{{XN: 0.5, YN: 0.5}}
}

func TestVerifyClearPass(t *testing.T) {
	m := NewMatcher(DefaultParams())
	gaze := gazeTrack(t, 1000, 2300, 50, 0.5, 0.5)
	clicks := []model.ClickEvent{{T: 2000, XN: 0.5, YN: 0.5}}

	v := m.Verify(clicks, gaze, center())
	if !v.Passed || v.Reason != model.ReasonOK {
		t.Errorf("expected pass, got %+v", v)
	}
}

func TestVerifySpatialMiss(t *testing.T) {
	m := NewMatcher(DefaultParams())
	gaze := gazeTrack(t, 1000, 2300, 50, 0.8, 0.8)
	clicks := []model.ClickEvent{{T: 2000, XN: 0.8, YN: 0.8}}

	v := m.Verify(clicks, gaze, center())
	if v.Passed || v.Reason != model.ReasonNoMatch {
		t.Errorf("expected no_match fail, got %+v", v)
	}
}

func TestVerifyInsufficientDwell(t *testing.T) {
	m := NewMatcher(DefaultParams())

	// Gaze is elsewhere except for one sample at 1900, giving 100ms of dwell.
	gaze := gazeTrack(t, 1000, 2300, 50, 0.9, 0.9)
	for i := range gaze {
		if gaze[i].TV == 1900 {
			gaze[i].XN, gaze[i].YN = 0.5, 0.5
		}
	}
	clicks := []model.ClickEvent{{T: 2000, XN: 0.5, YN: 0.5}}

	if v := m.Verify(clicks, gaze, center()); v.Passed {
		t.Errorf("expected fail with 100ms dwell, got %+v", v)
	}

	p := DefaultParams()
	p.MinDwellMs = 100
	if v := NewMatcher(p).Verify(clicks, gaze, center()); !v.Passed {
		t.Errorf("expected pass with minDwell=100, got %+v", v)
	}
}

func TestVerifyDwellOutsideWindowIgnored(t *testing.T) {
	m := NewMatcher(DefaultParams())

	// Plenty of dwell, but long before the click window opens.
	gaze := gazeTrack(t, 0, 800, 50, 0.5, 0.5)
	gaze = append(gaze, gazeTrack(t, 850, 2300, 50, 0.9, 0.9)...)
	clicks := []model.ClickEvent{{T: 2000, XN: 0.5, YN: 0.5}}

	if v := m.Verify(clicks, gaze, center()); v.Passed {
		t.Errorf("expected fail, got %+v", v)
	}
}

func TestVerifyEffectiveRadiusBoundary(t *testing.T) {
	tests := []struct {
		name   string
		clickX float64
		want   bool
	}{
		{"inside R", 0.55, true},
		{"beyond R but inside R*1.15", 0.62, true},
		{"beyond effective radius", 0.63, false},
	}

	m := NewMatcher(DefaultParams())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gaze := gazeTrack(t, 1000, 2300, 50, tt.clickX, 0.5)
			clicks := []model.ClickEvent{{T: 2000, XN: tt.clickX, YN: 0.5}}
			if got := m.Verify(clicks, gaze, center()).Passed; got != tt.want {
				t.Errorf("Verify passed=%v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifyNoData(t *testing.T) {
	m := NewMatcher(DefaultParams())
	gaze := gazeTrack(t, 1000, 2300, 50, 0.5, 0.5)

	if v := m.Verify(nil, gaze, center()); v.Passed || v.Reason != model.ReasonNoData {
		t.Errorf("empty clicks: got %+v", v)
	}
	clicks := []model.ClickEvent{{T: 2000, XN: 0.5, YN: 0.5}}
	if v := m.Verify(clicks, gaze, nil); v.Passed || v.Reason != model.ReasonNoData {
		t.Errorf("empty answers: got %+v", v)
	}
}

func TestVerifyAnyClickAnyAnswer(t *testing.T) {
	m := NewMatcher(DefaultParams())
	gaze := gazeTrack(t, 1000, 2300, 50, 0.2, 0.2)
	clicks := []model.ClickEvent{
		{T: 2000, XN: 0.9, YN: 0.9},
		{T: 2000, XN: 0.2, YN: 0.2},
	}
	answers := []model.AnswerPoint{{XN: 0.5, YN: 0.5}, {XN: 0.2, YN: 0.21}}

	if v := m.Verify(clicks, gaze, answers); !v.Passed {
		t.Errorf("expected pass via second click and answer, got %+v", v)
	}
}

func TestVerifySortsGazeCopy(t *testing.T) {
	m := NewMatcher(DefaultParams())
	gaze := gazeTrack(t, 1000, 2300, 50, 0.5, 0.5)
	// Reverse arrival order; matching must still see a continuous track.
	for i, j := 0, len(gaze)-1; i < j; i, j = i+1, j-1 {
		gaze[i], gaze[j] = gaze[j], gaze[i]
	}
	first := gaze[0]

	clicks := []model.ClickEvent{{T: 2000, XN: 0.5, YN: 0.5}}
	if v := m.Verify(clicks, gaze, center()); !v.Passed {
		t.Errorf("expected pass on reversed input, got %+v", v)
	}
	if gaze[0] != first {
		t.Error("Verify reordered the caller's gaze slice")
	}
}

func TestDwellMonotonicity(t *testing.T) {
	gaze := gazeTrack(t, 1000, 2300, 50, 0.9, 0.9)
	for i := range gaze {
		if gaze[i].TV >= 1800 && gaze[i].TV <= 1900 {
			gaze[i].XN, gaze[i].YN = 0.5, 0.5
		}
	}
	clicks := []model.ClickEvent{{T: 2000, XN: 0.5, YN: 0.5}}

	passedAt := func(minDwell int64) bool {
		p := DefaultParams()
		p.MinDwellMs = minDwell
		return NewMatcher(p).Verify(clicks, gaze, center()).Passed
	}

	for hi := int64(20); hi <= 400; hi += 20 {
		if !passedAt(hi) {
			continue
		}
		for lo := int64(0); lo < hi; lo += 10 {
			if !passedAt(lo) {
				t.Fatalf("passed at minDwell=%d but failed at %d", hi, lo)
			}
		}
	}
	if !passedAt(140) {
		t.Error("expected 200ms of dwell to satisfy minDwell=140")
	}
	if passedAt(400) {
		t.Error("expected minDwell=400 to fail")
	}
}

func TestNewMatcherHonoursZero(t *testing.T) {
	p := DefaultParams()
	p.MinDwellMs = 0
	p.DwellBeforeMs = 0
	p.DwellAfterMs = 0
	got := NewMatcher(p).Params()
	if got.MinDwellMs != 0 || got.DwellBeforeMs != 0 || got.DwellAfterMs != 0 {
		t.Errorf("zero settings replaced by defaults: %+v", got)
	}

	neg := DefaultParams()
	neg.MinDwellMs = -1
	neg.DwellAfterMs = -5
	got = NewMatcher(neg).Params()
	def := DefaultParams()
	if got.MinDwellMs != def.MinDwellMs || got.DwellAfterMs != def.DwellAfterMs {
		t.Errorf("negative settings not defaulted: %+v", got)
	}
}

func TestZeroMinDwellNotStricterThanPositive(t *testing.T) {
	// 100ms of dwell around the click, as in TestVerifyInsufficientDwell.
	gaze := gazeTrack(t, 1000, 2300, 50, 0.9, 0.9)
	for i := range gaze {
		if gaze[i].TV == 1900 {
			gaze[i].XN, gaze[i].YN = 0.5, 0.5
		}
	}
	clicks := []model.ClickEvent{{T: 2000, XN: 0.5, YN: 0.5}}

	for _, minDwell := range []int64{0, 50, 100} {
		p := DefaultParams()
		p.MinDwellMs = minDwell
		if v := NewMatcher(p).Verify(clicks, gaze, center()); !v.Passed {
			t.Errorf("minDwell=%d: expected pass, got %+v", minDwell, v)
		}
	}
}

func TestEntryRule(t *testing.T) {
	p := DefaultParams()
	p.EntryRule = true
	m := NewMatcher(p)
	clicks := []model.ClickEvent{{T: 2000, XN: 0.5, YN: 0.5}}

	t.Run("camping fails", func(t *testing.T) {
		gaze := gazeTrack(t, 0, 2300, 50, 0.5, 0.5)
		if v := m.Verify(clicks, gaze, center()); v.Passed {
			t.Errorf("expected camping gaze to fail, got %+v", v)
		}
		if v := NewMatcher(DefaultParams()).Verify(clicks, gaze, center()); !v.Passed {
			t.Errorf("expected camping gaze to pass with entry rule off, got %+v", v)
		}
	})

	t.Run("entering passes", func(t *testing.T) {
		gaze := gazeTrack(t, 0, 1500, 50, 0.9, 0.9)
		gaze = append(gaze, gazeTrack(t, 1550, 2300, 50, 0.5, 0.5)...)
		if v := m.Verify(clicks, gaze, center()); !v.Passed {
			t.Errorf("expected entering gaze to pass, got %+v", v)
		}
	})

	t.Run("sample before window counts as outside", func(t *testing.T) {
		// Last outside sample is at 1350, just before the 1400 window start.
		gaze := gazeTrack(t, 0, 1350, 50, 0.9, 0.9)
		gaze = append(gaze, gazeTrack(t, 1400, 2300, 50, 0.5, 0.5)...)
		if v := m.Verify(clicks, gaze, center()); !v.Passed {
			t.Errorf("expected pass, got %+v", v)
		}
	})

	t.Run("entering too early fails", func(t *testing.T) {
		gaze := gazeTrack(t, 0, 1000, 50, 0.9, 0.9)
		gaze = append(gaze, gazeTrack(t, 1050, 2300, 50, 0.5, 0.5)...)
		if v := m.Verify(clicks, gaze, center()); v.Passed {
			t.Errorf("expected fail, got %+v", v)
		}
	})
}

func TestDedup(t *testing.T) {
	tests := []struct {
		name  string
		in    []model.ClickEvent
		wantT []int64
	}{
		{
			name:  "add then remove cancels",
			in:    []model.ClickEvent{{T: 100, XN: 0.5, YN: 0.5}, {T: 700, XN: 0.51, YN: 0.5}},
			wantT: nil,
		},
		{
			name:  "window edge is inclusive",
			in:    []model.ClickEvent{{T: 100, XN: 0.5, YN: 0.5}, {T: 800, XN: 0.5, YN: 0.5}},
			wantT: nil,
		},
		{
			name:  "outside window survives",
			in:    []model.ClickEvent{{T: 100, XN: 0.5, YN: 0.5}, {T: 801, XN: 0.5, YN: 0.5}},
			wantT: []int64{100, 801},
		},
		{
			name:  "far apart survives",
			in:    []model.ClickEvent{{T: 100, XN: 0.5, YN: 0.5}, {T: 200, XN: 0.6, YN: 0.5}},
			wantT: []int64{100, 200},
		},
		{
			name: "third click re-adds",
			in: []model.ClickEvent{
				{T: 100, XN: 0.5, YN: 0.5},
				{T: 200, XN: 0.5, YN: 0.5},
				{T: 300, XN: 0.5, YN: 0.5},
			},
			wantT: []int64{300},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Dedup(tt.in, DefaultDedupRadius, DefaultDedupWindowMs)
			if len(out) != len(tt.wantT) {
				t.Fatalf("got %d clicks, want %d: %+v", len(out), len(tt.wantT), out)
			}
			for i, want := range tt.wantT {
				if out[i].T != want {
					t.Errorf("out[%d].T = %d, want %d", i, out[i].T, want)
				}
			}
		})
	}
}

func TestDedupIdempotentAndPure(t *testing.T) {
	in := []model.ClickEvent{
		{T: 100, XN: 0.2, YN: 0.2},
		{T: 150, XN: 0.7, YN: 0.7},
		{T: 300, XN: 0.205, YN: 0.2},
		{T: 2000, XN: 0.7, YN: 0.7},
		{T: 2100, XN: 0.4, YN: 0.4},
	}
	orig := append([]model.ClickEvent(nil), in...)

	once := Dedup(in, DefaultDedupRadius, DefaultDedupWindowMs)
	twice := Dedup(once, DefaultDedupRadius, DefaultDedupWindowMs)

	if len(once) != len(twice) {
		t.Fatalf("dedup not idempotent: %d then %d", len(once), len(twice))
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("element %d changed on second pass", i)
		}
	}
	for i := range in {
		if in[i] != orig[i] {
			t.Fatalf("Dedup mutated its input at %d", i)
		}
	}
}

func TestSubmitDedupsBeforeVerify(t *testing.T) {
	m := NewMatcher(DefaultParams())
	gaze := gazeTrack(t, 1000, 2300, 50, 0.5, 0.5)

	// The correct click was toggled off again, leaving nothing.
	clicks := []model.ClickEvent{{T: 2000, XN: 0.5, YN: 0.5}, {T: 2100, XN: 0.5, YN: 0.5}}
	v, cleaned := m.Submit(clicks, gaze, center())
	if v.Passed || len(cleaned) != 0 {
		t.Errorf("expected fail with nothing left, got %+v and %d clicks", v, len(cleaned))
	}
}

func TestClickOnly(t *testing.T) {
	timed := []model.AnswerPoint{{T: model.Int64Ptr(1000), XN: 0.3, YN: 0.3}}
	untimed := []model.AnswerPoint{{XN: 0.3, YN: 0.3}}

	tests := []struct {
		name    string
		click   model.ClickEvent
		answers []model.AnswerPoint
		want    bool
	}{
		{"within time and distance", model.ClickEvent{T: 1700, XN: 0.32, YN: 0.3}, timed, true},
		{"too late", model.ClickEvent{T: 1900, XN: 0.32, YN: 0.3}, timed, false},
		{"too early", model.ClickEvent{T: 100, XN: 0.3, YN: 0.3}, timed, false},
		{"untimed answer ignores time", model.ClickEvent{T: 90000, XN: 0.3, YN: 0.32}, untimed, true},
		{"too far", model.ClickEvent{T: 1000, XN: 0.36, YN: 0.3}, timed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ClickOnly([]model.ClickEvent{tt.click}, tt.answers,
				DefaultClickTolerance, DefaultClickToleranceMs, 4)
			if v.Passed != tt.want {
				t.Errorf("ClickOnly passed=%v, want %v", v.Passed, tt.want)
			}
		})
	}

	if v := ClickOnly(nil, timed, DefaultClickTolerance, DefaultClickToleranceMs, 4); v.Reason != model.ReasonNoData {
		t.Errorf("expected no_data, got %+v", v)
	}
}
