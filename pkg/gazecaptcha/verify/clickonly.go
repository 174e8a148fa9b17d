package verify

import (
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/model"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/session"
)

const (
	// DefaultClickTolerance is the normalized distance allowed by the click-only check.
	DefaultClickTolerance = 0.05
	// DefaultClickToleranceMs is the video-time tolerance of the click-only check.
	DefaultClickToleranceMs = 800
)

// ClickOnly checks clicks against answers without any gaze data. Answers
// with a time must be hit within tolMs; answers without one match at any time.
// Both sides are rounded to prec before comparing.
func ClickOnly(clicks []model.ClickEvent, answers []model.AnswerPoint, tol float64, tolMs int64, prec int) model.Verdict {
	if len(clicks) == 0 || len(answers) == 0 {
		return model.Fail(model.ReasonNoData)
	}

	for _, c := range clicks {
		cx, cy := session.Round(c.XN, prec), session.Round(c.YN, prec)
		for _, a := range answers {
			if a.T != nil && abs64(c.T-*a.T) > tolMs {
				continue
			}
			ax, ay := session.Round(a.XN, prec), session.Round(a.YN, prec)
			if dist(cx, cy, ax, ay) <= tol {
				return model.Pass()
			}
		}
	}
	return model.Fail(model.ReasonNoMatch)
}
