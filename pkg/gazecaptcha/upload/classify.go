package upload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/model"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/session"
)

// ErrMalformed marks an uploaded file that could not be decoded.
var ErrMalformed = errors.New("malformed upload")

// wallClockThreshold separates epoch-ms timestamps (gaze) from video offsets (clicks).
const wallClockThreshold = 1e9

// maxTimestampMs bounds t and tv to the integers a float64 holds exactly.
const maxTimestampMs = 1 << 53

// Kind identifies which stream a file holds.
type Kind int

const (
	KindUnknown Kind = iota
	KindGaze
	KindClicks
)

func (k Kind) String() string {
	switch k {
	case KindGaze:
		return "gaze"
	case KindClicks:
		return "clicks"
	default:
		return "unknown"
	}
}

// File is one uploaded document.
type File struct {
	Name string
	Data []byte
}

// Skipped records a file that was ignored and why.
type Skipped struct {
	Name string
	Err  error
}

// Result is the stream pair recovered from a batch of uploads.
// The last file of each kind wins.
type Result struct {
	Gaze      []model.GazeSample
	Clicks    []model.ClickEvent
	HasGaze   bool
	HasClicks bool
	Skipped   []Skipped
}

// Empty reports whether nothing usable was found.
func (r Result) Empty() bool {
	return len(r.Gaze) == 0 && len(r.Clicks) == 0
}

// flexNum decodes a JSON number, a numeric string, or null.
type flexNum struct {
	v     float64
	valid bool
}

func (f *flexNum) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = flexNum{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = flexNum{}
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", s)
		}
		*f = flexNum{v: v, valid: true}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexNum{v: v, valid: true}
	return nil
}

func (f flexNum) int64() int64 {
	if !f.valid || math.IsNaN(f.v) {
		return 0
	}
	return int64(f.v)
}

// checkTime rejects timestamps that do not convert to int64 cleanly.
func (f flexNum) checkTime(field string) error {
	if f.valid && !(math.Abs(f.v) <= maxTimestampMs) {
		return fmt.Errorf("%s %v is out of range", field, f.v)
	}
	return nil
}

type rawSample struct {
	T  flexNum `json:"t"`
	TV flexNum `json:"tv"`
	XN flexNum `json:"xn"`
	YN flexNum `json:"yn"`
}

type taggedDoc struct {
	Kind    *string          `json:"kind"`
	Samples *json.RawMessage `json:"samples"`
	Gaze    *json.RawMessage `json:"gaze"`
	Clicks  *json.RawMessage `json:"clicks"`
}

// Loader decodes uploaded files into sample streams.
type Loader struct {
	Precision int
}

// NewLoader returns a Loader that rounds coordinates to prec digits.
func NewLoader(prec int) *Loader {
	if prec <= 0 {
		prec = session.DefaultPrecision
	}
	return &Loader{Precision: prec}
}

// LoadFiles classifies every file and merges the results. A malformed file
// is recorded in Skipped and does not stop the rest of the batch.
func (l *Loader) LoadFiles(files []File) Result {
	var res Result
	for _, f := range files {
		if err := l.loadOne(f, &res); err != nil {
			res.Skipped = append(res.Skipped, Skipped{Name: f.Name, Err: err})
		}
	}
	return res
}

func (l *Loader) loadOne(f File, res *Result) error {
	data := bytes.TrimSpace(f.Data)
	if len(data) == 0 {
		return fmt.Errorf("%w: %s is empty", ErrMalformed, f.Name)
	}

	switch data[0] {
	case '[':
		raw, err := decodeSamples(data)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformed, f.Name, err)
		}
		l.assign(res, classifyArray(f.Name, raw), raw)
		return nil
	case '{':
		return l.loadTagged(f.Name, data, res)
	}
	return fmt.Errorf("%w: %s is not a JSON array or object", ErrMalformed, f.Name)
}

func (l *Loader) loadTagged(name string, data []byte, res *Result) error {
	var doc taggedDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
	}

	if doc.Kind != nil {
		kind := parseKind(*doc.Kind)
		if kind == KindUnknown {
			return fmt.Errorf("%w: %s: unknown kind %q", ErrMalformed, name, *doc.Kind)
		}
		if doc.Samples == nil {
			return fmt.Errorf("%w: %s: tagged file has no samples", ErrMalformed, name)
		}
		raw, err := decodeSamples(*doc.Samples)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
		}
		l.assign(res, kind, raw)
		return nil
	}

	if doc.Gaze == nil && doc.Clicks == nil {
		return fmt.Errorf("%w: %s: object has neither kind nor gaze/clicks", ErrMalformed, name)
	}

	// Decode both halves before touching res so a bad half leaves it unchanged.
	var gazeRaw, clickRaw []rawSample
	var err error
	if doc.Gaze != nil {
		if gazeRaw, err = decodeSamples(*doc.Gaze); err != nil {
			return fmt.Errorf("%w: %s: gaze: %v", ErrMalformed, name, err)
		}
	}
	if doc.Clicks != nil {
		if clickRaw, err = decodeSamples(*doc.Clicks); err != nil {
			return fmt.Errorf("%w: %s: clicks: %v", ErrMalformed, name, err)
		}
	}
	if doc.Gaze != nil {
		l.assign(res, KindGaze, gazeRaw)
	}
	if doc.Clicks != nil {
		l.assign(res, KindClicks, clickRaw)
	}
	return nil
}

// decodeSamples decodes an array of sample objects. Every element must be
// an object and every timestamp must be within maxTimestampMs.
func decodeSamples(msg json.RawMessage) ([]rawSample, error) {
	var raw []rawSample
	if err := json.Unmarshal(msg, &raw); err != nil {
		return nil, err
	}
	for i, r := range raw {
		if err := r.T.checkTime("t"); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		if err := r.TV.checkTime("tv"); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
	}
	return raw, nil
}

func (l *Loader) assign(res *Result, kind Kind, raw []rawSample) {
	switch kind {
	case KindGaze:
		gaze := make([]model.GazeSample, 0, len(raw))
		for _, r := range raw {
			gaze = append(gaze, model.GazeSample{
				T:  r.T.int64(),
				TV: r.TV.int64(),
				XN: session.NormalizeCoord(r.XN.v, l.Precision),
				YN: session.NormalizeCoord(r.YN.v, l.Precision),
			})
		}
		res.Gaze, res.HasGaze = gaze, true
	case KindClicks:
		clicks := make([]model.ClickEvent, 0, len(raw))
		for _, r := range raw {
			clicks = append(clicks, model.ClickEvent{
				T:  r.T.int64(),
				XN: session.NormalizeCoord(r.XN.v, l.Precision),
				YN: session.NormalizeCoord(r.YN.v, l.Precision),
			})
		}
		res.Clicks, res.HasClicks = clicks, true
	}
}

func parseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gaze":
		return KindGaze
	case "click", "clicks":
		return KindClicks
	}
	return KindUnknown
}

// classifyArray decides the stream of an untagged array: by filename first,
// then by whether the largest t looks like an epoch timestamp.
func classifyArray(name string, raw []rawSample) Kind {
	if k := ClassifyName(name); k != KindUnknown {
		return k
	}
	var maxT float64
	for _, r := range raw {
		if r.T.valid && r.T.v > maxT {
			maxT = r.T.v
		}
	}
	if maxT > wallClockThreshold {
		return KindGaze
	}
	return KindClicks
}

// ClassifyName looks for "gaze" or "click" in the lowercased filename.
func ClassifyName(name string) Kind {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "gaze"):
		return KindGaze
	case strings.Contains(lower, "click"):
		return KindClicks
	}
	return KindUnknown
}

// Label summarizes a list of file names for display.
func Label(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + ", " + names[1]
	}
	return fmt.Sprintf("%s, %s and %d more", names[0], names[1], len(names)-2)
}
