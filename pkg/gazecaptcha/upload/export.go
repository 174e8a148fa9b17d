package upload

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/model"
	"github.com/himanishpuri/GazeCaptcha/pkg/utils"
)

// ExportMode selects how a recording is written out.
type ExportMode int

const (
	// ExportPair writes gaze.json and clicks.json.
	ExportPair ExportMode = iota
	// ExportTimestamped writes gaze_at_submit_<ts>.json and clicks_at_submit_<ts>.json.
	ExportTimestamped
	// ExportCombined writes one gaze_clicks_at_submit_<ts>.json object.
	ExportCombined
)

// ParseExportMode accepts "pair", "timestamped" or "combined".
func ParseExportMode(s string) (ExportMode, error) {
	switch strings.ToLower(s) {
	case "", "pair":
		return ExportPair, nil
	case "timestamped":
		return ExportTimestamped, nil
	case "combined":
		return ExportCombined, nil
	}
	return ExportPair, fmt.Errorf("unknown export mode %q", s)
}

// ExportFile is one encoded output document.
type ExportFile struct {
	Name string
	Data []byte
}

type combined struct {
	Gaze   []model.GazeSample `json:"gaze"`
	Clicks []model.ClickEvent `json:"clicks"`
}

// FileTimestamp renders t as an ISO-8601 UTC time with ':' and '.' replaced
// by '-', so it can be part of a filename.
func FileTimestamp(t time.Time) string {
	iso := t.UTC().Format("2006-01-02T15:04:05.000Z")
	return strings.NewReplacer(":", "-", ".", "-").Replace(iso)
}

// Export encodes the streams as files named according to mode.
func Export(gaze []model.GazeSample, clicks []model.ClickEvent, mode ExportMode, now time.Time) ([]ExportFile, error) {
	if gaze == nil {
		gaze = []model.GazeSample{}
	}
	if clicks == nil {
		clicks = []model.ClickEvent{}
	}

	ts := FileTimestamp(now)
	switch mode {
	case ExportCombined:
		data, err := json.Marshal(combined{Gaze: gaze, Clicks: clicks})
		if err != nil {
			return nil, fmt.Errorf("failed to encode recording: %w", err)
		}
		return []ExportFile{{Name: "gaze_clicks_at_submit_" + ts + ".json", Data: data}}, nil
	case ExportPair, ExportTimestamped:
		gazeData, err := json.Marshal(gaze)
		if err != nil {
			return nil, fmt.Errorf("failed to encode gaze: %w", err)
		}
		clickData, err := json.Marshal(clicks)
		if err != nil {
			return nil, fmt.Errorf("failed to encode clicks: %w", err)
		}
		gazeName, clickName := "gaze.json", "clicks.json"
		if mode == ExportTimestamped {
			gazeName = "gaze_at_submit_" + ts + ".json"
			clickName = "clicks_at_submit_" + ts + ".json"
		}
		return []ExportFile{{Name: gazeName, Data: gazeData}, {Name: clickName, Data: clickData}}, nil
	}
	return nil, fmt.Errorf("unknown export mode %d", mode)
}

// WriteExport writes files into dir and returns their paths.
func WriteExport(dir string, files []ExportFile) ([]string, error) {
	paths := make([]string, 0, len(files))
	for _, f := range files {
		p := filepath.Join(dir, f.Name)
		if err := utils.WriteFileAtomic(p, f.Data); err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}
