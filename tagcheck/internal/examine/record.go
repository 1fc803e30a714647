// Package examine runs tracking specs against live pages and writes the
// verdicts back to the record store in bounded batches.
package examine

import (
	"context"
	"strings"

	"github.com/hazyhaar/tagqa/tagcheck/internal/recording"
)

// Mode is how the observation for a record is obtained.
type Mode int

const (
	ModeNone Mode = iota
	ModeURL
	ModeRecording
)

func (m Mode) String() string {
	switch m {
	case ModeURL:
		return "url"
	case ModeRecording:
		return "recording"
	}
	return "none"
}

// SpecRecord is one row to examine. Mode is fixed at construction.
type SpecRecord struct {
	ID       string
	Mode     Mode
	Source   string // page URL or recording JSON, depending on Mode
	CodeSpec string
}

// NewSpecRecord classifies a row. A recording payload wins over a URL;
// neither gives ModeNone.
func NewSpecRecord(id, pageURL, recordingJSON, codeSpec string) SpecRecord {
	r := SpecRecord{ID: id, CodeSpec: codeSpec}
	switch {
	case strings.TrimSpace(recordingJSON) != "":
		r.Mode, r.Source = ModeRecording, recordingJSON
	case strings.TrimSpace(pageURL) != "":
		r.Mode, r.Source = ModeURL, strings.TrimSpace(pageURL)
	}
	return r
}

// Observation is what a collector saw on a page.
type Observation struct {
	DataLayer []any  // window.dataLayer entries as decoded JSON
	HTML      []byte // serialised DOM after load
}

// Collector obtains observations from a browser.
type Collector interface {
	ObserveURL(ctx context.Context, pageURL string) (Observation, error)
	Replay(ctx context.Context, script *recording.Script) (Observation, error)
}
