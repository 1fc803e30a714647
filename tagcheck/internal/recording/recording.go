// Package recording decodes Chrome DevTools Recorder exports into scripts the
// browser collector can replay.
package recording

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// StepType is the kind of a recorded user action.
type StepType string

const (
	StepSetViewport       StepType = "setViewport"
	StepNavigate          StepType = "navigate"
	StepClick             StepType = "click"
	StepDoubleClick       StepType = "doubleClick"
	StepHover             StepType = "hover"
	StepChange            StepType = "change"
	StepKeyDown           StepType = "keyDown"
	StepKeyUp             StepType = "keyUp"
	StepScroll            StepType = "scroll"
	StepWaitForElement    StepType = "waitForElement"
	StepWaitForExpression StepType = "waitForExpression"
	StepClose             StepType = "close"
)

var supported = map[StepType]bool{
	StepSetViewport: true, StepNavigate: true, StepClick: true,
	StepDoubleClick: true, StepHover: true, StepChange: true,
	StepKeyDown: true, StepKeyUp: true, StepScroll: true,
	StepWaitForElement: true, StepWaitForExpression: true, StepClose: true,
}

// ErrNoSteps is returned for a recording without any step.
var ErrNoSteps = errors.New("recording: no steps")

// UnknownStepError reports a step type the replayer cannot execute.
type UnknownStepError struct {
	Index int
	Type  string
}

func (e *UnknownStepError) Error() string {
	return fmt.Sprintf("recording: step %d: unsupported type %q", e.Index, e.Type)
}

// Script is a decoded recording.
type Script struct {
	Title   string `json:"title"`
	Timeout int    `json:"timeout,omitempty"` // default per-step timeout in ms
	Steps   []Step `json:"steps"`
}

// Step is one recorded action. Only the fields relevant to Type are set.
type Step struct {
	Type      StepType   `json:"type"`
	Target    string     `json:"target,omitempty"`
	Selectors []Selector `json:"selectors,omitempty"`
	Timeout   int        `json:"timeout,omitempty"`

	URL   string `json:"url,omitempty"`
	Value string `json:"value,omitempty"`
	Key   string `json:"key,omitempty"`

	OffsetX float64 `json:"offsetX,omitempty"`
	OffsetY float64 `json:"offsetY,omitempty"`
	X       float64 `json:"x,omitempty"`
	Y       float64 `json:"y,omitempty"`

	Width             int     `json:"width,omitempty"`
	Height            int     `json:"height,omitempty"`
	DeviceScaleFactor float64 `json:"deviceScaleFactor,omitempty"`
	IsMobile          bool    `json:"isMobile,omitempty"`
	HasTouch          bool    `json:"hasTouch,omitempty"`
	IsLandscape       bool    `json:"isLandscape,omitempty"`

	Expression string `json:"expression,omitempty"`
	Visible    *bool  `json:"visible,omitempty"`
}

// Parse decodes a recording and rejects unsupported step types.
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("recording: decode: %w", err)
	}
	if len(s.Steps) == 0 {
		return nil, ErrNoSteps
	}
	for i, st := range s.Steps {
		if !supported[st.Type] {
			return nil, &UnknownStepError{Index: i, Type: string(st.Type)}
		}
	}
	return &s, nil
}

// StartURL returns the URL of the first navigate step, or "".
func (s *Script) StartURL() string {
	for _, st := range s.Steps {
		if st.Type == StepNavigate {
			return st.URL
		}
	}
	return ""
}

// SelectorKind tells the replayer how to resolve a selector.
type SelectorKind int

const (
	SelectorCSS SelectorKind = iota
	SelectorXPath
	SelectorARIA
	SelectorText
	SelectorPierce
)

// Selector is one recorded way to reach an element. A selector with more
// than one part crosses iframe or shadow-root boundaries.
type Selector []string

// UnmarshalJSON accepts both the "sel" and ["sel", "sel"] shapes emitted by
// different Recorder versions.
func (s *Selector) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*s = Selector{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("recording: selector: %w", err)
	}
	*s = many
	return nil
}

// Resolve returns the kind and bare expression of the selector's last part.
func (s Selector) Resolve() (SelectorKind, string) {
	if len(s) == 0 {
		return SelectorCSS, ""
	}
	last := s[len(s)-1]
	switch {
	case strings.HasPrefix(last, "xpath/"):
		return SelectorXPath, strings.TrimPrefix(last, "xpath/")
	case strings.HasPrefix(last, "aria/"):
		return SelectorARIA, strings.TrimPrefix(last, "aria/")
	case strings.HasPrefix(last, "text/"):
		return SelectorText, strings.TrimPrefix(last, "text/")
	case strings.HasPrefix(last, "pierce/"):
		return SelectorPierce, strings.TrimPrefix(last, "pierce/")
	}
	return SelectorCSS, last
}

// Nested reports whether the selector crosses a frame or shadow boundary.
func (s Selector) Nested() bool { return len(s) > 1 }
