// CLAUDE:SUMMARY Writes report envelopes as JSON lines to an io.Writer (defaults to stdout).
package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/hazyhaar/tagqa/tagcheck/report"
)

// Stdout writes one JSON envelope per line to an io.Writer.
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdout creates a Stdout sink. If w is nil, os.Stdout is used.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{enc: json.NewEncoder(w)}
}

func (s *Stdout) write(typ string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(envelope{Type: typ, Data: data})
}

func (s *Stdout) SendEntry(_ context.Context, entry report.Entry) error {
	return s.write(TypeEntry, entry)
}

func (s *Stdout) SendMonitor(_ context.Context, rep report.Monitor) error {
	return s.write(TypeMonitor, rep)
}

func (s *Stdout) SendExamination(_ context.Context, exam report.Examination) error {
	return s.write(TypeExamination, exam)
}

func (s *Stdout) Close() error { return nil }
