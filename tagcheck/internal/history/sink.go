package history

import (
	"context"

	"github.com/hazyhaar/tagqa/tagcheck/report"
)

// Recorder adapts a Store to the report sink interface so finished runs are
// persisted alongside the other outputs. Per-iteration entries are ignored:
// they are stored with their report.
type Recorder struct {
	Store *Store
}

func (r Recorder) SendEntry(context.Context, report.Entry) error { return nil }

func (r Recorder) SendMonitor(ctx context.Context, m report.Monitor) error {
	return r.Store.SaveMonitor(ctx, &m)
}

func (r Recorder) SendExamination(ctx context.Context, e report.Examination) error {
	return r.Store.SaveExamination(ctx, &e)
}

// Close is a no-op; the Store is closed by its owner.
func (r Recorder) Close() error { return nil }
