// CLAUDE:SUMMARY In-process callback sink delivering reports through Go function calls without serialisation.
package sink

import (
	"context"

	"github.com/hazyhaar/tagqa/tagcheck/report"
)

// EntryFunc is called for each monitor entry.
type EntryFunc func(ctx context.Context, entry report.Entry) error

// MonitorFunc is called for each finished monitor report.
type MonitorFunc func(ctx context.Context, rep report.Monitor) error

// ExaminationFunc is called for each finished examination.
type ExaminationFunc func(ctx context.Context, exam report.Examination) error

// Callback delivers reports to in-process handlers. Any handler may be nil.
type Callback struct {
	OnEntry       EntryFunc
	OnMonitor     MonitorFunc
	OnExamination ExaminationFunc
}

func (c *Callback) SendEntry(ctx context.Context, entry report.Entry) error {
	if c.OnEntry != nil {
		return c.OnEntry(ctx, entry)
	}
	return nil
}

func (c *Callback) SendMonitor(ctx context.Context, rep report.Monitor) error {
	if c.OnMonitor != nil {
		return c.OnMonitor(ctx, rep)
	}
	return nil
}

func (c *Callback) SendExamination(ctx context.Context, exam report.Examination) error {
	if c.OnExamination != nil {
		return c.OnExamination(ctx, exam)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
