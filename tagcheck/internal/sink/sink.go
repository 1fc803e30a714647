// Package sink defines output backends for tagcheck reports.
package sink

import (
	"context"

	"github.com/hazyhaar/tagqa/tagcheck/report"
)

// Sink is the output interface. Monitor entries are delivered as they are
// produced; complete reports once a run finishes.
type Sink interface {
	SendEntry(ctx context.Context, entry report.Entry) error
	SendMonitor(ctx context.Context, rep report.Monitor) error
	SendExamination(ctx context.Context, exam report.Examination) error
	Close() error
}

// Envelope types.
const (
	TypeEntry       = "monitor_entry"
	TypeMonitor     = "monitor_report"
	TypeExamination = "examination"
)

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
