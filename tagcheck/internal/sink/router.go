package sink

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hazyhaar/tagqa/tagcheck/report"
)

// Router fans out to every configured sink. A failing sink does not stop
// delivery to the others: errors are logged and the first one is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router delivering to all sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Len returns the number of sinks.
func (r *Router) Len() int { return len(r.sinks) }

func (r *Router) fanOut(kind string, send func(Sink) error) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := send(s); err != nil {
			r.logger.Warn("sink: send failed", "kind", kind, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) SendEntry(ctx context.Context, entry report.Entry) error {
	return r.fanOut(TypeEntry, func(s Sink) error { return s.SendEntry(ctx, entry) })
}

func (r *Router) SendMonitor(ctx context.Context, rep report.Monitor) error {
	return r.fanOut(TypeMonitor, func(s Sink) error { return s.SendMonitor(ctx, rep) })
}

func (r *Router) SendExamination(ctx context.Context, exam report.Examination) error {
	return r.fanOut(TypeExamination, func(s Sink) error { return s.SendExamination(ctx, exam) })
}

func (r *Router) Close() error {
	var errs []error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
