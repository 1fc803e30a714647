package tagcheck

import (
	"context"
	"time"

	"github.com/hazyhaar/tagqa/tagcheck/internal/history"
	"github.com/hazyhaar/tagqa/tagcheck/internal/monitor"
	"github.com/hazyhaar/tagqa/tagcheck/report"
)

// MonitorRequest starts a preview monitor run. Zero values fall back to the
// configuration.
type MonitorRequest struct {
	PreviewURL string `json:"preview_url"`
	Expected   string `json:"expected"`
	Loops      int    `json:"loops,omitempty"`
	Policy     string `json:"policy,omitempty"` // reopen | keep
	IntervalMS int64  `json:"interval_ms,omitempty"`
}

// RunMonitor observes a preview session for req.Loops iterations and
// reports every iteration whose measurement ids differ from req.Expected.
// The report is published and stored even when ctx ends the run early.
func (s *Service) RunMonitor(ctx context.Context, req MonitorRequest) (*report.Monitor, error) {
	if req.PreviewURL == "" || req.Expected == "" {
		return nil, invalid("preview_url and expected are required")
	}
	if req.Loops <= 0 {
		req.Loops = s.cfg.Monitor.Loops
	}
	policy := s.policy
	if req.Policy != "" {
		p, err := monitor.ParsePolicy(req.Policy)
		if err != nil {
			return nil, invalid("%v", err)
		}
		policy = p
	}
	interval := s.cfg.Monitor.Interval
	if req.IntervalMS > 0 {
		interval = time.Duration(req.IntervalMS) * time.Millisecond
	}

	m := monitor.New(s.browser, monitor.Config{
		Policy:         policy,
		Interval:       interval,
		OpenTimeout:    s.cfg.Monitor.OpenTimeout,
		CaptureTimeout: s.cfg.Monitor.CaptureTimeout,
		Sink:           s.sinks,
		Logger:         s.logger,
	})
	rep, err := m.ObserveLoop(ctx, req.PreviewURL, req.Expected, req.Loops)
	if rep != nil {
		if perr := s.sinks.SendMonitor(context.WithoutCancel(ctx), *rep); perr != nil {
			s.logger.Warn("tagcheck: publish monitor report", "run_id", rep.RunID, "error", perr)
		}
	}
	return rep, err
}

// MonitorRun returns a stored monitor report.
func (s *Service) MonitorRun(ctx context.Context, runID string) (*report.Monitor, error) {
	if s.history == nil {
		return nil, history.ErrNotFound
	}
	return s.history.MonitorRun(ctx, runID)
}

// RecentMonitorRuns lists the latest stored monitor runs.
func (s *Service) RecentMonitorRuns(ctx context.Context, limit int) ([]history.RunSummary, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.RecentMonitorRuns(ctx, limit)
}
