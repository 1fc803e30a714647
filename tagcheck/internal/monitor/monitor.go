// Package monitor drives a tag-manager preview session in a bounded loop and
// reports the iterations where the expected tracking id was not observed.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/hazyhaar/tagqa/idgen"
	"github.com/hazyhaar/tagqa/tagcheck/report"
)

// Session is a live preview session owned by one run. Close is idempotent.
type Session interface {
	CaptureTrackingIDs(ctx context.Context) ([]string, error)
	Close() error
}

// Automation opens preview sessions.
type Automation interface {
	OpenSession(ctx context.Context, targetURL string) (Session, error)
}

// EntrySink receives entries as they are produced.
type EntrySink interface {
	SendEntry(ctx context.Context, entry report.Entry) error
}

// Policy decides what happens to the session after a matched iteration.
type Policy string

const (
	// PolicyReopen closes the session after a match; the next iteration
	// opens a fresh one.
	PolicyReopen Policy = "reopen"
	// PolicyKeep keeps observing on the same session.
	PolicyKeep Policy = "keep"
)

// ErrUnknownPolicy is returned by ParsePolicy.
var ErrUnknownPolicy = errors.New("monitor: unknown session policy")

// ParsePolicy maps a config value to a Policy. "" gives PolicyReopen.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyReopen:
		return PolicyReopen, nil
	case PolicyKeep:
		return PolicyKeep, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// Config controls a Monitor.
type Config struct {
	Policy         Policy
	Interval       time.Duration // pause between iterations. Default: none.
	OpenTimeout    time.Duration // per session acquisition. Default: 90s.
	CaptureTimeout time.Duration // per capture. Default: 60s.
	Sink           EntrySink
	Logger         *slog.Logger
	NewRunID       idgen.Generator
	Now            func() time.Time
}

func (c *Config) defaults() {
	if c.Policy == "" {
		c.Policy = PolicyReopen
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 90 * time.Second
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.NewRunID == nil {
		c.NewRunID = idgen.MonitorID
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Monitor runs observation loops. One Monitor may serve concurrent runs;
// each run owns its own session.
type Monitor struct {
	automation Automation
	cfg        Config
}

// New creates a Monitor.
func New(automation Automation, cfg Config) *Monitor {
	cfg.defaults()
	return &Monitor{automation: automation, cfg: cfg}
}

// ObserveLoop performs exactly loops iterations against the preview session
// for targetURL and returns the accumulated report. Failure to acquire the
// first session is fatal. On cancellation the partial report is returned
// together with ctx.Err().
func (m *Monitor) ObserveLoop(ctx context.Context, targetURL, expected string, loops int) (*report.Monitor, error) {
	rep := &report.Monitor{
		RunID:     m.cfg.NewRunID(),
		TargetURL: targetURL,
		Expected:  expected,
		Loops:     loops,
		Entries:   []report.Entry{},
		StartedAt: m.cfg.Now().UnixMilli(),
	}
	if loops <= 0 {
		rep.FinishedAt = m.cfg.Now().UnixMilli()
		return rep, nil
	}

	log := m.cfg.Logger.With("run_id", rep.RunID, "target", targetURL)

	sess, err := m.open(ctx, targetURL)
	if err != nil {
		return nil, fmt.Errorf("monitor: open session: %w", err)
	}
	defer func() {
		if sess != nil {
			m.close(log, sess)
		}
	}()

	for i := 1; i <= loops; i++ {
		if err := m.pause(ctx, i); err != nil {
			rep.FinishedAt = m.cfg.Now().UnixMilli()
			log.Info("monitor: cancelled", "iteration", i, "anomalies", rep.AnomalyCount)
			return rep, err
		}

		entry := report.Entry{RunID: rep.RunID, Iteration: i, Observed: []string{}}
		if sess == nil {
			sess, err = m.open(ctx, targetURL)
			if err != nil {
				sess = nil
				entry.Error = fmt.Sprintf("open session: %v", err)
			}
		}
		if sess != nil {
			ids, err := m.capture(ctx, sess)
			if err != nil {
				entry.Error = fmt.Sprintf("capture: %v", err)
				m.close(log, sess)
				sess = nil
			} else {
				entry.Observed = ids
			}
		}

		matched := entry.Error == "" && slices.Contains(entry.Observed, expected)
		if !matched {
			rep.AnomalyCount++
			entry.Anomaly = true
		}
		entry.AnomalyCount = rep.AnomalyCount
		entry.Timestamp = m.cfg.Now().UnixMilli()
		rep.Entries = append(rep.Entries, entry)

		if entry.Anomaly {
			log.Warn("monitor: anomaly", "iteration", i, "observed", entry.Observed, "error", entry.Error)
		} else {
			log.Debug("monitor: matched", "iteration", i)
		}
		m.publish(ctx, log, entry)

		if matched && m.cfg.Policy == PolicyReopen {
			m.close(log, sess)
			sess = nil
		}
	}

	rep.FinishedAt = m.cfg.Now().UnixMilli()
	log.Info("monitor: run complete", "loops", loops, "anomalies", rep.AnomalyCount)
	return rep, nil
}

func (m *Monitor) pause(ctx context.Context, iteration int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if iteration == 1 || m.cfg.Interval <= 0 {
		return nil
	}
	t := time.NewTimer(m.cfg.Interval)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) open(ctx context.Context, targetURL string) (Session, error) {
	octx, cancel := context.WithTimeout(ctx, m.cfg.OpenTimeout)
	defer cancel()
	return m.automation.OpenSession(octx, targetURL)
}

func (m *Monitor) capture(ctx context.Context, sess Session) ([]string, error) {
	cctx, cancel := context.WithTimeout(ctx, m.cfg.CaptureTimeout)
	defer cancel()
	ids, err := sess.CaptureTrackingIDs(cctx)
	if err != nil {
		return nil, err
	}
	return normalise(ids), nil
}

func (m *Monitor) close(log *slog.Logger, sess Session) {
	if err := sess.Close(); err != nil {
		log.Warn("monitor: close session", "error", err)
	}
}

func (m *Monitor) publish(ctx context.Context, log *slog.Logger, entry report.Entry) {
	if m.cfg.Sink == nil {
		return
	}
	if err := m.cfg.Sink.SendEntry(ctx, entry); err != nil {
		log.Warn("monitor: publish entry", "iteration", entry.Iteration, "error", err)
	}
}

// normalise returns the sorted set of non-empty ids.
func normalise(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return slices.Compact(out)
}
