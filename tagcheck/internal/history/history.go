// CLAUDE:SUMMARY SQLite run history for tagcheck: stores monitor reports with their entries and examinations with their batch outcomes.
// Package history persists finished tagcheck runs so they can be looked up
// by run id after the fact.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hazyhaar/tagqa/dbopen"
	"github.com/hazyhaar/tagqa/tagcheck/report"
)

// ErrNotFound is returned when no run has the requested id.
var ErrNotFound = errors.New("history: run not found")

// Store is the run history handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the history database at path and applies Schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	all := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)
	db, err := dbopen.Open(path, all...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// New wraps an open database. Schema must already be applied.
func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// SaveMonitor stores a monitor report, replacing any run with the same id.
func (s *Store) SaveMonitor(ctx context.Context, m *report.Monitor) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM monitor_runs WHERE run_id = ?`, m.RunID); err != nil {
			return fmt.Errorf("history: save monitor: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO monitor_runs (run_id, target_url, expected, loops, anomaly_count, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.RunID, m.TargetURL, m.Expected, m.Loops, m.AnomalyCount, m.StartedAt, m.FinishedAt,
		); err != nil {
			return fmt.Errorf("history: save monitor: %w", err)
		}
		for _, e := range m.Entries {
			observed, err := json.Marshal(nonNil(e.Observed))
			if err != nil {
				return fmt.Errorf("history: encode observed: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO monitor_entries (run_id, iteration, observed, anomaly, anomaly_count, ts, error)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				m.RunID, e.Iteration, string(observed), boolInt(e.Anomaly), e.AnomalyCount, e.Timestamp, e.Error,
			); err != nil {
				return fmt.Errorf("history: save entry %d: %w", e.Iteration, err)
			}
		}
		return nil
	})
}

// MonitorRun loads the monitor report with the given run id.
func (s *Store) MonitorRun(ctx context.Context, runID string) (*report.Monitor, error) {
	m := &report.Monitor{RunID: runID}
	err := s.DB.QueryRowContext(ctx, `
		SELECT target_url, expected, loops, anomaly_count, started_at, finished_at
		FROM monitor_runs WHERE run_id = ?`, runID,
	).Scan(&m.TargetURL, &m.Expected, &m.Loops, &m.AnomalyCount, &m.StartedAt, &m.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("history: monitor run: %w", err)
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT iteration, observed, anomaly, anomaly_count, ts, error
		FROM monitor_entries WHERE run_id = ? ORDER BY iteration`, runID)
	if err != nil {
		return nil, fmt.Errorf("history: monitor entries: %w", err)
	}
	defer rows.Close()

	m.Entries = []report.Entry{}
	for rows.Next() {
		e := report.Entry{RunID: runID}
		var observed string
		var anomaly int
		if err := rows.Scan(&e.Iteration, &observed, &anomaly, &e.AnomalyCount, &e.Timestamp, &e.Error); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(observed), &e.Observed); err != nil {
			return nil, fmt.Errorf("history: decode observed: %w", err)
		}
		e.Anomaly = anomaly != 0
		m.Entries = append(m.Entries, e)
	}
	return m, rows.Err()
}

// RunSummary is one line of the run listing.
type RunSummary struct {
	RunID        string `json:"run_id"`
	TargetURL    string `json:"target_url"`
	Expected     string `json:"expected"`
	Loops        int    `json:"loops"`
	AnomalyCount int    `json:"anomaly_count"`
	StartedAt    int64  `json:"started_at"`
}

// RecentMonitorRuns lists the latest monitor runs, newest first.
func (s *Store) RecentMonitorRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT run_id, target_url, expected, loops, anomaly_count, started_at
		FROM monitor_runs ORDER BY started_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.TargetURL, &r.Expected, &r.Loops, &r.AnomalyCount, &r.StartedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveExamination stores an examination with its batch outcomes.
func (s *Store) SaveExamination(ctx context.Context, e *report.Examination) error {
	results, err := json.Marshal(nonNil(e.Results))
	if err != nil {
		return fmt.Errorf("history: encode results: %w", err)
	}
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM examinations WHERE run_id = ?`, e.RunID); err != nil {
			return fmt.Errorf("history: save examination: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO examinations (run_id, base_id, table_id, view, result_field, records, passed, failed, results, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.RunID, e.BaseID, e.TableID, e.View, e.ResultField, e.Records, e.Passed, e.Failed,
			string(results), e.StartedAt, e.FinishedAt,
		); err != nil {
			return fmt.Errorf("history: save examination: %w", err)
		}
		for _, o := range e.Outcomes {
			ids, err := json.Marshal(nonNil(o.RecordIDs))
			if err != nil {
				return fmt.Errorf("history: encode record ids: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO batch_outcomes (run_id, idx, record_ids, size, ok, error)
				VALUES (?, ?, ?, ?, ?, ?)`,
				e.RunID, o.Index, string(ids), o.Size, boolInt(o.OK), o.Error,
			); err != nil {
				return fmt.Errorf("history: save outcome %d: %w", o.Index, err)
			}
		}
		return nil
	})
}

// Examination loads the examination with the given run id.
func (s *Store) Examination(ctx context.Context, runID string) (*report.Examination, error) {
	e := &report.Examination{RunID: runID}
	var results string
	err := s.DB.QueryRowContext(ctx, `
		SELECT base_id, table_id, view, result_field, records, passed, failed, results, started_at, finished_at
		FROM examinations WHERE run_id = ?`, runID,
	).Scan(&e.BaseID, &e.TableID, &e.View, &e.ResultField, &e.Records, &e.Passed, &e.Failed,
		&results, &e.StartedAt, &e.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("history: examination: %w", err)
	}
	if err := json.Unmarshal([]byte(results), &e.Results); err != nil {
		return nil, fmt.Errorf("history: decode results: %w", err)
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT idx, record_ids, size, ok, error
		FROM batch_outcomes WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("history: outcomes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var o report.Outcome
		var ids string
		var ok int
		if err := rows.Scan(&o.Index, &ids, &o.Size, &ok, &o.Error); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(ids), &o.RecordIDs); err != nil {
			return nil, fmt.Errorf("history: decode record ids: %w", err)
		}
		o.OK = ok != 0
		e.Outcomes = append(e.Outcomes, o)
	}
	return e, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
