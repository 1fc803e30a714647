package tagcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/tagqa/idgen"
	"github.com/hazyhaar/tagqa/tagcheck/internal/airtable"
	"github.com/hazyhaar/tagqa/tagcheck/internal/examine"
	"github.com/hazyhaar/tagqa/tagcheck/report"
)

// ExaminationRequest selects the spec records to examine. Empty fields fall
// back to the configured table.
type ExaminationRequest struct {
	BaseID      string `json:"base_id,omitempty"`
	TableID     string `json:"table_id,omitempty"`
	View        string `json:"view,omitempty"`
	Formula     string `json:"formula,omitempty"`
	ResultField string `json:"result_field,omitempty"`
	// DryRun examines without writing verdicts back to the table.
	DryRun bool `json:"dry_run,omitempty"`
}

func (s *Service) resolve(req *ExaminationRequest) error {
	if req.BaseID == "" {
		req.BaseID = s.cfg.Airtable.BaseID
	}
	if req.TableID == "" {
		req.TableID = s.cfg.Airtable.TableID
	}
	if req.View == "" {
		req.View = s.cfg.Airtable.View
	}
	if req.ResultField == "" {
		req.ResultField = s.cfg.Airtable.Fields.Result
	}
	if req.BaseID == "" || req.TableID == "" {
		return invalid("base_id and table_id are required")
	}
	return nil
}

// RunExamination fetches the spec records, examines each against the page
// it names, writes the verdicts back in batches and publishes the summary.
// Per-record failures are verdicts, per-batch failures are outcomes: only a
// failure to read the records aborts the run.
func (s *Service) RunExamination(ctx context.Context, req ExaminationRequest) (*report.Examination, error) {
	if err := s.resolve(&req); err != nil {
		return nil, err
	}
	exam := &report.Examination{
		RunID:       idgen.ExaminationID(),
		BaseID:      req.BaseID,
		TableID:     req.TableID,
		View:        req.View,
		ResultField: req.ResultField,
		StartedAt:   time.Now().UnixMilli(),
	}
	log := s.logger.With("run_id", exam.RunID, "table", req.TableID)

	specs, err := s.specRecords(ctx, req)
	if err != nil {
		return nil, err
	}
	log.Info("tagcheck: examination started", "records", len(specs))

	exam.Records = len(specs)
	exam.Results = s.pipeline.Examine(ctx, specs, req.ResultField)
	exam.Passed, exam.Failed = report.Tally(exam.Results)

	if !req.DryRun && len(exam.Results) > 0 {
		exam.Outcomes = s.writeBack(ctx, req, exam.Results)
		if failed := report.FailedRecordIDs(exam.Outcomes); len(failed) > 0 {
			log.Warn("tagcheck: verdicts not written", "records", len(failed))
		}
	}
	exam.FinishedAt = time.Now().UnixMilli()

	if err := s.sinks.SendExamination(context.WithoutCancel(ctx), *exam); err != nil {
		log.Warn("tagcheck: publish examination", "error", err)
	}
	log.Info("tagcheck: examination done", "passed", exam.Passed, "failed", exam.Failed)
	return exam, ctx.Err()
}

func (s *Service) writeBack(ctx context.Context, req ExaminationRequest, results []report.ResultRecord) []report.Outcome {
	if _, created, err := s.store.EnsureField(ctx, req.BaseID, req.TableID, airtable.CheckboxField(req.ResultField)); err != nil {
		// The PATCH below fails per batch with the store's own message.
		s.logger.Warn("tagcheck: ensure result field", "field", req.ResultField, "error", err)
	} else if created {
		s.logger.Info("tagcheck: result field created", "field", req.ResultField)
	}

	updater := examine.NewUpdater(s.store.ResultStore(req.BaseID, req.TableID), examine.UpdaterConfig{
		Concurrency:  s.cfg.Examine.BatchConcurrency,
		BatchTimeout: s.cfg.Examine.BatchTimeout,
		Logger:       s.logger,
	})
	return updater.UpdateInBatches(ctx, results, s.cfg.Examine.BatchSize)
}

// specRecords reads the table and classifies every row.
func (s *Service) specRecords(ctx context.Context, req ExaminationRequest) ([]examine.SpecRecord, error) {
	f := s.cfg.Airtable.Fields
	recs, err := s.store.FetchRecords(ctx, req.BaseID, req.TableID, airtable.Query{
		View:    req.View,
		Formula: req.Formula,
		Fields:  []string{f.URL, f.Spec, f.Recording},
	})
	if err != nil {
		return nil, fmt.Errorf("tagcheck: fetch records: %w", err)
	}
	specs := make([]examine.SpecRecord, len(recs))
	for i, r := range recs {
		specs[i] = examine.NewSpecRecord(r.ID, r.String(f.URL), s.recordingSource(r.String(f.Recording)), r.String(f.Spec))
	}
	return specs, nil
}

// recordingSource accepts either an inline recording or the name of one in
// the library.
func (s *Service) recordingSource(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasPrefix(v, "{") || s.library == nil {
		return v
	}
	script, err := s.library.Get(v)
	if err != nil {
		// Left as is: the pipeline reports the decode failure on the record.
		return v
	}
	data, err := json.Marshal(script)
	if err != nil {
		return v
	}
	return string(data)
}

// RecordPreview describes how one record would be examined.
type RecordPreview struct {
	ID       string `json:"id"`
	Mode     string `json:"mode"`
	Source   string `json:"source,omitempty"` // page URL in url mode
	CodeSpec string `json:"code_spec"`
}

// PreviewRecords lists the records of a table with the mode each would be
// examined in, without visiting any page.
func (s *Service) PreviewRecords(ctx context.Context, baseID, tableID, view string) ([]RecordPreview, error) {
	req := ExaminationRequest{BaseID: baseID, TableID: tableID, View: view}
	if err := s.resolve(&req); err != nil {
		return nil, err
	}
	specs, err := s.specRecords(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make([]RecordPreview, len(specs))
	for i, sp := range specs {
		out[i] = RecordPreview{ID: sp.ID, Mode: sp.Mode.String(), CodeSpec: sp.CodeSpec}
		if sp.Mode == examine.ModeURL {
			out[i].Source = sp.Source
		}
	}
	return out, nil
}
