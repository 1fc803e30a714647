package history

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/tagqa/dbopen"
	"github.com/hazyhaar/tagqa/tagcheck/report"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	return New(dbopen.OpenMemory(t, dbopen.WithSchema(Schema)))
}

func sampleMonitor(id string, started int64) *report.Monitor {
	return &report.Monitor{
		RunID:     id,
		TargetURL: "https://tagassistant.google.com/?url=https%3A%2F%2Fshop.example",
		Expected:  "G111",
		Loops:     3,
		Entries: []report.Entry{
			{RunID: id, Iteration: 1, Observed: []string{"G111"}, AnomalyCount: 0, Timestamp: started + 1},
			{RunID: id, Iteration: 2, Observed: []string{"G222"}, Anomaly: true, AnomalyCount: 1, Timestamp: started + 2},
			{RunID: id, Iteration: 3, Observed: []string{}, Anomaly: true, AnomalyCount: 2, Timestamp: started + 3, Error: "capture: timeout"},
		},
		AnomalyCount: 2,
		StartedAt:    started,
		FinishedAt:   started + 10,
	}
}

func TestMonitorRoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	want := sampleMonitor("mon_a", 1000)

	if err := s.SaveMonitor(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, err := s.MonitorRun(ctx, "mon_a")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("monitor (-want +got):\n%s", diff)
	}

	// Saving again replaces the run instead of duplicating entries.
	if err := s.SaveMonitor(ctx, want); err != nil {
		t.Fatalf("resave: %v", err)
	}
	got, err = s.MonitorRun(ctx, "mon_a")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Entries) != 3 {
		t.Errorf("entries after resave: got %d, want 3", len(got.Entries))
	}
}

func TestMonitorRun_NotFound(t *testing.T) {
	s := openTest(t)
	if _, err := s.MonitorRun(context.Background(), "mon_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestRecentMonitorRuns(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	for i, id := range []string{"mon_1", "mon_2", "mon_3"} {
		if err := s.SaveMonitor(ctx, sampleMonitor(id, int64(100*(i+1)))); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := s.RecentMonitorRuns(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].RunID != "mon_3" || runs[1].RunID != "mon_2" {
		t.Errorf("recent: got %+v", runs)
	}
}

func TestExaminationRoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	want := &report.Examination{
		RunID:       "exm_a",
		BaseID:      "appB",
		TableID:     "tblT",
		ResultField: "Checking result",
		Records:     2,
		Passed:      1,
		Failed:      1,
		Results: []report.ResultRecord{
			{ID: "rec1", Field: "Checking result", Value: true},
			{ID: "rec2", Field: "Checking result", Value: false, Detail: "no match"},
		},
		Outcomes: []report.Outcome{
			{Index: 0, RecordIDs: []string{"rec1", "rec2"}, Size: 2, OK: false, Error: "airtable: status 503"},
		},
		StartedAt:  5,
		FinishedAt: 9,
	}
	if err := s.SaveExamination(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, err := s.Examination(ctx, "exm_a")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("examination (-want +got):\n%s", diff)
	}
	if ids := report.FailedRecordIDs(got.Outcomes); len(ids) != 2 {
		t.Errorf("failed ids: got %v", ids)
	}
}

func TestRecorder(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	r := Recorder{Store: s}
	if err := r.SendEntry(ctx, report.Entry{Iteration: 1}); err != nil {
		t.Fatal(err)
	}
	if err := r.SendMonitor(ctx, *sampleMonitor("mon_r", 1)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.MonitorRun(ctx, "mon_r"); err != nil {
		t.Fatalf("recorded run not found: %v", err)
	}
}
