// Package report defines the structured types emitted by tagcheck.
// These are the public API contract: sinks, the run history and any
// consumer of the HTTP or MCP surface exchange these values.
package report

// ResultRecord is the pass/fail verdict for one spec record. Detail carries
// the contained failure reason when Value is false.
type ResultRecord struct {
	ID     string `json:"id"`
	Field  string `json:"field"`
	Value  bool   `json:"value"`
	Detail string `json:"detail,omitempty"`
}

// Outcome is the result of writing one batch of ResultRecords back to the
// record store.
type Outcome struct {
	Index     int      `json:"index"` // position of the batch in the partition
	RecordIDs []string `json:"record_ids"`
	Size      int      `json:"size"`
	OK        bool     `json:"ok"`
	Error     string   `json:"error,omitempty"`
}

// Examination summarises one examination run over a record set.
type Examination struct {
	RunID       string         `json:"run_id"` // prefixed UUIDv7
	BaseID      string         `json:"base_id"`
	TableID     string         `json:"table_id"`
	View        string         `json:"view,omitempty"`
	ResultField string         `json:"result_field"`
	Records     int            `json:"records"`
	Passed      int            `json:"passed"`
	Failed      int            `json:"failed"`
	Results     []ResultRecord `json:"results"`
	Outcomes    []Outcome      `json:"outcomes"`
	StartedAt   int64          `json:"started_at"`  // epoch milliseconds
	FinishedAt  int64          `json:"finished_at"` // epoch milliseconds
}

// Entry is one iteration of a monitor run.
type Entry struct {
	RunID        string   `json:"run_id,omitempty"`
	Iteration    int      `json:"iteration"` // 1-based
	Observed     []string `json:"observed"`  // sorted, deduplicated
	Anomaly      bool     `json:"anomaly"`
	AnomalyCount int      `json:"anomaly_count"` // running total including this entry
	Timestamp    int64    `json:"timestamp"`     // epoch milliseconds
	Error        string   `json:"error,omitempty"`
}

// Monitor is the anomaly report of one monitor run. Entries holds exactly
// Loops entries when the run was not interrupted.
type Monitor struct {
	RunID        string  `json:"run_id"`
	TargetURL    string  `json:"target_url"`
	Expected     string  `json:"expected"`
	Loops        int     `json:"loops"`
	Entries      []Entry `json:"entries"`
	AnomalyCount int     `json:"anomaly_count"`
	StartedAt    int64   `json:"started_at"`
	FinishedAt   int64   `json:"finished_at"`
}
