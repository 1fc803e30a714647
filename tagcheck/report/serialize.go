package report

import (
	"encoding/json"
	"sort"
)

// MarshalMonitor serialises a Monitor report to JSON.
func MarshalMonitor(m *Monitor) ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalMonitor deserialises a Monitor report from JSON.
func UnmarshalMonitor(data []byte) (*Monitor, error) {
	var m Monitor
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// MarshalExamination serialises an Examination summary to JSON.
func MarshalExamination(e *Examination) ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalExamination deserialises an Examination summary from JSON.
func UnmarshalExamination(data []byte) (*Examination, error) {
	var e Examination
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// FailedRecordIDs returns the ids of every record whose batch failed, in
// partition order. Callers re-submit these to retry a write-back.
func FailedRecordIDs(outcomes []Outcome) []string {
	sorted := make([]Outcome, len(outcomes))
	copy(sorted, outcomes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	var ids []string
	for _, o := range sorted {
		if !o.OK {
			ids = append(ids, o.RecordIDs...)
		}
	}
	return ids
}

// Tally counts passed and failed results.
func Tally(results []ResultRecord) (passed, failed int) {
	for _, r := range results {
		if r.Value {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

// Anomalies returns the entries flagged as anomalies.
func (m *Monitor) Anomalies() []Entry {
	var out []Entry
	for _, e := range m.Entries {
		if e.Anomaly {
			out = append(out, e)
		}
	}
	return out
}
