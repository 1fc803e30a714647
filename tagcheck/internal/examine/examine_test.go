package examine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/tagqa/tagcheck/internal/recording"
	"github.com/hazyhaar/tagqa/tagcheck/report"
)

// fakeCollector serves canned observations keyed by URL and tracks the peak
// number of concurrent calls.
type fakeCollector struct {
	pages   map[string]Observation
	delay   time.Duration
	fail    map[string]error
	active  atomic.Int32
	peak    atomic.Int32
	replays atomic.Int32
}

func (f *fakeCollector) enter() func() {
	n := f.active.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return func() { f.active.Add(-1) }
}

func (f *fakeCollector) ObserveURL(ctx context.Context, pageURL string) (Observation, error) {
	defer f.enter()()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Observation{}, ctx.Err()
		}
	}
	if err := f.fail[pageURL]; err != nil {
		return Observation{}, err
	}
	return f.pages[pageURL], nil
}

func (f *fakeCollector) Replay(ctx context.Context, s *recording.Script) (Observation, error) {
	f.replays.Add(1)
	return f.ObserveURL(ctx, s.StartURL())
}

var purchasePage = Observation{
	DataLayer: []any{
		map[string]any{"gtm.start": float64(1), "event": "gtm.js"},
		map[string]any{"event": "purchase", "transaction_id": "T1", "value": float64(9)},
	},
	HTML: []byte(`<button data-event-id="join_group" data-page_name="home">Join</button>`),
}

func TestNewSpecRecord(t *testing.T) {
	tests := []struct {
		url, rec string
		want     Mode
	}{
		{"https://a", "", ModeURL},
		{"https://a", `{"steps":[]}`, ModeRecording},
		{"", `{"steps":[]}`, ModeRecording},
		{"  ", "", ModeNone},
	}
	for _, tt := range tests {
		if got := NewSpecRecord("r", tt.url, tt.rec, "x").Mode; got != tt.want {
			t.Errorf("NewSpecRecord(%q, %q): got %v, want %v", tt.url, tt.rec, got, tt.want)
		}
	}
}

func TestExamine_Contained(t *testing.T) {
	fc := &fakeCollector{
		pages: map[string]Observation{"https://shop": purchasePage},
		fail:  map[string]error{"https://down": errors.New("browser: collection failed")},
	}
	p := NewPipeline(fc, Config{})

	script := `{"title":"t","steps":[{"type":"navigate","url":"https://shop"}]}`
	records := []SpecRecord{
		NewSpecRecord("pass", "https://shop", "", `window.dataLayer.push({"event":"purchase","transaction_id":"$tid"})`),
		NewSpecRecord("missing-key", "https://shop", "", `window.dataLayer.push({"event":"purchase","coupon":"$c"})`),
		NewSpecRecord("no-source", "", "", `window.dataLayer.push({"event":"x"})`),
		NewSpecRecord("empty-spec", "https://shop", "", "  "),
		NewSpecRecord("malformed", "https://shop", "", `window.dataLayer.push({"event":"x"`),
		NewSpecRecord("unclassified", "https://shop", "", `fires on click`),
		NewSpecRecord("collect-error", "https://down", "", `dataLayer.push({"event":"x"})`),
		NewSpecRecord("attrs", "https://shop", "", `dataAttributes: data-event-id="join_group" data-page_name="$page"`),
		NewSpecRecord("replay", "", script, `dataLayer.push({"event":"purchase"})`),
		NewSpecRecord("bad-step", "", `{"steps":[{"type":"teleport"}]}`, `dataLayer.push({"event":"purchase"})`),
	}
	got := p.Examine(context.Background(), records, "Checking result")

	want := map[string]string{
		"pass":          "",
		"missing-key":   DetailNoMatch,
		"no-source":     DetailNoSource,
		"empty-spec":    "specmatch: missing spec",
		"unclassified":  DetailUnclassified,
		"collect-error": "browser: collection failed",
		"attrs":         "",
		"replay":        "",
	}
	if len(got) != len(records) {
		t.Fatalf("results: got %d, want %d", len(got), len(records))
	}
	for i, r := range got {
		if r.ID != records[i].ID {
			t.Errorf("results[%d]: id %q, want %q (order)", i, r.ID, records[i].ID)
		}
		if r.Field != "Checking result" {
			t.Errorf("%s: field %q", r.ID, r.Field)
		}
		if d, ok := want[r.ID]; ok {
			if r.Value != (d == "") || r.Detail != d {
				t.Errorf("%s: got (%v, %q), want detail %q", r.ID, r.Value, r.Detail, d)
			}
		}
	}
	for _, id := range []string{"malformed", "bad-step"} {
		for _, r := range got {
			if r.ID == id && r.Value {
				t.Errorf("%s: expected false", id)
			}
		}
	}
	if fc.replays.Load() != 1 {
		t.Errorf("replays: got %d, want 1 (bad-step must not reach the collector)", fc.replays.Load())
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		spec string
		want specKind
	}{
		{`window.dataLayer.push({"event":"x"})`, kindDataLayer},
		{`window.datalayer.push({"event":"x"};)`, kindDataLayer},
		{`DATALAYER.push({event:'x'})`, kindDataLayer},
		{`dataAttributes: data-event-id="x"`, kindAttributes},
		{`DataAttributes: data-event-id="x"`, kindAttributes},
		{`<button DATA-Event-Id="x">`, kindAttributes},
		{`fires on click`, kindUnknown},
	}
	for _, tt := range tests {
		if got := classify(tt.spec); got != tt.want {
			t.Errorf("classify(%q): got %d, want %d", tt.spec, got, tt.want)
		}
	}
}

func TestExamine_LowercaseDataLayer(t *testing.T) {
	c := &fakeCollector{pages: map[string]Observation{
		"https://shop": {DataLayer: []any{map[string]any{"event": "purchase", "value": 12.0}}},
	}}
	p := NewPipeline(c, Config{})
	recs := []SpecRecord{NewSpecRecord("lower", "https://shop", "", `window.datalayer.push({event:"purchase",value:$v};)`)}
	got := p.Examine(context.Background(), recs, "Checking result")
	if len(got) != 1 || !got[0].Value {
		t.Fatalf("got %+v, want a passing result", got)
	}
}

func TestExamine_OrderAndBound(t *testing.T) {
	fc := &fakeCollector{pages: map[string]Observation{}, delay: 20 * time.Millisecond}
	var records []SpecRecord
	for i := range 17 {
		u := fmt.Sprintf("https://p/%d", i)
		fc.pages[u] = Observation{DataLayer: []any{map[string]any{"event": fmt.Sprint(i)}}}
		records = append(records, NewSpecRecord(fmt.Sprintf("r%d", i), u, "", `dataLayer.push({"event":"$e"})`))
	}
	snapshot := append([]SpecRecord(nil), records...)

	p := NewPipeline(fc, Config{Concurrency: 3})
	got := p.Examine(context.Background(), records, "ok")

	for i, r := range got {
		if r.ID != fmt.Sprintf("r%d", i) || !r.Value {
			t.Errorf("results[%d]: got %+v", i, r)
		}
	}
	if peak := fc.peak.Load(); peak > 3 {
		t.Errorf("peak concurrency: got %d, want <= 3", peak)
	}
	for i := range records {
		if records[i] != snapshot[i] {
			t.Fatalf("input record %d mutated", i)
		}
	}
}

func TestExamine_Timeout(t *testing.T) {
	fc := &fakeCollector{pages: map[string]Observation{"https://slow": purchasePage}, delay: time.Second}
	p := NewPipeline(fc, Config{CollectTimeout: 10 * time.Millisecond})
	got := p.Examine(context.Background(), []SpecRecord{
		NewSpecRecord("slow", "https://slow", "", `dataLayer.push({"event":"purchase"})`),
	}, "ok")
	if got[0].Value || got[0].Detail != DetailTimeout {
		t.Errorf("got %+v, want timeout failure", got[0])
	}
}

// fakeStore records batch sizes and fails the batches listed in failAt.
type fakeStore struct {
	mu     sync.Mutex
	sizes  map[string]int // first record id -> batch size
	failAt map[string]bool
	active atomic.Int32
	peak   atomic.Int32
}

func (s *fakeStore) UpdateResults(ctx context.Context, batch []report.ResultRecord) error {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	s.mu.Lock()
	s.sizes[batch[0].ID] = len(batch)
	s.mu.Unlock()
	if s.failAt[batch[0].ID] {
		return errors.New("store: status 503")
	}
	return nil
}

func results(n int) []report.ResultRecord {
	out := make([]report.ResultRecord, n)
	for i := range out {
		out[i] = report.ResultRecord{ID: fmt.Sprintf("r%d", i), Field: "ok", Value: i%2 == 0}
	}
	return out
}

func TestPartition(t *testing.T) {
	tests := []struct {
		n, size int
		want    []int
	}{
		{23, 10, []int{10, 10, 3}},
		{20, 10, []int{10, 10}},
		{0, 10, nil},
		{5, 0, []int{5}},
		{3, 1, []int{1, 1, 1}},
	}
	for _, tt := range tests {
		in := results(tt.n)
		got := Partition(in, tt.size)
		if len(got) != len(tt.want) {
			t.Fatalf("Partition(%d, %d): got %d chunks, want %d", tt.n, tt.size, len(got), len(tt.want))
		}
		k := 0
		for i, c := range got {
			if len(c) != tt.want[i] {
				t.Errorf("Partition(%d, %d)[%d]: size %d, want %d", tt.n, tt.size, i, len(c), tt.want[i])
			}
			for _, r := range c {
				if r.ID != in[k].ID {
					t.Errorf("Partition(%d, %d): order broken at %d", tt.n, tt.size, k)
				}
				k++
			}
		}
	}
}

func TestUpdateInBatches(t *testing.T) {
	store := &fakeStore{sizes: map[string]int{}, failAt: map[string]bool{"r10": true}}
	u := NewUpdater(store, UpdaterConfig{})

	outcomes := u.UpdateInBatches(context.Background(), results(23), 10)
	if len(outcomes) != 3 {
		t.Fatalf("outcomes: got %d, want 3", len(outcomes))
	}
	wantSizes := []int{10, 10, 3}
	for i, o := range outcomes {
		if o.Index != i || o.Size != wantSizes[i] || len(o.RecordIDs) != wantSizes[i] {
			t.Errorf("outcome[%d]: got %+v", i, o)
		}
	}
	if !outcomes[0].OK || outcomes[1].OK || !outcomes[2].OK {
		t.Errorf("ok flags: got %v %v %v", outcomes[0].OK, outcomes[1].OK, outcomes[2].OK)
	}
	if outcomes[1].Error == "" {
		t.Error("failed batch must carry its error")
	}
	if store.sizes["r0"] != 10 || store.sizes["r10"] != 10 || store.sizes["r20"] != 3 {
		t.Errorf("store saw sizes %v", store.sizes)
	}
	if peak := store.peak.Load(); peak > 2 {
		t.Errorf("peak in-flight batches: got %d, want <= 2", peak)
	}
	if ids := report.FailedRecordIDs(outcomes); len(ids) != 10 || ids[0] != "r10" {
		t.Errorf("failed ids: got %v", ids)
	}
}
