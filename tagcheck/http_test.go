package tagcheck

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

func newTestServer(t *testing.T, f *fixture) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	f.svc.RegisterHTTP(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, token, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestHTTP_Routes(t *testing.T) {
	f := newFixture(t)
	srv := newTestServer(t, f)

	var health map[string]string
	if code := doJSON(t, "GET", srv.URL+"/health", "", "", &health); code != 200 || health["status"] != "ok" {
		t.Fatalf("health: %d %v", code, health)
	}

	var containers struct {
		Containers []string `json:"containers"`
	}
	code := doJSON(t, "GET", srv.URL+"/api/containers?url=https://shop.example/", "", "", &containers)
	if code != 200 || len(containers.Containers) != 2 {
		t.Errorf("containers: %d %v", code, containers)
	}

	var errBody map[string]string
	if code := doJSON(t, "GET", srv.URL+"/api/containers", "", "", &errBody); code != http.StatusBadRequest {
		t.Errorf("containers without url: got %d", code)
	}

	var exam struct {
		RunID  string `json:"run_id"`
		Passed int    `json:"passed"`
	}
	if code := doJSON(t, "POST", srv.URL+"/api/examinations", "", `{"dry_run":true}`, &exam); code != 200 || exam.Passed != 3 {
		t.Errorf("examination: %d %+v", code, exam)
	}
	if code := doJSON(t, "POST", srv.URL+"/api/examinations", "", `{"bogus":1}`, &errBody); code != http.StatusBadRequest {
		t.Errorf("unknown field: got %d", code)
	}

	f.browser.captures = [][]string{{"G1"}, {"G1"}}
	var mon struct {
		RunID        string `json:"run_id"`
		AnomalyCount int    `json:"anomaly_count"`
	}
	code = doJSON(t, "POST", srv.URL+"/api/monitor-runs", "", `{"preview_url":"https://tagassistant.google.com/?url=x","expected":"G1","loops":2}`, &mon)
	if code != 200 || mon.AnomalyCount != 0 || mon.RunID == "" {
		t.Fatalf("monitor: %d %+v", code, mon)
	}
	var stored struct {
		RunID   string `json:"run_id"`
		Entries []any  `json:"entries"`
	}
	if code := doJSON(t, "GET", srv.URL+"/api/monitor-runs/"+mon.RunID, "", "", &stored); code != 200 || len(stored.Entries) != 2 {
		t.Errorf("monitor run lookup: %d %+v", code, stored)
	}
	if code := doJSON(t, "GET", srv.URL+"/api/monitor-runs/mon_nope", "", "", &errBody); code != http.StatusNotFound {
		t.Errorf("unknown run: got %d", code)
	}
	var list struct {
		Runs []map[string]any `json:"runs"`
	}
	if code := doJSON(t, "GET", srv.URL+"/api/monitor-runs", "", "", &list); code != 200 || len(list.Runs) != 1 {
		t.Errorf("run list: %d %v", code, list)
	}

	var view PageView
	if code := doJSON(t, "POST", srv.URL+"/api/recordings/checkout/replay", "", "", &view); code != 200 || view.Recording != "checkout" {
		t.Errorf("replay: %d %+v", code, view)
	}
	if code := doJSON(t, "POST", srv.URL+"/api/recordings/nope/replay", "", "", &errBody); code != http.StatusNotFound {
		t.Errorf("replay unknown: got %d", code)
	}

	var recs struct {
		Records []RecordPreview `json:"records"`
	}
	if code := doJSON(t, "GET", srv.URL+"/api/records/appB/tblT", "", "", &recs); code != 200 || len(recs.Records) != 5 {
		t.Errorf("records: %d %d", code, len(recs.Records))
	}
}

func TestHTTP_BearerToken(t *testing.T) {
	f := newFixture(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	f.svc.cfg.HTTP.TokenHash = string(hash)
	srv := newTestServer(t, f)

	var body map[string]any
	if code := doJSON(t, "GET", srv.URL+"/health", "", "", &body); code != 200 {
		t.Errorf("health must stay public, got %d", code)
	}
	if code := doJSON(t, "GET", srv.URL+"/api/recordings", "", "", &body); code != http.StatusUnauthorized {
		t.Errorf("no token: got %d", code)
	}
	if code := doJSON(t, "GET", srv.URL+"/api/recordings", "wrong", "", &body); code != http.StatusUnauthorized {
		t.Errorf("wrong token: got %d", code)
	}
	if code := doJSON(t, "GET", srv.URL+"/api/recordings", "s3cret", "", &body); code != 200 {
		t.Errorf("valid token: got %d", code)
	}
}
