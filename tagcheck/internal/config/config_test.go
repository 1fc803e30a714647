package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sample = `
browser:
  remote: ws://chrome:9222
  resource_blocking: [images, fonts]
  navigate_timeout: 45s
  tracking:
    param: tid
airtable:
  token: ${TAGQA_TEST_TOKEN}
  base_id: appB
  table_id: Specs
  fields:
    spec: Specs
examine:
  concurrency: 8
  strict_value_match: true
monitor:
  policy: keep
  interval: 2s
sinks:
  - type: webhook
    url: https://hooks.example/tagqa
    anomalies_only: true
`

func TestLoad(t *testing.T) {
	t.Setenv("TAGQA_TEST_TOKEN", "pat.secret")

	cfg, err := Load([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Airtable.Token != "pat.secret" {
		t.Errorf("token not expanded: %q", cfg.Airtable.Token)
	}
	if cfg.Browser.NavigateTimeout != 45*time.Second {
		t.Errorf("navigate_timeout: got %v", cfg.Browser.NavigateTimeout)
	}
	if cfg.Browser.Tracking.Param != "tid" {
		t.Errorf("tracking param: got %q", cfg.Browser.Tracking.Param)
	}
	if cfg.Airtable.Fields.Spec != "Specs" || cfg.Airtable.Fields.URL != "URL" {
		t.Errorf("fields: got %+v", cfg.Airtable.Fields)
	}
	if cfg.Examine.Concurrency != 8 || !cfg.Examine.StrictValueMatch || cfg.Examine.BatchSize != 10 {
		t.Errorf("examine: got %+v", cfg.Examine)
	}
	if cfg.Monitor.Policy != "keep" || cfg.Monitor.Interval != 2*time.Second || cfg.Monitor.Loops != 3 {
		t.Errorf("monitor: got %+v", cfg.Monitor)
	}
	if len(cfg.Sinks) != 1 || !cfg.Sinks[0].AnomaliesOnly {
		t.Errorf("sinks: got %+v", cfg.Sinks)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Airtable.Fields.Result != "Checking result" {
		t.Errorf("result field: got %q", cfg.Airtable.Fields.Result)
	}
	if cfg.Examine.Concurrency != 5 || cfg.Examine.BatchConcurrency != 2 {
		t.Errorf("examine: got %+v", cfg.Examine)
	}
	if cfg.Monitor.Policy != "reopen" {
		t.Errorf("policy: got %q", cfg.Monitor.Policy)
	}
	if len(cfg.Sinks) != 0 {
		t.Errorf("sinks: got %+v, want none", cfg.Sinks)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"batch too large": "examine:\n  batch_size: 11\n",
		"bad policy":      "monitor:\n  policy: sometimes\n",
		"webhook no url":  "sinks:\n  - type: webhook\n",
		"unknown sink":    "sinks:\n  - type: nats\n",
		"not yaml":        "browser: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load([]byte(doc)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tagqa.yaml")
	if err := os.WriteFile(path, []byte("http:\n  addr: 127.0.0.1:9000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP.Addr != "127.0.0.1:9000" {
		t.Errorf("addr: got %q", cfg.HTTP.Addr)
	}

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.HasPrefix(err.Error(), "config:") {
		t.Errorf("missing file: got %v", err)
	}
}
