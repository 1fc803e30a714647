// Package tagcheck is the tagqa service: it examines tracking specs stored
// in Airtable against what pages actually push, and monitors Tag Manager
// preview sessions for unexpected measurement ids.
//
// The Service wires the examination pipeline, the batch write-back, the
// preview monitor, the run history and the report sinks. It is exposed over
// HTTP (RegisterHTTP), MCP (RegisterMCP) and the tagqa CLI.
package tagcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/tagqa/tagcheck/internal/airtable"
	"github.com/hazyhaar/tagqa/tagcheck/internal/browser"
	"github.com/hazyhaar/tagqa/tagcheck/internal/config"
	"github.com/hazyhaar/tagqa/tagcheck/internal/examine"
	"github.com/hazyhaar/tagqa/tagcheck/internal/history"
	"github.com/hazyhaar/tagqa/tagcheck/internal/monitor"
	"github.com/hazyhaar/tagqa/tagcheck/internal/recording"
	"github.com/hazyhaar/tagqa/tagcheck/internal/sink"
	"github.com/hazyhaar/tagqa/tagcheck/internal/tracking"
)

// ErrInvalidRequest marks a request rejected before any work started.
var ErrInvalidRequest = errors.New("tagcheck: invalid request")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// Browser is everything the service needs from page automation.
type Browser interface {
	examine.Collector
	monitor.Automation
	Containers(ctx context.Context, pageURL string) ([]string, error)
	Close() error
}

// Chrome adapts a go-rod collector to Browser.
func Chrome(c *browser.Collector) Browser { return chrome{c} }

type chrome struct{ *browser.Collector }

func (c chrome) OpenSession(ctx context.Context, previewURL string) (monitor.Session, error) {
	s, err := c.Collector.OpenSession(ctx, previewURL)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Deps are the collaborators of a Service. Browser and Store are required;
// History and Library are optional.
type Deps struct {
	Browser Browser
	Store   *airtable.Client
	History *history.Store
	Library *recording.Library
	Sinks   []sink.Sink
	Logger  *slog.Logger
}

// Service is the tagqa façade.
type Service struct {
	cfg      *config.Config
	browser  Browser
	store    *airtable.Client
	history  *history.Store
	library  *recording.Library
	sinks    *sink.Router
	pipeline *examine.Pipeline
	policy   monitor.Policy
	logger   *slog.Logger
}

// New creates a Service from configuration and collaborators.
func New(cfg *config.Config, deps Deps) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if deps.Browser == nil || deps.Store == nil {
		return nil, errors.New("tagcheck: browser and store are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy, err := monitor.ParsePolicy(cfg.Monitor.Policy)
	if err != nil {
		return nil, fmt.Errorf("tagcheck: %w", err)
	}

	sinks := deps.Sinks
	if deps.History != nil {
		sinks = append(sinks, history.Recorder{Store: deps.History})
	}

	return &Service{
		cfg:     cfg,
		browser: deps.Browser,
		store:   deps.Store,
		history: deps.History,
		library: deps.Library,
		sinks:   sink.NewRouter(logger, sinks...),
		pipeline: examine.NewPipeline(deps.Browser, examine.Config{
			Concurrency:      cfg.Examine.Concurrency,
			CollectTimeout:   cfg.Examine.CollectTimeout,
			StrictValueMatch: cfg.Examine.StrictValueMatch,
			Logger:           logger,
		}),
		policy: policy,
		logger: logger,
	}, nil
}

// Open builds a Service with the production collaborators described by cfg:
// a go-rod browser, the Airtable client, the SQLite history, the recording
// library and the configured sinks. The recording library is watched until
// ctx is done.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	endpoint := tracking.Default()
	if cfg.Browser.Tracking.Pattern != "" || cfg.Browser.Tracking.Param != "" {
		ep, err := tracking.NewEndpoint(cfg.Browser.Tracking.Pattern, cfg.Browser.Tracking.Param)
		if err != nil {
			return nil, fmt.Errorf("tagcheck: tracking endpoint: %w", err)
		}
		endpoint = ep
	}

	sinks, err := buildSinks(cfg.Sinks, logger)
	if err != nil {
		return nil, err
	}

	hist, err := history.Open(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("tagcheck: open history: %w", err)
	}

	lib, err := recording.NewLibrary(cfg.RecordingsDir, logger)
	if err != nil {
		logger.Warn("tagcheck: recording library unavailable", "dir", cfg.RecordingsDir, "error", err)
	} else {
		go func() {
			if err := lib.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("tagcheck: recording watch stopped", "error", err)
			}
		}()
	}

	collector := browser.NewCollector(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Headful:          cfg.Browser.Headful,
		PreviewHeadful:   cfg.Browser.PreviewHeadful,
		XvfbDisplay:      cfg.Browser.XvfbDisplay,
		UserAgent:        cfg.Browser.UserAgent,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		NavigateTimeout:  cfg.Browser.NavigateTimeout,
		IdleWindow:       cfg.Browser.IdleWindow,
		StepTimeout:      cfg.Browser.StepTimeout,
		Endpoint:         endpoint,
		Logger:           logger,
	})

	store := airtable.New(airtable.Config{
		BaseURL:     cfg.Airtable.BaseURL,
		Token:       cfg.Airtable.Token,
		MinInterval: cfg.Airtable.MinInterval,
		Timeout:     cfg.Airtable.Timeout,
		MaxRetries:  cfg.Airtable.MaxRetries,
		Logger:      logger,
	})

	svc, err := New(cfg, Deps{
		Browser: Chrome(collector),
		Store:   store,
		History: hist,
		Library: lib,
		Sinks:   sinks,
		Logger:  logger,
	})
	if err != nil {
		collector.Close()
		hist.Close()
		return nil, err
	}
	return svc, nil
}

// Close releases the browser, the sinks and the history database.
func (s *Service) Close() error {
	errs := []error{s.browser.Close(), s.sinks.Close()}
	if s.history != nil {
		errs = append(errs, s.history.Close())
	}
	return errors.Join(errs...)
}

func buildSinks(cfgs []config.SinkConfig, logger *slog.Logger) ([]sink.Sink, error) {
	var out []sink.Sink
	for i, c := range cfgs {
		switch c.Type {
		case "stdout":
			out = append(out, sink.NewStdout(nil))
		case "webhook":
			opts := []sink.WebhookOption{sink.WithWebhookLogger(logger)}
			if c.Retries > 0 {
				opts = append(opts, sink.WithWebhookRetries(c.Retries))
			}
			if c.AnomaliesOnly {
				opts = append(opts, sink.WithWebhookAnomaliesOnly())
			}
			out = append(out, sink.NewWebhook(c.URL, opts...))
		default:
			return nil, fmt.Errorf("tagcheck: sinks[%d]: unknown type %q", i, c.Type)
		}
	}
	return out, nil
}
