package browser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/hazyhaar/tagqa/tagcheck/internal/examine"
	"github.com/hazyhaar/tagqa/tagcheck/internal/recording"
	"github.com/hazyhaar/tagqa/tagcheck/internal/tracking"
)

// Collector observes pages on one shared browser and opens preview sessions
// on dedicated ones.
type Collector struct {
	cfg      Config
	shared   *Manager
	sessions atomic.Int64
}

// NewCollector creates a Collector. The shared browser starts lazily on
// first use.
func NewCollector(cfg Config) *Collector {
	cfg.defaults()
	return &Collector{
		cfg:    cfg,
		shared: NewManager(cfg.RemoteURL, cfg.Headful, cfg.XvfbDisplay, cfg.Logger),
	}
}

// Close shuts down the shared browser. Open sessions are closed by their
// owners.
func (c *Collector) Close() error {
	return c.shared.Close()
}

func (c *Collector) newTab(ctx context.Context) (*tab, error) {
	b, err := c.shared.Start(ctx)
	if err != nil {
		return nil, err
	}
	return openTab(b, &c.cfg)
}

// ObserveURL loads pageURL and returns its data layer and DOM.
func (c *Collector) ObserveURL(ctx context.Context, pageURL string) (examine.Observation, error) {
	t, err := c.newTab(ctx)
	if err != nil {
		return examine.Observation{}, collectionErr("observe", pageURL, err)
	}
	defer t.close()

	if err := t.navigate(ctx, pageURL); err != nil {
		return examine.Observation{}, collectionErr("observe", pageURL, err)
	}
	t.settle(ctx)
	obs, err := observe(ctx, t)
	return obs, collectionErr("observe", pageURL, err)
}

// Replay executes script on a fresh tab and returns the observation taken
// once the last step (or a close step) is reached.
func (c *Collector) Replay(ctx context.Context, script *recording.Script) (examine.Observation, error) {
	start := script.StartURL()
	t, err := c.newTab(ctx)
	if err != nil {
		return examine.Observation{}, collectionErr("replay", start, err)
	}
	defer t.close()

	r := &replayer{tab: t, defaultTimeout: stepTimeout(script.Timeout, c.cfg.StepTimeout), logger: c.cfg.Logger}
	if err := r.run(ctx, script); err != nil {
		return examine.Observation{}, collectionErr("replay", start, err)
	}
	t.settle(ctx)
	obs, err := observe(ctx, t)
	return obs, collectionErr("replay", start, err)
}

// Containers returns the tag-manager containers pageURL loads.
func (c *Collector) Containers(ctx context.Context, pageURL string) ([]string, error) {
	t, err := c.newTab(ctx)
	if err != nil {
		return nil, collectionErr("containers", pageURL, err)
	}
	defer t.close()

	if err := t.navigate(ctx, pageURL); err != nil {
		return nil, collectionErr("containers", pageURL, err)
	}
	return tracking.ContainerIDs(t.log.snapshot()), nil
}

func observe(ctx context.Context, t *tab) (examine.Observation, error) {
	layer, err := t.dataLayer(ctx)
	if err != nil {
		return examine.Observation{}, err
	}
	html, err := t.html(ctx)
	if err != nil {
		return examine.Observation{}, err
	}
	return examine.Observation{DataLayer: layer, HTML: html}, nil
}

// sessionDisplay gives the n-th headful session (n starts at 1) its own X
// display after base, so base stays with the shared browser.
func sessionDisplay(base string, n int64) string {
	num, err := strconv.Atoi(strings.TrimPrefix(base, ":"))
	if err != nil {
		num = 99
	}
	return fmt.Sprintf(":%d", num+int(n))
}
