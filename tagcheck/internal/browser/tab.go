package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// tab is a stealth page with its request log.
type tab struct {
	page *rod.Page
	log  *requestLog
	cfg  *Config
}

// openTab creates a blank stealth page on b with request recording and
// resource blocking installed, ready to navigate.
func openTab(b *rod.Browser, cfg *Config) (*tab, error) {
	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: cfg.UserAgent}); err != nil {
		cfg.Logger.Warn("browser: set user agent failed", "error", err)
	}
	rl, err := hijack(page, cfg.ResourceBlocking)
	if err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("browser: hijack: %w", err)
	}
	return &tab{page: page, log: rl, cfg: cfg}, nil
}

// navigate loads pageURL and waits for the load event and a quiet network.
func (t *tab) navigate(ctx context.Context, pageURL string) error {
	navCtx, cancel := context.WithTimeout(ctx, t.cfg.NavigateTimeout)
	defer cancel()

	p := t.page.Context(navCtx)
	wait := p.WaitRequestIdle(t.cfg.IdleWindow, nil, nil, nil)
	if err := p.Navigate(pageURL); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := p.WaitLoad(); err != nil {
		t.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	wait()
	return navCtx.Err()
}

// reload reloads the current page and waits like navigate.
func (t *tab) reload(ctx context.Context) error {
	navCtx, cancel := context.WithTimeout(ctx, t.cfg.NavigateTimeout)
	defer cancel()

	p := t.page.Context(navCtx)
	wait := p.WaitRequestIdle(t.cfg.IdleWindow, nil, nil, nil)
	if err := p.Reload(); err != nil {
		return fmt.Errorf("browser: reload: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		t.cfg.Logger.Warn("browser: wait load timeout after reload", "error", err)
	}
	wait()
	return navCtx.Err()
}

// readDataLayerJS serialises window.dataLayer without cycles, DOM nodes or
// functions.
const readDataLayerJS = `() => {
	const seen = new WeakSet();
	return JSON.stringify(window.dataLayer || [], (k, v) => {
		if (typeof v === 'function') return undefined;
		if (typeof Element !== 'undefined' && v instanceof Element) return undefined;
		if (typeof v === 'object' && v !== null) {
			if (seen.has(v)) return undefined;
			seen.add(v);
		}
		return v;
	});
}`

// dataLayer reads window.dataLayer as decoded JSON.
func (t *tab) dataLayer(ctx context.Context) ([]any, error) {
	res, err := t.page.Context(ctx).Eval(readDataLayerJS)
	if err != nil {
		return nil, fmt.Errorf("browser: read dataLayer: %w", err)
	}
	return decodeDataLayer(res.Value.Str())
}

func decodeDataLayer(raw string) ([]any, error) {
	if raw == "" {
		return []any{}, nil
	}
	var layer []any
	if err := json.Unmarshal([]byte(raw), &layer); err != nil {
		return nil, fmt.Errorf("browser: decode dataLayer: %w", err)
	}
	return layer, nil
}

// html serialises the complete DOM as outer HTML.
func (t *tab) html(ctx context.Context) ([]byte, error) {
	res, err := t.page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("browser: get DOM: %w", err)
	}
	return []byte(res.Value.Str()), nil
}

// settle gives late tags a moment to fire before the page is read.
func (t *tab) settle(ctx context.Context) {
	select {
	case <-time.After(t.cfg.IdleWindow):
	case <-ctx.Done():
	}
}

func (t *tab) close() error {
	t.log.stop()
	return t.page.Close()
}
