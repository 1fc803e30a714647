package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/tagqa/tagcheck/internal/tracking"
)

// Tag Manager preview console controls.
const (
	selIncludeDebugParam = "#include-debug-param"
	selDomainStart       = "#domain-start-button"
)

// MonitorSession is a Tag Manager preview session on a browser it owns
// exclusively. Close is idempotent.
type MonitorSession struct {
	target   string
	endpoint tracking.Endpoint
	mgr      *Manager     // dedicated local browser, nil when remote
	incog    *rod.Browser // isolated context on a remote browser
	tab      *tab
	cfg      *Config

	once     sync.Once
	closeErr error
}

// OpenSession starts a preview session for gtmURL: it opens the preview
// console, unticks the debug parameter, starts preview mode and waits for
// the site tab to load. Locally each session launches its own Chrome; on a
// remote Chrome it gets an incognito context.
func (c *Collector) OpenSession(ctx context.Context, gtmURL string) (*MonitorSession, error) {
	target, err := tracking.PreviewTarget(gtmURL)
	if err != nil {
		return nil, collectionErr("session", gtmURL, err)
	}

	s := &MonitorSession{target: target, endpoint: c.cfg.Endpoint, cfg: &c.cfg}
	b, err := s.acquire(ctx, c)
	if err != nil {
		s.Close()
		return nil, collectionErr("session", gtmURL, err)
	}
	if err := s.startPreview(ctx, b, gtmURL); err != nil {
		s.Close()
		return nil, collectionErr("session", gtmURL, err)
	}
	c.cfg.Logger.Info("browser: preview session open", "target", target)
	return s, nil
}

func (s *MonitorSession) acquire(ctx context.Context, c *Collector) (*rod.Browser, error) {
	if c.cfg.RemoteURL != "" {
		shared, err := c.shared.Start(ctx)
		if err != nil {
			return nil, err
		}
		s.incog, err = shared.Incognito()
		return s.incog, err
	}
	n := c.sessions.Add(1)
	display := sessionDisplay(c.cfg.XvfbDisplay, n)
	s.mgr = NewManager("", *c.cfg.PreviewHeadful, display, c.cfg.Logger)
	return s.mgr.Start(ctx)
}

func (s *MonitorSession) startPreview(ctx context.Context, b *rod.Browser, gtmURL string) error {
	console, err := openTab(b, s.cfg)
	if err != nil {
		return err
	}
	if err := console.navigate(ctx, gtmURL); err != nil {
		console.close()
		return err
	}

	cp := console.page.Context(ctx)
	if el, err := cp.Timeout(s.cfg.StepTimeout).Element(selIncludeDebugParam); err == nil {
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			s.cfg.Logger.Warn("browser: untick debug param failed", "error", err)
		}
	}
	start, err := cp.Timeout(s.cfg.StepTimeout).Element(selDomainStart)
	if err != nil {
		console.close()
		return fmt.Errorf("preview start button: %w", err)
	}
	if err := start.Click(proto.InputMouseButtonLeft, 1); err != nil {
		console.close()
		return fmt.Errorf("start preview: %w", err)
	}

	page, err := waitForTarget(ctx, b, s.target, s.cfg.NavigateTimeout)
	if err != nil {
		return err
	}
	rl, err := hijack(page, s.cfg.ResourceBlocking)
	if err != nil {
		return fmt.Errorf("hijack: %w", err)
	}
	s.tab = &tab{page: page, log: rl, cfg: s.cfg}
	return nil
}

// waitForTarget polls the browser's pages until one shows target.
func waitForTarget(ctx context.Context, b *rod.Browser, target string, timeout time.Duration) (*rod.Page, error) {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()
	for {
		pages, err := b.Pages()
		if err == nil {
			for _, p := range pages {
				info, err := p.Info()
				if err == nil && sameTarget(info.URL, target) {
					return p, nil
				}
			}
		}
		select {
		case <-tick.C:
		case <-wctx.Done():
			return nil, fmt.Errorf("wait for %s: %w", target, wctx.Err())
		}
	}
}

// sameTarget compares a tab URL with the preview target, ignoring a trailing
// slash and the gtm_debug parameter the preview mode appends.
func sameTarget(got, want string) bool {
	norm := func(u string) string {
		if i := strings.Index(u, "gtm_debug="); i > 0 {
			u = strings.TrimRight(u[:i], "?&")
		}
		return strings.TrimSuffix(u, "/")
	}
	return norm(got) == norm(want)
}

// Target returns the site URL the session observes.
func (s *MonitorSession) Target() string { return s.target }

// CaptureTrackingIDs reloads the site tab while recording its requests and
// returns the tracking ids carried by matching hits.
func (s *MonitorSession) CaptureTrackingIDs(ctx context.Context) ([]string, error) {
	if s.tab == nil {
		return nil, collectionErr("capture", s.target, fmt.Errorf("session closed"))
	}
	s.tab.log.reset()
	if err := s.tab.reload(ctx); err != nil {
		return nil, collectionErr("capture", s.target, err)
	}
	return s.endpoint.IDs(s.tab.log.reset()), nil
}

// Close releases the session's browser. Safe to call more than once.
func (s *MonitorSession) Close() error {
	s.once.Do(func() {
		if s.tab != nil {
			s.tab.log.stop()
			s.tab = nil
		}
		if s.incog != nil {
			s.closeErr = s.incog.Close()
		}
		if s.mgr != nil {
			if err := s.mgr.Close(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
	})
	return s.closeErr
}
