// CLAUDE:SUMMARY Launches or connects Chrome through Rod and owns its lifecycle, including the Xvfb display for headful preview sessions.
// Package browser is the go-rod automation layer of tagcheck: it loads pages,
// reads their data layer, replays recordings and drives Tag Manager preview
// sessions.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/hazyhaar/tagqa/tagcheck/internal/tracking"
)

// UserAgent is sent by every tab unless Config.UserAgent overrides it.
const UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// ErrClosed is returned once the manager has been closed.
var ErrClosed = errors.New("browser: manager is closed")

// Config configures the browser layer.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Headful runs the shared browser with a visible window on XvfbDisplay.
	Headful bool

	// PreviewHeadful runs preview sessions headful. Tag Manager preview
	// refuses some headless browsers. Default: true.
	PreviewHeadful *bool

	// XvfbDisplay for headful mode. Default: ":99".
	XvfbDisplay string

	UserAgent string

	// ResourceBlocking lists resource types to block (images, fonts, media, stylesheets).
	// Blocked requests are still recorded.
	ResourceBlocking []string

	// NavigateTimeout bounds one navigation. Default: 30s.
	NavigateTimeout time.Duration

	// IdleWindow is the quiet period after which the network counts as idle. Default: 500ms.
	IdleWindow time.Duration

	// StepTimeout bounds one recording step without its own timeout. Default: 5s.
	StepTimeout time.Duration

	// Endpoint selects the tracking hits read by preview sessions.
	Endpoint tracking.Endpoint

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.PreviewHeadful == nil {
		on := true
		c.PreviewHeadful = &on
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.UserAgent == "" {
		c.UserAgent = UserAgent
	}
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.IdleWindow <= 0 {
		c.IdleWindow = 500 * time.Millisecond
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = 5 * time.Second
	}
	if c.Endpoint.Pattern == nil {
		c.Endpoint = tracking.Default()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns one Chrome process (or one remote connection).
type Manager struct {
	remoteURL string
	headful   bool
	display   string
	logger    *slog.Logger

	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	xvfb    *exec.Cmd
	closed  bool
}

// NewManager creates a Manager. Call Start to launch Chrome.
func NewManager(remoteURL string, headful bool, display string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if display == "" {
		display = ":99"
	}
	return &Manager{remoteURL: remoteURL, headful: headful, display: display, logger: logger}
}

// Start launches Chrome (or connects to the remote instance). Calling Start
// on a started manager returns the existing handle.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if m.browser != nil {
		return m.browser, nil
	}
	b, err := m.launch(ctx)
	if err != nil {
		m.cleanup()
		return nil, err
	}
	m.browser = b
	return b, nil
}

// Browser returns the current Rod browser handle, or nil before Start.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Remote reports whether the manager drives an external Chrome.
func (m *Manager) Remote() bool { return m.remoteURL != "" }

// Close shuts down Chrome and Xvfb. A remote Chrome is left running.
// Close is idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.cleanup()
}

func (m *Manager) launch(ctx context.Context) (*rod.Browser, error) {
	log := m.logger

	var wsURL string
	if m.remoteURL != "" {
		wsURL = m.remoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		if m.headful {
			cmd, err := startXvfb(m.display, log)
			if err != nil {
				return nil, fmt.Errorf("browser: xvfb: %w", err)
			}
			m.xvfb = cmd
		}

		l := launcher.New().Context(ctx)
		if m.headful {
			l = l.Headless(false).Env("DISPLAY=" + m.display)
		} else {
			l = l.Headless(true)
		}
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "headful", m.headful)
	}

	b := rod.New().Context(ctx).ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	// Detach from the start context so the handle outlives it.
	b = b.Context(context.Background())

	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}
	return b, nil
}

func (m *Manager) cleanup() error {
	var err error
	if m.browser != nil && m.remoteURL == "" {
		err = m.browser.Close()
	}
	m.browser = nil
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	if m.xvfb != nil {
		stopXvfb(m.xvfb, m.logger)
		m.xvfb = nil
	}
	return err
}
