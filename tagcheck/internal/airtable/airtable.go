// CLAUDE:SUMMARY Airtable REST client: paginated record fetch with retry and circuit breaker, batched PATCH, field metadata.
// Package airtable is the record store client: it reads spec rows from an
// Airtable view and writes examination verdicts back.
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/hazyhaar/tagqa/connectivity"
)

// MaxBatch is the number of records one update request may carry.
const MaxBatch = 10

// ErrBatchTooLarge is returned by UpdateRecords for more than MaxBatch records.
var ErrBatchTooLarge = fmt.Errorf("airtable: more than %d records in one update", MaxBatch)

// Config configures a Client.
type Config struct {
	BaseURL     string        // Default: https://api.airtable.com/v0
	Token       string        // personal access token
	MinInterval time.Duration // between two requests. Default: 200ms.
	Timeout     time.Duration // per request. Default: 30s.
	MaxRetries  int           // read retries. Default: 3.
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.airtable.com/v0"
	}
	if c.MinInterval <= 0 {
		c.MinInterval = 200 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client talks to the Airtable REST API.
type Client struct {
	cfg     Config
	breaker *connectivity.CircuitBreaker

	mu   sync.Mutex
	last time.Time
}

// New creates a Client.
func New(cfg Config) *Client {
	cfg.defaults()
	logger := cfg.Logger
	breaker := connectivity.NewCircuitBreaker(connectivity.BreakerConfig{
		OnStateChange: func(from, to connectivity.BreakerState) {
			logger.Warn("airtable: circuit breaker", "from", from.String(), "to", to.String())
		},
	})
	return &Client{cfg: cfg, breaker: breaker}
}

// StoreError is a failed store call. Status is 0 for transport failures.
type StoreError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("airtable: %s: status %d: %s", e.Op, e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("airtable: %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("airtable: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// RateLimited reports a 429 response.
func (e *StoreError) RateLimited() bool { return e.Status == http.StatusTooManyRequests }

// Temporary reports failures worth retrying.
func (e *StoreError) Temporary() bool {
	return e.Status == 0 || e.RateLimited() || e.Status >= 500
}

// RetryAfter is the wait Airtable asks for after a 429.
func (e *StoreError) RetryAfter() time.Duration {
	if e.RateLimited() {
		return 30 * time.Second
	}
	return 0
}

// throttle enforces MinInterval between requests.
func (c *Client) throttle(ctx context.Context) error {
	c.mu.Lock()
	next := c.last.Add(c.cfg.MinInterval)
	now := time.Now()
	if next.Before(now) {
		next = now
	}
	c.last = next
	c.mu.Unlock()

	wait := time.Until(next)
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// do sends one request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	if err := c.throttle(ctx); err != nil {
		return err
	}

	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return connectivity.Permanent(fmt.Errorf("airtable: %s: marshal: %w", op, err))
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return connectivity.Permanent(fmt.Errorf("airtable: %s: new request: %w", op, err))
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return &StoreError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return &StoreError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StoreError{Op: op, Status: resp.StatusCode, Message: apiMessage(data)}
		if !se.Temporary() {
			return connectivity.Permanent(se)
		}
		return se
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return connectivity.Permanent(&StoreError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("json decode: %w", err)})
	}
	return nil
}

// apiMessage extracts the message of an Airtable error body, which is either
// {"error": {"type": ..., "message": ...}} or {"error": "TYPE"}.
func apiMessage(data []byte) string {
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(data, &body) != nil || len(body.Error) == 0 {
		return ""
	}
	var obj struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body.Error, &obj) == nil {
		if obj.Message != "" {
			return obj.Message
		}
		return obj.Type
	}
	var s string
	if json.Unmarshal(body.Error, &s) == nil {
		return s
	}
	return ""
}

// read runs a retried, breaker-guarded read.
func (c *Client) read(ctx context.Context, op, path string, query url.Values, out any) error {
	policy := connectivity.RetryPolicy{
		MaxRetries: c.cfg.MaxRetries,
		Retryable: func(err error) bool {
			var se *StoreError
			return errors.As(err, &se) && se.Temporary()
		},
		Logger: c.cfg.Logger,
	}
	return connectivity.Retry(ctx, policy, func(ctx context.Context) error {
		return c.breaker.Do(ctx, "airtable", func(ctx context.Context) error {
			return c.do(ctx, op, http.MethodGet, path, query, nil, out)
		})
	})
}

func tablePath(baseID, tableID string) string {
	return "/" + url.PathEscape(baseID) + "/" + url.PathEscape(tableID)
}

func itoa(n int) string { return strconv.Itoa(n) }
