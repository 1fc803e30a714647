package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/input"
)

func TestShouldBlock(t *testing.T) {
	set := map[string]bool{"images": true, "fonts": true}
	tests := []struct {
		resType string
		want    bool
	}{
		{"Image", true},
		{"Font", true},
		{"Stylesheet", false},
		{"Script", false},
		{"Ping", false},
	}
	for _, tt := range tests {
		if got := shouldBlock(set, tt.resType); got != tt.want {
			t.Errorf("shouldBlock(%q): got %v, want %v", tt.resType, got, tt.want)
		}
	}
	if shouldBlock(nil, "Image") {
		t.Error("empty block set must not block")
	}
}

func TestDecodeDataLayer(t *testing.T) {
	layer, err := decodeDataLayer(`[{"gtm.start":1700000000000,"event":"gtm.js"},{"0":"config","1":"G-XYZ"}]`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(layer) != 2 {
		t.Fatalf("entries: got %d, want 2", len(layer))
	}
	if ev := layer[0].(map[string]any)["event"]; ev != "gtm.js" {
		t.Errorf("event: got %v", ev)
	}

	empty, err := decodeDataLayer("")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("empty: got %v, %v", empty, err)
	}
	if _, err := decodeDataLayer(`{"not":"an array"}`); err == nil {
		t.Error("expected error for non-array layer")
	}
}

func TestSameTarget(t *testing.T) {
	tests := []struct {
		got, want string
		ok        bool
	}{
		{"https://www.example.com/", "https://www.example.com", true},
		{"https://www.example.com/?gtm_debug=1700000000000", "https://www.example.com/", true},
		{"https://www.example.com/shop?a=1&gtm_debug=x", "https://www.example.com/shop?a=1", true},
		{"https://www.example.com/shop", "https://www.example.com/", false},
		{"https://tagassistant.google.com/", "https://www.example.com/", false},
	}
	for _, tt := range tests {
		if got := sameTarget(tt.got, tt.want); got != tt.ok {
			t.Errorf("sameTarget(%q, %q): got %v, want %v", tt.got, tt.want, got, tt.ok)
		}
	}
}

func TestSessionDisplay(t *testing.T) {
	if got := sessionDisplay(":99", 1); got != ":100" {
		t.Errorf("got %q, want :100", got)
	}
	if got := sessionDisplay("bogus", 2); got != ":101" {
		t.Errorf("got %q, want :101", got)
	}
	if got := sessionDisplay(":99", 1); got == ":99" {
		t.Error("first session must not share the base display")
	}
}

func TestXPathLiteral(t *testing.T) {
	tests := map[string]string{
		`Add to cart`:  `"Add to cart"`,
		`Say "hi"`:     `'Say "hi"'`,
		`It's "great"`: `concat("It's ", '"', "great", '"', "")`,
	}
	for in, want := range tests {
		if got := xpathLiteral(in); got != want {
			t.Errorf("xpathLiteral(%q): got %s, want %s", in, got, want)
		}
	}
	if got := textXPath(" Join "); got != `//*[normalize-space(text())="Join"]` {
		t.Errorf("textXPath: got %s", got)
	}
}

func TestKeyFor(t *testing.T) {
	if k, err := keyFor("Enter"); err != nil || k != input.Enter {
		t.Errorf("Enter: got %v, %v", k, err)
	}
	if k, err := keyFor("a"); err != nil || k != input.Key('a') {
		t.Errorf("a: got %v, %v", k, err)
	}
	if _, err := keyFor("F13"); err == nil {
		t.Error("expected error for unsupported key")
	}
}

func TestStepTimeout(t *testing.T) {
	if got := stepTimeout(1500, time.Second); got != 1500*time.Millisecond {
		t.Errorf("got %v", got)
	}
	if got := stepTimeout(0, time.Second); got != time.Second {
		t.Errorf("got %v", got)
	}
}

func TestCollectionError(t *testing.T) {
	err := collectionErr("observe", "https://a", context.DeadlineExceeded)
	if !errors.Is(err, ErrCollection) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("errors.Is chain broken: %v", err)
	}
	var ce *CollectionError
	if !errors.As(err, &ce) || ce.Op != "observe" {
		t.Errorf("errors.As: got %+v", ce)
	}
	if collectionErr("observe", "", nil) != nil {
		t.Error("nil cause must give nil error")
	}
}

func TestManagerClosed(t *testing.T) {
	m := NewManager("", false, "", nil)
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := m.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("start after close: got %v", err)
	}
}

func TestOpenSession_BadPreviewLink(t *testing.T) {
	c := NewCollector(Config{})
	defer c.Close()
	_, err := c.OpenSession(context.Background(), "https://tagassistant.google.com/#/?id=GTM-1")
	if !errors.Is(err, ErrCollection) {
		t.Errorf("got %v, want ErrCollection", err)
	}
}
