package tracking

import (
	"errors"
	"testing"
)

var pageRequests = []string{
	"https://www.example.com/",
	"https://www.googletagmanager.com/gtm.js?id=GTM-ABC123",
	"https://www.googletagmanager.com/gtag/js?id=G-XYZ9&l=dataLayer",
	"https://region1.google-analytics.com/g/collect?v=2&tid=G-XYZ9&gcs=G111&en=page_view",
	"https://region1.google-analytics.com/g/collect?v=2&tid=G-XYZ9&gcs=G100&en=scroll",
	"https://region1.google-analytics.com/g/collect?v=2&tid=G-XYZ9&gcs=G111&en=click",
	"https://www.google-analytics.com/collect?v=1&t=pageview",
	"https://cdn.example.com/app.js?gcs=G999",
	"://broken",
}

func TestEndpointIDs(t *testing.T) {
	got := Default().IDs(pageRequests)
	want := []string{"G100", "G111"}
	if len(got) != len(want) {
		t.Fatalf("ids: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ids[%d]: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEndpointIDs_NoHits(t *testing.T) {
	if got := Default().IDs([]string{"https://www.example.com/"}); len(got) != 0 {
		t.Errorf("ids: got %v, want empty", got)
	}
}

func TestNewEndpoint(t *testing.T) {
	e, err := NewEndpoint(`/collect$|/collect\?`, "tid")
	if err != nil {
		t.Fatalf("new endpoint: %v", err)
	}
	got := e.IDs(pageRequests)
	if len(got) != 1 || got[0] != "G-XYZ9" {
		t.Errorf("ids: got %v, want [G-XYZ9]", got)
	}

	if _, err := NewEndpoint("(", ""); err == nil {
		t.Error("expected compile error")
	}

	d, err := NewEndpoint("", "")
	if err != nil || d.Param != DefaultParam || d.Pattern != DefaultPattern {
		t.Errorf("defaults: got %+v, %v", d, err)
	}
}

func TestContainerIDs(t *testing.T) {
	got := ContainerIDs(pageRequests)
	if len(got) != 2 || got[0] != "G-XYZ9" || got[1] != "GTM-ABC123" {
		t.Errorf("containers: got %v", got)
	}
}

func TestPreviewTarget(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"query", "https://tagmanager.google.com/preview?id=GTM-ABC123&url=https://www.example.com/shop", "https://www.example.com/shop"},
		{"fragment", "https://tagassistant.google.com/#/?source=TAG_MANAGER&id=GTM-ABC123&url=https%3A%2F%2Fwww.example.com%2F", "https://www.example.com/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PreviewTarget(tt.in)
			if err != nil {
				t.Fatalf("preview target: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := PreviewTarget("https://tagassistant.google.com/#/?id=GTM-ABC123"); !errors.Is(err, ErrNoPreviewTarget) {
		t.Errorf("missing url: got %v", err)
	}
}
