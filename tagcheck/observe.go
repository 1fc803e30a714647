package tagcheck

import (
	"context"
	"fmt"

	"github.com/hazyhaar/tagqa/specmatch"
	"github.com/hazyhaar/tagqa/tagcheck/internal/examine"
	"github.com/hazyhaar/tagqa/tagcheck/internal/recording"
)

// PageView is what a page exposed to the tracking layer.
type PageView struct {
	URL            string              `json:"url,omitempty"`
	Recording      string              `json:"recording,omitempty"`
	DataLayer      []any               `json:"data_layer"`
	DataAttributes []map[string]string `json:"data_attributes"`
}

// Containers lists the Tag Manager and gtag ids a page loads.
func (s *Service) Containers(ctx context.Context, pageURL string) ([]string, error) {
	if pageURL == "" {
		return nil, invalid("url is required")
	}
	ids, err := s.browser.Containers(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// ObserveDataLayer loads a page and returns its data layer and the data-*
// attributes of its DOM.
func (s *Service) ObserveDataLayer(ctx context.Context, pageURL string) (*PageView, error) {
	if pageURL == "" {
		return nil, invalid("url is required")
	}
	obs, err := s.browser.ObserveURL(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return pageView(obs, &PageView{URL: pageURL})
}

// Recordings lists the recordings of the library.
func (s *Service) Recordings() []string {
	if s.library == nil {
		return []string{}
	}
	return s.library.Names()
}

// ReplayRecording replays a named recording from the library and returns
// what the page exposed once the last step ran.
func (s *Service) ReplayRecording(ctx context.Context, name string) (*PageView, error) {
	if s.library == nil {
		return nil, fmt.Errorf("%w: %s", recording.ErrNotFound, name)
	}
	script, err := s.library.Get(name)
	if err != nil {
		return nil, err
	}
	obs, err := s.browser.Replay(ctx, script)
	if err != nil {
		return nil, err
	}
	return pageView(obs, &PageView{URL: script.StartURL(), Recording: name})
}

func pageView(obs examine.Observation, v *PageView) (*PageView, error) {
	attrs, err := specmatch.ExtractDataAttributes(obs.HTML)
	if err != nil {
		return nil, fmt.Errorf("tagcheck: extract attributes: %w", err)
	}
	v.DataLayer = obs.DataLayer
	if v.DataLayer == nil {
		v.DataLayer = []any{}
	}
	v.DataAttributes = attrs
	if v.DataAttributes == nil {
		v.DataAttributes = []map[string]string{}
	}
	return v, nil
}
