// Package tracking extracts tracking identifiers from the request URLs a
// page emits: consent-state values sent to the analytics collect endpoint,
// and the tag-manager containers the page loads.
package tracking

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// DefaultPattern matches GA4 and Universal Analytics collect hits.
var DefaultPattern = regexp.MustCompile(`google-analytics\.com/(g/)?collect|/g/collect`)

// DefaultParam is the GA4 consent-state query parameter.
const DefaultParam = "gcs"

// ErrNoPreviewTarget is returned when a preview link carries no url= parameter.
var ErrNoPreviewTarget = errors.New("tracking: preview link has no url parameter")

// Endpoint selects which requests carry the observed tracking value and the
// query parameter holding it.
type Endpoint struct {
	Pattern *regexp.Regexp
	Param   string
}

// Default returns the GA4 collect endpoint with the gcs parameter.
func Default() Endpoint {
	return Endpoint{Pattern: DefaultPattern, Param: DefaultParam}
}

// NewEndpoint compiles pattern. Empty arguments fall back to the defaults.
func NewEndpoint(pattern, param string) (Endpoint, error) {
	e := Default()
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return Endpoint{}, fmt.Errorf("tracking: compile pattern: %w", err)
		}
		e.Pattern = re
	}
	if param != "" {
		e.Param = param
	}
	return e, nil
}

// Matches reports whether a request URL targets the endpoint.
func (e Endpoint) Matches(rawURL string) bool {
	p := e.Pattern
	if p == nil {
		p = DefaultPattern
	}
	return p.MatchString(rawURL)
}

// IDs returns the sorted, deduplicated values of the endpoint parameter
// found in matching request URLs. Unparseable URLs and hits without the
// parameter are skipped.
func (e Endpoint) IDs(urls []string) []string {
	param := e.Param
	if param == "" {
		param = DefaultParam
	}
	seen := make(map[string]struct{})
	for _, raw := range urls {
		if !e.Matches(raw) {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		for _, v := range u.Query()[param] {
			if v != "" {
				seen[v] = struct{}{}
			}
		}
	}
	return sortedKeys(seen)
}

var containerIDRe = regexp.MustCompile(`^(GTM|G)-[A-Z0-9]+$`)

// ContainerIDs returns the tag-manager and gtag ids loaded by a page, read
// from googletagmanager.com/gtm.js?id= and /gtag/js?id= requests.
func ContainerIDs(urls []string) []string {
	seen := make(map[string]struct{})
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || !strings.HasSuffix(u.Hostname(), "googletagmanager.com") {
			continue
		}
		if u.Path != "/gtm.js" && u.Path != "/gtag/js" {
			continue
		}
		id := u.Query().Get("id")
		if containerIDRe.MatchString(id) {
			seen[id] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// PreviewTarget returns the site URL embedded as url= in a Tag Manager
// preview link. The parameter may sit in the query or in the fragment.
func PreviewTarget(gtmURL string) (string, error) {
	for _, part := range strings.FieldsFunc(gtmURL, func(r rune) bool {
		return r == '&' || r == '?' || r == '#'
	}) {
		v, ok := strings.CutPrefix(part, "url=")
		if !ok || v == "" {
			continue
		}
		target, err := url.QueryUnescape(v)
		if err != nil {
			return "", fmt.Errorf("tracking: preview target: %w", err)
		}
		return target, nil
	}
	return "", ErrNoPreviewTarget
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
