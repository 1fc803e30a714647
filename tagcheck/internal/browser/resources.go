// CLAUDE:SUMMARY Hijack router that records every request URL of a tab and blocks configured resource types.
package browser

import (
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// requestLog records the URL of every request a page issues. Blocked
// requests are recorded before they fail.
type requestLog struct {
	router *rod.HijackRouter

	mu   sync.Mutex
	urls []string
}

// hijack installs a requestLog on page. The router runs until stop.
func hijack(page *rod.Page, blocked []string) (*requestLog, error) {
	blockSet := make(map[string]bool, len(blocked))
	for _, t := range blocked {
		blockSet[strings.ToLower(t)] = true
	}

	rl := &requestLog{router: page.HijackRequests()}
	err := rl.router.Add("*", "", func(h *rod.Hijack) {
		rl.mu.Lock()
		rl.urls = append(rl.urls, h.Request.URL().String())
		rl.mu.Unlock()

		if shouldBlock(blockSet, string(h.Request.Type())) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if err != nil {
		return nil, err
	}
	go rl.router.Run()
	return rl, nil
}

// reset clears the log and returns what it held.
func (rl *requestLog) reset() []string {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	out := rl.urls
	rl.urls = nil
	return out
}

// snapshot returns a copy of the recorded URLs.
func (rl *requestLog) snapshot() []string {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return append([]string(nil), rl.urls...)
}

func (rl *requestLog) stop() {
	_ = rl.router.Stop()
}

func shouldBlock(blockSet map[string]bool, resType string) bool {
	if len(blockSet) == 0 {
		return false
	}
	lower := strings.ToLower(resType)
	switch lower {
	case "image":
		return blockSet["images"]
	case "font":
		return blockSet["fonts"]
	case "media":
		return blockSet["media"]
	case "stylesheet":
		return blockSet["stylesheets"]
	}
	return blockSet[lower]
}
