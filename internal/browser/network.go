package browser

import (
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
)

const defaultStaleRequestAge = 15 * time.Second

// requestTracker counts in-flight requests for network-idle detection.
// Requests older than staleAfter are treated as long-polls and ignored.
type requestTracker struct {
	mu         sync.Mutex
	pending    map[network.RequestID]time.Time
	last       time.Time
	staleAfter time.Duration
	now        func() time.Time
}

func newRequestTracker(staleAfter time.Duration) *requestTracker {
	if staleAfter <= 0 {
		staleAfter = defaultStaleRequestAge
	}
	return &requestTracker{
		pending:    make(map[network.RequestID]time.Time),
		last:       time.Now(),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

func (t *requestTracker) onRequestWillBeSent(ev *network.EventRequestWillBeSent) {
	if ev.Type == network.ResourceTypeWebSocket || ev.Type == network.ResourceTypeEventSource {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.pending[ev.RequestID] = now
	t.last = now
}

func (t *requestTracker) onRequestDone(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[id]; !ok {
		return
	}
	delete(t.pending, id)
	t.last = t.now()
}

// InFlight drops stale entries and returns the remaining count.
func (t *requestTracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	threshold := t.now().Add(-t.staleAfter)
	for id, started := range t.pending {
		if started.Before(threshold) {
			delete(t.pending, id)
		}
	}
	return len(t.pending)
}

func (t *requestTracker) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// reset forgets everything, used after a top-level navigation.
func (t *requestTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = make(map[network.RequestID]time.Time)
	t.last = t.now()
}
