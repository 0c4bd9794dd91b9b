package browser

import (
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
)

func TestRequestTrackerCountsAndCompletes(t *testing.T) {
	tr := newRequestTracker(time.Minute)
	tr.onRequestWillBeSent(&network.EventRequestWillBeSent{RequestID: "1", Type: network.ResourceTypeXHR})
	tr.onRequestWillBeSent(&network.EventRequestWillBeSent{RequestID: "2", Type: network.ResourceTypeFetch})
	tr.onRequestWillBeSent(&network.EventRequestWillBeSent{RequestID: "ws", Type: network.ResourceTypeWebSocket})

	if got := tr.InFlight(); got != 2 {
		t.Fatalf("InFlight() = %d; want 2", got)
	}
	tr.onRequestDone("1")
	tr.onRequestDone("unknown")
	if got := tr.InFlight(); got != 1 {
		t.Fatalf("InFlight() = %d; want 1", got)
	}
	tr.onRequestDone("2")
	if got := tr.InFlight(); got != 0 {
		t.Fatalf("InFlight() = %d; want 0", got)
	}
}

func TestRequestTrackerIgnoresStaleRequests(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	tr := newRequestTracker(10 * time.Second)
	tr.now = func() time.Time { return now }

	tr.onRequestWillBeSent(&network.EventRequestWillBeSent{RequestID: "poll", Type: network.ResourceTypeXHR})
	if got := tr.InFlight(); got != 1 {
		t.Fatalf("InFlight() = %d; want 1", got)
	}
	now = now.Add(11 * time.Second)
	if got := tr.InFlight(); got != 0 {
		t.Fatalf("InFlight() after stale cutoff = %d; want 0", got)
	}
}

func TestRequestTrackerLastActivity(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	tr := newRequestTracker(time.Minute)
	tr.now = func() time.Time { return now }

	tr.onRequestWillBeSent(&network.EventRequestWillBeSent{RequestID: "a", Type: network.ResourceTypeDocument})
	now = now.Add(2 * time.Second)
	tr.onRequestDone("a")
	if got := tr.LastActivity(); !got.Equal(now) {
		t.Fatalf("LastActivity() = %v; want %v", got, now)
	}
}
