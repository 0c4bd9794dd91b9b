package flow

import (
	"context"
	"time"
)

// Point is a viewport or element-relative coordinate in CSS pixels.
type Point struct {
	X float64
	Y float64
}

// Page is the subset of a browser page the flow components drive.
// Implementations must bound every call by ctx.
type Page interface {
	// Viewport returns the layout viewport size.
	Viewport(ctx context.Context) (width, height int, err error)
	// ClickAt dispatches a trusted mouse click at viewport coordinates.
	ClickAt(ctx context.Context, x, y float64) error
	// PressKey dispatches a key down/up pair for a named key such as "Escape".
	PressKey(ctx context.Context, key string) error
	// Count reports how many elements currently match loc, ignoring loc.Nth.
	Count(ctx context.Context, loc Locator) (int, error)
	// IsVisible reports whether the loc.Nth match exists and is rendered.
	IsVisible(ctx context.Context, loc Locator) (bool, error)
	// Activate runs element.click() on the match without waiting for navigation.
	Activate(ctx context.Context, loc Locator) error
	// ForceClick dispatches a trusted mouse click inside the match's bounding
	// box, ignoring overlays. A nil offset clicks the centre.
	ForceClick(ctx context.Context, loc Locator, offset *Point) error
}

// NetworkMonitor exposes in-flight request accounting for settle detection.
type NetworkMonitor interface {
	// InFlight returns requests still pending, ignoring those older than the
	// monitor's staleness cap.
	InFlight() int
	// LastActivity is the time the most recent request started or finished.
	LastActivity() time.Time
}

// DownloadSource arms download listeners on a browser session.
type DownloadSource interface {
	ArmDownload(ctx context.Context) (DownloadListener, error)
}

// DownloadListener observes one download after it has been armed.
type DownloadListener interface {
	// Wait blocks until a transfer completes or is canceled, or ctx ends.
	Wait(ctx context.Context) (Transfer, error)
	// Release stops listening and removes any file the listener did not hand off.
	Release()
}
