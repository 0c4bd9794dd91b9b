// Package browser implements the page, network and download contracts of
// the export flow on a single chromedp tab.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/pendsync/internal/flow"
)

// Options configures a Session.
type Options struct {
	Headless  bool
	ExecPath  string
	RemoteURL string
	NoSandbox bool
	Width     int
	Height    int
	// DownloadDir receives in-progress downloads, named by GUID.
	DownloadDir string

	LaunchTimeout     time.Duration
	NavigationTimeout time.Duration
	EvalTimeout       time.Duration
	StaleRequestAge   time.Duration
}

func (o *Options) applyDefaults() {
	if o.Width <= 0 || o.Height <= 0 {
		o.Width, o.Height = 1366, 768
	}
	if o.LaunchTimeout <= 0 {
		o.LaunchTimeout = 30 * time.Second
	}
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = 30 * time.Second
	}
	if o.EvalTimeout <= 0 {
		o.EvalTimeout = 5 * time.Second
	}
}

// Session owns one browser tab for the duration of a run.
type Session struct {
	opts        Options
	ctx         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	net         *requestTracker

	subMu   sync.Mutex
	subs    map[int]chan any
	nextSub int

	closeOnce sync.Once
}

// Open starts or attaches to a browser and prepares one tab: network
// tracking, viewport and download routing. The whole setup is bounded by
// opts.LaunchTimeout and ctx.
func Open(ctx context.Context, opts Options) (*Session, error) {
	opts.applyDefaults()
	if opts.DownloadDir == "" {
		return nil, flow.NewError(flow.CodeValidation, "download dir is required", nil)
	}
	// Chrome ignores relative download paths.
	if abs, err := filepath.Abs(opts.DownloadDir); err == nil {
		opts.DownloadDir = abs
	}
	if err := os.MkdirAll(opts.DownloadDir, 0o755); err != nil {
		return nil, flow.NewError(flow.CodeSessionUnavailable, "create download dir", err)
	}

	allocCtx, allocCancel, err := newAllocator(ctx, opts)
	if err != nil {
		return nil, flow.NewError(flow.CodeSessionUnavailable, "browser allocator", err)
	}

	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) { slog.Debug(fmt.Sprintf(format, args...), "source", "chromedp") }),
		chromedp.WithErrorf(func(format string, args ...any) {
			slog.Debug(fmt.Sprintf(format, args...), "source", "chromedp", "level", "error")
		}),
	)

	s := &Session{
		opts:        opts,
		ctx:         tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		net:         newRequestTracker(opts.StaleRequestAge),
		subs:        make(map[int]chan any),
	}
	chromedp.ListenTarget(tabCtx, s.onEvent)

	setup := chromedp.Tasks{
		network.Enable(),
		page.Enable(),
		emulation.SetDeviceMetricsOverride(int64(opts.Width), int64(opts.Height), 1, false),
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(opts.DownloadDir).
			WithEventsEnabled(true),
	}

	// The first Run allocates the browser and must use the tab context
	// itself, so the bound is applied from outside.
	errCh := make(chan error, 1)
	go func() { errCh <- chromedp.Run(tabCtx, setup) }()

	launchCtx, cancel := context.WithTimeout(ctx, opts.LaunchTimeout)
	defer cancel()
	select {
	case err := <-errCh:
		if err != nil {
			s.Close()
			return nil, flow.NewError(flow.CodeSessionUnavailable, "initialise browser tab", err)
		}
	case <-launchCtx.Done():
		s.Close()
		return nil, flow.NewError(flow.CodeSessionUnavailable, "browser did not start within "+opts.LaunchTimeout.String(), launchCtx.Err())
	}

	slog.Info("browser session ready", "viewport", fmt.Sprintf("%dx%d", opts.Width, opts.Height), "download_dir", opts.DownloadDir)
	return s, nil
}

// Close releases the tab and, for launched browsers, the process. Safe to
// call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if err := chromedp.Cancel(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Debug("browser cancel failed", "error", err)
		}
		s.tabCancel()
		s.allocCancel()

		s.subMu.Lock()
		for id, ch := range s.subs {
			close(ch)
			delete(s.subs, id)
		}
		s.subMu.Unlock()
		slog.Info("browser session closed")
	})
	return nil
}

// Network exposes in-flight request accounting.
func (s *Session) Network() flow.NetworkMonitor { return s.net }

func (s *Session) onEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		s.net.onRequestWillBeSent(e)
	case *network.EventLoadingFinished:
		s.net.onRequestDone(e.RequestID)
	case *network.EventLoadingFailed:
		s.net.onRequestDone(e.RequestID)
	case *page.EventFrameNavigated:
		if e.Frame.ParentID == "" {
			slog.Debug("tab navigated", "url", e.Frame.URL)
		}
	case *page.EventNavigatedWithinDocument:
		slog.Debug("tab navigated (SPA)", "url", e.URL)
	case *browser.EventDownloadWillBegin, *browser.EventDownloadProgress:
		s.publish(ev)
	}
}

// publish fans an event out to download subscribers without blocking the
// chromedp event loop.
func (s *Session) publish(ev any) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("download event dropped, subscriber buffer full", "subscriber", id)
		}
	}
}

func (s *Session) subscribe() (int, <-chan any) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan any, 64)
	s.subs[id] = ch
	return id, ch
}

func (s *Session) unsubscribe(id int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}
