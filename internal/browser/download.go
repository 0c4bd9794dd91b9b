package browser

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"

	"github.com/dgnsrekt/pendsync/internal/flow"
)

// ArmDownload subscribes to download events. It must be called before the
// action that starts the download.
func (s *Session) ArmDownload(ctx context.Context) (flow.DownloadListener, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, ch := s.subscribe()
	slog.Debug("download listener armed", "subscriber", id)
	return &downloadListener{
		s:      s,
		id:     id,
		events: ch,
		names:  make(map[string]string),
		done:   make(map[string]bool),
	}, nil
}

type downloadListener struct {
	s      *Session
	id     int
	events <-chan any

	mu    sync.Mutex
	names map[string]string
	done  map[string]bool
	once  sync.Once
}

// Wait returns the first download that completes or is canceled.
func (l *downloadListener) Wait(ctx context.Context) (flow.Transfer, error) {
	for {
		select {
		case <-ctx.Done():
			return flow.Transfer{}, ctx.Err()
		case ev, ok := <-l.events:
			if !ok {
				return flow.Transfer{}, errors.New("browser session closed")
			}
			if tr, finished := l.handle(ev); finished {
				return tr, nil
			}
		}
	}
}

func (l *downloadListener) handle(ev any) (flow.Transfer, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch e := ev.(type) {
	case *browser.EventDownloadWillBegin:
		l.names[e.GUID] = e.SuggestedFilename
		slog.Info("download started", "guid", e.GUID, "suggested_name", e.SuggestedFilename, "url", e.URL)
	case *browser.EventDownloadProgress:
		name, known := l.names[e.GUID]
		if !known {
			l.names[e.GUID] = ""
		}
		path := filepath.Join(l.s.opts.DownloadDir, e.GUID)
		switch e.State {
		case browser.DownloadProgressStateCompleted:
			l.done[e.GUID] = true
			if name == "" {
				name = e.GUID
			}
			return flow.Transfer{SuggestedName: name, Path: path, State: flow.TransferCompleted}, true
		case browser.DownloadProgressStateCanceled:
			l.done[e.GUID] = true
			return flow.Transfer{SuggestedName: name, Path: path, State: flow.TransferCanceled}, true
		}
	}
	return flow.Transfer{}, false
}

// Release stops listening, cancels downloads still in progress and removes
// files the browser wrote for them.
func (l *downloadListener) Release() {
	l.once.Do(func() {
		l.s.unsubscribe(l.id)

		l.mu.Lock()
		defer l.mu.Unlock()
		for guid := range l.names {
			if !l.done[guid] {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				if err := l.s.run(ctx, 2*time.Second, browser.CancelDownload(guid)); err != nil {
					slog.Debug("cancel download failed", "guid", guid, "error", err)
				}
				cancel()
			}
			path := filepath.Join(l.s.opts.DownloadDir, guid)
			if err := os.Remove(path); err == nil {
				slog.Debug("removed unclaimed download", "path", path)
			}
		}
	})
}
