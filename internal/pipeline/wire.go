package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/option"

	"github.com/dgnsrekt/pendsync/internal/browser"
	"github.com/dgnsrekt/pendsync/internal/config"
	"github.com/dgnsrekt/pendsync/internal/metrics"
	"github.com/dgnsrekt/pendsync/internal/notify"
	"github.com/dgnsrekt/pendsync/internal/sheets"
	"github.com/dgnsrekt/pendsync/internal/snapshot"
	"github.com/dgnsrekt/pendsync/internal/table"
)

// BrowserSessions opens a chromedp-backed session per run.
func BrowserSessions(cfg *config.Config) SessionFactory {
	incoming, _ := DownloadDirs(cfg)
	return func(ctx context.Context) (Session, error) {
		s, err := browser.Open(ctx, browser.Options{
			Headless:          cfg.Headless,
			ExecPath:          cfg.ExecPath,
			RemoteURL:         cfg.RemoteCDPURL,
			NoSandbox:         cfg.NoSandbox,
			Width:             cfg.ViewportWidth,
			Height:            cfg.ViewportHeight,
			DownloadDir:       incoming,
			NavigationTimeout: cfg.Timeouts.Navigation,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

var _ Session = (*browser.Session)(nil)

// NewPublisher builds the Google Sheets publisher for cfg's destination.
func NewPublisher(ctx context.Context, cfg *config.Config, opts ...option.ClientOption) (*sheets.Publisher, error) {
	dest, err := sheets.ParseDestination(cfg.SheetURL, cfg.SheetName)
	if err != nil {
		return nil, err
	}
	client, err := sheets.NewGoogleClient(ctx, cfg.CredentialsFile, cfg.SheetValueInput, opts...)
	if err != nil {
		return nil, err
	}
	return &sheets.Publisher{
		Client:      client,
		Destination: dest,
		Table:       table.Options{Delimiter: cfg.CSVDelimiter},
	}, nil
}

// Stack is a Runner together with the resources it owns.
type Stack struct {
	Runner    *Runner
	History   *History
	Snapshots *snapshot.Store
	Metrics   *metrics.Collector
}

// Close releases the history ledger.
func (s *Stack) Close() error {
	if s.History == nil {
		return nil
	}
	return s.History.Close()
}

// Assemble wires a Runner from cfg: browser sessions, the sheet publisher,
// snapshots, and the metrics, history and notification sinks. textfile is
// written after each run when non-empty.
func Assemble(ctx context.Context, cfg *config.Config, collector *metrics.Collector, textfile string) (*Stack, error) {
	pub, err := NewPublisher(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pipeline: publisher: %w", err)
	}
	snaps, err := snapshot.NewStore(cfg.SnapshotDir)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	hist, err := OpenHistory(cfg.HistoryDir)
	if err != nil {
		return nil, fmt.Errorf("pipeline: history: %w", err)
	}

	sinks := []Sink{hist}
	if collector != nil {
		sinks = append(sinks, &MetricsSink{Collector: collector, Textfile: textfile})
	}
	if n := notify.New(cfg.NTFYEndpoint, &http.Client{Timeout: 10 * time.Second}); n != nil {
		sinks = append(sinks, &NotifySink{Notifier: n})
	}

	return &Stack{
		Runner: &Runner{
			Config:    cfg,
			Sessions:  BrowserSessions(cfg),
			Publisher: pub,
			Snapshots: snaps,
			Sinks:     sinks,
		},
		History:   hist,
		Snapshots: snaps,
		Metrics:   collector,
	}, nil
}
