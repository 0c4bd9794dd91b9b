package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/pendsync/internal/config"
	"github.com/dgnsrekt/pendsync/internal/flow"
)

const threeRowCSV = "trip_id,station,status\nT1,SP01,pending\nT2,SP02,pending\nT3,SP03,\n"

// fakePortal scripts the portal pages a run walks through. Element counts
// are derived from the current URL and login/overlay/export state.
type fakePortal struct {
	mu  sync.Mutex
	cfg *config.Config

	url         string
	loggedIn    bool
	overlayOpen bool
	exported    bool
	filled      map[string]string
	calls       []string
	closed      bool

	// keyBlocked makes key dispatch fail, leaving the overlay open.
	keyBlocked bool
	// loginStuck keeps the login form after submit.
	loginStuck bool
	// noDownload swallows the Baixar click.
	noDownload bool

	incoming string
	armed    map[*fakeListener]bool
	guid     int
}

func newFakePortal(cfg *config.Config) *fakePortal {
	incoming, _ := DownloadDirs(cfg)
	return &fakePortal{
		cfg:         cfg,
		overlayOpen: true,
		filled:      make(map[string]string),
		incoming:    incoming,
		armed:       make(map[*fakeListener]bool),
	}
}

func (p *fakePortal) factory() SessionFactory {
	return func(context.Context) (Session, error) { return p, nil }
}

func k(l flow.Locator) string { return l.At(0).String() }

func (p *fakePortal) record(format string, args ...any) {
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

func (p *fakePortal) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePortal) count(l flow.Locator) int {
	sel := p.cfg.Selectors
	key := k(l)
	switch {
	case !p.loggedIn:
		if p.url == p.cfg.PortalBaseURL && (key == k(sel.LoginID) || key == k(sel.Password) || key == k(sel.Submit)) {
			return 1
		}
		return 0
	case p.overlayOpen && (key == k(sel.CloseControls[0]) || key == k(sel.Masks[0])):
		return 1
	case p.url == p.cfg.TripURL() && key == k(sel.ExportButton):
		return 2
	case p.url == p.cfg.TaskCenterURL() && key == k(sel.ExportTaskTab[0]):
		return 1
	case p.url == p.cfg.TaskCenterURL() && p.exported && key == k(sel.Download):
		return 1
	}
	return 0
}

func (p *fakePortal) Viewport(context.Context) (int, int, error) { return 1366, 768, nil }

func (p *fakePortal) ClickAt(_ context.Context, x, y float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("click %.0f,%.0f", x, y)
	return nil
}

func (p *fakePortal) PressKey(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("key %s", key)
	if p.keyBlocked {
		return errors.New("key dispatch failed")
	}
	if key == "Escape" {
		p.overlayOpen = false
	}
	return nil
}

func (p *fakePortal) Count(_ context.Context, l flow.Locator) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count(l), nil
}

func (p *fakePortal) IsVisible(_ context.Context, l flow.Locator) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count(l) > l.Nth, nil
}

func (p *fakePortal) Activate(_ context.Context, l flow.Locator) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("activate %s", l)
	if p.count(l) <= l.Nth {
		return errors.New("no element matches")
	}
	sel := p.cfg.Selectors
	switch k(l) {
	case k(sel.Submit):
		if !p.loginStuck && p.filled[k(sel.LoginID)] != "" && p.filled[k(sel.Password)] != "" {
			p.loggedIn = true
		}
	case k(sel.CloseControls[0]):
		p.overlayOpen = false
	case k(sel.ExportButton):
		p.exported = true
	case k(sel.Download):
		if !p.noDownload {
			p.startDownload()
		}
	}
	return nil
}

func (p *fakePortal) startDownload() {
	p.guid++
	guid := fmt.Sprintf("guid-%d", p.guid)
	path := filepath.Join(p.incoming, guid)
	_ = os.MkdirAll(p.incoming, 0o755)
	_ = os.WriteFile(path, []byte(threeRowCSV), 0o644)
	tr := flow.Transfer{SuggestedName: "export.csv", Path: path, State: flow.TransferCompleted}
	for l := range p.armed {
		l.ch <- tr
	}
}

func (p *fakePortal) ForceClick(_ context.Context, l flow.Locator, _ *flow.Point) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("force %s", l)
	if p.count(l) == 0 {
		return errors.New("no element matches")
	}
	p.overlayOpen = false
	return nil
}

func (p *fakePortal) ArmDownload(context.Context) (flow.DownloadListener, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l := &fakeListener{p: p, ch: make(chan flow.Transfer, 4)}
	p.armed[l] = true
	p.record("arm download")
	return l, nil
}

func (p *fakePortal) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("navigate %s", url)
	p.url = url
	return nil
}

func (p *fakePortal) Fill(_ context.Context, l flow.Locator, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.count(l) == 0 {
		return errors.New("no input")
	}
	p.filled[k(l)] = value
	return nil
}

func (p *fakePortal) Network() flow.NetworkMonitor { return idleNetwork{} }

func (p *fakePortal) Screenshot(context.Context) ([]byte, error) { return []byte("\x89PNG"), nil }

func (p *fakePortal) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return "<html><body>" + p.url + "</body></html>", nil
}

func (p *fakePortal) CurrentURL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePortal) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePortal) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeListener struct {
	p  *fakePortal
	ch chan flow.Transfer
}

func (l *fakeListener) Wait(ctx context.Context) (flow.Transfer, error) {
	select {
	case tr := <-l.ch:
		return tr, nil
	case <-ctx.Done():
		return flow.Transfer{}, ctx.Err()
	}
}

func (l *fakeListener) Release() {
	l.p.mu.Lock()
	defer l.p.mu.Unlock()
	delete(l.p.armed, l)
}

type idleNetwork struct{}

func (idleNetwork) InFlight() int           { return 0 }
func (idleNetwork) LastActivity() time.Time { return time.Time{} }

// memorySheet is a spreadsheet tab held in memory.
type memorySheet struct {
	mu        sync.Mutex
	rows      [][]any
	updateErr error
	ops       []string
}

func (m *memorySheet) Clear(_ context.Context, _, rng string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "clear "+rng)
	m.rows = nil
	return nil
}

func (m *memorySheet) Update(_ context.Context, _, rng string, values [][]any) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "update "+rng)
	if m.updateErr != nil {
		return 0, m.updateErr
	}
	m.rows = values
	return int64(len(values)), nil
}

func testConfig(t interface{ TempDir() string }) *config.Config {
	root := t.TempDir()
	return &config.Config{
		PortalBaseURL:        "https://portal.test/",
		PortalTripPath:       "#/hubLinehaulTrips/trip",
		PortalTaskCenterPath: "#/taskCenter/exportTaskCenter",
		LoginID:              "ops1",
		Password:             "secret",
		ExportIndex:          1,
		DownloadDir:          filepath.Join(root, "staging"),
		ArtifactDir:          filepath.Join(root, "out"),
		ArtifactPrefix:       "PEND",
		ArtifactExt:          "csv",
		ArtifactTimezone:     "UTC",
		CSVDelimiter:         ',',
		SheetName:            "Base Pending",
		Timeouts: config.Timeouts{
			LoginForm:     time.Second,
			LoginSettle:   time.Second,
			LoginProgress: 300 * time.Millisecond,
			OverlayWait:   200 * time.Millisecond,
			Navigation:    time.Second,
			ExportReady:   time.Second,
			Listing:       time.Second,
			Download:      200 * time.Millisecond,
			Run:           10 * time.Second,
			PollInterval:  5 * time.Millisecond,
		},
		SnapshotBeforeDownload: true,
		Selectors:              config.DefaultSelectors(),
	}
}

func hasCall(calls []string, prefix string) bool {
	for _, c := range calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}
