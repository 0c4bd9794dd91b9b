package flow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// fakeSource mimics a browser that only reports downloads to listeners
// armed before the download begins.
type fakeSource struct {
	mu       sync.Mutex
	dir      string
	events   []string
	listener *fakeListener
	released bool
}

type fakeListener struct {
	src   *fakeSource
	ch    chan Transfer
	paths []string
}

func (s *fakeSource) log(e string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *fakeSource) ArmDownload(context.Context) (DownloadListener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "arm")
	s.listener = &fakeListener{src: s, ch: make(chan Transfer, 1)}
	return s.listener, nil
}

// begin simulates the browser starting a download. The bytes land on disk
// either way; the event reaches only an armed listener.
func (s *fakeSource) begin(name string, body string, state TransferState) string {
	path := filepath.Join(s.dir, "guid-"+name)
	_ = os.WriteFile(path, []byte(body), 0o644)
	s.mu.Lock()
	l := s.listener
	s.events = append(s.events, "begin")
	s.mu.Unlock()
	if l == nil {
		return path
	}
	l.paths = append(l.paths, path)
	if state != TransferPending {
		l.ch <- Transfer{SuggestedName: name, Path: path, State: state}
	}
	return path
}

func (l *fakeListener) Wait(ctx context.Context) (Transfer, error) {
	select {
	case tr := <-l.ch:
		return tr, nil
	case <-ctx.Done():
		return Transfer{}, ctx.Err()
	}
}

func (l *fakeListener) Release() {
	for _, p := range l.paths {
		_ = os.Remove(p)
	}
	l.src.mu.Lock()
	l.src.released = true
	l.src.listener = nil
	l.src.mu.Unlock()
}

func newFakeSource(t *testing.T) *fakeSource {
	t.Helper()
	return &fakeSource{dir: t.TempDir()}
}

func TestCaptureArmsListenerBeforeTrigger(t *testing.T) {
	src := newFakeSource(t)
	staging := t.TempDir()
	trigger := Trigger{
		Name: "text=Baixar",
		Fire: func(context.Context) error {
			src.log("fire")
			src.begin("report.csv", "a,b\n1,2\n", TransferCompleted)
			return nil
		},
	}

	acq := &Acquirer{StagingDir: staging, Timeout: time.Second}
	h, err := acq.Capture(context.Background(), src, trigger)
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if got, want := src.events[0], "arm"; got != want {
		t.Fatalf("first event = %q; want %q (events %v)", got, want, src.events)
	}
	if h.State != TransferCompleted {
		t.Fatalf("State = %q; want %q", h.State, TransferCompleted)
	}
	if got, want := h.Path, filepath.Join(staging, "report.csv"); got != want {
		t.Fatalf("Path = %q; want %q", got, want)
	}
	data, err := os.ReadFile(h.Path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "a,b\n1,2\n" {
		t.Fatalf("staged contents = %q", data)
	}
	if !src.released {
		t.Fatal("listener not released")
	}
}

func TestCaptureSurvivesDelayBetweenArmAndTrigger(t *testing.T) {
	src := newFakeSource(t)
	trigger := Trigger{
		Name: "delayed",
		Fire: func(context.Context) error {
			time.Sleep(30 * time.Millisecond)
			go func() {
				time.Sleep(30 * time.Millisecond)
				src.begin("late.csv", "x\n", TransferCompleted)
			}()
			return nil
		},
	}

	acq := &Acquirer{StagingDir: t.TempDir(), Timeout: time.Second}
	h, err := acq.Capture(context.Background(), src, trigger)
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if h.SuggestedName != "late.csv" {
		t.Fatalf("SuggestedName = %q; want %q", h.SuggestedName, "late.csv")
	}
}

func TestCaptureTimesOutAndLeavesNothing(t *testing.T) {
	src := newFakeSource(t)
	staging := t.TempDir()
	var partial string
	trigger := Trigger{
		Name: "stalled",
		Fire: func(context.Context) error {
			partial = src.begin("stalled.csv", "partial", TransferPending)
			return nil
		},
	}

	acq := &Acquirer{StagingDir: staging, Timeout: 30 * time.Millisecond}
	start := time.Now()
	h, err := acq.Capture(context.Background(), src, trigger)
	if got := ErrorCode(err); got != CodeDownloadTimeout {
		t.Fatalf("ErrorCode(Capture()) = %q; want %q (err %v)", got, CodeDownloadTimeout, err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Capture() took %v; want bounded by timeout", elapsed)
	}
	if h.State != TransferTimedOut {
		t.Fatalf("State = %q; want %q", h.State, TransferTimedOut)
	}
	if _, err := os.Stat(partial); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("partial file still present: %v", err)
	}
	entries, _ := os.ReadDir(staging)
	if len(entries) != 0 {
		t.Fatalf("staging dir has %d entries; want 0", len(entries))
	}
}

func TestCaptureCanceledTransferFails(t *testing.T) {
	src := newFakeSource(t)
	trigger := Trigger{
		Name: "canceled",
		Fire: func(context.Context) error {
			src.begin("x.csv", "", TransferCanceled)
			return nil
		},
	}

	_, err := (&Acquirer{StagingDir: t.TempDir(), Timeout: time.Second}).Capture(context.Background(), src, trigger)
	if got := ErrorCode(err); got != CodeDownloadFailed {
		t.Fatalf("ErrorCode(Capture()) = %q; want %q", got, CodeDownloadFailed)
	}
}

func TestCaptureTriggerErrorFails(t *testing.T) {
	src := newFakeSource(t)
	page := newFakePage()
	trigger := ActivateTrigger(page, Text("Baixar"))

	_, err := (&Acquirer{StagingDir: t.TempDir(), Timeout: time.Second}).Capture(context.Background(), src, trigger)
	if got := ErrorCode(err); got != CodeDownloadFailed {
		t.Fatalf("ErrorCode(Capture()) = %q; want %q", got, CodeDownloadFailed)
	}
	if !src.released {
		t.Fatal("listener not released after trigger failure")
	}
}

func TestSafeSuggestedNameCannotEscapeStaging(t *testing.T) {
	src := newFakeSource(t)
	staging := t.TempDir()
	trigger := Trigger{
		Name: "evil",
		Fire: func(context.Context) error {
			path := filepath.Join(src.dir, "evil")
			_ = os.WriteFile(path, []byte("x"), 0o644)
			src.mu.Lock()
			l := src.listener
			src.mu.Unlock()
			l.ch <- Transfer{SuggestedName: "../../etc/passwd", Path: path, State: TransferCompleted}
			return nil
		},
	}

	h, err := (&Acquirer{StagingDir: staging, Timeout: time.Second}).Capture(context.Background(), src, trigger)
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if got, want := filepath.Dir(h.Path), staging; got != want {
		t.Fatalf("staged dir = %q; want %q", got, want)
	}
}
