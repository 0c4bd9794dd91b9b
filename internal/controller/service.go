package controller

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/pendsync/internal/flow"
	"github.com/dgnsrekt/pendsync/internal/pipeline"
	"github.com/dgnsrekt/pendsync/internal/snapshot"
)

// Runner executes one pipeline run.
type Runner interface {
	RunWithID(ctx context.Context, runID string) (*pipeline.Report, error)
}

// HistoryReader returns finished runs, newest first.
type HistoryReader interface {
	Recent(n int) ([]*pipeline.Report, error)
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// Service serializes runs started over the API and answers status queries.
type Service struct {
	runner  Runner
	history HistoryReader
	snaps   *snapshot.Store

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.RWMutex
	running bool
	current *pipeline.Report
	latest  *pipeline.Report
}

// NewService returns a Service whose runs outlive the requests that start
// them. history and snaps may be nil.
func NewService(runner Runner, history HistoryReader, snaps *snapshot.Store) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{runner: runner, history: history, snaps: snaps, baseCtx: ctx, cancel: cancel}
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return &flow.CodedError{Code: flow.CodeValidation, Message: fieldName + " is required"}
	}
	return nil
}

// StartRun launches a run in the background. Only one run may be in flight.
func (s *Service) StartRun(context.Context) (*pipeline.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		id := ""
		if s.current != nil {
			id = s.current.RunID
		}
		return nil, &flow.CodedError{Code: flow.CodeRunInProgress, Message: "run " + id + " is still in progress"}
	}
	if err := s.baseCtx.Err(); err != nil {
		return nil, &flow.CodedError{Code: flow.CodeSessionUnavailable, Message: "controller is shutting down", Cause: err}
	}

	id := uuid.NewString()
	s.running = true
	s.current = &pipeline.Report{
		RunID:     id,
		Status:    pipeline.StatusRunning,
		Stage:     pipeline.StageLoggingIn,
		StartedAt: time.Now(),
	}
	accepted := s.current.Clone()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		rep, _ := s.runner.RunWithID(s.baseCtx, id)
		s.finish(id, rep)
	}()
	return accepted, nil
}

// Observe records an in-progress report. It is meant as the runner's
// Observe hook.
func (s *Service) Observe(rep *pipeline.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && s.current != nil && s.current.RunID == rep.RunID {
		s.current = rep
	}
}

func (s *Service) finish(id string, rep *pipeline.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rep == nil {
		rep = s.current
	}
	if rep != nil && rep.RunID == id {
		s.latest = rep
	}
	s.running = false
	s.current = nil
}

// Running reports whether a run is in flight.
func (s *Service) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Latest returns the in-flight run, else the last finished one.
func (s *Service) Latest(context.Context) (*pipeline.Report, error) {
	s.mu.RLock()
	rep := s.current
	if rep == nil {
		rep = s.latest
	}
	if rep != nil {
		rep = rep.Clone()
	}
	s.mu.RUnlock()
	if rep != nil {
		return rep, nil
	}

	if s.history != nil {
		recent, err := s.history.Recent(1)
		if err != nil {
			return nil, err
		}
		if len(recent) > 0 {
			return recent[0], nil
		}
	}
	return nil, &flow.CodedError{Code: flow.CodeRunNotFound, Message: "no run recorded yet"}
}

// History lists finished runs, newest first.
func (s *Service) History(_ context.Context, limit int) ([]*pipeline.Report, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if s.history == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.latest == nil {
			return []*pipeline.Report{}, nil
		}
		return []*pipeline.Report{s.latest.Clone()}, nil
	}
	return s.history.Recent(limit)
}

// Shutdown cancels the in-flight run and waits for it to record its report.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --- Snapshot methods ---

func (s *Service) snapshotStore() (*snapshot.Store, error) {
	if s.snaps == nil {
		return nil, &flow.CodedError{Code: flow.CodeSnapshotNotFound, Message: "snapshots are disabled"}
	}
	return s.snaps, nil
}

func (s *Service) ListSnapshots(_ context.Context, runID string) ([]snapshot.SnapshotMeta, error) {
	st, err := s.snapshotStore()
	if err != nil {
		return []snapshot.SnapshotMeta{}, nil
	}
	all, err := st.List()
	if err != nil {
		return nil, err
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return all, nil
	}
	out := make([]snapshot.SnapshotMeta, 0, len(all))
	for _, m := range all {
		if m.RunID == runID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Service) GetSnapshot(_ context.Context, id string) (snapshot.SnapshotMeta, error) {
	if err := s.requireNonEmpty(id, "snapshot_id"); err != nil {
		return snapshot.SnapshotMeta{}, err
	}
	st, err := s.snapshotStore()
	if err != nil {
		return snapshot.SnapshotMeta{}, err
	}
	meta, err := st.Get(strings.TrimSpace(id))
	if err != nil {
		return snapshot.SnapshotMeta{}, &flow.CodedError{Code: flow.CodeSnapshotNotFound, Message: err.Error()}
	}
	return meta, nil
}

func (s *Service) ReadSnapshotImage(_ context.Context, id string) ([]byte, string, error) {
	if err := s.requireNonEmpty(id, "snapshot_id"); err != nil {
		return nil, "", err
	}
	st, err := s.snapshotStore()
	if err != nil {
		return nil, "", err
	}
	data, format, err := st.ReadImage(strings.TrimSpace(id))
	if err != nil {
		return nil, "", &flow.CodedError{Code: flow.CodeSnapshotNotFound, Message: err.Error()}
	}
	return data, format, nil
}

func (s *Service) ReadSnapshotHTML(_ context.Context, id string) ([]byte, error) {
	if err := s.requireNonEmpty(id, "snapshot_id"); err != nil {
		return nil, err
	}
	st, err := s.snapshotStore()
	if err != nil {
		return nil, err
	}
	data, err := st.ReadHTML(strings.TrimSpace(id))
	if err != nil {
		return nil, &flow.CodedError{Code: flow.CodeSnapshotNotFound, Message: err.Error()}
	}
	return data, nil
}

func (s *Service) DeleteSnapshot(_ context.Context, id string) error {
	if err := s.requireNonEmpty(id, "snapshot_id"); err != nil {
		return err
	}
	st, err := s.snapshotStore()
	if err != nil {
		return err
	}
	if err := st.Delete(strings.TrimSpace(id)); err != nil {
		return &flow.CodedError{Code: flow.CodeSnapshotNotFound, Message: err.Error()}
	}
	return nil
}
