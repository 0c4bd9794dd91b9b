// Package pipeline drives one export run: login, overlay dismissal,
// export, download capture, finalization and sheet publishing.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/pendsync/internal/artifact"
	"github.com/dgnsrekt/pendsync/internal/config"
	"github.com/dgnsrekt/pendsync/internal/flow"
	"github.com/dgnsrekt/pendsync/internal/sheets"
	"github.com/dgnsrekt/pendsync/internal/snapshot"
)

// Session is the browser surface a run drives. *browser.Session satisfies it.
type Session interface {
	flow.Page
	flow.DownloadSource
	Navigate(ctx context.Context, url string) error
	Fill(ctx context.Context, loc flow.Locator, value string) error
	Network() flow.NetworkMonitor
	Screenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)
	CurrentURL(ctx context.Context) (string, error)
	Close() error
}

// SessionFactory opens the session for one run.
type SessionFactory func(ctx context.Context) (Session, error)

// ArtifactPublisher pushes a finalized artifact to its destination.
type ArtifactPublisher interface {
	Publish(ctx context.Context, path string) (sheets.Result, error)
}

const sinkTimeout = 15 * time.Second

// Runner executes runs against one configuration.
type Runner struct {
	Config    *config.Config
	Sessions  SessionFactory
	Publisher ArtifactPublisher
	// Snapshots is optional; nil disables page snapshots.
	Snapshots *snapshot.Store
	Sinks     []Sink
	// Observe, when set, receives a copy of the report at every transition.
	Observe func(*Report)
	Now     func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run executes one run with a fresh run ID.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	return r.RunWithID(ctx, uuid.NewString())
}

// RunWithID executes one run. The returned error is the run's terminal
// failure and carries a flow error code; the report is always non-nil.
func (r *Runner) RunWithID(ctx context.Context, runID string) (*Report, error) {
	cfg := r.Config
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeouts.Run)
	defer cancel()

	rep := newReport(runID, r.now())
	log := slog.With("run_id", runID)
	log.Info("run started")
	r.observe(rep)

	err := r.execute(ctx, rep, log)

	rep.FinishedAt = r.now()
	if err != nil {
		rep.FailedStage = rep.Stage
		rep.Status = StatusFailed
		rep.ErrorCode = flow.ErrorCode(err)
		rep.Cause = err.Error()
		rep.enter(StageFailed, rep.FinishedAt)
		log.Error("run failed",
			"stage", rep.FailedStage,
			"code", rep.ErrorCode,
			"artifact_captured", rep.ArtifactCaptured,
			"error", err,
		)
	} else {
		rep.Status = StatusSucceeded
		rep.enter(StageDone, rep.FinishedAt)
		log.Info("run finished", "rows", rep.Rows(), "duration", rep.Duration().Round(time.Millisecond))
	}
	r.observe(rep)
	r.record(ctx, rep)
	return rep, err
}

// execute walks the state machine. The session is closed on every path
// after any failure snapshot has been taken.
func (r *Runner) execute(ctx context.Context, rep *Report, log *slog.Logger) (err error) {
	cfg := r.Config
	sess, err := r.Sessions(ctx)
	if err != nil {
		if flow.ErrorCode(err) == "" {
			err = flow.NewError(flow.CodeSessionUnavailable, "open browser session", err)
		}
		return err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Debug("session close failed", "error", cerr)
		}
	}()
	defer func() {
		if err != nil {
			r.snapshot(ctx, sess, rep, "failure")
		}
	}()

	w := flow.NewWaiter(cfg.Timeouts.PollInterval)
	sel := cfg.Selectors

	if err := r.login(ctx, sess, w); err != nil {
		return err
	}

	r.enter(rep, StageDismissingOverlay)
	overlays := append(append([]flow.Locator(nil), sel.CloseControls...), sel.Masks...)
	if w.Await(ctx, flow.AnyVisible(sess, overlays...), cfg.Timeouts.OverlayWait) == flow.Ready {
		log.Debug("overlay detected")
	}
	d := flow.NewDismisser(sel.CloseControls, sel.Masks, cfg.Timeouts.DismissSettle)
	rep.OverlayClosed, rep.Dismissal = d.Dismiss(ctx, sess)
	log.Info("overlay step finished", "closed", rep.OverlayClosed, "attempts", len(rep.Dismissal))
	if err := ctx.Err(); err != nil {
		return flow.NewError(flow.CodeNavigationTimeout, "run deadline reached", err)
	}

	r.enter(rep, StageNavigating)
	if err := r.requestExport(ctx, sess, w); err != nil {
		return err
	}
	if err := sess.Navigate(ctx, cfg.TaskCenterURL()); err != nil {
		return err
	}
	r.selectExportTab(ctx, sess, w)

	r.enter(rep, StageAwaitingListing)
	download := sel.Download.At(0)
	rep.ListingReady = w.Await(ctx, flow.ElementVisible(sess, download), cfg.Timeouts.Listing) == flow.Ready
	if !rep.ListingReady {
		log.Warn("listing not ready, continuing", "code", flow.CodeReadinessTimeout, "locator", download.String(), "timeout", cfg.Timeouts.Listing)
	}

	r.enter(rep, StageCapturingDownload)
	if cfg.SnapshotBeforeDownload {
		r.snapshot(ctx, sess, rep, "pre_download")
	}
	_, staging := DownloadDirs(cfg)
	acq := &flow.Acquirer{StagingDir: staging, Timeout: cfg.Timeouts.Download}
	h, err := acq.Capture(ctx, sess, flow.ActivateTrigger(sess, download))
	rep.Download = h
	if err != nil {
		return err
	}

	r.enter(rep, StageFinalizing)
	loc, err := cfg.Location()
	if err != nil {
		return flow.NewError(flow.CodeFinalizeFailed, "resolve artifact timezone", err)
	}
	fin := &artifact.Finalizer{
		Dir:      cfg.ArtifactDir,
		Prefix:   cfg.ArtifactPrefix,
		Ext:      cfg.ArtifactExt,
		Location: loc,
	}
	art, err := fin.Finalize(h.Path, r.now())
	if err != nil {
		return flow.NewError(flow.CodeFinalizeFailed, "finalize artifact", err)
	}
	rep.Artifact = &art
	rep.ArtifactCaptured = true
	log.Info("artifact finalized", "path", art.Path, "size_bytes", art.SizeBytes)

	r.enter(rep, StagePublishing)
	res, err := r.Publisher.Publish(ctx, art.Path)
	if err != nil {
		return flow.NewError(flow.CodePublishFailed, "publish "+art.Name, err)
	}
	rep.Publish = &res
	rep.Published = true
	return nil
}

func (r *Runner) login(ctx context.Context, sess Session, w *flow.Waiter) error {
	cfg := r.Config
	sel := cfg.Selectors

	if err := sess.Navigate(ctx, cfg.PortalBaseURL); err != nil {
		return err
	}
	if w.Await(ctx, flow.ElementVisible(sess, sel.LoginID), cfg.Timeouts.LoginForm) != flow.Ready {
		return flow.NewError(flow.CodeLoginFailed, "login form not found: "+sel.LoginID.String(), nil)
	}
	if err := sess.Fill(ctx, sel.LoginID, cfg.LoginID); err != nil {
		return flow.NewError(flow.CodeLoginFailed, "fill login id", err)
	}
	if err := sess.Fill(ctx, sel.Password, cfg.Password); err != nil {
		return flow.NewError(flow.CodeLoginFailed, "fill password", err)
	}
	if err := sess.Activate(ctx, sel.Submit); err != nil {
		return flow.NewError(flow.CodeLoginFailed, "submit login form", err)
	}
	if w.Await(ctx, flow.Absent(sess, sel.Password), cfg.Timeouts.LoginProgress) != flow.Ready {
		return flow.NewError(flow.CodeLoginFailed, "login did not progress past the form", nil)
	}
	if w.Await(ctx, flow.NetworkIdle(sess.Network(), cfg.Timeouts.NetworkQuiet), cfg.Timeouts.LoginSettle) != flow.Ready {
		slog.Debug("network did not settle after login")
	}
	return nil
}

// requestExport opens the trip page and activates the configured Exportar
// button, then allows the export job time to be enqueued.
func (r *Runner) requestExport(ctx context.Context, sess Session, w *flow.Waiter) error {
	cfg := r.Config
	if err := sess.Navigate(ctx, cfg.TripURL()); err != nil {
		return err
	}
	w.Await(ctx, flow.NetworkIdle(sess.Network(), cfg.Timeouts.NetworkQuiet), cfg.Timeouts.Navigation)

	btn := cfg.Selectors.ExportButton.At(cfg.ExportIndex)
	if w.Await(ctx, flow.ElementVisible(sess, btn), cfg.Timeouts.ExportReady) != flow.Ready {
		slog.Warn("export button not visible, trying anyway", "code", flow.CodeReadinessTimeout, "locator", btn.String())
	}
	if err := sess.Activate(ctx, btn); err != nil {
		return flow.NewError(flow.CodeExportFailed, "activate "+btn.String(), err)
	}
	slog.Info("export requested", "locator", btn.String())

	// The portal gives no signal once the export job is queued.
	if settle := cfg.Timeouts.ExportSettle; settle > 0 {
		w.Await(ctx, flow.FixedDelay(settle), settle+time.Second)
	}
	if err := ctx.Err(); err != nil {
		return flow.NewError(flow.CodeNavigationTimeout, "run deadline reached", err)
	}
	return nil
}

func (r *Runner) selectExportTab(ctx context.Context, sess Session, w *flow.Waiter) {
	tabs := r.Config.Selectors.ExportTaskTab
	if len(tabs) == 0 {
		return
	}
	if w.Await(ctx, flow.AnyVisible(sess, tabs...), r.Config.Timeouts.Navigation/3) != flow.Ready {
		slog.Debug("export task tab not found")
		return
	}
	for _, tab := range tabs {
		if n, err := sess.Count(ctx, tab); err != nil || n == 0 {
			continue
		}
		if err := sess.Activate(ctx, tab.At(0)); err != nil {
			slog.Debug("export task tab click failed", "locator", tab.String(), "error", err)
			continue
		}
		slog.Debug("export task tab selected", "locator", tab.String())
		return
	}
}

func (r *Runner) enter(rep *Report, s Stage) {
	rep.enter(s, r.now())
	slog.Debug("stage entered", "run_id", rep.RunID, "stage", s)
	r.observe(rep)
}

func (r *Runner) observe(rep *Report) {
	if r.Observe != nil {
		r.Observe(rep.Clone())
	}
}

// snapshot saves a screenshot and page source. Failures are logged only.
func (r *Runner) snapshot(ctx context.Context, sess Session, rep *Report, reason string) {
	if r.Snapshots == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	meta := snapshot.SnapshotMeta{
		ID:        uuid.NewString(),
		RunID:     rep.RunID,
		Stage:     string(rep.Stage),
		Reason:    reason,
		Format:    "png",
		CreatedAt: r.now().UTC(),
	}
	var errs []error
	if u, err := sess.CurrentURL(ctx); err == nil {
		meta.URL = u
	}
	img, err := sess.Screenshot(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	html, err := sess.HTML(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	if len(img) == 0 && html == "" {
		slog.Warn("snapshot capture failed", "run_id", rep.RunID, "reason", reason, "error", errors.Join(errs...))
		return
	}
	if len(errs) > 0 {
		meta.Error = errors.Join(errs...).Error()
	}
	saved, err := r.Snapshots.Save(meta, img, []byte(html))
	if err != nil {
		slog.Warn("snapshot save failed", "run_id", rep.RunID, "error", err)
		return
	}
	rep.SnapshotIDs = append(rep.SnapshotIDs, saved.ID)
	slog.Info("snapshot saved", "run_id", rep.RunID, "snapshot_id", saved.ID, "reason", reason, "stage", saved.Stage)
}

func (r *Runner) record(ctx context.Context, rep *Report) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()
	for _, s := range r.Sinks {
		if err := s.Record(ctx, rep); err != nil {
			slog.Warn("run sink failed", "sink", s.Name(), "run_id", rep.RunID, "error", err)
		}
	}
}

// DownloadDirs returns the browser's raw download directory and the
// staging directory captured files are moved into.
func DownloadDirs(cfg *config.Config) (incoming, staging string) {
	return filepath.Join(cfg.DownloadDir, "incoming"), cfg.DownloadDir
}
