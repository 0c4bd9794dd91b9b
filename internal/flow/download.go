package flow

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dgnsrekt/pendsync/internal/storage"
)

const DefaultDownloadTimeout = 60 * time.Second

// TransferState tracks a browser download.
type TransferState string

const (
	TransferPending   TransferState = "pending"
	TransferCompleted TransferState = "completed"
	TransferTimedOut  TransferState = "timed_out"
	TransferCanceled  TransferState = "canceled"
)

// Transfer is what a DownloadListener observed for one download.
type Transfer struct {
	SuggestedName string
	URL           string
	Path          string
	State         TransferState
}

// DownloadHandle describes one captured export.
type DownloadHandle struct {
	SuggestedName string        `json:"suggested_name,omitempty"`
	Trigger       string        `json:"trigger"`
	State         TransferState `json:"state"`
	Path          string        `json:"path,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   time.Time     `json:"completed_at,omitempty"`
}

// Trigger starts a download. Fire must not wait for navigation.
type Trigger struct {
	Name string
	Fire func(ctx context.Context) error
}

// ActivateTrigger fires loc with a programmatic element.click().
func ActivateTrigger(page Page, loc Locator) Trigger {
	return Trigger{
		Name: loc.String(),
		Fire: func(ctx context.Context) error { return page.Activate(ctx, loc) },
	}
}

// Acquirer captures a single download into StagingDir.
type Acquirer struct {
	StagingDir string
	Timeout    time.Duration
}

// Capture arms a listener, fires trigger, and waits at most a.Timeout for the
// transfer to finish. The completed file is moved to StagingDir under its
// suggested name. On any failure no file is left behind.
func (a *Acquirer) Capture(ctx context.Context, src DownloadSource, trigger Trigger) (*DownloadHandle, error) {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}
	h := &DownloadHandle{Trigger: trigger.Name, State: TransferPending, StartedAt: time.Now()}

	listener, err := src.ArmDownload(ctx)
	if err != nil {
		return h, NewError(CodeDownloadFailed, "arm download listener", err)
	}
	defer listener.Release()

	if err := trigger.Fire(ctx); err != nil {
		return h, NewError(CodeDownloadFailed, "fire download trigger "+trigger.Name, err)
	}
	slog.Debug("download trigger fired", "trigger", trigger.Name, "timeout", timeout)

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tr, err := listener.Wait(waitCtx)
	if err != nil {
		if ctx.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			h.State = TransferTimedOut
			return h, NewError(CodeDownloadTimeout, "no download completed within "+timeout.String(), err)
		}
		return h, NewError(CodeDownloadFailed, "await download", err)
	}
	h.SuggestedName = tr.SuggestedName
	if tr.State != TransferCompleted {
		h.State = tr.State
		return h, NewError(CodeDownloadFailed, "download ended in state "+string(tr.State), nil)
	}

	dst := filepath.Join(a.StagingDir, storage.SafeFilename(tr.SuggestedName))
	if err := storage.ReplaceFile(tr.Path, dst); err != nil {
		return h, NewError(CodeDownloadFailed, "stage downloaded file", err)
	}
	h.State = TransferCompleted
	h.Path = dst
	h.CompletedAt = time.Now()
	slog.Info("download captured", "file", dst, "suggested_name", tr.SuggestedName, "elapsed", h.CompletedAt.Sub(h.StartedAt).Round(time.Millisecond))
	return h, nil
}
