package pipeline

import (
	"time"

	"github.com/dgnsrekt/pendsync/internal/artifact"
	"github.com/dgnsrekt/pendsync/internal/flow"
	"github.com/dgnsrekt/pendsync/internal/sheets"
)

// Stage is a state of the run state machine.
type Stage string

const (
	StageLoggingIn         Stage = "logging_in"
	StageDismissingOverlay Stage = "dismissing_overlay"
	StageNavigating        Stage = "navigating"
	StageAwaitingListing   Stage = "awaiting_listing"
	StageCapturingDownload Stage = "capturing_download"
	StageFinalizing        Stage = "finalizing"
	StagePublishing        Stage = "publishing"
	StageDone              Stage = "done"
	StageFailed            Stage = "failed"
)

// Status is the overall outcome of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Transition records entry into a stage.
type Transition struct {
	Stage Stage     `json:"stage"`
	At    time.Time `json:"at"`
}

// Report is the full record of one run. FailedStage and Cause are set only
// when Status is failed.
type Report struct {
	RunID       string    `json:"run_id"`
	Status      Status    `json:"status"`
	Stage       Stage     `json:"stage"`
	FailedStage Stage     `json:"failed_stage,omitempty"`
	ErrorCode   string    `json:"error_code,omitempty"`
	Cause       string    `json:"cause,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`

	OverlayClosed bool                  `json:"overlay_closed"`
	Dismissal     []flow.StrategyResult `json:"dismissal,omitempty"`
	ListingReady  bool                  `json:"listing_ready"`
	Download      *flow.DownloadHandle  `json:"download,omitempty"`

	// ArtifactCaptured stays true when publishing fails afterwards.
	ArtifactCaptured bool               `json:"artifact_captured"`
	Artifact         *artifact.Artifact `json:"artifact,omitempty"`
	Published        bool               `json:"published"`
	Publish          *sheets.Result     `json:"publish,omitempty"`

	SnapshotIDs []string     `json:"snapshot_ids,omitempty"`
	Transitions []Transition `json:"transitions"`
}

func newReport(id string, now time.Time) *Report {
	return &Report{
		RunID:       id,
		Status:      StatusRunning,
		Stage:       StageLoggingIn,
		StartedAt:   now,
		Transitions: []Transition{{Stage: StageLoggingIn, At: now}},
	}
}

func (r *Report) enter(s Stage, now time.Time) {
	r.Stage = s
	r.Transitions = append(r.Transitions, Transition{Stage: s, At: now})
}

// Succeeded reports whether the run reached Done.
func (r *Report) Succeeded() bool { return r.Status == StatusSucceeded }

// Duration is the run's wall time so far.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// StageDurations returns the time spent in each non-terminal stage.
func (r *Report) StageDurations() map[string]time.Duration {
	out := make(map[string]time.Duration, len(r.Transitions))
	for i, t := range r.Transitions {
		if t.Stage == StageDone || t.Stage == StageFailed {
			continue
		}
		end := r.FinishedAt
		if i+1 < len(r.Transitions) {
			end = r.Transitions[i+1].At
		}
		if end.IsZero() {
			continue
		}
		out[string(t.Stage)] += end.Sub(t.At)
	}
	return out
}

// Rows is the number of data rows published, or 0.
func (r *Report) Rows() int {
	if r.Publish == nil {
		return 0
	}
	return r.Publish.Rows
}

// Clone returns a copy that shares no slices with r.
func (r *Report) Clone() *Report {
	c := *r
	c.Dismissal = append([]flow.StrategyResult(nil), r.Dismissal...)
	c.SnapshotIDs = append([]string(nil), r.SnapshotIDs...)
	c.Transitions = append([]Transition(nil), r.Transitions...)
	if r.Download != nil {
		d := *r.Download
		c.Download = &d
	}
	if r.Artifact != nil {
		a := *r.Artifact
		c.Artifact = &a
	}
	if r.Publish != nil {
		p := *r.Publish
		c.Publish = &p
	}
	return &c
}
