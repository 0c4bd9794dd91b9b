package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgnsrekt/pendsync/internal/metrics"
	"github.com/dgnsrekt/pendsync/internal/notify"
	"github.com/dgnsrekt/pendsync/internal/storage"
)

// Sink receives every finished report. Sink errors never change the run outcome.
type Sink interface {
	Name() string
	Record(ctx context.Context, rep *Report) error
}

// MetricsSink updates the collector and, when Textfile is set, rewrites the
// node exporter textfile.
type MetricsSink struct {
	Collector *metrics.Collector
	Textfile  string
}

func (s *MetricsSink) Name() string { return "metrics" }

func (s *MetricsSink) Record(_ context.Context, rep *Report) error {
	s.Collector.RecordRun(metrics.RunSample{
		Succeeded:      rep.Succeeded(),
		FailedStage:    string(rep.FailedStage),
		ErrorCode:      rep.ErrorCode,
		FinishedAt:     rep.FinishedAt,
		Duration:       rep.Duration(),
		StageDurations: rep.StageDurations(),
		Rows:           rep.Rows(),
	})
	if s.Textfile == "" {
		return nil
	}
	return s.Collector.WriteTextfile(s.Textfile)
}

// History is the run ledger: one JSON line per finished run.
type History struct {
	w *storage.JSONLWriter
}

const historyName = "runs"

// OpenHistory opens the ledger under dir.
func OpenHistory(dir string) (*History, error) {
	w, err := storage.NewJSONLWriter(dir, historyName, 0)
	if err != nil {
		return nil, err
	}
	return &History{w: w}, nil
}

func (h *History) Name() string { return "history" }

func (h *History) Record(_ context.Context, rep *Report) error {
	return h.w.Write(rep)
}

// Recent returns up to n finished runs, newest first.
func (h *History) Recent(n int) ([]*Report, error) {
	raw, err := h.w.Recent(n)
	if err != nil {
		return nil, err
	}
	out := make([]*Report, 0, len(raw))
	for _, line := range raw {
		var rep Report
		if err := json.Unmarshal(line, &rep); err != nil {
			return nil, fmt.Errorf("history: decode run: %w", err)
		}
		out = append(out, &rep)
	}
	return out, nil
}

func (h *History) Close() error { return h.w.Close() }

// NotifySink posts the outcome to ntfy.
type NotifySink struct {
	Notifier *notify.Notifier
}

func (s *NotifySink) Name() string { return "notify" }

func (s *NotifySink) Record(ctx context.Context, rep *Report) error {
	o := notify.Outcome{
		RunID:     rep.RunID,
		Succeeded: rep.Succeeded(),
		Stage:     string(rep.FailedStage),
		ErrorCode: rep.ErrorCode,
		Cause:     rep.Cause,
		Rows:      rep.Rows(),
		Duration:  rep.Duration(),
	}
	if rep.Artifact != nil {
		o.ArtifactPath = rep.Artifact.Path
	}
	return s.Notifier.Notify(ctx, o)
}
