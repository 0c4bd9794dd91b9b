package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/pendsync/internal/flow"
	"github.com/dgnsrekt/pendsync/internal/metrics"
	"github.com/dgnsrekt/pendsync/internal/pipeline"
	"github.com/dgnsrekt/pendsync/internal/snapshot"
)

type Service interface {
	StartRun(ctx context.Context) (*pipeline.Report, error)
	Latest(ctx context.Context) (*pipeline.Report, error)
	History(ctx context.Context, limit int) ([]*pipeline.Report, error)
	Running() bool
	ListSnapshots(ctx context.Context, runID string) ([]snapshot.SnapshotMeta, error)
	GetSnapshot(ctx context.Context, id string) (snapshot.SnapshotMeta, error)
	ReadSnapshotImage(ctx context.Context, id string) ([]byte, string, error)
	ReadSnapshotHTML(ctx context.Context, id string) ([]byte, error)
	DeleteSnapshot(ctx context.Context, id string) error
}

// NewServer builds the controller router. collector may be nil, in which
// case /metrics is not served.
func NewServer(svc Service, collector *metrics.Collector) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	if collector != nil {
		router.Use(requestMetrics(collector))
	}
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("pendsync Controller API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	if collector != nil {
		router.Handle("/metrics", collector.Handler())
	}

	registerRunHandlers(api, svc)
	registerSnapshotHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *flow.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case flow.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case flow.CodeRunNotFound, flow.CodeSnapshotNotFound:
			return huma.Error404NotFound(coded.Message)
		case flow.CodeRunInProgress:
			return huma.Error409Conflict(coded.Message)
		case flow.CodeSessionUnavailable:
			return huma.Error503ServiceUnavailable(coded.Message)
		case flow.CodeNavigationTimeout, flow.CodeReadinessTimeout, flow.CodeDownloadTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
