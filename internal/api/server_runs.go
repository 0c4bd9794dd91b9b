package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/pendsync/internal/pipeline"
)

type runOutput struct {
	Body *pipeline.Report
}

func registerRunHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body struct {
			Status  string `json:"status"`
			Running bool   `json:"running"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/api/v1/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			out.Body.Running = svc.Running()
			return out, nil
		})

	type startRunOutput struct {
		Location string `header:"Location"`
		Body     *pipeline.Report
	}
	huma.Register(api, huma.Operation{
		OperationID:   "start-run",
		Method:        http.MethodPost,
		Path:          "/api/v1/runs",
		Summary:       "Start a run",
		Description:   "Starts login, export, download, finalize and publish in the background. Returns 409 while another run is in flight.",
		Tags:          []string{"Runs"},
		DefaultStatus: http.StatusAccepted,
	}, func(ctx context.Context, input *struct{}) (*startRunOutput, error) {
		rep, err := svc.StartRun(ctx)
		if err != nil {
			return nil, mapErr(err)
		}
		return &startRunOutput{Location: "/api/v1/runs/latest", Body: rep}, nil
	})

	huma.Register(api, huma.Operation{OperationID: "get-latest-run", Method: http.MethodGet, Path: "/api/v1/runs/latest", Summary: "Get the in-flight or most recent run", Tags: []string{"Runs"}},
		func(ctx context.Context, input *struct{}) (*runOutput, error) {
			rep, err := svc.Latest(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &runOutput{Body: rep}, nil
		})

	type listRunsOutput struct {
		Body struct {
			Runs []*pipeline.Report `json:"runs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-runs", Method: http.MethodGet, Path: "/api/v1/runs", Summary: "List finished runs", Tags: []string{"Runs"}},
		func(ctx context.Context, input *struct {
			Limit int `query:"limit" default:"20" minimum:"1" maximum:"500" doc:"Maximum runs to return, newest first"`
		}) (*listRunsOutput, error) {
			runs, err := svc.History(ctx, input.Limit)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listRunsOutput{}
			out.Body.Runs = runs
			if out.Body.Runs == nil {
				out.Body.Runs = []*pipeline.Report{}
			}
			return out, nil
		})
}
