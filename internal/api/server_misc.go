package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func registerMiscHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type countOutput struct {
		Body struct {
			Count int `json:"count"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "count-snapshots", Method: http.MethodGet, Path: "/api/v1/snapshots/count", Summary: "Count stored snapshots", Tags: []string{"Snapshots"}},
		func(ctx context.Context, input *struct{}) (*countOutput, error) {
			count, err := svc.CountSnapshots(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &countOutput{}
			out.Body.Count = count
			return out, nil
		})
}
