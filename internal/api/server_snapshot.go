package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/tab_arbor/internal/restore"
	"github.com/dgnsrekt/tab_arbor/internal/snapshot"
)

type snapshotIDInput struct {
	SnapshotID string `path:"snapshot_id"`
}

func registerSnapshotHandlers(api huma.API, svc Service) {
	type createSnapshotInput struct {
		Body struct {
			Name     string `json:"name,omitempty" doc:"Snapshot name. A timestamped name is generated when omitted."`
			AutoSave bool   `json:"auto_save,omitempty" doc:"Mark the snapshot as an automatic save."`
		}
	}
	type snapshotOutput struct {
		Body snapshot.Record
	}
	huma.Register(api, huma.Operation{OperationID: "create-snapshot", Method: http.MethodPost, Path: "/api/v1/snapshots", Summary: "Capture the live tab tree as a snapshot", Tags: []string{"Snapshots"}},
		func(ctx context.Context, input *createSnapshotInput) (*snapshotOutput, error) {
			rec, err := svc.CreateSnapshot(ctx, input.Body.Name, input.Body.AutoSave)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &snapshotOutput{}
			out.Body = *rec
			return out, nil
		})

	type listSnapshotsOutput struct {
		Body struct {
			Snapshots []snapshot.Meta `json:"snapshots"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-snapshots", Method: http.MethodGet, Path: "/api/v1/snapshots", Summary: "List stored snapshots, oldest first", Tags: []string{"Snapshots"}},
		func(ctx context.Context, input *struct{}) (*listSnapshotsOutput, error) {
			metas, err := svc.ListSnapshots(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listSnapshotsOutput{}
			out.Body.Snapshots = metas
			if out.Body.Snapshots == nil {
				out.Body.Snapshots = []snapshot.Meta{}
			}
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-snapshot", Method: http.MethodGet, Path: "/api/v1/snapshots/{snapshot_id}", Summary: "Get one stored snapshot", Tags: []string{"Snapshots"}},
		func(ctx context.Context, input *snapshotIDInput) (*snapshotOutput, error) {
			rec, err := svc.GetSnapshot(ctx, input.SnapshotID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &snapshotOutput{}
			out.Body = *rec
			return out, nil
		})

	type deleteSnapshotOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "delete-snapshot", Method: http.MethodDelete, Path: "/api/v1/snapshots/{snapshot_id}", Summary: "Delete a stored snapshot", Tags: []string{"Snapshots"}},
		func(ctx context.Context, input *snapshotIDInput) (*deleteSnapshotOutput, error) {
			if err := svc.DeleteSnapshot(ctx, input.SnapshotID); err != nil {
				return nil, mapErr(err)
			}
			out := &deleteSnapshotOutput{}
			out.Body.Status = "deleted"
			return out, nil
		})

	type restoreOutput struct {
		Body restore.Result
	}
	type restorePayloadInput struct {
		Body struct {
			JSONData         string `json:"jsonData" doc:"Snapshot payload to restore, as a JSON string."`
			CloseCurrentTabs bool   `json:"closeCurrentTabs,omitempty" doc:"Replace the currently open tabs instead of adding to them."`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "restore-snapshot", Method: http.MethodPost, Path: "/api/v1/snapshots/restore", Summary: "Restore a caller-supplied snapshot payload", Tags: []string{"Restore"}},
		func(ctx context.Context, input *restorePayloadInput) (*restoreOutput, error) {
			result, err := svc.RestoreSnapshot(ctx, []byte(input.Body.JSONData), input.Body.CloseCurrentTabs)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &restoreOutput{}
			out.Body = result
			return out, nil
		})

	type restoreByIDInput struct {
		SnapshotID string `path:"snapshot_id"`
		Body       struct {
			CloseCurrentTabs bool `json:"closeCurrentTabs,omitempty" doc:"Replace the currently open tabs instead of adding to them."`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "restore-snapshot-by-id", Method: http.MethodPost, Path: "/api/v1/snapshots/{snapshot_id}/restore", Summary: "Restore a stored snapshot", Tags: []string{"Restore"}},
		func(ctx context.Context, input *restoreByIDInput) (*restoreOutput, error) {
			result, err := svc.RestoreByID(ctx, input.SnapshotID, input.Body.CloseCurrentTabs)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &restoreOutput{}
			out.Body = result
			return out, nil
		})
}
