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

	"github.com/dgnsrekt/tab_arbor/internal/restore"
	"github.com/dgnsrekt/tab_arbor/internal/snapshot"
)

// Service is the application surface the HTTP layer exposes.
type Service interface {
	CreateSnapshot(ctx context.Context, name string, autoSave bool) (*snapshot.Record, error)
	RestoreSnapshot(ctx context.Context, payload []byte, closeCurrentTabs bool) (restore.Result, error)
	RestoreByID(ctx context.Context, id string, closeCurrentTabs bool) (restore.Result, error)
	GetSnapshot(ctx context.Context, id string) (*snapshot.Record, error)
	ListSnapshots(ctx context.Context) ([]snapshot.Meta, error)
	DeleteSnapshot(ctx context.Context, id string) error
	CountSnapshots(ctx context.Context) (int, error)
}

func NewServer(svc Service) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Tab Arbor Agent API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	registerSnapshotHandlers(api, svc)
	registerMiscHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *snapshot.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case snapshot.CodeValidation, snapshot.CodeMalformed:
			return huma.Error400BadRequest(coded.Message)
		case snapshot.CodeNotFound:
			return huma.Error404NotFound(coded.Message)
		case snapshot.CodeQuotaExceeded:
			return huma.NewError(http.StatusInsufficientStorage, coded.Message)
		case snapshot.CodeTxTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case snapshot.CodeCDPUnavailable, snapshot.CodeTabOpenFailure:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
