// Package agent is the application facade: it owns operation timeouts and
// sequences the capture service, restoration engine and snapshot
// repository behind one API surface.
package agent

import (
	"context"
	"time"

	"github.com/dgnsrekt/tab_arbor/internal/capture"
	"github.com/dgnsrekt/tab_arbor/internal/repository"
	"github.com/dgnsrekt/tab_arbor/internal/restore"
	"github.com/dgnsrekt/tab_arbor/internal/snapshot"
)

const defaultOpTimeout = 30 * time.Second

// Service exposes the snapshot operations the HTTP layer serves.
type Service struct {
	repo      *repository.Store
	capture   *capture.Service
	engine    *restore.Engine
	opTimeout time.Duration
}

func NewService(repo *repository.Store, captureSvc *capture.Service, engine *restore.Engine, opTimeout time.Duration) *Service {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	return &Service{repo: repo, capture: captureSvc, engine: engine, opTimeout: opTimeout}
}

func (s *Service) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// CreateSnapshot captures the live tree under the given name.
func (s *Service) CreateSnapshot(ctx context.Context, name string, autoSave bool) (*snapshot.Record, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.capture.Capture(opCtx, name, autoSave)
}

// RestoreSnapshot replays a caller-supplied snapshot payload. The payload
// is decoded and validated before any tab is touched.
func (s *Service) RestoreSnapshot(ctx context.Context, payload []byte, closeCurrentTabs bool) (restore.Result, error) {
	rec, err := snapshot.Decode(payload)
	if err != nil {
		return restore.Result{}, err
	}
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.engine.Restore(opCtx, rec, closeCurrentTabs)
}

// RestoreByID replays a snapshot previously stored in the repository.
func (s *Service) RestoreByID(ctx context.Context, id string, closeCurrentTabs bool) (restore.Result, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	rec, err := s.repo.Get(opCtx, id)
	if err != nil {
		return restore.Result{}, err
	}
	return s.engine.Restore(opCtx, rec, closeCurrentTabs)
}

// GetSnapshot fetches one stored snapshot.
func (s *Service) GetSnapshot(ctx context.Context, id string) (*snapshot.Record, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.repo.Get(opCtx, id)
}

// ListSnapshots returns stored snapshot metadata, oldest first.
func (s *Service) ListSnapshots(ctx context.Context) ([]snapshot.Meta, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.repo.List(opCtx)
}

// DeleteSnapshot removes a stored snapshot. Deleting an unknown id is not
// an error.
func (s *Service) DeleteSnapshot(ctx context.Context, id string) error {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.repo.Delete(opCtx, id)
}

// CountSnapshots returns the number of stored snapshots.
func (s *Service) CountSnapshots(ctx context.Context) (int, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.repo.Count(opCtx)
}
