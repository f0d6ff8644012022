// Package capture flattens the live tab tree into snapshot records and
// persists them.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgnsrekt/tab_arbor/internal/repository"
	"github.com/dgnsrekt/tab_arbor/internal/snapshot"
	"github.com/dgnsrekt/tab_arbor/internal/tree"
)

// Service turns the mirror's current state into persisted snapshots.
type Service struct {
	mirror   *tree.Mirror
	repo     *repository.Store
	exporter *Exporter // nil disables file export
}

func NewService(mirror *tree.Mirror, repo *repository.Store, exporter *Exporter) *Service {
	return &Service{mirror: mirror, repo: repo, exporter: exporter}
}

// Capture serializes the live tree into a new snapshot record and stores
// it. Index assignment follows the mirror's traversal order, so a parent
// always receives a lower index than any of its children. Export failures
// are logged but never fail the capture.
func (s *Service) Capture(ctx context.Context, name string, autoSave bool) (*snapshot.Record, error) {
	now := time.Now().UTC()
	if name == "" {
		name = "Snapshot " + now.Format("2006-01-02 15:04:05")
	}

	rec := &snapshot.Record{
		ID:         snapshot.NewID(),
		CreatedAt:  now,
		Name:       name,
		IsAutoSave: autoSave,
	}

	for _, v := range s.mirror.Views() {
		rec.Data.Views = append(rec.Data.Views, snapshot.View{ID: v.ID, Name: v.Name, Color: v.Color})
	}

	indexByNode := make(map[string]int, s.mirror.Len())
	s.mirror.Walk(func(n tree.Node, _ int) {
		idx := len(rec.Data.Tabs)
		indexByNode[n.ID] = idx
		tab := snapshot.TabRecord{
			Index:      idx,
			URL:        n.URL,
			Title:      n.Title,
			ViewID:     n.ViewID,
			IsExpanded: n.IsExpanded,
			Pinned:     n.Pinned,
		}
		if n.ParentID != "" {
			// Walk visits parents first, so the parent index is known.
			if pIdx, ok := indexByNode[n.ParentID]; ok {
				p := pIdx
				tab.ParentIndex = &p
			}
		}
		rec.Data.Tabs = append(rec.Data.Tabs, tab)
	})

	if rec.Data.Tabs == nil {
		rec.Data.Tabs = []snapshot.TabRecord{}
	}

	id, err := s.repo.Put(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("capture: persist snapshot: %w", err)
	}

	if s.exporter != nil {
		if _, err := s.exporter.Export(rec); err != nil {
			slog.Warn("snapshot export failed", "snapshot_id", id, "error", err)
		}
	}

	slog.Info("snapshot captured", "snapshot_id", id, "name", name, "tabs", len(rec.Data.Tabs), "auto_save", autoSave)
	return rec, nil
}
