// Package restore materializes live tabs and tree edges from a snapshot
// record.
package restore

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/dgnsrekt/tab_arbor/internal/cdptabs"
	"github.com/dgnsrekt/tab_arbor/internal/snapshot"
	"github.com/dgnsrekt/tab_arbor/internal/tree"
)

const defaultTabTimeout = 15 * time.Second

// SkippedTab records one tab that failed to open during a restore.
type SkippedTab struct {
	Index  int    `json:"index"`
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// Result summarizes a completed restore. Skipped entries are non-fatal
// diagnostics; the operation as a whole succeeded.
type Result struct {
	SnapshotID string       `json:"snapshot_id"`
	Created    int          `json:"created"`
	Removed    int          `json:"removed"`
	Skipped    []SkippedTab `json:"skipped,omitempty"`
}

// Engine replays snapshot records against the live browser and the tree
// mirror.
type Engine struct {
	tabs       cdptabs.Driver
	mirror     *tree.Mirror
	tabTimeout time.Duration
}

// NewEngine builds an engine. tabTimeout bounds each individual
// tab-creation or tab-removal request.
func NewEngine(tabs cdptabs.Driver, mirror *tree.Mirror, tabTimeout time.Duration) *Engine {
	if tabTimeout <= 0 {
		tabTimeout = defaultTabTimeout
	}
	return &Engine{tabs: tabs, mirror: mirror, tabTimeout: tabTimeout}
}

// Restore reconstructs the tab tree described by rec. Structurally
// invalid records abort before any tab is created. Individual tab-open
// failures are skipped and reported in the result. When closeCurrentTabs
// is set, the pre-existing tab set is captured up front and removed only
// after the new tabs exist, so the window never passes through a
// zero-tab state.
func (e *Engine) Restore(ctx context.Context, rec *snapshot.Record, closeCurrentTabs bool) (Result, error) {
	if err := rec.Validate(); err != nil {
		return Result{}, err
	}

	res := Result{SnapshotID: rec.ID}

	var oldTabIDs []string
	if closeCurrentTabs {
		existing, err := e.tabs.Query(ctx)
		if err != nil {
			return Result{}, err
		}
		for _, t := range existing {
			oldTabIDs = append(oldTabIDs, t.TabID)
		}
	}

	for _, v := range rec.Data.Views {
		e.mirror.EnsureView(tree.View{ID: v.ID, Name: v.Name, Color: v.Color})
	}

	records := make([]snapshot.TabRecord, len(rec.Data.Tabs))
	copy(records, rec.Data.Tabs)
	sort.Slice(records, func(i, j int) bool { return records[i].Index < records[j].Index })

	// Pass one: create every tab, mapping snapshot index to live tab id.
	liveByIndex := make(map[int]string, len(records))
	for _, t := range records {
		createCtx, cancel := context.WithTimeout(ctx, e.tabTimeout)
		tabID, err := e.tabs.Create(createCtx, t.URL)
		cancel()
		if err != nil {
			res.Skipped = append(res.Skipped, SkippedTab{Index: t.Index, URL: t.URL, Reason: err.Error()})
			slog.Warn("restore skipped tab", "snapshot_id", rec.ID, "index", t.Index, "url", t.URL, "error", err)
			continue
		}
		liveByIndex[t.Index] = tabID

		viewID := t.ViewID
		if !rec.HasView(viewID) {
			viewID = e.mirror.DefaultViewID()
		}
		e.mirror.Put(tree.Node{
			ID:         tabID,
			TabID:      tabID,
			ViewID:     viewID,
			URL:        t.URL,
			Title:      t.Title,
			IsExpanded: t.IsExpanded,
			Pinned:     t.Pinned,
		})
		res.Created++
	}

	// Pass two: assign parent edges now that every live id exists. This
	// resolves parent references in any index order, including parents
	// whose index is higher than their child's.
	for _, t := range records {
		if t.ParentIndex == nil {
			continue
		}
		childID, ok := liveByIndex[t.Index]
		if !ok {
			continue
		}
		parentID, ok := liveByIndex[*t.ParentIndex]
		if !ok {
			slog.Warn("restore parent was skipped, child stays at root", "snapshot_id", rec.ID, "index", t.Index, "parent_index", *t.ParentIndex)
			continue
		}
		if err := e.mirror.SetParent(childID, parentID); err != nil {
			slog.Warn("restore edge assignment failed", "snapshot_id", rec.ID, "index", t.Index, "error", err)
		}
	}

	if closeCurrentTabs {
		res.Removed = e.removeOldTabs(ctx, rec.ID, oldTabIDs, res.Created)
	}

	slog.Info("restore complete",
		"snapshot_id", rec.ID,
		"created", res.Created,
		"removed", res.Removed,
		"skipped", len(res.Skipped),
	)
	return res, nil
}

// removeOldTabs closes the pre-captured tab set. When nothing new was
// created the old tabs are kept: hosts that forbid empty windows would
// otherwise tear the window down.
func (e *Engine) removeOldTabs(ctx context.Context, snapshotID string, oldTabIDs []string, created int) int {
	if len(oldTabIDs) == 0 {
		return 0
	}
	if created == 0 {
		slog.Warn("restore created no tabs, keeping existing ones", "snapshot_id", snapshotID)
		return 0
	}

	var (
		mu      sync.Mutex
		removed int
	)
	p := pool.New().WithMaxGoroutines(4)
	for _, tabID := range oldTabIDs {
		id := tabID
		p.Go(func() {
			removeCtx, cancel := context.WithTimeout(ctx, e.tabTimeout)
			defer cancel()
			if err := e.tabs.Remove(removeCtx, id); err != nil {
				slog.Warn("restore failed to close old tab", "snapshot_id", snapshotID, "tab_id", id, "error", err)
				return
			}
			if n, ok := e.mirror.NodeByTabID(id); ok {
				e.mirror.Remove(n.ID)
			}
			mu.Lock()
			removed++
			mu.Unlock()
		})
	}
	p.Wait()
	return removed
}
