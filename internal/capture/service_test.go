package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dgnsrekt/tab_arbor/internal/cdptabs"
	"github.com/dgnsrekt/tab_arbor/internal/repository"
	"github.com/dgnsrekt/tab_arbor/internal/restore"
	"github.com/dgnsrekt/tab_arbor/internal/snapshot"
	"github.com/dgnsrekt/tab_arbor/internal/tree"
)

type fakeDriver struct {
	mu      sync.Mutex
	seq     int
	created []string
}

func (f *fakeDriver) Create(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if url == "" {
		return "", errors.New("empty url")
	}
	id := fmt.Sprintf("live-%d", f.seq)
	f.seq++
	f.created = append(f.created, id)
	return id, nil
}

func (f *fakeDriver) Remove(context.Context, string) error   { return nil }
func (f *fakeDriver) Activate(context.Context, string) error { return nil }
func (f *fakeDriver) Move(string, int) error                 { return nil }
func (f *fakeDriver) Query(context.Context) ([]cdptabs.TabInfo, error) {
	return nil, nil
}

func openTestStore(t *testing.T) *repository.Store {
	t.Helper()
	store, err := repository.Open(filepath.Join(t.TempDir(), "snapshots.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedMirror(m *tree.Mirror) {
	m.EnsureView(tree.View{ID: "view-work", Name: "Work"})
	m.Put(tree.Node{ID: "a", TabID: "a", ViewID: "view-default", URL: "https://a.example", Title: "A"})
	m.Put(tree.Node{ID: "b", TabID: "b", ParentID: "a", ViewID: "view-default", URL: "https://b.example", Title: "B"})
	m.Put(tree.Node{ID: "c", TabID: "c", ParentID: "b", ViewID: "view-default", URL: "https://c.example", Title: "C", Pinned: true})
	m.Put(tree.Node{ID: "d", TabID: "d", ViewID: "view-work", URL: "https://d.example", Title: "D", IsExpanded: true})
}

func TestCaptureAssignsDenseIndicesParentsFirst(t *testing.T) {
	m := tree.NewMirror(tree.View{ID: "view-default", Name: "Default"})
	seedMirror(m)
	svc := NewService(m, openTestStore(t), nil)

	rec, err := svc.Capture(context.Background(), "layout", false)
	if err != nil {
		t.Fatalf("Capture() failed: %v", err)
	}
	if err := rec.Validate(); err != nil {
		t.Fatalf("captured record invalid: %v", err)
	}
	if len(rec.Data.Tabs) != 4 {
		t.Fatalf("captured %d tabs; want 4", len(rec.Data.Tabs))
	}

	for i, tab := range rec.Data.Tabs {
		if tab.Index != i {
			t.Fatalf("tab %d has index %d; indices must be dense", i, tab.Index)
		}
		if tab.ParentIndex != nil && *tab.ParentIndex >= tab.Index {
			t.Fatalf("tab %d references parent %d; parents must come first", tab.Index, *tab.ParentIndex)
		}
	}

	// a -> b -> c chain, d is a root in its own view.
	if rec.Data.Tabs[0].ParentIndex != nil {
		t.Fatalf("tab 0 should be a root")
	}
	if p := rec.Data.Tabs[1].ParentIndex; p == nil || *p != 0 {
		t.Fatalf("tab 1 parent = %v; want 0", p)
	}
	if p := rec.Data.Tabs[2].ParentIndex; p == nil || *p != 1 {
		t.Fatalf("tab 2 parent = %v; want 1", p)
	}
	if rec.Data.Tabs[3].ViewID != "view-work" {
		t.Fatalf("tab 3 view = %q; want view-work", rec.Data.Tabs[3].ViewID)
	}
}

func TestCaptureDefaultsNameAndPersists(t *testing.T) {
	m := tree.NewMirror(tree.View{ID: "view-default", Name: "Default"})
	seedMirror(m)
	store := openTestStore(t)
	svc := NewService(m, store, nil)

	rec, err := svc.Capture(context.Background(), "", true)
	if err != nil {
		t.Fatalf("Capture() failed: %v", err)
	}
	if rec.Name == "" {
		t.Fatalf("Capture() left name empty")
	}
	if !rec.IsAutoSave {
		t.Fatalf("Capture() dropped auto-save flag")
	}

	got, err := store.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Get() after capture failed: %v", err)
	}
	if len(got.Data.Tabs) != len(rec.Data.Tabs) {
		t.Fatalf("persisted %d tabs; want %d", len(got.Data.Tabs), len(rec.Data.Tabs))
	}
}

func TestCaptureRestoreCaptureIsIsomorphic(t *testing.T) {
	m1 := tree.NewMirror(tree.View{ID: "view-default", Name: "Default"})
	seedMirror(m1)
	store := openTestStore(t)

	rec, err := NewService(m1, store, nil).Capture(context.Background(), "before", false)
	if err != nil {
		t.Fatalf("first Capture() failed: %v", err)
	}

	m2 := tree.NewMirror(tree.View{ID: "view-default", Name: "Default"})
	eng := restore.NewEngine(&fakeDriver{}, m2, 0)
	if _, err := eng.Restore(context.Background(), rec, false); err != nil {
		t.Fatalf("Restore() failed: %v", err)
	}

	rec2, err := NewService(m2, store, nil).Capture(context.Background(), "after", false)
	if err != nil {
		t.Fatalf("second Capture() failed: %v", err)
	}

	if len(rec2.Data.Tabs) != len(rec.Data.Tabs) {
		t.Fatalf("round trip changed tab count: %d -> %d", len(rec.Data.Tabs), len(rec2.Data.Tabs))
	}
	for i := range rec.Data.Tabs {
		a, b := rec.Data.Tabs[i], rec2.Data.Tabs[i]
		if a.URL != b.URL || a.ViewID != b.ViewID {
			t.Fatalf("tab %d diverged: %+v vs %+v", i, a, b)
		}
		switch {
		case a.ParentIndex == nil && b.ParentIndex == nil:
		case a.ParentIndex != nil && b.ParentIndex != nil && *a.ParentIndex == *b.ParentIndex:
		default:
			t.Fatalf("tab %d parent diverged: %v vs %v", i, a.ParentIndex, b.ParentIndex)
		}
	}
}

func TestExportWritesLoadableFile(t *testing.T) {
	m := tree.NewMirror(tree.View{ID: "view-default", Name: "Default"})
	seedMirror(m)
	dir := t.TempDir()
	exp, err := NewExporter(dir)
	if err != nil {
		t.Fatalf("NewExporter() failed: %v", err)
	}

	rec, err := NewService(m, openTestStore(t), exp).Capture(context.Background(), "exported", false)
	if err != nil {
		t.Fatalf("Capture() failed: %v", err)
	}

	loaded, err := LoadFile(filepath.Join(dir, rec.ID+".json"))
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if loaded.ID != rec.ID || len(loaded.Data.Tabs) != len(rec.Data.Tabs) {
		t.Fatalf("loaded record diverged from captured one")
	}
}

func TestLoadFileRejectsNonSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "junk.json")
	if err := os.WriteFile(path, []byte(`{"hello":"world"}`), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	_, err := LoadFile(path)
	if !snapshot.IsCode(err, snapshot.CodeMalformed) {
		t.Fatalf("LoadFile() error = %v; want %s", err, snapshot.CodeMalformed)
	}
}
