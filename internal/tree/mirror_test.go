package tree

import (
	"reflect"
	"testing"
)

func newTestMirror() *Mirror {
	return NewMirror(View{ID: "view-default", Name: "Default", Color: "#999999"})
}

func walkIDs(m *Mirror) []string {
	ids := make([]string, 0, m.Len())
	m.Walk(func(n Node, _ int) {
		ids = append(ids, n.ID)
	})
	return ids
}

func TestWalkVisitsParentsBeforeChildren(t *testing.T) {
	m := newTestMirror()
	m.Put(Node{ID: "a", TabID: "a", URL: "https://a.example", ViewID: "view-default"})
	m.Put(Node{ID: "b", TabID: "b", ParentID: "a", ViewID: "view-default"})
	m.Put(Node{ID: "c", TabID: "c", ParentID: "b", ViewID: "view-default"})
	m.Put(Node{ID: "d", TabID: "d", ParentID: "a", ViewID: "view-default"})

	got := walkIDs(m)
	want := []string{"a", "b", "c", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Walk order = %v; want %v", got, want)
	}
}

func TestWalkGroupsByViewRegistrationOrder(t *testing.T) {
	m := newTestMirror()
	m.EnsureView(View{ID: "view-work", Name: "Work"})
	m.EnsureView(View{ID: "view-personal", Name: "Personal"})

	m.Put(Node{ID: "p1", TabID: "p1", ViewID: "view-personal"})
	m.Put(Node{ID: "w1", TabID: "w1", ViewID: "view-work"})
	m.Put(Node{ID: "w2", TabID: "w2", ViewID: "view-work"})

	got := walkIDs(m)
	want := []string{"w1", "w2", "p1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Walk order = %v; want %v", got, want)
	}
}

func TestPutUnknownViewFallsBackToDefault(t *testing.T) {
	m := newTestMirror()
	m.Put(Node{ID: "x", TabID: "x", ViewID: "view-ghost"})
	n, ok := m.Get("x")
	if !ok {
		t.Fatalf("Get(x) missing")
	}
	if n.ViewID != "view-default" {
		t.Fatalf("ViewID = %q; want view-default", n.ViewID)
	}
}

func TestPutUnknownParentBecomesRoot(t *testing.T) {
	m := newTestMirror()
	m.Put(Node{ID: "orphan", TabID: "orphan", ParentID: "nope", ViewID: "view-default"})
	n, _ := m.Get("orphan")
	if n.ParentID != "" {
		t.Fatalf("ParentID = %q; want root", n.ParentID)
	}
}

func TestSetParentReattaches(t *testing.T) {
	m := newTestMirror()
	m.Put(Node{ID: "a", TabID: "a", ViewID: "view-default"})
	m.Put(Node{ID: "b", TabID: "b", ViewID: "view-default"})

	if err := m.SetParent("b", "a"); err != nil {
		t.Fatalf("SetParent() failed: %v", err)
	}
	n, _ := m.Get("b")
	if n.ParentID != "a" {
		t.Fatalf("ParentID = %q; want a", n.ParentID)
	}

	if err := m.SetParent("b", "missing"); err == nil {
		t.Fatalf("SetParent(missing) should fail")
	}
}

func TestRemoveReattachesChildrenToGrandparent(t *testing.T) {
	m := newTestMirror()
	m.Put(Node{ID: "a", TabID: "a", ViewID: "view-default"})
	m.Put(Node{ID: "b", TabID: "b", ParentID: "a", ViewID: "view-default"})
	m.Put(Node{ID: "c", TabID: "c", ParentID: "b", ViewID: "view-default"})

	m.Remove("b")

	got := walkIDs(m)
	want := []string{"a", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Walk after remove = %v; want %v", got, want)
	}
	c, _ := m.Get("c")
	if c.ParentID != "a" {
		t.Fatalf("c.ParentID = %q; want a", c.ParentID)
	}

	// Removing a missing node is a no-op.
	m.Remove("b")
	if m.Len() != 2 {
		t.Fatalf("Len() = %d; want 2", m.Len())
	}
}

func TestNodeByTabID(t *testing.T) {
	m := newTestMirror()
	m.Put(Node{ID: "node-1", TabID: "tab-77", ViewID: "view-default"})
	n, ok := m.NodeByTabID("tab-77")
	if !ok || n.ID != "node-1" {
		t.Fatalf("NodeByTabID() = %+v, %v; want node-1, true", n, ok)
	}
	if _, ok := m.NodeByTabID("tab-nope"); ok {
		t.Fatalf("NodeByTabID(tab-nope) should be absent")
	}
}
