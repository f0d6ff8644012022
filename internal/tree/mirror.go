// Package tree holds the in-memory mirror of currently open tabs and
// their parent/child/view relationships. The mirror is the single shared
// structure the capture service reads and the restoration engine writes;
// all access serializes through one lock.
package tree

import (
	"fmt"
	"sync"
)

// View is a named partition of tabs in the live tree.
type View struct {
	ID    string
	Name  string
	Color string
}

// Node is one live tab in the mirror. TabID is the browser-side target
// id; ID is the mirror-local node id (the two are equal for nodes created
// from live tabs).
type Node struct {
	ID         string
	TabID      string
	ParentID   string
	ViewID     string
	URL        string
	Title      string
	IsExpanded bool
	Pinned     bool
}

// Mirror tracks the live tab tree. Traversal order is deterministic:
// views in registration order, roots in insertion order, children in
// insertion order under their parent.
type Mirror struct {
	mu          sync.RWMutex
	defaultView View
	views       []View
	viewSet     map[string]int
	nodes       map[string]*Node
	children    map[string][]string // parent node id -> ordered child ids; "" is the root tier
}

// NewMirror creates a mirror with the given default view always present.
func NewMirror(defaultView View) *Mirror {
	m := &Mirror{
		defaultView: defaultView,
		viewSet:     make(map[string]int),
		nodes:       make(map[string]*Node),
		children:    make(map[string][]string),
	}
	m.views = append(m.views, defaultView)
	m.viewSet[defaultView.ID] = 0
	return m
}

// DefaultViewID returns the id of the fallback view.
func (m *Mirror) DefaultViewID() string {
	return m.defaultView.ID
}

// EnsureView registers a view if it is not already known.
func (m *Mirror) EnsureView(v View) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.viewSet[v.ID]; ok {
		return
	}
	m.viewSet[v.ID] = len(m.views)
	m.views = append(m.views, v)
}

// Views returns registered views in registration order.
func (m *Mirror) Views() []View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]View, len(m.views))
	copy(out, m.views)
	return out
}

// HasView reports whether the view id is registered.
func (m *Mirror) HasView(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.viewSet[id]
	return ok
}

// Put upserts a node. A new node is appended to its parent's child list
// (root tier when ParentID is empty); an unknown ViewID falls back to the
// default view, and an unknown ParentID makes the node a root rather than
// failing.
func (m *Mirror) Put(n Node) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.viewSet[n.ViewID]; !ok {
		n.ViewID = m.defaultView.ID
	}
	if n.ParentID != "" {
		if _, ok := m.nodes[n.ParentID]; !ok {
			n.ParentID = ""
		}
	}

	if existing, ok := m.nodes[n.ID]; ok {
		if existing.ParentID != n.ParentID {
			m.detachLocked(n.ID, existing.ParentID)
			m.children[n.ParentID] = append(m.children[n.ParentID], n.ID)
		}
		*existing = n
		return
	}

	copied := n
	m.nodes[n.ID] = &copied
	m.children[n.ParentID] = append(m.children[n.ParentID], n.ID)
}

// SetParent reattaches a node under a new parent. The edge is appended at
// the end of the parent's child list.
func (m *Mirror) SetParent(id, parentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.nodes[id]
	if !ok {
		return fmt.Errorf("tree: node %s not found", id)
	}
	if parentID != "" {
		if _, ok := m.nodes[parentID]; !ok {
			return fmt.Errorf("tree: parent %s not found", parentID)
		}
	}
	if node.ParentID == parentID {
		return nil
	}
	m.detachLocked(id, node.ParentID)
	node.ParentID = parentID
	m.children[parentID] = append(m.children[parentID], id)
	return nil
}

// SetView moves a node into the given view, falling back to the default
// view when the id is unknown.
func (m *Mirror) SetView(id, viewID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	node, ok := m.nodes[id]
	if !ok {
		return fmt.Errorf("tree: node %s not found", id)
	}
	if _, ok := m.viewSet[viewID]; !ok {
		viewID = m.defaultView.ID
	}
	node.ViewID = viewID
	return nil
}

// SetNavigation updates the URL and title of the node mirroring tabID
// without disturbing its tree position or view. Unknown tabs are ignored.
func (m *Mirror) SetNavigation(tabID, url, title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.nodes {
		if n.TabID == tabID {
			n.URL = url
			n.Title = title
			return
		}
	}
}

// Remove deletes a node; its children are reattached to the removed
// node's parent, preserving their relative order.
func (m *Mirror) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.nodes[id]
	if !ok {
		return
	}
	m.detachLocked(id, node.ParentID)

	orphans := m.children[id]
	delete(m.children, id)
	for _, childID := range orphans {
		if child, ok := m.nodes[childID]; ok {
			child.ParentID = node.ParentID
		}
	}
	m.children[node.ParentID] = append(m.children[node.ParentID], orphans...)

	delete(m.nodes, id)
}

// Clear drops all nodes but keeps registered views.
func (m *Mirror) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes = make(map[string]*Node)
	m.children = make(map[string][]string)
}

// Len returns the number of nodes.
func (m *Mirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

// NodeByTabID finds the node mirroring the given live tab id.
func (m *Mirror) NodeByTabID(tabID string) (Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, n := range m.nodes {
		if n.TabID == tabID {
			return *n, true
		}
	}
	return Node{}, false
}

// Get returns a node by mirror id.
func (m *Mirror) Get(id string) (Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Walk visits every node exactly once in deterministic order: per view in
// registration order, depth-first from each root, sibling order
// preserved. Parents are always visited before their children.
func (m *Mirror) Walk(fn func(n Node, depth int)) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, v := range m.views {
		for _, rootID := range m.children[""] {
			root := m.nodes[rootID]
			if root == nil || root.ViewID != v.ID {
				continue
			}
			m.walkLocked(rootID, 0, fn)
		}
	}
}

// Nodes returns all nodes in Walk order.
func (m *Mirror) Nodes() []Node {
	out := make([]Node, 0, m.Len())
	m.Walk(func(n Node, _ int) {
		out = append(out, n)
	})
	return out
}

func (m *Mirror) walkLocked(id string, depth int, fn func(n Node, depth int)) {
	node := m.nodes[id]
	if node == nil {
		return
	}
	fn(*node, depth)
	for _, childID := range m.children[id] {
		m.walkLocked(childID, depth+1, fn)
	}
}

func (m *Mirror) detachLocked(id, parentID string) {
	siblings := m.children[parentID]
	for i, sib := range siblings {
		if sib == id {
			m.children[parentID] = append(siblings[:i], siblings[i+1:]...)
			return
		}
	}
}
