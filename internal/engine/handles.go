package engine

import "sync"

// HandleRegistry tracks the server-assigned object handles of one session
// and the parent/child relationships between them. Application handles are
// roots; session objects are children of an application handle. Pure
// bookkeeping — no network I/O.
type HandleRegistry struct {
	mu    sync.Mutex
	nodes map[int]*handleNode
}

type handleNode struct {
	parent   int // -1 for roots
	children []int
	closed   bool
}

func NewHandleRegistry() *HandleRegistry {
	return &HandleRegistry{nodes: make(map[int]*handleNode)}
}

// RegisterRoot records a new application handle.
func (r *HandleRegistry) RegisterRoot(h int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[h] = &handleNode{parent: -1}
}

// RegisterChild records a session-object handle under its application.
// Fails if the parent is unknown or already closed.
func (r *HandleRegistry) RegisterChild(parent, h int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.nodes[parent]
	if !ok || p.closed {
		return errf(KindInvalidHandle, "parent handle %d unknown or closed", parent)
	}
	r.nodes[h] = &handleNode{parent: parent}
	p.children = append(p.children, h)
	return nil
}

// Resolve fails if h is unknown or has been closed.
func (r *HandleRegistry) Resolve(h int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[h]
	if !ok {
		return errf(KindInvalidHandle, "handle %d unknown", h)
	}
	if n.closed {
		return errf(KindInvalidHandle, "handle %d closed", h)
	}
	return nil
}

// CloseRoot marks an application handle and every handle in its subtree
// closed. This is what prevents use of stale object handles after the
// application goes away.
func (r *HandleRegistry) CloseRoot(h int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[h]
	if !ok {
		return errf(KindInvalidHandle, "handle %d unknown", h)
	}
	if n.parent != -1 {
		return errf(KindInvalidHandle, "handle %d is not a root", h)
	}
	r.closeSubtree(h)
	return nil
}

// Release closes one handle and its descendants; used when an ephemeral
// session object is destroyed.
func (r *HandleRegistry) Release(h int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nodes[h]; ok {
		r.closeSubtree(h)
	}
}

// closeSubtree requires r.mu held.
func (r *HandleRegistry) closeSubtree(h int) {
	n := r.nodes[h]
	n.closed = true
	for _, c := range n.children {
		r.closeSubtree(c)
	}
}
