// Package dedupe tracks device cooldown windows for report deduplication.
package dedupe

import (
	"sync"
	"time"
)

// Tracker decides whether a keyed submission opens a new cooldown window.
type Tracker interface {
	// Admit reports whether at starts a new window for key. A true result
	// anchors the window at at; later calls inside the window return false
	// and do not move the anchor.
	Admit(key string, at time.Time) bool

	Size() int
}

// node is one anchored window in arrival order.
type node struct {
	key    string
	anchor time.Time
	prev   *node
	next   *node
}

func (n *node) reset() {
	n.key = ""
	n.anchor = time.Time{}
	n.prev = nil
	n.next = nil
}

// cooldownTracker keeps anchors in a map plus an arrival-ordered list so the
// oldest anchor can be evicted in O(1) once maxSize is reached.
// maxSize <= 0 means unbounded.
type cooldownTracker struct {
	mu       sync.Mutex
	window   time.Duration
	maxSize  int
	anchors  map[string]*node
	head     *node // oldest
	tail     *node // newest
	nodePool sync.Pool
}

// NewCooldownTracker creates a tracker with a 10 minute window and room for
// 100000 keys unless overridden.
func NewCooldownTracker(opts ...Option) Tracker {
	t := &cooldownTracker{
		window:  10 * time.Minute,
		maxSize: 100000,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.anchors = make(map[string]*node)
	t.nodePool = sync.Pool{
		New: func() interface{} {
			return &node{}
		},
	}
	return t
}

func (t *cooldownTracker) Admit(key string, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n, ok := t.anchors[key]; ok {
		if at.Sub(n.anchor) < t.window {
			return false
		}
		// Window elapsed: re-anchor and move to the newest end.
		t.unlink(n)
		n.anchor = at
		t.pushBack(n)
		return true
	}

	if t.maxSize > 0 && len(t.anchors) >= t.maxSize {
		t.evictOldest()
	}
	n := t.nodePool.Get().(*node)
	n.key = key
	n.anchor = at
	t.anchors[key] = n
	t.pushBack(n)
	return true
}

func (t *cooldownTracker) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.anchors)
}

// Must be called with t.mu held.
func (t *cooldownTracker) pushBack(n *node) {
	n.prev = t.tail
	n.next = nil
	if t.tail != nil {
		t.tail.next = n
	}
	t.tail = n
	if t.head == nil {
		t.head = n
	}
}

// Must be called with t.mu held.
func (t *cooldownTracker) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		t.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		t.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

// Must be called with t.mu held.
func (t *cooldownTracker) evictOldest() {
	n := t.head
	if n == nil {
		return
	}
	t.unlink(n)
	delete(t.anchors, n.key)
	n.reset()
	t.nodePool.Put(n)
}
