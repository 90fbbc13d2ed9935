package bundle

import "sync"

// Collection is the ordered set of bundles keyed by id. Readers get
// copies; writers replace whole entries by id.
type Collection struct {
	mu      sync.RWMutex
	order   []string
	byID    map[string]Bundle
	version uint64
}

// NewCollection builds a collection preserving the given order. Later
// entries with an id already seen are dropped.
func NewCollection(bundles []Bundle) *Collection {
	c := &Collection{byID: make(map[string]Bundle, len(bundles))}
	for _, b := range bundles {
		if _, ok := c.byID[b.ID]; ok {
			continue
		}
		c.order = append(c.order, b.ID)
		c.byID[b.ID] = b.Clone()
	}
	return c
}

// Len returns the number of bundles.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Version increases on every successful Replace or Reset.
func (c *Collection) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// All returns a snapshot in collection order.
func (c *Collection) All() []Bundle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Bundle, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id].Clone())
	}
	return out
}

// Get returns a copy of the bundle with the given id.
func (c *Collection) Get(id string) (Bundle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.byID[id]
	if !ok {
		return Bundle{}, false
	}
	return b.Clone(), true
}

// Select returns copies of the bundles with the given ids, in collection
// order. Unknown ids are ignored.
func (c *Collection) Select(ids []string) []Bundle {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Bundle
	for _, id := range c.order {
		if want[id] {
			out = append(out, c.byID[id].Clone())
		}
	}
	return out
}

// Replace swaps in updated bundles by id and returns how many matched.
// Bundles whose id is unknown are ignored.
func (c *Collection) Replace(updates ...Bundle) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range updates {
		if _, ok := c.byID[b.ID]; !ok {
			continue
		}
		c.byID[b.ID] = b.Clone()
		n++
	}
	if n > 0 {
		c.version++
	}
	return n
}

// Update applies fn to the bundle with the given id under the write lock.
func (c *Collection) Update(id string, fn func(Bundle) Bundle) (Bundle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.byID[id]
	if !ok {
		return Bundle{}, false
	}
	next := fn(b.Clone())
	next.ID = id
	c.byID[id] = next.Clone()
	c.version++
	return next, true
}

// Reset replaces the whole contents, e.g. after a re-scan.
func (c *Collection) Reset(bundles []Bundle) {
	fresh := NewCollection(bundles)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = fresh.order
	c.byID = fresh.byID
	c.version++
}
