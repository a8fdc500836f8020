package client

import (
	"strings"
	"sync"
)

// Cache is a write-through mirror of one guest's bookings. It never serves as
// a source of truth: every successful transition refreshes the entry from the
// node, and Invalidate drops entries whose fate is unknown so the next read
// goes back to the node.
type Cache struct {
	mu      sync.RWMutex
	guest   string
	order   []uint64
	entries map[uint64]*BookingState
}

func NewCache(guest string) *Cache {
	return &Cache{
		guest:   strings.ToLower(strings.TrimSpace(guest)),
		entries: make(map[uint64]*BookingState),
	}
}

// Guest returns the identity this cache is scoped to.
func (c *Cache) Guest() string { return c.guest }

// Put stores a snapshot, preserving first-insertion order for List. Snapshots
// belonging to a different guest are ignored.
func (c *Cache) Put(b *BookingState) {
	if c == nil || b == nil || b.ID == 0 {
		return
	}
	if c.guest != "" && strings.ToLower(b.Guest) != c.guest {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[b.ID]; !ok {
		c.order = append(c.order, b.ID)
	}
	copied := *b
	c.entries[b.ID] = &copied
}

// Get returns the cached snapshot for id, if any.
func (c *Cache) Get(id uint64) (*BookingState, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	copied := *b
	return &copied, true
}

// List returns all cached snapshots in insertion order.
func (c *Cache) List() []BookingState {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]BookingState, 0, len(c.order))
	for _, id := range c.order {
		if b, ok := c.entries[id]; ok {
			out = append(out, *b)
		}
	}
	return out
}

// Invalidate drops the snapshot for id.
func (c *Cache) Invalidate(id uint64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[id]; !ok {
		return
	}
	delete(c.entries, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
