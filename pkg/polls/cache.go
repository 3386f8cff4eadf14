package polls

import "sync"

// Cache memoizes the last aggregation. Message lists only ever grow by
// merge, so the last message id plus the length identifies a list.
type Cache struct {
	mu     sync.Mutex
	key    cacheKey
	states map[string]*State
	valid  bool
}

type cacheKey struct {
	lastID string
	length int
}

// Get returns the tallies for entries, recomputing only when the list
// identity changed since the previous call.
func (c *Cache) Get(entries []Entry) map[string]*State {
	key := cacheKey{length: len(entries)}
	if len(entries) > 0 {
		key.lastID = entries[len(entries)-1].MessageID
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.valid && c.key == key {
		return c.states
	}
	c.states = Aggregate(entries)
	c.key = key
	c.valid = true
	return c.states
}

// Reset drops the memoized result.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.valid = false
	c.states = nil
	c.mu.Unlock()
}
