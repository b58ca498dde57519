// Package sanctions tracks flagged recipient names and when they were
// flagged. Lookups are point queries; absence of a name is "no match",
// never an error. There is no removal path.
package sanctions

import (
	"sync"
	"time"
)

// Entry is one flagged name with the time it was added.
type Entry struct {
	Name    string    `json:"name"`
	AddedAt time.Time `json:"added_at"`
}

// Registry is the flagged-name lookup interface. MemoryRegistry is the
// default; RedisRegistry mirrors entries so several engine instances share
// one list.
type Registry interface {
	// Add upserts a name; re-adding overwrites the timestamp.
	Add(name string, ts time.Time)

	// Lookup reports whether a name is flagged and since when.
	Lookup(name string) (time.Time, bool)

	// Entries returns a snapshot of all flagged names.
	Entries() []Entry
}

// SecondsSince reports how many whole seconds before now the name was
// flagged. Only meaningful when the name is present.
func SecondsSince(r Registry, name string, now time.Time) (int64, bool) {
	added, ok := r.Lookup(name)
	if !ok {
		return 0, false
	}
	return int64(now.Sub(added).Seconds()), true
}

// MemoryRegistry implements Registry with an in-process map.
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{entries: make(map[string]time.Time)}
}

func (r *MemoryRegistry) Add(name string, ts time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = ts
}

func (r *MemoryRegistry) Lookup(name string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ts, ok := r.entries[name]
	return ts, ok
}

func (r *MemoryRegistry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for name, ts := range r.entries {
		out = append(out, Entry{Name: name, AddedAt: ts})
	}
	return out
}
