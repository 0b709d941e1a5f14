package refdata

import (
	"sync"

	"orderbridge/internal/model"
)

const memoCapacity = 256

// memo is a small bounded cache of resolutions. Entries carry the store
// generation they were computed against; a reload bumps the generation
// and silently invalidates everything older. When full, the map is
// dropped wholesale rather than tracking recency, resolutions are cheap
// enough to recompute.
type memo struct {
	mu      sync.Mutex
	entries map[memoKey]memoEntry
}

type memoKey struct {
	raw      string
	exchange model.Exchange
	future   bool
}

type memoEntry struct {
	gen  uint64
	inst model.ResolvedInstrument
}

func newMemo() *memo {
	return &memo{entries: make(map[memoKey]memoEntry, memoCapacity)}
}

func (m *memo) get(k memoKey, gen uint64) (model.ResolvedInstrument, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[k]
	if !ok || e.gen != gen {
		return model.ResolvedInstrument{}, false
	}
	return e.inst, true
}

func (m *memo) put(k memoKey, gen uint64, inst model.ResolvedInstrument) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) >= memoCapacity {
		m.entries = make(map[memoKey]memoEntry, memoCapacity)
	}
	m.entries[k] = memoEntry{gen: gen, inst: inst}
}
