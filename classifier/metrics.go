package classifier

import "sync"

// Metrics tracks classification statistics
type Metrics struct {
	mu            sync.RWMutex
	prefixMatches map[string]int64
	shapeMatches  map[string]int64
	unknown       int64
	cacheHits     int64
	cacheMisses   int64
}

func NewMetrics() *Metrics {
	return &Metrics{
		prefixMatches: make(map[string]int64),
		shapeMatches:  make(map[string]int64),
	}
}

func (m *Metrics) IncrementPrefixMatches(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefixMatches[kind]++
}

func (m *Metrics) IncrementShapeMatches(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shapeMatches[kind]++
}

func (m *Metrics) IncrementUnknown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unknown++
}

func (m *Metrics) IncrementCacheHits() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheHits++
}

func (m *Metrics) IncrementCacheMisses() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheMisses++
}

func (m *Metrics) GetSnapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := map[string]int64{
		"unknown":      m.unknown,
		"cache_hits":   m.cacheHits,
		"cache_misses": m.cacheMisses,
	}
	for kind, n := range m.prefixMatches {
		out["prefix_"+kind] = n
	}
	for kind, n := range m.shapeMatches {
		out["shape_"+kind] = n
	}
	return out
}
