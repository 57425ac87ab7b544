// Package ces implements the Classified Event Store: an in-memory,
// time-ordered window of recent ClassifiedEvents plus per-symbol
// running counters.
package ces

import (
	"sort"
	"sync"
	"time"

	"github.com/whaleintel/pipeline/internal/model"
)

// Filter narrows RecentByFilter's result set.
type Filter struct {
	MinValue   float64
	Blockchain string
	Symbol     string
	Type       model.Classification // "" means any
	Limit      int
}

// Store is the Classified Event Store.
type Store struct {
	retention time.Duration
	maxEntries int

	mu       sync.RWMutex
	byHash   map[string]*model.ClassifiedEvent // tx_hash -> event, newest wins
	ordered  []*model.ClassifiedEvent          // insertion order, oldest first
	counters map[string]*model.TokenCounter
}

// New creates a Store with the given retention TTL and capacity cap.
func New(retention time.Duration, maxEntries int) *Store {
	return &Store{
		retention:  retention,
		maxEntries: maxEntries,
		byHash:     make(map[string]*model.ClassifiedEvent),
		counters:   make(map[string]*model.TokenCounter),
	}
}

// Insert adds a ClassifiedEvent, updating the per-symbol TokenCounter.
// Counters are updated by the engine/CES task only; readers always
// observe via snapshot methods.
func (s *Store) Insert(ev model.ClassifiedEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := ev
	s.byHash[ev.TxHash] = &stored
	s.ordered = append(s.ordered, &stored)

	counter, ok := s.counters[ev.Symbol]
	if !ok {
		counter = &model.TokenCounter{Symbol: ev.Symbol}
		s.counters[ev.Symbol] = counter
	}
	switch ev.Classification {
	case model.ClassBuy:
		counter.Buys++
		usd, _ := ev.UsdValue.Float64()
		counter.BuyVolumeUSD += usd
	case model.ClassSell:
		counter.Sells++
		usd, _ := ev.UsdValue.Float64()
		counter.SellVolumeUSD += usd
	default:
		counter.Transfers++
	}
	counter.ConfidenceSum += ev.Confidence
	counter.WhaleScoreSum += ev.WhaleScore
	counter.TxCount++

	s.evictLocked()
}

// evictLocked removes entries past the TTL or past the capacity cap,
// oldest-first. Caller must hold s.mu.
func (s *Store) evictLocked() {
	cutoff := time.Now().Add(-s.retention)
	kept := s.ordered[:0]
	for _, e := range s.ordered {
		if e.ClassifiedAt.Before(cutoff) {
			delete(s.byHash, e.TxHash)
			continue
		}
		kept = append(kept, e)
	}
	s.ordered = kept

	if s.maxEntries > 0 {
		for len(s.ordered) > s.maxEntries {
			oldest := s.ordered[0]
			delete(s.byHash, oldest.TxHash)
			s.ordered = s.ordered[1:]
		}
	}
}

// Sweep runs eviction outside of an Insert call, for the background
// sweeper task.
func (s *Store) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
}

// RecentByFilter returns events matching filter, newest-inserted first
// (the order events were classified in, not a sort on any timestamp
// field), capped at filter.Limit.
func (s *Store) RecentByFilter(f Filter) []model.ClassifiedEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	matches := make([]model.ClassifiedEvent, 0, limit)
	for i := len(s.ordered) - 1; i >= 0; i-- {
		e := s.ordered[i]
		usd, _ := e.UsdValue.Float64()
		if f.MinValue > 0 && usd < f.MinValue {
			continue
		}
		if f.Blockchain != "" && e.Blockchain != f.Blockchain {
			continue
		}
		if f.Symbol != "" && e.Symbol != f.Symbol {
			continue
		}
		if f.Type != "" && e.Classification != f.Type {
			continue
		}
		matches = append(matches, *e)
		if len(matches) >= limit {
			break
		}
	}
	return matches
}

// TokenCounters returns a snapshot copy of all per-symbol counters.
func (s *Store) TokenCounters() map[string]model.TokenCounter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]model.TokenCounter, len(s.counters))
	for symbol, c := range s.counters {
		out[symbol] = *c
	}
	return out
}

// EventsForSymbolSince returns all events for symbol at or after since,
// sorted by timestamp ascending. Used by the sentiment aggregator.
func (s *Store) EventsForSymbolSince(symbol string, since time.Time) []model.ClassifiedEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []model.ClassifiedEvent
	for _, e := range s.ordered {
		if e.Symbol != symbol {
			continue
		}
		if e.ClassifiedAt.Before(since) {
			continue
		}
		matches = append(matches, *e)
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].ClassifiedAt.Before(matches[j].ClassifiedAt)
	})
	return matches
}

// Symbols returns the distinct set of symbols currently tracked.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.counters))
	for symbol := range s.counters {
		out = append(out, symbol)
	}
	return out
}

// Size returns the number of entries currently retained.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ordered)
}
