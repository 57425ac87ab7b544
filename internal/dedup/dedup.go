// Package dedup implements the Deduplicator: exactly-once forwarding of
// RawEvents keyed by chain-specific identity, with a merge rule that
// lets a richer native-chain report backfill an earlier vendor-feed
// report of the same event.
package dedup

import (
	"sync"
	"time"

	"github.com/whaleintel/pipeline/internal/model"
)

type entry struct {
	event     model.RawEvent
	storedAt  time.Time
}

// Deduplicator is a single mutex-guarded map of dedup key -> stored event,
// plus atomic-by-lock counters.
type Deduplicator struct {
	mu      sync.Mutex
	entries map[model.DedupKey]entry

	totalReceived    int64
	duplicatesCaught int64
	byChain          map[string]model.ChainDedupStats
}

// New creates an empty Deduplicator.
func New() *Deduplicator {
	return &Deduplicator{
		entries: make(map[model.DedupKey]entry),
		byChain: make(map[string]model.ChainDedupStats),
	}
}

// Accept reports (unique, emitted) for raw. On first sight of a key the
// event is stored and forwarded (emitted=true). On a repeat, the merge
// rule backfills UsdValue on the stored event if the stored event had
// none, and emitted=false.
func (d *Deduplicator) Accept(raw model.RawEvent) (model.RawEvent, bool) {
	key := raw.Key()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.totalReceived++
	chainStats := d.byChain[raw.Blockchain]
	chainStats.Total++

	if existing, found := d.entries[key]; found {
		d.duplicatesCaught++
		chainStats.Duplicates++
		d.byChain[raw.Blockchain] = chainStats

		merged := existing.event
		if merged.UsdValue.IsZero() && !raw.UsdValue.IsZero() {
			merged.UsdValue = raw.UsdValue
		}
		d.entries[key] = entry{event: merged, storedAt: existing.storedAt}
		return model.RawEvent{}, false
	}

	d.byChain[raw.Blockchain] = chainStats
	d.entries[key] = entry{event: raw, storedAt: time.Now()}
	return raw, true
}

// Stats returns a snapshot of the Deduplicator's counters.
func (d *Deduplicator) Stats() model.DedupStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	byChain := make(map[string]model.ChainDedupStats, len(d.byChain))
	for k, v := range d.byChain {
		byChain[k] = v
	}

	return model.DedupStats{
		TotalReceived:    d.totalReceived,
		DuplicatesCaught: d.duplicatesCaught,
		ByChain:          byChain,
	}
}

// Sweep evicts entries whose storedAt is older than retention. Called
// periodically by the CES sweeper's companion task.
func (d *Deduplicator) Sweep(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)

	d.mu.Lock()
	defer d.mu.Unlock()

	evicted := 0
	for k, v := range d.entries {
		if v.storedAt.Before(cutoff) {
			delete(d.entries, k)
			evicted++
		}
	}
	return evicted
}

// Size returns the number of tracked keys, for metrics.
func (d *Deduplicator) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
