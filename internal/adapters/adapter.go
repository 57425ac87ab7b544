// Package adapters defines the common contract every per-source adapter
// satisfies, and a small stats helper shared by all of them.
package adapters

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/whaleintel/pipeline/internal/model"
)

// Adapter is satisfied by every per-chain/per-vendor source. Run blocks
// until ctx is canceled or an unrecoverable error occurs, emitting
// RawEvents on out. It must never panic: transient errors are swallowed
// internally and counted.
type Adapter interface {
	Name() model.SourceID
	Run(ctx context.Context, out chan<- model.RawEvent) error
	Stats() model.AdapterStats
}

// Counters is the atomic stat block embedded by every adapter
// implementation, exposed to the supervisor/API via Stats().
type Counters struct {
	fetched         int64
	filteredLowVal  int64
	errors          int64
	dropped         int64
	lastSuccessUnix int64

	mu      sync.RWMutex
	healthy bool
}

// Snapshot returns the current AdapterStats.
func (c *Counters) Snapshot() model.AdapterStats {
	c.mu.RLock()
	healthy := c.healthy
	c.mu.RUnlock()
	return model.AdapterStats{
		Fetched:          atomic.LoadInt64(&c.fetched),
		FilteredLowValue: atomic.LoadInt64(&c.filteredLowVal),
		Errors:           atomic.LoadInt64(&c.errors),
		Dropped:          atomic.LoadInt64(&c.dropped),
		LastSuccessTs:    atomic.LoadInt64(&c.lastSuccessUnix),
		Healthy:          healthy,
	}
}

func (c *Counters) MarkFetched()        { atomic.AddInt64(&c.fetched, 1) }
func (c *Counters) MarkFilteredLowVal() { atomic.AddInt64(&c.filteredLowVal, 1) }
func (c *Counters) MarkError()          { atomic.AddInt64(&c.errors, 1) }
func (c *Counters) MarkDropped()        { atomic.AddInt64(&c.dropped, 1) }

func (c *Counters) MarkSuccess() {
	atomic.StoreInt64(&c.lastSuccessUnix, time.Now().Unix())
	c.mu.Lock()
	c.healthy = true
	c.mu.Unlock()
}

func (c *Counters) SetHealthy(h bool) {
	c.mu.Lock()
	c.healthy = h
	c.mu.Unlock()
}

// Emit sends a RawEvent on out unless ctx is already done, so a
// canceled adapter never blocks forever on a full channel during
// shutdown.
func Emit(ctx context.Context, out chan<- model.RawEvent, ev model.RawEvent) {
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}
