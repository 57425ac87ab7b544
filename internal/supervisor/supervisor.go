// Package supervisor starts every long-lived task of the pipeline
// (adapters, dedup dispatcher, CES/dedup sweepers, sentiment
// aggregator), restarts adapters on failure with capped exponential
// backoff, tracks degraded adapters, and performs a bounded graceful
// shutdown with a final aggregated summary.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/whaleintel/pipeline/internal/adapters"
	"github.com/whaleintel/pipeline/internal/ais"
	"github.com/whaleintel/pipeline/internal/ces"
	"github.com/whaleintel/pipeline/internal/dedup"
	"github.com/whaleintel/pipeline/internal/engine"
	"github.com/whaleintel/pipeline/internal/model"
	"github.com/whaleintel/pipeline/internal/sentiment"
)

// Supervisor owns every background task in the pipeline.
type Supervisor struct {
	adapters []adapters.Adapter
	ais      *ais.Store
	dedup    *dedup.Deduplicator
	engine   *engine.Engine
	store    *ces.Store
	sentiment *sentiment.Aggregator

	aisRefresh    time.Duration
	cesSweepEvery time.Duration
	dedupRetention time.Duration
	maxConsecutiveFailures int

	mu       sync.RWMutex
	degraded map[model.SourceID]bool
}

// New constructs a Supervisor. adapterList is the set of enabled
// adapters (already filtered by config); ais/dedup/eng/store/agg are
// the pipeline's shared components.
func New(adapterList []adapters.Adapter, aisStore *ais.Store, deduper *dedup.Deduplicator, eng *engine.Engine, store *ces.Store, agg *sentiment.Aggregator, aisRefresh, cesSweepEvery, dedupRetention time.Duration, maxConsecutiveFailures int) *Supervisor {
	return &Supervisor{
		adapters:               adapterList,
		ais:                    aisStore,
		dedup:                  deduper,
		engine:                 eng,
		store:                  store,
		sentiment:              agg,
		aisRefresh:             aisRefresh,
		cesSweepEvery:          cesSweepEvery,
		dedupRetention:         dedupRetention,
		maxConsecutiveFailures: maxConsecutiveFailures,
		degraded:               make(map[model.SourceID]bool),
	}
}

// AdapterStats implements api.AdapterMonitor.
func (s *Supervisor) AdapterStats() map[string]model.AdapterStats {
	out := make(map[string]model.AdapterStats, len(s.adapters))
	for _, a := range s.adapters {
		out[string(a.Name())] = a.Stats()
	}
	return out
}

// Run starts all tasks and blocks until an OS interrupt/SIGTERM is
// received, then performs a graceful shutdown. It returns the final
// per-symbol token counters for the caller (e.g. cmd/whaleintel) to
// render with Summary.
func (s *Supervisor) Run() map[string]model.TokenCounter {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rawEvents := make(chan model.RawEvent, 1024)
	uniqueEvents := make(chan model.UniqueEvent, 1024)

	var wg sync.WaitGroup

	for _, a := range s.adapters {
		wg.Add(1)
		go func(a adapters.Adapter) {
			defer wg.Done()
			s.runAdapterWithRestart(ctx, a, rawEvents)
		}(a)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.dedupDispatch(ctx, rawEvents, uniqueEvents)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.classifyDispatch(ctx, uniqueEvents)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.periodicAISRefresh(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.periodicSweep(ctx)
	}()

	if s.sentiment != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.sentiment.Start()
		}()
	}

	log.Println("🚀 Supervisor started all tasks")

	s.waitForShutdownSignal()
	log.Println("🛑 Shutdown signal received, initiating graceful shutdown...")

	cancel()
	if s.sentiment != nil {
		s.sentiment.Stop()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("✅ Graceful shutdown completed")
	case <-time.After(10 * time.Second):
		log.Println("⚠️  Shutdown timeout exceeded, forcing exit")
	}

	return s.store.TokenCounters()
}

func (s *Supervisor) waitForShutdownSignal() {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt
}

// runAdapterWithRestart restarts a.Run on error with exponential
// backoff capped at 30s, marking the adapter degraded after
// maxConsecutiveFailures in a row.
func (s *Supervisor) runAdapterWithRestart(ctx context.Context, a adapters.Adapter, out chan<- model.RawEvent) {
	consecutiveFailures := 0
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		err := a.Run(ctx, out)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			consecutiveFailures = 0
			backoff = time.Second
			continue
		}

		consecutiveFailures++
		log.Printf("%s: task exited: %v (consecutive failures: %d)", a.Name(), err, consecutiveFailures)

		if consecutiveFailures >= s.maxConsecutiveFailures {
			s.markDegraded(a.Name())
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (s *Supervisor) markDegraded(id model.SourceID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.degraded[id] {
		s.degraded[id] = true
		log.Printf("⚠️  %s marked degraded after repeated failures", id)
	}
}

// dedupDispatch is the single consumer of rawEvents, preserving the
// exactly-once emission guarantee by running dedup on one goroutine.
func (s *Supervisor) dedupDispatch(ctx context.Context, rawEvents <-chan model.RawEvent, out chan<- model.UniqueEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-rawEvents:
			if !ok {
				return
			}
			if !raw.Valid() {
				continue
			}
			if unique, emitted := s.dedup.Accept(raw); emitted {
				select {
				case out <- model.UniqueEvent{RawEvent: unique}:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (s *Supervisor) classifyDispatch(ctx context.Context, uniqueEvents <-chan model.UniqueEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case unique, ok := <-uniqueEvents:
			if !ok {
				return
			}
			classified := s.engine.Classify(ctx, unique)
			s.store.Insert(classified)
		}
	}
}

func (s *Supervisor) periodicAISRefresh(ctx context.Context) {
	if s.aisRefresh <= 0 {
		return
	}
	ticker := time.NewTicker(s.aisRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.ais.Refresh(); err != nil {
				log.Printf("ais: refresh failed: %v", err)
			}
		}
	}
}

func (s *Supervisor) periodicSweep(ctx context.Context) {
	ticker := time.NewTicker(s.cesSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.store.Sweep()
			evicted := s.dedup.Sweep(s.dedupRetention)
			if evicted > 0 {
				log.Printf("dedup: swept %d stale entries", evicted)
			}
		}
	}
}

// trendArrows maps each model.Trend band to the arrow shown in Summary.
var trendArrows = map[string]string{"bullish": "↑", "bearish": "↓", "neutral": "→"}

// Summary renders the final per-symbol buys/sells/trend report printed
// at shutdown.
func Summary(counters map[string]model.TokenCounter) string {
	symbols := make([]string, 0, len(counters))
	for symbol := range counters {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	out := "📊 Final summary:\n"
	for _, symbol := range symbols {
		c := counters[symbol]
		total := c.Buys + c.Sells
		buyPct := 0.0
		if total > 0 {
			buyPct = float64(c.Buys) / float64(total) * 100
		}
		trend := model.Trend(buyPct)
		out += fmt.Sprintf("  %s: buys=%d sells=%d transfers=%d trend=%s %s\n", symbol, c.Buys, c.Sells, c.Transfers, trend, trendArrows[trend])
	}
	return out
}
