// Package sentiment implements the rolling Sentiment Aggregator: on a
// fixed tick, computes per-token buy/sell ratios and sentiment scores
// over the configured rolling window, publishing the result set
// atomically so readers always see either the previous or the new full
// snapshot, never a mix.
package sentiment

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/whaleintel/pipeline/internal/ces"
	"github.com/whaleintel/pipeline/internal/model"
)

// Aggregator computes SentimentSnapshots on a fixed tick.
type Aggregator struct {
	store         *ces.Store
	window        time.Duration
	tick          time.Duration
	minTx         int64

	snapshots atomic.Value // holds []model.SentimentSnapshot
	done      chan struct{}
}

// New creates an Aggregator. Call Start to begin ticking.
func New(store *ces.Store, window, tick time.Duration, minTx int) *Aggregator {
	a := &Aggregator{
		store:  store,
		window: window,
		tick:   tick,
		minTx:  int64(minTx),
		done:   make(chan struct{}),
	}
	a.snapshots.Store([]model.SentimentSnapshot{})
	return a
}

// Start runs the tick loop until Stop is called. The aggregator is
// read-only over CES; it never mutates counters.
func (a *Aggregator) Start() {
	log.Println("📈 Sentiment aggregator started")

	ticker := time.NewTicker(a.tick)
	defer ticker.Stop()

	a.computeAndPublish()

	for {
		select {
		case <-ticker.C:
			a.computeAndPublish()
		case <-a.done:
			log.Println("📈 Sentiment aggregator stopped")
			return
		}
	}
}

// Stop ends the tick loop.
func (a *Aggregator) Stop() {
	close(a.done)
}

// Snapshot returns the most recently published full snapshot set.
func (a *Aggregator) Snapshot() []model.SentimentSnapshot {
	return a.snapshots.Load().([]model.SentimentSnapshot)
}

func (a *Aggregator) computeAndPublish() {
	since := time.Now().Add(-a.window)
	symbols := a.store.Symbols()

	next := make([]model.SentimentSnapshot, 0, len(symbols))
	for _, symbol := range symbols {
		events := a.store.EventsForSymbolSince(symbol, since)
		snap := computeSnapshot(symbol, int64(a.window.Seconds()), events)
		if snap.TotalDirectional < a.minTx {
			continue
		}
		next = append(next, snap)
	}

	a.snapshots.Store(next)
}

// computeSnapshot computes buy/sell counts, percentages, volume-weighted
// buy pct, sentiment score, and averages. Returns a zero-valued snapshot
// (no division by zero) for an empty window.
func computeSnapshot(symbol string, windowSeconds int64, events []model.ClassifiedEvent) model.SentimentSnapshot {
	snap := model.SentimentSnapshot{
		Symbol:        symbol,
		WindowSeconds: windowSeconds,
		CalculatedAt:  time.Now(),
	}
	if len(events) == 0 {
		return snap
	}

	var buys, sells int64
	var buyVolume, sellVolume, totalVolume, confidenceSum, whaleScoreSum float64

	for _, e := range events {
		usd, _ := e.UsdValue.Float64()
		totalVolume += usd
		confidenceSum += e.Confidence
		whaleScoreSum += e.WhaleScore

		switch e.Classification {
		case model.ClassBuy:
			buys++
			buyVolume += usd
		case model.ClassSell:
			sells++
			sellVolume += usd
		}
	}

	snap.Buys = buys
	snap.Sells = sells
	snap.TotalDirectional = buys + sells
	snap.TotalVolumeUSD = totalVolume
	snap.AvgConfidence = confidenceSum / float64(len(events))
	snap.AvgWhaleScore = whaleScoreSum / float64(len(events))

	if snap.TotalDirectional > 0 {
		snap.BuyPct = float64(buys) / float64(snap.TotalDirectional) * 100
		snap.SellPct = float64(sells) / float64(snap.TotalDirectional) * 100
	}
	directionalVolume := buyVolume + sellVolume
	if directionalVolume > 0 {
		snap.VolumeWeightedBuyPct = buyVolume / directionalVolume * 100
	}
	snap.SentimentScore = snap.BuyPct - snap.SellPct

	return snap
}
