// Package engine implements the Whale Intelligence Engine: a cost-ordered,
// short-circuiting, multi-phase classifier that turns a UniqueEvent into
// a ClassifiedEvent.
package engine

import (
	"context"

	"github.com/whaleintel/pipeline/internal/model"
)

// PhaseResult is one phase's independent verdict, or "no signal" when
// Fired is false.
type PhaseResult struct {
	Phase          string
	Fired          bool
	Classification model.Classification
	Confidence     float64
	Weight         float64
	Evidence       string
	WhaleSignals   []string
}

// phaseInput bundles everything a phase function needs: the event plus
// both counterparties' AIS records (zero-value AddressRecord + ok=false
// when unknown).
type phaseInput struct {
	event    model.RawEvent
	fromAddr model.AddressRecord
	fromOK   bool
	toAddr   model.AddressRecord
	toOK     bool
	price    float64
	priceOK  bool
}

// phaseFunc is the shape of every P1-P8 implementation.
type phaseFunc func(ctx context.Context, e *Engine, in phaseInput) PhaseResult

// Enricher is the P7 "external address enrichment" collaborator
// (portfolio/token-metadata vendor APIs). It is an interface so the core
// engine can be exercised without a live network dependency; a nil
// Enricher simply makes P7 never fire.
type Enricher interface {
	Enrich(ctx context.Context, blockchain, address string) (EnrichmentResult, error)
}

// EnrichmentResult is what an Enricher learns about an address.
type EnrichmentResult struct {
	EntityType string // e.g. "fund", "individual", "exchange_cold_wallet"
	Tags       []string
}

// HistoricalQuerier is the P8 "mega-whale historical query" collaborator
// (analytic warehouse). A nil HistoricalQuerier makes P8 never fire.
type HistoricalQuerier interface {
	Query(ctx context.Context, blockchain, address string) (HistoricalProfile, error)
}

// HistoricalProfile summarizes an address's historical directional bias.
type HistoricalProfile struct {
	DominantDirection model.Classification
	SampleSize        int
}
