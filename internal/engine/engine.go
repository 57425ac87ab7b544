package engine

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/whaleintel/pipeline/internal/ais"
	"github.com/whaleintel/pipeline/internal/config"
	"github.com/whaleintel/pipeline/internal/model"
	"github.com/whaleintel/pipeline/internal/priceoracle"
)

// Engine is the Whale Intelligence Engine. Its verdict is pure over
// {event, AIS snapshot, price snapshot}: classifying the same UniqueEvent
// twice with the same AIS/price state yields the same classification,
// confidence, whale score, signals and evidence. TraceID and ClassifiedAt
// are fresh on every call.
type Engine struct {
	ais            *ais.Store
	prices         *priceoracle.Oracle
	whaleThresh    config.WhaleThresholds
	classThresh    config.ClassificationThresholds
	stablecoins    map[string]bool

	enricher          Enricher
	historicalQuerier HistoricalQuerier
	enrichmentTimeout time.Duration
	historyTimeout    time.Duration
}

// New constructs an Engine. enricher and historicalQuerier may be nil;
// their phases (P7, P8) simply never fire in that case.
func New(store *ais.Store, prices *priceoracle.Oracle, whaleThresh config.WhaleThresholds, classThresh config.ClassificationThresholds, stablecoins map[string]bool, enricher Enricher, historicalQuerier HistoricalQuerier) *Engine {
	return &Engine{
		ais:               store,
		prices:            prices,
		whaleThresh:       whaleThresh,
		classThresh:       classThresh,
		stablecoins:       stablecoins,
		enricher:          enricher,
		historicalQuerier: historicalQuerier,
		enrichmentTimeout: 20 * time.Second,
		historyTimeout:    30 * time.Second,
	}
}

// Classify runs a UniqueEvent through the phase pipeline and produces a
// ClassifiedEvent. It never errors and never drops the event: worst case
// it emits UNKNOWN with zero confidence.
func (e *Engine) Classify(ctx context.Context, unique model.UniqueEvent) model.ClassifiedEvent {
	event := unique.RawEvent

	fromRec, fromOK := e.ais.Lookup(event.Blockchain, event.FromAddr)
	toRec, toOK := e.ais.Lookup(event.Blockchain, event.ToAddr)

	usdValue, _ := event.UsdValue.Float64()
	if usdValue == 0 {
		if price, ok := e.prices.Get(ctx, event.Symbol); ok {
			amt, _ := event.Amount.Float64()
			usdValue = amt * price
		}
	}

	in := phaseInput{event: event, fromAddr: fromRec, fromOK: fromOK, toAddr: toRec, toOK: toOK}

	var results []PhaseResult
	var bestConfidence float64
	structuralFired := false
	costOptimized := false

	record := func(r PhaseResult) {
		results = append(results, r)
		if r.Fired && r.Confidence > bestConfidence {
			bestConfidence = r.Confidence
		}
		if r.Fired && (r.Phase == "P1_cex" || r.Phase == "P2_dex") {
			structuralFired = true
		}
	}

	shortCircuit := func() bool {
		return structuralFired && bestConfidence >= e.classThresh.HighConfidence
	}

	record(phaseCEX(ctx, e, in))
	if !shortCircuit() {
		record(phaseDEX(ctx, e, in))
	}
	if !shortCircuit() {
		record(phaseStablecoinFlow(ctx, e, in))
	}
	if !shortCircuit() {
		record(phaseMarketMakerMixer(ctx, e, in))
	}
	if !shortCircuit() && bestConfidence < e.classThresh.ModerateSignal {
		record(phaseBlockchainHeuristic(ctx, e, in))
	}
	if !shortCircuit() && bestConfidence < e.classThresh.HighConfidence {
		record(phaseWalletBehavior(ctx, e, in))
	}
	if !shortCircuit() && bestConfidence < e.classThresh.HighConfidence && usdValue >= e.whaleThresh.LargeTraderUSD {
		record(phaseExternalEnrichment(ctx, e, in))
	}
	if !shortCircuit() && bestConfidence < e.classThresh.HighConfidence && usdValue >= e.whaleThresh.WhaleUSD {
		record(phaseMegaWhaleHistory(ctx, e, in))
	}
	if shortCircuit() {
		costOptimized = true
	}

	classification, confidence, reasoning := masterClassify(results, e.classThresh.HighConfidence, e.classThresh.AggregationThreshold)

	verifiedProtocol := (fromOK && model.ProtocolCategories[fromRec.Category]) || (toOK && model.ProtocolCategories[toRec.Category])
	score, scoreSignals := whaleScore(usdValue, fromRec, toRec, fromOK, toOK, verifiedProtocol, e.whaleThresh)

	evidence := make([]string, 0, len(results))
	for _, r := range results {
		if r.Fired {
			evidence = append(evidence, r.Evidence)
		}
	}
	if reasoning != "" {
		evidence = append(evidence, reasoning)
	}

	signals := make([]string, 0, len(scoreSignals))
	signals = append(signals, scoreSignals...)
	for _, r := range results {
		if r.Fired {
			signals = append(signals, r.WhaleSignals...)
		}
	}

	return model.ClassifiedEvent{
		UniqueEvent:     unique,
		TraceID:         uuid.NewString(),
		Classification:  classification,
		Confidence:      confidence,
		WhaleScore:      score,
		IsWhale:         isWhale(score, confidence),
		WhaleSignals:    signals,
		Evidence:        evidence,
		PhasesCompleted: len(results),
		CostOptimized:   costOptimized,
		ClassifiedAt:    time.Now(),
	}
}

func (e *Engine) logSkip(phase string, err error) {
	log.Printf("engine: skipped %s: %v", phase, err)
}
