package engine

import (
	"context"
	"fmt"

	"github.com/whaleintel/pipeline/internal/model"
)

// isUser reports whether an address is a plain counterparty (no AIS
// record, or an explicit eoa_unknown/contract_unknown record) rather
// than a verified protocol/exchange contract.
func isUser(rec model.AddressRecord, ok bool) bool {
	if !ok {
		return true
	}
	switch rec.Category {
	case model.CategoryEOAUnknown, model.CategoryContractUnknown:
		return true
	default:
		return false
	}
}

// phaseCEX is P1: free AIS lookup, fires when either side is a CEX.
func phaseCEX(_ context.Context, _ *Engine, in phaseInput) PhaseResult {
	fromCEX := in.fromOK && in.fromAddr.Category == model.CategoryCEX
	toCEX := in.toOK && in.toAddr.Category == model.CategoryCEX

	if !fromCEX && !toCEX {
		return PhaseResult{Phase: "P1_cex", Fired: false}
	}

	if fromCEX && toCEX {
		return PhaseResult{
			Phase: "P1_cex", Fired: true,
			Classification: model.ClassTransfer, Confidence: 0.50, Weight: 0.45,
			Evidence: "CEX-to-CEX internal transfer",
		}
	}
	if fromCEX {
		return PhaseResult{
			Phase: "P1_cex", Fired: true,
			Classification: model.ClassBuy, Confidence: 0.85, Weight: 0.45,
			Evidence: fmt.Sprintf("withdrawal from CEX %s", in.fromAddr.EntityName),
		}
	}
	return PhaseResult{
		Phase: "P1_cex", Fired: true,
		Classification: model.ClassSell, Confidence: 0.85, Weight: 0.45,
		Evidence: fmt.Sprintf("deposit to CEX %s", in.toAddr.EntityName),
	}
}

// phaseDEX is P2: free AIS lookup, fires when either side is a verified
// DEX/lending/staking/bridge contract. Bridge always overrides to
// TRANSFER regardless of the other side.
func phaseDEX(_ context.Context, _ *Engine, in phaseInput) PhaseResult {
	fromProto := in.fromOK && model.ProtocolCategories[in.fromAddr.Category]
	toProto := in.toOK && model.ProtocolCategories[in.toAddr.Category]

	if !fromProto && !toProto {
		return PhaseResult{Phase: "P2_dex", Fired: false}
	}

	if (fromProto && in.fromAddr.Category == model.CategoryBridge) ||
		(toProto && in.toAddr.Category == model.CategoryBridge) {
		return PhaseResult{
			Phase: "P2_dex", Fired: true,
			Classification: model.ClassTransfer, Confidence: 0.80, Weight: 0.40,
			Evidence: "bridge transfer", WhaleSignals: []string{"bridge"},
		}
	}

	if fromProto {
		return protocolDirection(in.fromAddr.Category, true, in.fromAddr.EntityName)
	}
	return protocolDirection(in.toAddr.Category, false, in.toAddr.EntityName)
}

// protocolDirection encodes the per-category directional rule from spec
// §4.3: DEX routers/factories behave like an exchange (outbound = BUY,
// inbound = SELL); lending pools and staking contracts are reversed
// (supplying/staking = BUY, withdrawing/unstaking = SELL).
func protocolDirection(cat model.AddressCategory, protocolIsFrom bool, entity string) PhaseResult {
	var label string
	var exchangeLike bool
	switch cat {
	case model.CategoryDexRouter, model.CategoryDexFactory:
		label, exchangeLike = "DEX router", true
	case model.CategoryLendingPool:
		label, exchangeLike = "lending pool", false
	case model.CategoryStakingContract:
		label, exchangeLike = "staking contract", false
	default:
		return PhaseResult{Phase: "P2_dex", Fired: false}
	}

	var cls model.Classification
	switch {
	case exchangeLike && protocolIsFrom:
		cls = model.ClassBuy
	case exchangeLike && !protocolIsFrom:
		cls = model.ClassSell
	case !exchangeLike && protocolIsFrom:
		cls = model.ClassSell // withdrawing / unstaking
	default:
		cls = model.ClassBuy // supplying / staking
	}

	return PhaseResult{
		Phase: "P2_dex", Fired: true,
		Classification: cls, Confidence: 0.82, Weight: 0.40,
		Evidence: fmt.Sprintf("%s interaction (%s)", label, entity),
	}
}

// pairedSwapHint is what P3 looks for in RawEvent.Raw: the paired leg of
// a token-for-stablecoin swap. The type is unexported, so only code in
// this package can build one; no adapter sets it, and P3 does not fire
// on adapter events.
type pairedSwapHint struct {
	PairedSymbol string
	// "in" means the paired (stablecoin) leg flowed into this address,
	// "out" means it flowed out.
	PairedDirection string
}

// phaseStablecoinFlow is P3: a stablecoin<->volatile swap heuristic.
func phaseStablecoinFlow(_ context.Context, e *Engine, in phaseInput) PhaseResult {
	hint, ok := in.event.Raw.(pairedSwapHint)
	if !ok || hint.PairedSymbol == "" {
		return PhaseResult{Phase: "P3_stablecoin_flow", Fired: false}
	}
	if !e.stablecoins[hint.PairedSymbol] {
		return PhaseResult{Phase: "P3_stablecoin_flow", Fired: false}
	}
	if e.stablecoins[in.event.Symbol] {
		// Both legs stable: no directional signal.
		return PhaseResult{Phase: "P3_stablecoin_flow", Fired: false}
	}

	var cls model.Classification
	switch hint.PairedDirection {
	case "in":
		cls = model.ClassBuy // paid stablecoin in, received the volatile token
	case "out":
		cls = model.ClassSell // sent the volatile token out for stablecoin
	default:
		return PhaseResult{Phase: "P3_stablecoin_flow", Fired: false}
	}

	return PhaseResult{
		Phase: "P3_stablecoin_flow", Fired: true,
		Classification: cls, Confidence: 0.60, Weight: 0.25,
		Evidence: fmt.Sprintf("stablecoin/%s swap leg", in.event.Symbol),
	}
}

// phaseMarketMakerMixer is P4: flags market-maker and sanctioned-mixer
// counterparties. It contributes a weak TRANSFER vote (market-maker and
// mixer flows rarely carry clean directional meaning) and records whale
// signals consumed by the scoring penalties in score.go.
func phaseMarketMakerMixer(_ context.Context, _ *Engine, in phaseInput) PhaseResult {
	var signals []string
	var reasons []string

	if in.fromOK && in.fromAddr.Category == model.CategoryMarketMaker {
		signals = append(signals, "market_maker")
		reasons = append(reasons, "sender is a market maker")
	}
	if in.toOK && in.toAddr.Category == model.CategoryMarketMaker {
		signals = append(signals, "market_maker")
		reasons = append(reasons, "receiver is a market maker")
	}
	if in.fromOK && in.fromAddr.Category == model.CategoryMixerSanctioned {
		signals = append(signals, "mixer_sanctioned")
		reasons = append(reasons, "sender is a sanctioned mixer")
	}
	if in.toOK && in.toAddr.Category == model.CategoryMixerSanctioned {
		signals = append(signals, "mixer_sanctioned")
		reasons = append(reasons, "receiver is a sanctioned mixer")
	}

	if len(signals) == 0 {
		return PhaseResult{Phase: "P4_mm_mixer", Fired: false}
	}

	return PhaseResult{
		Phase: "P4_mm_mixer", Fired: true,
		Classification: model.ClassTransfer, Confidence: 0.35, Weight: 0.20,
		Evidence:     joinReasons(reasons),
		WhaleSignals: signals,
	}
}

// phaseBlockchainHeuristic is P5: a cheap, AIS-independent last resort
// using address shape/keyword matching (heuristics.go).
func phaseBlockchainHeuristic(_ context.Context, _ *Engine, in phaseInput) PhaseResult {
	fromLooksExchange := !in.fromOK && looksLikeExchange(in.event.FromAddr)
	toLooksExchange := !in.toOK && looksLikeExchange(in.event.ToAddr)

	if !fromLooksExchange && !toLooksExchange {
		return PhaseResult{Phase: "P5_heuristic", Fired: false}
	}
	if fromLooksExchange && toLooksExchange {
		return PhaseResult{Phase: "P5_heuristic", Fired: false}
	}

	if fromLooksExchange {
		return PhaseResult{
			Phase: "P5_heuristic", Fired: true,
			Classification: model.ClassBuy, Confidence: 0.40, Weight: 0.10,
			Evidence: "sender address resembles a known exchange pattern",
		}
	}
	return PhaseResult{
		Phase: "P5_heuristic", Fired: true,
		Classification: model.ClassSell, Confidence: 0.40, Weight: 0.10,
		Evidence: "receiver address resembles a known exchange pattern",
	}
}

// phaseWalletBehavior is P6: inspects AIS tags/balance already loaded in
// phaseInput ("one AIS call" in the sense of one extra categorical read,
// not a network round trip).
func phaseWalletBehavior(_ context.Context, _ *Engine, in phaseInput) PhaseResult {
	if in.fromOK && in.fromAddr.HasTag("distributor") {
		return PhaseResult{
			Phase: "P6_wallet_behavior", Fired: true,
			Classification: model.ClassSell, Confidence: 0.45, Weight: 0.15,
			Evidence: "sender tagged as a known distributor wallet",
		}
	}
	if in.toOK && in.toAddr.HasTag("accumulator") {
		return PhaseResult{
			Phase: "P6_wallet_behavior", Fired: true,
			Classification: model.ClassBuy, Confidence: 0.45, Weight: 0.15,
			Evidence: "receiver tagged as a known accumulator wallet",
		}
	}
	if in.fromOK && in.fromAddr.BalanceUSD >= 1_000_000 && !in.toOK {
		return PhaseResult{
			Phase: "P6_wallet_behavior", Fired: true,
			Classification: model.ClassSell, Confidence: 0.38, Weight: 0.15,
			Evidence: "large-balance wallet distributing to an unlabeled address",
		}
	}
	return PhaseResult{Phase: "P6_wallet_behavior", Fired: false}
}

// phaseExternalEnrichment is P7: a network call to a portfolio/token-
// metadata vendor. A timeout or nil Enricher simply skips the phase
// without failing the event.
func phaseExternalEnrichment(ctx context.Context, e *Engine, in phaseInput) PhaseResult {
	if e.enricher == nil {
		return PhaseResult{Phase: "P7_enrichment", Fired: false}
	}

	ctx, cancel := context.WithTimeout(ctx, e.enrichmentTimeout)
	defer cancel()

	target := in.event.ToAddr
	if in.toOK {
		target = in.event.FromAddr
	}

	result, err := e.enricher.Enrich(ctx, in.event.Blockchain, target)
	if err != nil {
		e.logSkip("P7_enrichment", err)
		return PhaseResult{Phase: "P7_enrichment", Fired: false}
	}

	switch result.EntityType {
	case "fund", "institution":
		return PhaseResult{
			Phase: "P7_enrichment", Fired: true,
			Classification: model.ClassSell, Confidence: 0.55, Weight: 0.20,
			Evidence: "enrichment flags counterparty as an institutional entity",
		}
	case "exchange_cold_wallet":
		return PhaseResult{
			Phase: "P7_enrichment", Fired: true,
			Classification: model.ClassBuy, Confidence: 0.55, Weight: 0.20,
			Evidence: "enrichment flags counterparty as an exchange cold wallet",
		}
	default:
		return PhaseResult{Phase: "P7_enrichment", Fired: false}
	}
}

// phaseMegaWhaleHistory is P8: an expensive analytic-warehouse query
// over the address's historical directional bias.
func phaseMegaWhaleHistory(ctx context.Context, e *Engine, in phaseInput) PhaseResult {
	if e.historicalQuerier == nil {
		return PhaseResult{Phase: "P8_history", Fired: false}
	}

	ctx, cancel := context.WithTimeout(ctx, e.historyTimeout)
	defer cancel()

	target := in.event.FromAddr

	profile, err := e.historicalQuerier.Query(ctx, in.event.Blockchain, target)
	if err != nil {
		e.logSkip("P8_history", err)
		return PhaseResult{Phase: "P8_history", Fired: false}
	}
	if profile.SampleSize < 3 || profile.DominantDirection == model.ClassUnknown {
		return PhaseResult{Phase: "P8_history", Fired: false}
	}

	return PhaseResult{
		Phase: "P8_history", Fired: true,
		Classification: profile.DominantDirection, Confidence: 0.50, Weight: 0.15,
		Evidence: fmt.Sprintf("historical warehouse query: address trends %s over %d samples",
			profile.DominantDirection, profile.SampleSize),
	}
}

func joinReasons(reasons []string) string {
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += "; " + r
	}
	return out
}
