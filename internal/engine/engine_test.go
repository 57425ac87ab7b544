package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/whaleintel/pipeline/internal/ais"
	"github.com/whaleintel/pipeline/internal/config"
	"github.com/whaleintel/pipeline/internal/model"
	"github.com/whaleintel/pipeline/internal/priceoracle"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return New(ais.New(nil), priceoracle.New(nil, map[string]float64{"WETH": 3000, "LINK": 15, "USDC": 1}),
		config.WhaleThresholds{MegaWhaleUSD: 10_000_000, WhaleUSD: 1_000_000, LargeTraderUSD: 100_000, MediumTraderUSD: 10_000},
		config.ClassificationThresholds{HighConfidence: 0.80, ModerateSignal: 0.50, MediumConfidence: 0.60, AggregationThreshold: 0.30},
		map[string]bool{"USDC": true, "USDT": true},
		nil, nil,
	)
}

func decOf(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestPhaseCEX_Directional(t *testing.T) {
	in := phaseInput{
		event:    model.RawEvent{FromAddr: "0xbinance", ToAddr: "0xuser", Symbol: "WETH", Amount: decOf(10), UsdValue: decOf(30000)},
		fromAddr: model.AddressRecord{Category: model.CategoryCEX, EntityName: "Binance"},
		fromOK:   true,
	}
	result := phaseCEX(context.Background(), nil, in)
	if !result.Fired || result.Classification != model.ClassBuy {
		t.Fatalf("expected BUY from CEX withdrawal, got %+v", result)
	}
	if result.Confidence < 0.80 {
		t.Fatalf("expected confidence >= 0.80, got %v", result.Confidence)
	}
}

func TestPhaseCEX_Symmetry(t *testing.T) {
	// Withdrawal from a known CEX address -> BUY.
	withdrawal := phaseCEX(context.Background(), nil, phaseInput{
		event:    model.RawEvent{FromAddr: "0xbinance", ToAddr: "0xuser"},
		fromAddr: model.AddressRecord{Category: model.CategoryCEX}, fromOK: true,
	})
	// Swap from/to -> SELL, same confidence.
	deposit := phaseCEX(context.Background(), nil, phaseInput{
		event:  model.RawEvent{FromAddr: "0xuser", ToAddr: "0xbinance"},
		toAddr: model.AddressRecord{Category: model.CategoryCEX}, toOK: true,
	})

	if withdrawal.Classification != model.ClassBuy || deposit.Classification != model.ClassSell {
		t.Fatalf("expected BUY/SELL flip on address swap, got %v / %v", withdrawal.Classification, deposit.Classification)
	}
	if withdrawal.Confidence != deposit.Confidence {
		t.Fatalf("expected equal confidence on symmetric swap, got %v vs %v", withdrawal.Confidence, deposit.Confidence)
	}
}

func TestPhaseDEX_Router(t *testing.T) {
	// User -> Uniswap V2 router -> SELL.
	result := phaseDEX(context.Background(), nil, phaseInput{
		event:  model.RawEvent{FromAddr: "0xuser", ToAddr: "0xuniswap"},
		toAddr: model.AddressRecord{Category: model.CategoryDexRouter, EntityName: "Uniswap V2"}, toOK: true,
	})
	if !result.Fired || result.Classification != model.ClassSell {
		t.Fatalf("expected SELL into DEX router, got %+v", result)
	}
}

func TestPhaseDEX_BridgeOverride(t *testing.T) {
	// User -> bridge -> TRANSFER, regardless of size.
	result := phaseDEX(context.Background(), nil, phaseInput{
		event:  model.RawEvent{FromAddr: "0xuser", ToAddr: "0xbridge"},
		toAddr: model.AddressRecord{Category: model.CategoryBridge}, toOK: true,
	})
	if !result.Fired || result.Classification != model.ClassTransfer {
		t.Fatalf("expected TRANSFER override for bridge, got %+v", result)
	}
}

func TestPhaseDEX_LendingReversed(t *testing.T) {
	supply := phaseDEX(context.Background(), nil, phaseInput{
		event:  model.RawEvent{FromAddr: "0xuser", ToAddr: "0xaave"},
		toAddr: model.AddressRecord{Category: model.CategoryLendingPool}, toOK: true,
	})
	withdraw := phaseDEX(context.Background(), nil, phaseInput{
		event:    model.RawEvent{FromAddr: "0xaave", ToAddr: "0xuser"},
		fromAddr: model.AddressRecord{Category: model.CategoryLendingPool}, fromOK: true,
	})
	if supply.Classification != model.ClassBuy {
		t.Fatalf("expected BUY on lending supply, got %v", supply.Classification)
	}
	if withdraw.Classification != model.ClassSell {
		t.Fatalf("expected SELL on lending withdrawal, got %v", withdraw.Classification)
	}
}

func TestMasterClassify_NoPhaseFired(t *testing.T) {
	// No phase fired -> UNKNOWN, zero confidence.
	results := []PhaseResult{
		{Phase: "P5_heuristic", Fired: false},
	}
	cls, conf, _ := masterClassify(results, 0.80, 0.30)
	if cls != model.ClassUnknown {
		t.Fatalf("expected UNKNOWN with no phases firing, got %v", cls)
	}
	if conf != 0 {
		t.Fatalf("expected zero confidence, got %v", conf)
	}
}

func TestWhaleScore_Bounds(t *testing.T) {
	thresholds := config.WhaleThresholds{MegaWhaleUSD: 10_000_000, WhaleUSD: 1_000_000, LargeTraderUSD: 100_000, MediumTraderUSD: 10_000}
	score, _ := whaleScore(50_000_000, model.AddressRecord{}, model.AddressRecord{}, false, false, false, thresholds)
	if score < 0 || score > 100 {
		t.Fatalf("score out of bounds: %v", score)
	}
	if score != 90 {
		t.Fatalf("expected base mega-whale score 90, got %v", score)
	}
}

func TestIsWhale_RequiresBothBounds(t *testing.T) {
	if isWhale(65, 0.5) {
		t.Fatal("expected is_whale=false when confidence below 0.70")
	}
	if isWhale(40, 0.9) {
		t.Fatal("expected is_whale=false when whale_score below 60")
	}
	if !isWhale(60, 0.70) {
		t.Fatal("expected is_whale=true at the exact boundary")
	}
}

func TestEngineClassify_BridgeAddressUnknownToAIS(t *testing.T) {
	e := newTestEngine(t)

	event := model.UniqueEvent{RawEvent: model.RawEvent{
		Blockchain: "ethereum", TxHash: "0xabc", FromAddr: "0xuser", ToAddr: "0xbridge",
		Symbol: "USDC", Amount: decOf(1_200_000), UsdValue: decOf(1_200_000), Timestamp: time.Now().Unix(),
	}}

	out := e.Classify(context.Background(), event)
	if out.Classification != model.ClassUnknown && out.Classification != model.ClassTransfer {
		t.Fatalf("without AIS data expected TRANSFER-or-UNKNOWN for unresolved bridge address, got %v", out.Classification)
	}
	if out.WhaleScore < 0 || out.WhaleScore > 100 {
		t.Fatalf("whale score out of bounds: %v", out.WhaleScore)
	}
}
