package sentiment

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/whaleintel/pipeline/internal/ces"
	"github.com/whaleintel/pipeline/internal/model"
)

func decOf(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func classifiedAt(t time.Time, symbol string, cls model.Classification, usd float64) model.ClassifiedEvent {
	return model.ClassifiedEvent{
		UniqueEvent: model.UniqueEvent{RawEvent: model.RawEvent{
			Symbol: symbol, UsdValue: decOf(usd), Timestamp: t.Unix(),
		}},
		Classification: cls,
		Confidence:     0.9,
		WhaleScore:     70,
		ClassifiedAt:   t,
	}
}

func TestComputeSnapshot_Empty(t *testing.T) {
	snap := computeSnapshot("WETH", 3600, nil)
	if snap.TotalDirectional != 0 || snap.BuyPct != 0 || snap.SellPct != 0 {
		t.Fatalf("expected zero-valued snapshot for empty window, got %+v", snap)
	}
}

func TestComputeSnapshot_BullishSkew(t *testing.T) {
	now := time.Now()
	events := []model.ClassifiedEvent{
		classifiedAt(now, "WETH", model.ClassBuy, 100_000),
		classifiedAt(now, "WETH", model.ClassBuy, 100_000),
		classifiedAt(now, "WETH", model.ClassBuy, 100_000),
		classifiedAt(now, "WETH", model.ClassSell, 100_000),
		classifiedAt(now, "WETH", model.ClassTransfer, 50_000),
	}

	snap := computeSnapshot("WETH", 3600, events)
	if snap.TotalDirectional != 4 {
		t.Fatalf("expected 4 directional events (transfer excluded), got %v", snap.TotalDirectional)
	}
	if snap.BuyPct != 75 || snap.SellPct != 25 {
		t.Fatalf("expected 75/25 buy/sell split, got %v/%v", snap.BuyPct, snap.SellPct)
	}
	if snap.SentimentScore != 50 {
		t.Fatalf("expected sentiment score of 50, got %v", snap.SentimentScore)
	}
	if snap.TotalVolumeUSD != 450_000 {
		t.Fatalf("expected total volume to include transfers, got %v", snap.TotalVolumeUSD)
	}
}

func TestComputeSnapshot_VolumeWeighting(t *testing.T) {
	now := time.Now()
	events := []model.ClassifiedEvent{
		classifiedAt(now, "LINK", model.ClassBuy, 900_000),
		classifiedAt(now, "LINK", model.ClassSell, 100_000),
	}
	snap := computeSnapshot("LINK", 3600, events)
	if snap.BuyPct != 50 {
		t.Fatalf("expected even count-based split, got %v", snap.BuyPct)
	}
	if snap.VolumeWeightedBuyPct != 90 {
		t.Fatalf("expected volume-weighted buy pct of 90, got %v", snap.VolumeWeightedBuyPct)
	}
}

func TestAggregator_MinTransactionsFilter(t *testing.T) {
	// Below min_transactions should be excluded entirely, not zero-scored.
	snap := computeSnapshot("DUST", 3600, []model.ClassifiedEvent{
		classifiedAt(time.Now(), "DUST", model.ClassBuy, 10),
	})
	if snap.TotalDirectional >= 5 {
		t.Fatalf("sanity check failed: %+v", snap)
	}

	store := ces.New(time.Hour, 100)
	store.Insert(classifiedAt(time.Now(), "DUST", model.ClassBuy, 10))
	agg := New(store, time.Hour, time.Minute, 3)
	agg.computeAndPublish()
	if got := agg.Snapshot(); len(got) != 0 {
		t.Fatalf("expected DUST excluded below min_transactions=3, got %+v", got)
	}
}
