package ces

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/whaleintel/pipeline/internal/model"
)

func classifiedEvent(symbol string, cls model.Classification, usd float64, at time.Time) model.ClassifiedEvent {
	return model.ClassifiedEvent{
		UniqueEvent: model.UniqueEvent{RawEvent: model.RawEvent{
			TxHash: symbol + at.String(), Symbol: symbol, UsdValue: decimal.NewFromFloat(usd),
		}},
		Classification: cls,
		ClassifiedAt:   at,
	}
}

func TestInsert_UpdatesTokenCounter(t *testing.T) {
	store := New(time.Hour, 100)
	now := time.Now()

	store.Insert(classifiedEvent("WETH", model.ClassBuy, 100_000, now))
	store.Insert(classifiedEvent("WETH", model.ClassSell, 50_000, now))

	counters := store.TokenCounters()
	c := counters["WETH"]
	if c.Buys != 1 || c.Sells != 1 {
		t.Fatalf("expected 1 buy and 1 sell, got %+v", c)
	}
	if c.BuyVolumeUSD != 100_000 || c.SellVolumeUSD != 50_000 {
		t.Fatalf("unexpected volumes: %+v", c)
	}
}

func TestEvict_RespectsCapacityCap(t *testing.T) {
	store := New(time.Hour, 2)
	now := time.Now()

	store.Insert(classifiedEvent("WETH", model.ClassBuy, 1, now))
	store.Insert(classifiedEvent("WETH", model.ClassBuy, 1, now.Add(time.Second)))
	store.Insert(classifiedEvent("WETH", model.ClassBuy, 1, now.Add(2*time.Second)))

	if store.Size() != 2 {
		t.Fatalf("expected capacity cap of 2, got %d", store.Size())
	}
}

func TestEvict_RespectsTTL(t *testing.T) {
	store := New(time.Millisecond, 100)
	store.Insert(classifiedEvent("WETH", model.ClassBuy, 1, time.Now().Add(-time.Hour)))

	store.Sweep()
	if store.Size() != 0 {
		t.Fatalf("expected stale entry evicted, got size %d", store.Size())
	}
}

func TestRecentByFilter_SortsDescendingAndCaps(t *testing.T) {
	store := New(time.Hour, 100)
	now := time.Now()
	for i := 0; i < 5; i++ {
		store.Insert(classifiedEvent("WETH", model.ClassBuy, float64(i), now.Add(time.Duration(i)*time.Second)))
	}

	results := store.RecentByFilter(Filter{Limit: 3})
	if len(results) != 3 {
		t.Fatalf("expected limit of 3, got %d", len(results))
	}
	for i := 0; i < len(results)-1; i++ {
		if results[i].ClassifiedAt.Before(results[i+1].ClassifiedAt) {
			t.Fatal("expected descending time order")
		}
	}
}

func TestRecentByFilter_MinValueAndSymbol(t *testing.T) {
	store := New(time.Hour, 100)
	now := time.Now()
	store.Insert(classifiedEvent("WETH", model.ClassBuy, 10, now))
	store.Insert(classifiedEvent("LINK", model.ClassBuy, 100_000, now))

	results := store.RecentByFilter(Filter{MinValue: 1000, Symbol: "LINK"})
	if len(results) != 1 || results[0].Symbol != "LINK" {
		t.Fatalf("expected only LINK above min_value, got %+v", results)
	}
}

func TestEventsForSymbolSince_SortsAscending(t *testing.T) {
	store := New(time.Hour, 100)
	now := time.Now()
	store.Insert(classifiedEvent("WETH", model.ClassBuy, 1, now.Add(2*time.Second)))
	store.Insert(classifiedEvent("WETH", model.ClassBuy, 1, now))

	events := store.EventsForSymbolSince("WETH", now.Add(-time.Minute))
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ClassifiedAt.After(events[1].ClassifiedAt) {
		t.Fatal("expected ascending time order")
	}
}
