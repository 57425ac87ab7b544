package dedup

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/whaleintel/pipeline/internal/model"
)

func TestAccept_FirstSightEmits(t *testing.T) {
	d := New()
	raw := model.RawEvent{Blockchain: "ethereum", TxHash: "0xabc", LogIndex: 1, Amount: decimal.NewFromInt(1)}

	unique, emitted := d.Accept(raw)
	if !emitted {
		t.Fatal("expected first sight to emit")
	}
	if unique.TxHash != raw.TxHash {
		t.Fatalf("expected returned event to match input, got %+v", unique)
	}
}

func TestAccept_DuplicateSuppressed(t *testing.T) {
	d := New()
	raw := model.RawEvent{Blockchain: "ethereum", TxHash: "0xabc", LogIndex: 1, Amount: decimal.NewFromInt(1)}

	d.Accept(raw)
	_, emitted := d.Accept(raw)
	if emitted {
		t.Fatal("expected duplicate to be suppressed")
	}

	stats := d.Stats()
	if stats.TotalReceived != 2 || stats.DuplicatesCaught != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestAccept_SolanaKeyIgnoresLogIndex(t *testing.T) {
	d := New()
	first := model.RawEvent{Blockchain: "solana", TxHash: "sig1", LogIndex: 0, Amount: decimal.NewFromInt(1)}
	second := model.RawEvent{Blockchain: "solana", TxHash: "sig1", LogIndex: 5, Amount: decimal.NewFromInt(1)}

	d.Accept(first)
	_, emitted := d.Accept(second)
	if emitted {
		t.Fatal("expected solana dedup key to collapse on tx_hash alone, ignoring log index")
	}
}

func TestAccept_MergeBackfillsUsdValue(t *testing.T) {
	d := New()
	vendor := model.RawEvent{Blockchain: "ethereum", TxHash: "0xdef", LogIndex: 0, Amount: decimal.NewFromInt(1)}
	native := model.RawEvent{Blockchain: "ethereum", TxHash: "0xdef", LogIndex: 0, Amount: decimal.NewFromInt(1), UsdValue: decimal.NewFromInt(50000)}

	unique, emitted := d.Accept(vendor)
	if !emitted || !unique.UsdValue.IsZero() {
		t.Fatalf("expected vendor-feed first-sight with zero usd_value, got %+v emitted=%v", unique, emitted)
	}

	_, emitted = d.Accept(native)
	if emitted {
		t.Fatal("expected merge, not re-emission")
	}
	if stored := d.entries[native.Key()].event; !stored.UsdValue.Equal(native.UsdValue) {
		t.Fatalf("expected stored usd_value backfilled to %v, got %v", native.UsdValue, stored.UsdValue)
	}
}

func TestSweep_EvictsOlderThanRetention(t *testing.T) {
	d := New()
	d.Accept(model.RawEvent{Blockchain: "ethereum", TxHash: "0x1", Amount: decimal.NewFromInt(1)})

	evicted := d.Sweep(0)
	if evicted != 1 {
		t.Fatalf("expected 1 entry evicted at zero retention, got %d", evicted)
	}
	if d.Size() != 0 {
		t.Fatalf("expected store empty after sweep, got size %d", d.Size())
	}
}

func TestDedupRatio(t *testing.T) {
	stats := model.DedupStats{TotalReceived: 10, DuplicatesCaught: 4}
	if stats.DedupRatio() != 40 {
		t.Fatalf("expected 40%%, got %v", stats.DedupRatio())
	}
	if (model.DedupStats{}).DedupRatio() != 0 {
		t.Fatal("expected 0 ratio with no events received")
	}
}
