// Package model holds the typed records that flow through the pipeline:
// RawEvent from the source adapters, UniqueEvent after dedup, and
// ClassifiedEvent after the Whale Intelligence Engine.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceID identifies which adapter produced a RawEvent.
type SourceID string

const (
	SourceEthPoll      SourceID = "ETH_POLL"
	SourcePolygonPoll  SourceID = "POLYGON_POLL"
	SourceSolanaWS     SourceID = "SOLANA_WS"
	SourceSolanaPoll   SourceID = "SOLANA_POLL"
	SourceXRPWS        SourceID = "XRP_WS"
	SourceWhaleAlertWS SourceID = "WHALE_ALERT_WS"
)

// Classification is the directional label the engine assigns to an event.
type Classification string

const (
	ClassBuy      Classification = "BUY"
	ClassSell     Classification = "SELL"
	ClassTransfer Classification = "TRANSFER"
	ClassUnknown  Classification = "UNKNOWN"
)

// RawEvent is the uniform record every per-chain adapter emits.
type RawEvent struct {
	SourceID     SourceID
	Blockchain   string
	TxHash       string
	LogIndex     int
	BlockNumber  int64 // also used for ledger_index / slot depending on chain
	FromAddr     string
	ToAddr       string
	Symbol       string
	Amount       decimal.Decimal
	UsdValue     decimal.Decimal
	Timestamp    int64 // unix seconds
	Raw          any   // opaque, for engine inspection only
}

// Valid reports whether the event has a non-empty tx hash and a positive
// amount. A known USD value or a symbol the Price Oracle can resolve is
// checked by the caller, not here.
func (e RawEvent) Valid() bool {
	return e.TxHash != "" && e.Amount.IsPositive()
}

// DedupKey is the chain-specific composite identity used by the
// Deduplicator.
type DedupKey struct {
	Blockchain string
	TxHash     string
	LogIndex   int
}

// Key computes the dedup key for this event per the chain-specific rules:
// EVM chains key on (blockchain, tx_hash, log_index); Solana keys on
// (blockchain, tx_hash) alone (instruction index intentionally ignored);
// XRP keys on (blockchain, tx_hash, sequence), stored in LogIndex here
// since the two chains never collide in the same key space.
func (e RawEvent) Key() DedupKey {
	if e.Blockchain == "solana" {
		return DedupKey{Blockchain: e.Blockchain, TxHash: e.TxHash}
	}
	return DedupKey{Blockchain: e.Blockchain, TxHash: e.TxHash, LogIndex: e.LogIndex}
}

// UniqueEvent is a RawEvent that has passed the Deduplicator.
type UniqueEvent struct {
	RawEvent
}

// ClassifiedEvent augments a UniqueEvent with the Whale Intelligence
// Engine's verdict.
type ClassifiedEvent struct {
	UniqueEvent

	TraceID         string
	Classification  Classification
	Confidence      float64
	WhaleScore      float64
	IsWhale         bool
	WhaleSignals    []string
	Evidence        []string
	PhasesCompleted int
	CostOptimized   bool
	ClassifiedAt    time.Time
}
