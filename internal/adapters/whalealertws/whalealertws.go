// Package whalealertws implements the WHALE_ALERT_WS adapter: a vendor
// aggregated feed that reports multi-token alerts, emitting one RawEvent
// per token amount and skipping stablecoin amounts to avoid flooding the
// pipeline with non-directional noise.
package whalealertws

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/whaleintel/pipeline/internal/adapters"
	"github.com/whaleintel/pipeline/internal/model"
)

// alertAmount is one token leg of a whale-alert style transaction.
type alertAmount struct {
	Symbol   string  `json:"symbol"`
	Amount   float64 `json:"amount"`
	USDValue float64 `json:"usd_value"`
}

type alertMessage struct {
	Type       string        `json:"type"`
	Blockchain string        `json:"blockchain"`
	Hash       string        `json:"hash"`
	From       string        `json:"from"`
	To         string        `json:"to"`
	Timestamp  int64         `json:"timestamp"`
	Amounts    []alertAmount `json:"amounts"`
}

// Adapter subscribes to the vendor's aggregated whale-alert feed.
type Adapter struct {
	wsURL       string
	apiKey      string
	minValueUSD float64
	stablecoins map[string]bool

	adapters.Counters
}

// New constructs the WHALE_ALERT_WS adapter.
func New(wsURL, apiKey string, minValueUSD float64, stablecoins map[string]bool) *Adapter {
	return &Adapter{wsURL: wsURL, apiKey: apiKey, minValueUSD: minValueUSD, stablecoins: stablecoins}
}

func (a *Adapter) Name() model.SourceID { return model.SourceWhaleAlertWS }

func (a *Adapter) Stats() model.AdapterStats { return a.Counters.Snapshot() }

func (a *Adapter) Run(ctx context.Context, out chan<- model.RawEvent) error {
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		header := make(map[string][]string)
		if a.apiKey != "" {
			header["X-API-KEY"] = []string{a.apiKey}
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.wsURL, header)
		if err != nil {
			a.Counters.MarkError()
			log.Printf("%s: dial failed: %v", model.SourceWhaleAlertWS, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			continue
		}

		log.Printf("%s: connected to %s", model.SourceWhaleAlertWS, a.wsURL)
		backoff = time.Second
		a.Counters.SetHealthy(true)

		sub := map[string]any{
			"type":           "subscribe_alerts",
			"min_value_usd":  a.minValueUSD,
			"tx_types":       []string{"transfer", "mint", "burn"},
		}
		if err := conn.WriteJSON(sub); err != nil {
			log.Printf("%s: subscribe failed: %v", model.SourceWhaleAlertWS, err)
			conn.Close()
			continue
		}

		a.readLoop(ctx, conn, out)
		conn.Close()
	}
}

func (a *Adapter) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- model.RawEvent) {
	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			a.Counters.MarkError()
			log.Printf("%s: read error: %v", model.SourceWhaleAlertWS, err)
			return
		}
		a.handleMessage(ctx, data, out)
	}
}

func (a *Adapter) handleMessage(ctx context.Context, data []byte, out chan<- model.RawEvent) {
	var msg alertMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.Hash == "" || len(msg.Amounts) == 0 {
		return
	}

	for _, amt := range msg.Amounts {
		if a.stablecoins[amt.Symbol] {
			a.Counters.MarkDropped()
			continue
		}
		if amt.USDValue < a.minValueUSD {
			a.Counters.MarkFilteredLowVal()
			continue
		}

		ev := model.RawEvent{
			SourceID:   model.SourceWhaleAlertWS,
			Blockchain: msg.Blockchain,
			TxHash:     msg.Hash,
			FromAddr:   msg.From,
			ToAddr:     msg.To,
			Symbol:     amt.Symbol,
			Amount:     decimal.NewFromFloat(amt.Amount),
			UsdValue:   decimal.NewFromFloat(amt.USDValue),
			Timestamp:  msg.Timestamp,
		}
		adapters.Emit(ctx, out, ev)
		a.Counters.MarkFetched()
	}
	a.Counters.MarkSuccess()
}
