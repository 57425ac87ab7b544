// Package xrpws implements the XRP_WS adapter: a websocket subscription
// to the XRP Ledger's transactions stream, with failover across multiple
// server URLs.
package xrpws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/whaleintel/pipeline/internal/adapters"
	"github.com/whaleintel/pipeline/internal/model"
	"github.com/whaleintel/pipeline/internal/priceoracle"
)

// txStreamMessage is the subset of the XRPL `transactions` stream this
// adapter needs from a Payment transaction.
type txStreamMessage struct {
	Type            string `json:"type"`
	TransactionType string `json:"TransactionType"`
	Hash            string `json:"hash"`
	Account         string `json:"Account"`
	Destination     string `json:"Destination"`
	Amount          any    `json:"Amount"`
	Sequence        int    `json:"Sequence"`
	LedgerIndex     int64  `json:"ledger_index"`
	Date            int64  `json:"date"`
}

// Adapter subscribes to XRPL transaction streams, failing over across
// urls on connection error.
type Adapter struct {
	urls      []string
	globalMin float64
	prices    *priceoracle.Oracle

	adapters.Counters
}

// New constructs the XRP_WS adapter.
func New(urls []string, globalMinUSD float64, prices *priceoracle.Oracle) *Adapter {
	return &Adapter{urls: urls, globalMin: globalMinUSD, prices: prices}
}

func (a *Adapter) Name() model.SourceID { return model.SourceXRPWS }

func (a *Adapter) Stats() model.AdapterStats { return a.Counters.Snapshot() }

func (a *Adapter) Run(ctx context.Context, out chan<- model.RawEvent) error {
	if len(a.urls) == 0 {
		return errors.New("no XRP websocket URLs configured")
	}

	urlIdx := 0
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		url := a.urls[urlIdx%len(a.urls)]
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			a.Counters.MarkError()
			log.Printf("%s: dial %s failed: %v", model.SourceXRPWS, url, err)
			urlIdx++
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

		log.Printf("%s: connected to %s", model.SourceXRPWS, url)
		backoff = time.Second
		a.Counters.SetHealthy(true)

		sub := map[string]any{"command": "subscribe", "streams": []string{"transactions"}}
		if err := conn.WriteJSON(sub); err != nil {
			log.Printf("%s: subscribe failed: %v", model.SourceXRPWS, err)
			conn.Close()
			urlIdx++
			continue
		}

		a.readLoop(ctx, conn, out)
		conn.Close()
		urlIdx++
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
			log.Printf("%s: read error: %v", model.SourceXRPWS, err)
			return
		}
		a.handleMessage(ctx, data, out)
	}
}

func (a *Adapter) handleMessage(ctx context.Context, data []byte, out chan<- model.RawEvent) {
	var msg txStreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.TransactionType != "Payment" {
		return
	}

	drops, ok := msg.Amount.(string)
	if !ok {
		return // non-XRP (issued currency) payments carry an object Amount; out of scope here
	}

	dropsDec, err := decimal.NewFromString(drops)
	if err != nil {
		return
	}
	amountXRP := dropsDec.Div(decimal.NewFromInt(1_000_000))

	price, _ := a.prices.Get(ctx, "XRP")
	amountFloat, _ := amountXRP.Float64()
	usdValue := amountFloat * price
	if price == 0 || usdValue < a.globalMin {
		a.Counters.MarkFilteredLowVal()
		return
	}

	ev := model.RawEvent{
		SourceID:    model.SourceXRPWS,
		Blockchain:  "xrp",
		TxHash:      msg.Hash,
		LogIndex:    msg.Sequence,
		BlockNumber: msg.LedgerIndex,
		FromAddr:    msg.Account,
		ToAddr:      msg.Destination,
		Symbol:      "XRP",
		Amount:      amountXRP,
		UsdValue:    decimal.NewFromFloat(usdValue),
		Timestamp:   msg.Date,
	}
	adapters.Emit(ctx, out, ev)
	a.Counters.MarkFetched()
	a.Counters.MarkSuccess()
}
