// Package solanaws implements the SOLANA_WS adapter: websocket
// subscription to SPL Token program account updates, with balance-delta
// tracking per (owner, mint) pair.
package solanaws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/whaleintel/pipeline/internal/adapters"
	"github.com/whaleintel/pipeline/internal/config"
	"github.com/whaleintel/pipeline/internal/model"
	"github.com/whaleintel/pipeline/internal/priceoracle"
)

const maxConsecutiveRetries = 5

// splTokenProgramID is the SPL Token program that owns every token account.
const splTokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf3Ss623VQ5DA"

// accountNotification is the subset of Solana's programSubscribe
// notification payload this adapter needs.
type accountNotification struct {
	Params struct {
		Result struct {
			Value struct {
				Account struct {
					Data struct {
						Parsed struct {
							Info struct {
								Mint        string `json:"mint"`
								Owner       string `json:"owner"`
								TokenAmount struct {
									UIAmount float64 `json:"uiAmount"`
								} `json:"tokenAmount"`
							} `json:"info"`
						} `json:"parsed"`
					} `json:"data"`
				} `json:"account"`
				Slot uint64 `json:"-"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// Adapter subscribes to SPL Token program account changes for a
// configured set of watched mints.
type Adapter struct {
	wsURL     string
	watchlist []config.WatchedMint
	globalMin float64
	prices    *priceoracle.Oracle

	mu       sync.Mutex
	balances map[string]float64 // owner+mint -> previous ui_amount
	owners   map[string]string  // owner+mint -> last known counterparty, best-effort

	adapters.Counters
}

// New constructs the SOLANA_WS adapter.
func New(wsURL string, watchlist []config.WatchedMint, globalMinUSD float64, prices *priceoracle.Oracle) *Adapter {
	return &Adapter{
		wsURL:     wsURL,
		watchlist: watchlist,
		globalMin: globalMinUSD,
		prices:    prices,
		balances:  make(map[string]float64),
		owners:    make(map[string]string),
	}
}

func (a *Adapter) Name() model.SourceID { return model.SourceSolanaWS }

func (a *Adapter) Stats() model.AdapterStats { return a.Counters.Snapshot() }

// Run connects, subscribes to all watched mints' token accounts, and
// reconnects with exponential backoff (capped at 30s) up to
// maxConsecutiveRetries before reporting itself unhealthy.
func (a *Adapter) Run(ctx context.Context, out chan<- model.RawEvent) error {
	retries := 0
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.wsURL, nil)
		if err != nil {
			retries++
			a.Counters.MarkError()
			log.Printf("%s: dial failed (attempt %d): %v", model.SourceSolanaWS, retries, err)
			if retries >= maxConsecutiveRetries {
				a.Counters.SetHealthy(false)
				log.Printf("%s: unhealthy after %d consecutive failures", model.SourceSolanaWS, retries)
			}
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

		log.Printf("%s: connected to %s", model.SourceSolanaWS, a.wsURL)
		retries = 0
		backoff = time.Second
		a.Counters.SetHealthy(true)

		if err := a.subscribeAll(conn); err != nil {
			log.Printf("%s: subscribe failed: %v", model.SourceSolanaWS, err)
			conn.Close()
			continue
		}

		a.readLoop(ctx, conn, out)
		conn.Close()
	}
}

func (a *Adapter) subscribeAll(conn *websocket.Conn) error {
	for i, mint := range a.watchlist {
		req := map[string]any{
			"jsonrpc": "2.0",
			"id":      i + 1,
			"method":  "programSubscribe",
			"params": []any{
				splTokenProgramID,
				map[string]any{
					"encoding": "jsonParsed",
					// A token account stores its mint in its first 32 bytes.
					"filters": []any{map[string]any{"memcmp": map[string]any{"offset": 0, "bytes": mint.Mint}}},
				},
			},
		}
		if err := conn.WriteJSON(req); err != nil {
			return fmt.Errorf("subscribe %s: %w", mint.Symbol, err)
		}
	}
	return nil
}

func (a *Adapter) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- model.RawEvent) {
	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			a.Counters.MarkError()
			log.Printf("%s: read error: %v", model.SourceSolanaWS, err)
			return
		}
		a.handleMessage(ctx, data, out)
	}
}

func (a *Adapter) handleMessage(ctx context.Context, data []byte, out chan<- model.RawEvent) {
	var msg accountNotification
	if err := json.Unmarshal(data, &msg); err != nil {
		return // subscription acks and pings are not account notifications
	}

	info := msg.Params.Result.Value.Account.Data.Parsed.Info
	if info.Mint == "" || info.Owner == "" {
		return
	}

	symbol := a.symbolFor(info.Mint)
	if symbol == "" {
		return
	}

	key := info.Owner + ":" + info.Mint
	a.mu.Lock()
	prev, known := a.balances[key]
	a.balances[key] = info.TokenAmount.UIAmount
	a.mu.Unlock()
	if !known {
		return // first observation establishes baseline only
	}

	delta := info.TokenAmount.UIAmount - prev
	if delta == 0 {
		return
	}

	price, _ := a.prices.Get(ctx, symbol)
	usdValue := absFloat(delta) * price
	if price == 0 || usdValue < a.globalMin {
		a.Counters.MarkFilteredLowVal()
		return
	}

	fromAddr, toAddr := "", info.Owner
	if delta < 0 {
		fromAddr, toAddr = info.Owner, ""
	}

	ev := model.RawEvent{
		SourceID:   model.SourceSolanaWS,
		Blockchain: "solana",
		TxHash:     fmt.Sprintf("%s-%d", info.Owner, time.Now().UnixNano()),
		FromAddr:   fromAddr,
		ToAddr:     toAddr,
		Symbol:     symbol,
		Amount:     decimal.NewFromFloat(absFloat(delta)),
		UsdValue:   decimal.NewFromFloat(usdValue),
		Timestamp:  time.Now().Unix(),
	}
	adapters.Emit(ctx, out, ev)
	a.Counters.MarkFetched()
	a.Counters.MarkSuccess()
}

func (a *Adapter) symbolFor(mint string) string {
	for _, w := range a.watchlist {
		if w.Mint == mint {
			return w.Symbol
		}
	}
	return ""
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
