// Package solanapoll implements the SOLANA_POLL adapter: a
// signature-based fallback that walks getSignaturesForAddress per
// watched mint and extracts SPL-token transfer instructions from each
// new transaction.
package solanapoll

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/whaleintel/pipeline/internal/adapters"
	"github.com/whaleintel/pipeline/internal/config"
	"github.com/whaleintel/pipeline/internal/model"
	"github.com/whaleintel/pipeline/internal/priceoracle"
	"github.com/whaleintel/pipeline/internal/ratelimit"
)

type rpcRequest struct {
	Jsonrpc string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type signatureInfo struct {
	Signature string `json:"signature"`
	BlockTime int64  `json:"blockTime"`
}

type signaturesResponse struct {
	Result []signatureInfo `json:"result"`
}

type tokenTransferInfo struct {
	Mint        string `json:"mint"`
	Authority   string `json:"authority"`
	Destination string `json:"destination"`
	TokenAmount struct {
		UIAmount float64 `json:"uiAmount"`
	} `json:"tokenAmount"`
}

type instruction struct {
	Parsed struct {
		Type string            `json:"type"`
		Info tokenTransferInfo `json:"info"`
	} `json:"parsed"`
	Program string `json:"program"`
}

type parsedTransaction struct {
	Transaction struct {
		Message struct {
			Instructions []instruction `json:"instructions"`
		} `json:"message"`
	} `json:"transaction"`
	Meta struct {
		InnerInstructions []struct {
			Instructions []instruction `json:"instructions"`
		} `json:"innerInstructions"`
	} `json:"meta"`
	BlockTime int64 `json:"blockTime"`
}

type transactionResponse struct {
	Result *parsedTransaction `json:"result"`
}

// Adapter polls getSignaturesForAddress/getTransaction for each watched
// mint on a fixed interval.
type Adapter struct {
	rpcURL    string
	watchlist []config.WatchedMint
	interval  time.Duration
	globalMin float64
	prices    *priceoracle.Oracle
	limits    *ratelimit.Registry

	http *http.Client

	lastSignature map[string]string // mint -> signature cursor
	seen          map[string]bool   // signature -> parsed already, avoids duplicate fetches
	baselined     map[string]bool   // mint -> baseline established

	adapters.Counters
}

// New constructs the SOLANA_POLL adapter. limits may be nil.
func New(rpcURL string, watchlist []config.WatchedMint, interval time.Duration, globalMinUSD float64, prices *priceoracle.Oracle, limits *ratelimit.Registry) *Adapter {
	return &Adapter{
		rpcURL:        rpcURL,
		watchlist:     watchlist,
		interval:      interval,
		globalMin:     globalMinUSD,
		prices:        prices,
		limits:        limits,
		http:          &http.Client{Timeout: 15 * time.Second},
		lastSignature: make(map[string]string),
		seen:          make(map[string]bool),
		baselined:     make(map[string]bool),
	}
}

func (a *Adapter) Name() model.SourceID { return model.SourceSolanaPoll }

func (a *Adapter) Stats() model.AdapterStats { return a.Counters.Snapshot() }

func (a *Adapter) Run(ctx context.Context, out chan<- model.RawEvent) error {
	log.Printf("%s: starting poll loop, interval=%v, mints=%d", model.SourceSolanaPoll, a.interval, len(a.watchlist))

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.pollAll(ctx, out)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.pollAll(ctx, out)
		}
	}
}

func (a *Adapter) pollAll(ctx context.Context, out chan<- model.RawEvent) {
	for _, mint := range a.watchlist {
		if ctx.Err() != nil {
			return
		}
		if err := a.pollOne(ctx, mint, out); err != nil {
			a.Counters.MarkError()
			log.Printf("%s: %s poll failed: %v", model.SourceSolanaPoll, mint.Symbol, err)
			continue
		}
		a.Counters.MarkSuccess()
	}
}

func (a *Adapter) pollOne(ctx context.Context, mint config.WatchedMint, out chan<- model.RawEvent) error {
	sigs, err := a.getSignatures(ctx, mint.Mint)
	if err != nil {
		return fmt.Errorf("get signatures: %w", err)
	}

	if !a.baselined[mint.Mint] {
		// Baseline initialization: skip historical backfill entirely.
		a.baselined[mint.Mint] = true
		if len(sigs) > 0 {
			a.lastSignature[mint.Mint] = sigs[0].Signature
		}
		return nil
	}

	// sigs is newest-first: only the entries before the cursor are new.
	cursor := a.lastSignature[mint.Mint]
	end := len(sigs)
	for i, sig := range sigs {
		if sig.Signature == cursor {
			end = i
			break
		}
	}
	for i := end - 1; i >= 0; i-- {
		sig := sigs[i]

		if a.seen[sig.Signature] {
			continue
		}
		a.seen[sig.Signature] = true

		tx, err := a.getTransaction(ctx, sig.Signature)
		if err != nil {
			a.Counters.MarkError()
			log.Printf("%s: get transaction %s failed: %v", model.SourceSolanaPoll, sig.Signature, err)
			continue
		}
		if tx == nil {
			continue
		}
		a.emitTransfers(ctx, sig, tx, mint, out)
	}

	if len(sigs) > 0 {
		a.lastSignature[mint.Mint] = sigs[0].Signature
	}
	return nil
}

func (a *Adapter) emitTransfers(ctx context.Context, sig signatureInfo, tx *parsedTransaction, mint config.WatchedMint, out chan<- model.RawEvent) {
	all := append([]instruction{}, tx.Transaction.Message.Instructions...)
	for _, inner := range tx.Meta.InnerInstructions {
		all = append(all, inner.Instructions...)
	}

	price, _ := a.prices.Get(ctx, mint.Symbol)

	for _, ins := range all {
		if ins.Parsed.Type != "transfer" && ins.Parsed.Type != "transferChecked" {
			continue
		}
		if ins.Parsed.Info.Mint != "" && ins.Parsed.Info.Mint != mint.Mint {
			continue
		}

		amount := ins.Parsed.Info.TokenAmount.UIAmount
		usdValue := amount * price
		if price == 0 || usdValue < a.globalMin {
			a.Counters.MarkFilteredLowVal()
			continue
		}

		ev := model.RawEvent{
			SourceID:   model.SourceSolanaPoll,
			Blockchain: "solana",
			TxHash:     sig.Signature,
			FromAddr:   ins.Parsed.Info.Authority,
			ToAddr:     ins.Parsed.Info.Destination,
			Symbol:     mint.Symbol,
			Amount:     decimal.NewFromFloat(amount),
			UsdValue:   decimal.NewFromFloat(usdValue),
			Timestamp:  sig.BlockTime,
		}
		adapters.Emit(ctx, out, ev)
		a.Counters.MarkFetched()
	}
}

func (a *Adapter) getSignatures(ctx context.Context, address string) ([]signatureInfo, error) {
	req := rpcRequest{
		Jsonrpc: "2.0", ID: 1, Method: "getSignaturesForAddress",
		Params: []any{address, map[string]int{"limit": 100}},
	}
	var resp signaturesResponse
	if err := a.call(ctx, req, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

func (a *Adapter) getTransaction(ctx context.Context, signature string) (*parsedTransaction, error) {
	req := rpcRequest{
		Jsonrpc: "2.0", ID: 1, Method: "getTransaction",
		Params: []any{signature, map[string]string{"encoding": "jsonParsed"}},
	}
	var resp transactionResponse
	if err := a.call(ctx, req, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

func (a *Adapter) call(ctx context.Context, body rpcRequest, out any) error {
	if a.limits != nil {
		if err := a.limits.Wait(ctx, "solana_rpc"); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.rpcURL, strings.NewReader(string(payload)))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
