// Package ethpoll implements the ETH_POLL and (by reuse) POLYGON_POLL
// adapters: REST polling of a scan-style indexer's token-transfers
// endpoint, descending by block, per watched token.
package ethpoll

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/whaleintel/pipeline/internal/adapters"
	"github.com/whaleintel/pipeline/internal/config"
	"github.com/whaleintel/pipeline/internal/model"
	"github.com/whaleintel/pipeline/internal/priceoracle"
	"github.com/whaleintel/pipeline/internal/ratelimit"
)

// scanTransfer is the subset of a scan-indexer "tokentx" row we need.
type scanTransfer struct {
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	BlockNumber string `json:"blockNumber"`
	LogIndex    string `json:"logIndex"`
	TimeStamp   string `json:"timeStamp"`
}

type scanResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Result  []scanTransfer `json:"result"`
}

// Adapter polls a scan-style indexer for ERC-20 transfers on a single
// EVM chain. The same type backs both ETH_POLL and POLYGON_POLL; only
// the source ID, endpoint, and watchlist differ.
type Adapter struct {
	source     model.SourceID
	blockchain string
	endpoint   string
	apiKey     string
	watchlist  []config.WatchedToken
	interval   time.Duration
	globalMin  float64

	prices  *priceoracle.Oracle
	limits  *ratelimit.Registry
	http    *http.Client

	lastBlock map[string]int64

	adapters.Counters
}

// New constructs an Adapter. globalMinUSD is the shared
// GLOBAL_USD_THRESHOLD floor applied on top of any watchlist-specific
// minimum. limits may be nil, in which case requests are unthrottled.
func New(source model.SourceID, blockchain, endpoint, apiKey string, watchlist []config.WatchedToken, interval time.Duration, globalMinUSD float64, prices *priceoracle.Oracle, limits *ratelimit.Registry) *Adapter {
	return &Adapter{
		source:     source,
		blockchain: blockchain,
		endpoint:   endpoint,
		apiKey:     apiKey,
		watchlist:  watchlist,
		interval:   interval,
		globalMin:  globalMinUSD,
		prices:     prices,
		limits:     limits,
		http:       &http.Client{Timeout: 15 * time.Second},
		lastBlock:  make(map[string]int64),
	}
}

func (a *Adapter) Name() model.SourceID { return a.source }

func (a *Adapter) Stats() model.AdapterStats { return a.Counters.Snapshot() }

// Run polls every watched token on a.interval until ctx is canceled.
func (a *Adapter) Run(ctx context.Context, out chan<- model.RawEvent) error {
	log.Printf("%s: starting poll loop, interval=%v, watchlist=%d tokens", a.source, a.interval, len(a.watchlist))

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.pollAll(ctx, out)
	for {
		select {
		case <-ctx.Done():
			log.Printf("%s: stopped", a.source)
			return ctx.Err()
		case <-ticker.C:
			a.pollAll(ctx, out)
		}
	}
}

func (a *Adapter) pollAll(ctx context.Context, out chan<- model.RawEvent) {
	for _, token := range a.watchlist {
		if ctx.Err() != nil {
			return
		}
		if err := a.pollOne(ctx, token, out); err != nil {
			a.Counters.MarkError()
			log.Printf("%s: %s poll failed: %v", a.source, token.Symbol, err)
		}
	}
}

// pollOne walks the indexer's transfer list for one token with
// exponential backoff on error, 1s -> 30s cap.
func (a *Adapter) pollOne(ctx context.Context, token config.WatchedToken, out chan<- model.RawEvent) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	var resp *scanResponse
	var err error
	for attempt := 0; attempt < 4; attempt++ {
		resp, err = a.fetchTransfers(ctx, token.Contract)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	if err != nil {
		return fmt.Errorf("fetch transfers for %s: %w", token.Symbol, err)
	}

	lastSeen := a.lastBlock[token.Symbol]
	maxBlock := lastSeen
	price, _ := a.prices.Get(ctx, token.Symbol)

	for _, t := range resp.Result {
		block := parseInt64(t.BlockNumber)
		if block <= lastSeen {
			break
		}
		if block > maxBlock {
			maxBlock = block
		}

		rawValue, ok := new(big.Int).SetString(t.Value, 10)
		if !ok {
			rawValue = big.NewInt(0)
		}
		amount := decimal.NewFromBigInt(rawValue, -int32(token.Decimals))
		tokenAmount, _ := amount.Float64()
		usdValue := tokenAmount * price

		if price == 0 || usdValue < a.globalMin || usdValue < token.MinThresholdUSD {
			a.Counters.MarkFilteredLowVal()
			continue
		}

		ev := model.RawEvent{
			SourceID:    a.source,
			Blockchain:  a.blockchain,
			TxHash:      t.Hash,
			LogIndex:    parseInt(t.LogIndex),
			BlockNumber: block,
			FromAddr:    t.From,
			ToAddr:      t.To,
			Symbol:      token.Symbol,
			Amount:      amount,
			UsdValue:    decimal.NewFromFloat(usdValue),
			Timestamp:   parseInt64(t.TimeStamp),
		}
		adapters.Emit(ctx, out, ev)
		a.Counters.MarkFetched()
	}

	if maxBlock > lastSeen {
		a.lastBlock[token.Symbol] = maxBlock
	}
	a.Counters.MarkSuccess()
	return nil
}

func (a *Adapter) fetchTransfers(ctx context.Context, contract string) (*scanResponse, error) {
	if a.limits != nil {
		if err := a.limits.Wait(ctx, string(a.source)); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", "tokentx")
	q.Set("contractaddress", contract)
	q.Set("sort", "desc")
	if a.apiKey != "" {
		q.Set("apikey", a.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+"/api?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var out scanResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func parseInt64(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func parseInt(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}
