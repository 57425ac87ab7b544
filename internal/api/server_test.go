package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/whaleintel/pipeline/internal/ces"
	"github.com/whaleintel/pipeline/internal/dedup"
	"github.com/whaleintel/pipeline/internal/model"
	"github.com/whaleintel/pipeline/internal/sentiment"
)

func newTestServer() (*Server, *ces.Store) {
	store := ces.New(time.Hour, 1000)
	deduper := dedup.New()
	agg := sentiment.New(store, time.Hour, time.Minute, 1)
	return NewServer(store, deduper, agg, nil, 2500), store
}

func TestHandleTransactions_FiltersBySymbolAndMinValue(t *testing.T) {
	s, store := newTestServer()
	store.Insert(model.ClassifiedEvent{
		UniqueEvent:    model.UniqueEvent{RawEvent: model.RawEvent{TxHash: "0x1", Symbol: "WETH", Blockchain: "ethereum", UsdValue: decimal.NewFromInt(5000)}},
		Classification: model.ClassBuy,
		ClassifiedAt:   time.Now(),
	})
	store.Insert(model.ClassifiedEvent{
		UniqueEvent:    model.UniqueEvent{RawEvent: model.RawEvent{TxHash: "0x2", Symbol: "LINK", Blockchain: "ethereum", UsdValue: decimal.NewFromInt(50)}},
		Classification: model.ClassBuy,
		ClassifiedAt:   time.Now(),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/transactions?symbol=WETH&min_value=1000", nil)
	rec := httptest.NewRecorder()
	s.handleTransactions(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Data  []model.ClassifiedEvent `json:"data"`
		Count int                     `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Count != 1 || body.Data[0].Symbol != "WETH" {
		t.Fatalf("expected only the WETH transaction, got %+v", body)
	}
}

func TestHandleStats_ReportsTokenTrendAndDedup(t *testing.T) {
	s, store := newTestServer()
	store.Insert(model.ClassifiedEvent{
		UniqueEvent:    model.UniqueEvent{RawEvent: model.RawEvent{TxHash: "0x1", Symbol: "WETH", UsdValue: decimal.NewFromInt(100)}},
		Classification: model.ClassBuy,
		ClassifiedAt:   time.Now(),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	s.handleStats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Tokens []map[string]any `json:"tokens"`
		Monitoring struct {
			ActiveAdapters      []map[string]any `json:"active_adapters"`
			MinTransactionValue float64          `json:"min_transaction_value"`
		} `json:"monitoring"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Tokens) != 1 {
		t.Fatalf("expected exactly 1 token entry, got %d", len(body.Tokens))
	}
	tok := body.Tokens[0]
	if tok["symbol"] != "WETH" {
		t.Fatalf("expected symbol WETH, got %v", tok["symbol"])
	}
	if tok["total"].(float64) != 1 {
		t.Fatalf("expected total 1, got %v", tok["total"])
	}
	if tok["buy_percentage"].(float64) != 100 {
		t.Fatalf("expected buy_percentage 100, got %v", tok["buy_percentage"])
	}
	if body.Monitoring.MinTransactionValue != 2500 {
		t.Fatalf("expected min_transaction_value 2500, got %v", body.Monitoring.MinTransactionValue)
	}
	if body.Monitoring.ActiveAdapters == nil {
		t.Fatal("expected active_adapters to be a (possibly empty) array, got null")
	}
}

func TestHandleSentiment_EmptyByDefault(t *testing.T) {
	s, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/sentiment", nil)
	rec := httptest.NewRecorder()
	s.handleSentiment(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Data []model.SentimentSnapshot `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Data == nil || len(body.Data) != 0 {
		t.Fatalf("expected empty but valid data slice, got %+v", body.Data)
	}
}
