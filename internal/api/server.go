// Package api implements the Read API: three read-only JSON endpoints
// over the Classified Event Store, the Deduplicator, and the Sentiment
// Aggregator, plus a /health probe.
package api

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/whaleintel/pipeline/internal/ces"
	"github.com/whaleintel/pipeline/internal/dedup"
	"github.com/whaleintel/pipeline/internal/model"
	"github.com/whaleintel/pipeline/internal/sentiment"
)

// AdapterMonitor reports per-adapter health for /api/stats' monitoring
// block. Implemented by the supervisor; kept as a narrow interface so
// the api package never imports it directly.
type AdapterMonitor interface {
	AdapterStats() map[string]model.AdapterStats
}

// Server is the Read API's HTTP surface.
type Server struct {
	store             *ces.Store
	dedup             *dedup.Deduplicator
	sentiment         *sentiment.Aggregator
	monitor           AdapterMonitor
	minTransactionUSD float64
}

// NewServer constructs a Server. monitor may be nil before the
// supervisor starts; /api/stats reports an empty adapter list then.
// minTransactionUSD is surfaced in /api/stats' monitoring block so
// clients can see the floor below which events are never ingested.
func NewServer(store *ces.Store, deduper *dedup.Deduplicator, agg *sentiment.Aggregator, monitor AdapterMonitor, minTransactionUSD float64) *Server {
	return &Server{store: store, dedup: deduper, sentiment: agg, monitor: monitor, minTransactionUSD: minTransactionUSD}
}

// Start runs the HTTP server on the given port until the process exits
// or ListenAndServe returns an error.
func (s *Server) Start(port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/transactions", s.handleTransactions)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/sentiment", s.handleSentiment)
	mux.HandleFunc("GET /health", s.handleHealth)

	handler := s.gzipMiddleware(s.corsMiddleware(s.loggingMiddleware(mux)))

	addr := fmt.Sprintf("0.0.0.0:%d", port)
	log.Printf("🚀 Read API starting on %s", addr)
	return http.ListenAndServe(addr, handler)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	writer *gzip.Writer
}

func (g *gzipResponseWriter) Write(data []byte) (int, error) {
	return g.writer.Write(data)
}

func (s *Server) gzipMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		next.ServeHTTP(&gzipResponseWriter{ResponseWriter: w, writer: gz}, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"status": "ok", "events_tracked": s.store.Size()})
}

// handleTransactions implements GET /api/transactions: filters by
// min_value, blockchain, symbol, type; sorted newest-first; limit
// defaults to 50, capped at 500.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := ces.Filter{
		MinValue:   getFloatParam(r, "min_value", 0),
		Blockchain: query.Get("blockchain"),
		Symbol:     query.Get("symbol"),
		Limit:      getIntParam(r, "limit", 50, nil, nil),
	}
	if t := query.Get("type"); t != "" {
		filter.Type = model.Classification(strings.ToUpper(t))
	}

	events := s.store.RecentByFilter(filter)
	writeJSON(w, map[string]any{
		"data":  events,
		"count": len(events),
	})
}

// handleStats implements GET /api/stats: per-token counters and trend,
// deduplication stats, and a monitoring block reporting each adapter's
// health and the configured minimum transaction value.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counters := s.store.TokenCounters()
	symbols := make([]string, 0, len(counters))
	for symbol := range counters {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	tokens := make([]map[string]any, 0, len(counters))
	for _, symbol := range symbols {
		c := counters[symbol]
		total := c.Buys + c.Sells
		buyPct := 0.0
		if total > 0 {
			buyPct = float64(c.Buys) / float64(total) * 100
		}
		tokens = append(tokens, map[string]any{
			"symbol":          symbol,
			"buys":            c.Buys,
			"sells":           c.Sells,
			"total":           total,
			"transfers":       c.Transfers,
			"buy_percentage":  buyPct,
			"buy_volume_usd":  c.BuyVolumeUSD,
			"sell_volume_usd": c.SellVolumeUSD,
			"avg_confidence":  c.AvgConfidence(),
			"avg_whale_score": c.AvgWhaleScore(),
			"trend":           model.Trend(buyPct),
		})
	}

	dedupStats := s.dedup.Stats()

	var adapterStats map[string]model.AdapterStats
	if s.monitor != nil {
		adapterStats = s.monitor.AdapterStats()
	}
	sourceIDs := make([]string, 0, len(adapterStats))
	for id := range adapterStats {
		sourceIDs = append(sourceIDs, id)
	}
	sort.Strings(sourceIDs)

	activeAdapters := make([]map[string]any, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		st := adapterStats[id]
		activeAdapters = append(activeAdapters, map[string]any{
			"source":             id,
			"fetched":            st.Fetched,
			"filtered_low_value": st.FilteredLowValue,
			"errors":             st.Errors,
			"dropped":            st.Dropped,
			"last_success_ts":    st.LastSuccessTs,
			"healthy":            st.Healthy,
		})
	}

	monitoring := map[string]any{
		"active_adapters":       activeAdapters,
		"min_transaction_value": s.minTransactionUSD,
	}

	writeJSON(w, map[string]any{
		"tokens":        tokens,
		"deduplication": dedupStats,
		"monitoring":    monitoring,
	})
}

// handleSentiment implements GET /api/sentiment?hours=: the most
// recently published sentiment snapshots, optionally filtered by how
// recently they were calculated.
func (s *Server) handleSentiment(w http.ResponseWriter, r *http.Request) {
	hours := getFloatParam(r, "hours", 0)

	snapshots := s.sentiment.Snapshot()
	if hours <= 0 {
		writeJSON(w, map[string]any{"data": snapshots})
		return
	}

	cutoff := time.Now().Add(-time.Duration(hours * float64(time.Hour)))
	filtered := make([]model.SentimentSnapshot, 0, len(snapshots))
	for _, snap := range snapshots {
		if snap.CalculatedAt.After(cutoff) {
			filtered = append(filtered, snap)
		}
	}
	writeJSON(w, map[string]any{"data": filtered})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("api: failed to encode response: %v", err)
	}
}
