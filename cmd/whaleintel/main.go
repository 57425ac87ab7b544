// Command whaleintel runs the whale transaction intelligence pipeline:
// per-chain source adapters feed a deduplicator, whose unique events
// pass through the classification engine into the Classified Event
// Store, which the sentiment aggregator and Read API both read from.
package main

import (
	"log"
	"strconv"
	"time"

	"github.com/whaleintel/pipeline/internal/adapters"
	"github.com/whaleintel/pipeline/internal/adapters/ethpoll"
	"github.com/whaleintel/pipeline/internal/adapters/polygonpoll"
	"github.com/whaleintel/pipeline/internal/adapters/solanapoll"
	"github.com/whaleintel/pipeline/internal/adapters/solanaws"
	"github.com/whaleintel/pipeline/internal/adapters/whalealertws"
	"github.com/whaleintel/pipeline/internal/adapters/xrpws"
	"github.com/whaleintel/pipeline/internal/ais"
	"github.com/whaleintel/pipeline/internal/api"
	"github.com/whaleintel/pipeline/internal/ces"
	"github.com/whaleintel/pipeline/internal/config"
	"github.com/whaleintel/pipeline/internal/dedup"
	"github.com/whaleintel/pipeline/internal/engine"
	"github.com/whaleintel/pipeline/internal/priceoracle"
	"github.com/whaleintel/pipeline/internal/ratelimit"
	"github.com/whaleintel/pipeline/internal/sentiment"
	"github.com/whaleintel/pipeline/internal/supervisor"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	log.Println("🗄️  Connecting to AIS database...")
	aisDB, err := ais.Connect(cfg.Database.Host, cfg.Database.Port, cfg.Database.Name, cfg.Database.User, cfg.Database.Password)
	if err != nil {
		log.Fatalf("ais: %v", err)
	}
	aisStore := ais.New(aisDB)
	if err := aisStore.Refresh(); err != nil {
		log.Printf("⚠️  AIS initial refresh failed: %v", err)
	}

	log.Println("🧠 Connecting to Redis price cache...")
	redisClient := priceoracle.NewRedisClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password)
	fallbackPrices := map[string]float64{"USDC": 1, "USDT": 1, "DAI": 1, "BUSD": 1, "TUSD": 1}
	prices := priceoracle.New(redisClient, fallbackPrices)

	deduper := dedup.New()
	eng := engine.New(aisStore, prices, cfg.Whale, cfg.Classification, cfg.Adapters.StablecoinSymbols, nil, nil)
	store := ces.New(cfg.CESRetention, cfg.CESMaxEntries)
	agg := sentiment.New(store, cfg.SentimentWindow, cfg.SentimentTick, cfg.SentimentMinTx)

	limits := ratelimit.NewRegistry()
	limits.Register("ETH_POLL", 5, 10)
	limits.Register("POLYGON_POLL", 5, 10)
	limits.Register("solana_rpc", 10, 20)

	var enabled []adapters.Adapter
	if cfg.Adapters.EthEnabled {
		enabled = append(enabled, ethpoll.New("ETH_POLL", "ethereum", cfg.Adapters.EthEndpoint, cfg.Adapters.EthAPIKey, cfg.Adapters.EthWatchlist, cfg.Adapters.EthPollInterval, cfg.GlobalUSDThreshold, prices, limits))
	}
	if cfg.Adapters.PolygonEnabled {
		enabled = append(enabled, polygonpoll.New(cfg.Adapters.PolygonEndpoint, cfg.Adapters.PolygonAPIKey, cfg.Adapters.PolygonWatchlist, cfg.Adapters.PolygonPollInterval, cfg.GlobalUSDThreshold, prices, limits))
	}
	if cfg.Adapters.SolanaEnabled {
		enabled = append(enabled, solanaws.New(cfg.Adapters.SolanaWSURL, cfg.Adapters.SolanaWatchlist, cfg.GlobalUSDThreshold, prices))
		enabled = append(enabled, solanapoll.New(cfg.Adapters.SolanaRPCURL, cfg.Adapters.SolanaWatchlist, 30*time.Second, cfg.GlobalUSDThreshold, prices, limits))
	}
	if cfg.Adapters.XRPEnabled {
		enabled = append(enabled, xrpws.New(cfg.Adapters.XRPWSURLs, cfg.GlobalUSDThreshold, prices))
	}
	if cfg.Adapters.WhaleAlertEnabled {
		enabled = append(enabled, whalealertws.New(cfg.Adapters.WhaleAlertWSURL, cfg.Adapters.WhaleAlertAPIKey, cfg.Adapters.WhaleAlertMinUSD, cfg.Adapters.StablecoinSymbols))
	}
	log.Printf("🔌 %d source adapters enabled", len(enabled))

	sup := supervisor.New(enabled, aisStore, deduper, eng, store, agg, 5*time.Minute, cfg.CESRetention/4, cfg.CESRetention, cfg.Adapters.MaxConsecutiveFailures)

	apiServer := api.NewServer(store, deduper, agg, sup, cfg.GlobalUSDThreshold)
	go func() {
		if err := apiServer.Start(cfg.APIPort); err != nil {
			log.Printf("⚠️  Read API failed: %v", err)
		}
	}()

	log.Println("🚀 Whale intelligence pipeline starting, API port " + strconv.Itoa(cfg.APIPort))
	finalCounters := sup.Run()
	log.Println(supervisor.Summary(finalCounters))
}
