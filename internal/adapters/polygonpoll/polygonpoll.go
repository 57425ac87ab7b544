// Package polygonpoll wires the POLYGON_POLL adapter. Polygon's transfer
// semantics are identical to Ethereum's scan-style indexer, so this
// package is a thin constructor over ethpoll.Adapter rather than a
// parallel implementation.
package polygonpoll

import (
	"time"

	"github.com/whaleintel/pipeline/internal/adapters"
	"github.com/whaleintel/pipeline/internal/adapters/ethpoll"
	"github.com/whaleintel/pipeline/internal/config"
	"github.com/whaleintel/pipeline/internal/model"
	"github.com/whaleintel/pipeline/internal/priceoracle"
	"github.com/whaleintel/pipeline/internal/ratelimit"
)

// New constructs the POLYGON_POLL adapter.
func New(endpoint, apiKey string, watchlist []config.WatchedToken, interval time.Duration, globalMinUSD float64, prices *priceoracle.Oracle, limits *ratelimit.Registry) adapters.Adapter {
	return ethpoll.New(model.SourcePolygonPoll, "polygon", endpoint, apiKey, watchlist, interval, globalMinUSD, prices, limits)
}
