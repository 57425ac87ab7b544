package engine

import (
	"github.com/whaleintel/pipeline/internal/config"
	"github.com/whaleintel/pipeline/internal/model"
)

// whaleScore implements the independent whale-scoring formula from spec
// §4.3: a USD-size base score plus bonuses/penalties for counterparty
// balance, tags, and verified-protocol interaction, clamped to [0,100].
func whaleScore(usdValue float64, fromAddr, toAddr model.AddressRecord, fromOK, toOK bool, verifiedProtocol bool, thresholds config.WhaleThresholds) (score float64, signals []string) {
	switch {
	case usdValue >= thresholds.MegaWhaleUSD:
		score = 90
		signals = append(signals, "mega_whale_size")
	case usdValue >= thresholds.WhaleUSD:
		score = 75
		signals = append(signals, "whale_size")
	case usdValue >= thresholds.LargeTraderUSD:
		score = 55
		signals = append(signals, "large_trader_size")
	case usdValue >= thresholds.MediumTraderUSD:
		score = 30
	default:
		// Proportional below the medium-trader band.
		if thresholds.MediumTraderUSD > 0 {
			score = 30 * usdValue / thresholds.MediumTraderUSD
		}
	}

	if (fromOK && fromAddr.BalanceUSD >= 1_000_000) || (toOK && toAddr.BalanceUSD >= 1_000_000) {
		score += 10
		signals = append(signals, "high_balance_counterparty")
	}
	if (fromOK && (fromAddr.HasTag("whale") || fromAddr.HasTag("mega_whale"))) ||
		(toOK && (toAddr.HasTag("whale") || toAddr.HasTag("mega_whale"))) {
		score += 10
		signals = append(signals, "tagged_whale")
	}
	if verifiedProtocol {
		score += 5
		signals = append(signals, "verified_protocol")
	}

	if (fromOK && fromAddr.Category == model.CategoryMarketMaker) || (toOK && toAddr.Category == model.CategoryMarketMaker) {
		score -= 15
		signals = append(signals, "market_maker_penalty")
	}
	if (fromOK && fromAddr.Category == model.CategoryMixerSanctioned) || (toOK && toAddr.Category == model.CategoryMixerSanctioned) {
		score -= 25
		signals = append(signals, "sanctioned_mixer_penalty")
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, signals
}

// isWhale reports whether a whale score and confidence clear the
// is-whale bar: score >= 60 and confidence >= 0.70.
func isWhale(score, confidence float64) bool {
	return score >= 60 && confidence >= 0.70
}
