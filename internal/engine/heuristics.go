package engine

import "strings"

// looksLikeExchange is a last-resort, AIS-independent signal used by P5
// when neither counterparty has an AIS record: length heuristics per
// chain plus a keyword match against well-known exchange-name
// substrings. Always weaker than an AIS-backed phase.
var exchangeKeywords = []string{
	"exchange", "binance", "kraken", "coinbase", "huobi",
	"okex", "bitfinex", "bittrex", "kucoin", "bitstamp", "gemini",
}

func looksLikeExchange(address string) bool {
	addr := strings.ToLower(address)
	score := 0

	if strings.HasPrefix(addr, "0x") && len(addr) == 42 {
		score++
	}
	if strings.HasPrefix(addr, "r") && len(addr) == 34 {
		score++
	}
	for _, kw := range exchangeKeywords {
		if strings.Contains(addr, kw) {
			score++
		}
	}
	return score >= 2
}
