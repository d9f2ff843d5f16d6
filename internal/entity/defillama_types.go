package entity

// LlamaPriceResponse is the envelope of the DefiLlama coins price API.
// Keys of Coins are coin identifiers in "chain:address" form; DefiLlama
// normalizes EVM addresses to lowercase in responses.
type LlamaPriceResponse struct {
	Coins map[string]LlamaCoinPrice `json:"coins"`
}

// LlamaCoinPrice is one priced coin in a DefiLlama response.
type LlamaCoinPrice struct {
	Decimals   int     `json:"decimals"`
	Symbol     string  `json:"symbol"`
	Price      float64 `json:"price"`
	Timestamp  int64   `json:"timestamp"`
	Confidence float64 `json:"confidence"`
}
