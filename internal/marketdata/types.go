package marketdata

import "context"

// Quote is a snapshot of current market data for an instrument token
type Quote struct {
	Token          string  `json:"token"`
	LastTradePrice float64 `json:"last_trade_price"`
	PreviousClose  float64 `json:"previous_close"`
	BidPrice       float64 `json:"bid_price"`
	AskPrice       float64 `json:"ask_price"`
	Timestamp      int64   `json:"timestamp"`
}

// QuoteProvider fetches live quotes from an upstream market-data vendor
type QuoteProvider interface {
	// FetchQuote returns the current quote for a token. Implementations must
	// respect the context deadline; a hung upstream call may not stall callers.
	FetchQuote(ctx context.Context, token string) (*Quote, error)

	// Name returns the provider name for logging
	Name() string
}
