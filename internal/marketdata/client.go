package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

var (
	ErrQuoteUnavailable = errors.New("quote unavailable from vendor")
	ErrBadQuotePayload  = errors.New("unrecognized quote payload")
)

// vendorQuoteResponse is the single, explicit schema for the upstream quote
// API. Anything that does not match it is rejected loudly rather than probed
// for alternative field shapes.
type vendorQuoteResponse struct {
	Status string `json:"status"`
	Data   struct {
		Token         string  `json:"token"`
		LastPrice     float64 `json:"last_price"`
		PreviousClose float64 `json:"close"`
		Bid           float64 `json:"bid"`
		Ask           float64 `json:"ask"`
		Timestamp     int64   `json:"timestamp"`
	} `json:"data"`
}

// VendorClient is a REST client for the upstream market-data vendor
type VendorClient struct {
	http *resty.Client
}

// NewVendorClient creates a VendorClient with a hard request timeout
func NewVendorClient(baseURL string, timeout time.Duration) *VendorClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &VendorClient{http: client}
}

// Name implements QuoteProvider
func (c *VendorClient) Name() string {
	return "vendor-rest"
}

// FetchQuote implements QuoteProvider
func (c *VendorClient) FetchQuote(ctx context.Context, token string) (*Quote, error) {
	var payload vendorQuoteResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token", token).
		SetResult(&payload).
		Get("/v1/quote")
	if err != nil {
		return nil, fmt.Errorf("quote fetch for %s: %w", token, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: %s returned %d", ErrQuoteUnavailable, token, resp.StatusCode())
	}

	if payload.Status != "ok" || payload.Data.Token == "" || payload.Data.LastPrice <= 0 {
		return nil, fmt.Errorf("%w: token=%s status=%q last_price=%f",
			ErrBadQuotePayload, token, payload.Status, payload.Data.LastPrice)
	}

	ts := payload.Data.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	return &Quote{
		Token:          payload.Data.Token,
		LastTradePrice: payload.Data.LastPrice,
		PreviousClose:  payload.Data.PreviousClose,
		BidPrice:       payload.Data.Bid,
		AskPrice:       payload.Data.Ask,
		Timestamp:      ts,
	}, nil
}
