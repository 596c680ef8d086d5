package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tradecore/internal/marketdata"
	"github.com/tradecore/internal/models"
)

var (
	ErrPriceUnavailable = errors.New("no price available from any source")
)

// Confidence grades how trustworthy a resolved price is
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// PriceResolution is the outcome of one resolution. Produced fresh per order
// placement and never reused; warnings are meant for the end user.
type PriceResolution struct {
	Price      float64            `json:"price"`
	Source     models.PriceSource `json:"source"`
	Confidence Confidence         `json:"confidence"`
	Warnings   []string           `json:"warnings,omitempty"`
}

// PriceResolverConfig tunes the tier chain
type PriceResolverConfig struct {
	QuoteTimeout      time.Duration
	StalenessCeiling  time.Duration
	EstimateOffset    float64
	EstimateMaxAge    time.Duration
	EstimationEnabled bool
}

// QuoteGetter is the slice of the market-data cache the resolver needs
type QuoteGetter interface {
	GetQuote(ctx context.Context, token string) (*marketdata.Quote, error)
}

// PriceResolver produces the best available execution price via an ordered
// chain of tiers: limit price, live quote, persistent cache, estimate from
// previous close, caller hint. Each tier either succeeds with a tagged result
// or falls through to the next; only full exhaustion is an error.
type PriceResolver struct {
	quotes QuoteGetter
	cfg    PriceResolverConfig
}

// NewPriceResolver creates a new PriceResolver
func NewPriceResolver(quotes QuoteGetter, cfg PriceResolverConfig) *PriceResolver {
	return &PriceResolver{quotes: quotes, cfg: cfg}
}

// Resolve returns an execution price for the instrument. Market orders must
// still execute under upstream outages without silently trading at garbage
// prices, so degraded tiers attach explicit warnings instead of hiding.
func (r *PriceResolver) Resolve(ctx context.Context, instrument *models.Instrument, orderType models.OrderType, limitPrice, hintPrice *float64) (*PriceResolution, error) {
	// Tier 1: a supplied limit price is authoritative for limit orders
	if orderType == models.OrderTypeLimit && limitPrice != nil && *limitPrice > 0 {
		return &PriceResolution{
			Price:      *limitPrice,
			Source:     models.PriceSourceLimitOrder,
			Confidence: ConfidenceHigh,
		}, nil
	}

	// Tier 2: live quote, bounded by its own timeout
	if res := r.tryLive(ctx, instrument); res != nil {
		return res, nil
	}

	// Tier 3: persistent last-known price
	if res := r.tryCached(instrument); res != nil {
		return res, nil
	}

	// Tier 4: conservative estimate from previous close
	if res := r.tryEstimate(instrument); res != nil {
		return res, nil
	}

	// Tier 5: caller-supplied hint as a last resort
	if hintPrice != nil && *hintPrice > 0 {
		return &PriceResolution{
			Price:      *hintPrice,
			Source:     models.PriceSourceLimitOrder,
			Confidence: ConfidenceMedium,
			Warnings:   []string{"live market data unavailable; using caller-supplied price"},
		}, nil
	}

	return nil, fmt.Errorf("%w: instrument %s", ErrPriceUnavailable, instrument.Symbol)
}

func (r *PriceResolver) tryLive(ctx context.Context, instrument *models.Instrument) *PriceResolution {
	if r.quotes == nil {
		return nil
	}
	quoteCtx, cancel := context.WithTimeout(ctx, r.cfg.QuoteTimeout)
	defer cancel()

	quote, err := r.quotes.GetQuote(quoteCtx, instrument.Token)
	if err != nil || quote.LastTradePrice <= 0 {
		return nil
	}
	return &PriceResolution{
		Price:      quote.LastTradePrice,
		Source:     models.PriceSourceLive,
		Confidence: ConfidenceHigh,
	}
}

func (r *PriceResolver) tryCached(instrument *models.Instrument) *PriceResolution {
	if instrument.LastPrice <= 0 || instrument.LastPriceAt.IsZero() {
		return nil
	}
	age := instrument.LastPriceAge(time.Now())
	warnings := []string{
		fmt.Sprintf("using cached price from %s ago", age.Round(time.Second)),
	}
	if age > r.cfg.StalenessCeiling {
		warnings = append(warnings, fmt.Sprintf(
			"cached price exceeds staleness ceiling of %s; verify before relying on it",
			r.cfg.StalenessCeiling))
	}
	return &PriceResolution{
		Price:      instrument.LastPrice,
		Source:     models.PriceSourceCached,
		Confidence: ConfidenceMedium,
		Warnings:   warnings,
	}
}

func (r *PriceResolver) tryEstimate(instrument *models.Instrument) *PriceResolution {
	if !r.cfg.EstimationEnabled || instrument.PreviousClose <= 0 {
		return nil
	}
	// UpdatedAt tracks the last static-data refresh, which is when the
	// previous close was written
	if time.Since(instrument.UpdatedAt) > r.cfg.EstimateMaxAge {
		return nil
	}
	price := instrument.PreviousClose * (1 + r.cfg.EstimateOffset)
	return &PriceResolution{
		Price:      price,
		Source:     models.PriceSourceEstimated,
		Confidence: ConfidenceLow,
		Warnings: []string{fmt.Sprintf(
			"price estimated from previous close %.2f; not live market data",
			instrument.PreviousClose)},
	}
}
