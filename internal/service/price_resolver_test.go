package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradecore/internal/marketdata"
	"github.com/tradecore/internal/models"
)

type fakeQuotes struct {
	quote *marketdata.Quote
	err   error
}

func (f *fakeQuotes) GetQuote(ctx context.Context, token string) (*marketdata.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.quote, nil
}

func resolverConfig() PriceResolverConfig {
	return PriceResolverConfig{
		QuoteTimeout:      time.Second,
		StalenessCeiling:  time.Minute,
		EstimateOffset:    0.02,
		EstimateMaxAge:    48 * time.Hour,
		EstimationEnabled: true,
	}
}

func ptr(v float64) *float64 { return &v }

func TestResolveLimitPriceWins(t *testing.T) {
	// Limit orders never consult market data
	r := NewPriceResolver(&fakeQuotes{quote: &marketdata.Quote{LastTradePrice: 999}}, resolverConfig())

	res, err := r.Resolve(context.Background(), &models.Instrument{Token: "T1"}, models.OrderTypeLimit, ptr(150), nil)
	require.NoError(t, err)
	assert.Equal(t, 150.0, res.Price)
	assert.Equal(t, models.PriceSourceLimitOrder, res.Source)
	assert.Equal(t, ConfidenceHigh, res.Confidence)
	assert.Empty(t, res.Warnings)
}

func TestResolveLiveQuote(t *testing.T) {
	r := NewPriceResolver(&fakeQuotes{quote: &marketdata.Quote{Token: "T1", LastTradePrice: 123.45}}, resolverConfig())

	res, err := r.Resolve(context.Background(), &models.Instrument{Token: "T1"}, models.OrderTypeMarket, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 123.45, res.Price)
	assert.Equal(t, models.PriceSourceLive, res.Source)
	assert.Equal(t, ConfidenceHigh, res.Confidence)
}

func TestResolveFallsBackToCached(t *testing.T) {
	r := NewPriceResolver(&fakeQuotes{err: errors.New("vendor down")}, resolverConfig())

	inst := &models.Instrument{
		Token:       "T1",
		LastPrice:   111.5,
		LastPriceAt: time.Now().Add(-10 * time.Second),
	}
	res, err := r.Resolve(context.Background(), inst, models.OrderTypeMarket, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 111.5, res.Price)
	assert.Equal(t, models.PriceSourceCached, res.Source)
	assert.Equal(t, ConfidenceMedium, res.Confidence)
	assert.Len(t, res.Warnings, 1)
}

func TestResolveCachedPastStalenessCeiling(t *testing.T) {
	r := NewPriceResolver(&fakeQuotes{err: errors.New("vendor down")}, resolverConfig())

	inst := &models.Instrument{
		Token:       "T1",
		LastPrice:   111.5,
		LastPriceAt: time.Now().Add(-5 * time.Minute),
	}
	res, err := r.Resolve(context.Background(), inst, models.OrderTypeMarket, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.PriceSourceCached, res.Source)
	// Extra warning past the ceiling
	assert.Len(t, res.Warnings, 2)
}

func TestResolveEstimateFromPreviousClose(t *testing.T) {
	r := NewPriceResolver(&fakeQuotes{err: errors.New("vendor down")}, resolverConfig())

	inst := &models.Instrument{
		Token:         "T1",
		PreviousClose: 100,
	}
	inst.UpdatedAt = time.Now().Add(-time.Hour)

	res, err := r.Resolve(context.Background(), inst, models.OrderTypeMarket, nil, nil)
	require.NoError(t, err)
	assert.InDelta(t, 102.0, res.Price, 1e-9)
	assert.Equal(t, models.PriceSourceEstimated, res.Source)
	assert.Equal(t, ConfidenceLow, res.Confidence)
	assert.NotEmpty(t, res.Warnings)
}

func TestResolveEstimateDisabled(t *testing.T) {
	cfg := resolverConfig()
	cfg.EstimationEnabled = false
	r := NewPriceResolver(&fakeQuotes{err: errors.New("vendor down")}, cfg)

	inst := &models.Instrument{Token: "T1", PreviousClose: 100}
	inst.UpdatedAt = time.Now()

	_, err := r.Resolve(context.Background(), inst, models.OrderTypeMarket, nil, nil)
	assert.ErrorIs(t, err, ErrPriceUnavailable)
}

func TestResolveEstimateTooOld(t *testing.T) {
	r := NewPriceResolver(&fakeQuotes{err: errors.New("vendor down")}, resolverConfig())

	inst := &models.Instrument{Token: "T1", PreviousClose: 100}
	inst.UpdatedAt = time.Now().Add(-72 * time.Hour)

	_, err := r.Resolve(context.Background(), inst, models.OrderTypeMarket, nil, nil)
	assert.ErrorIs(t, err, ErrPriceUnavailable)
}

func TestResolveHintAsLastResort(t *testing.T) {
	cfg := resolverConfig()
	cfg.EstimationEnabled = false
	r := NewPriceResolver(&fakeQuotes{err: errors.New("vendor down")}, cfg)

	res, err := r.Resolve(context.Background(), &models.Instrument{Token: "T1"}, models.OrderTypeMarket, nil, ptr(88.8))
	require.NoError(t, err)
	assert.Equal(t, 88.8, res.Price)
	assert.Equal(t, ConfidenceMedium, res.Confidence)
	assert.NotEmpty(t, res.Warnings)
}

func TestResolveExhausted(t *testing.T) {
	cfg := resolverConfig()
	cfg.EstimationEnabled = false
	r := NewPriceResolver(&fakeQuotes{err: errors.New("vendor down")}, cfg)

	_, err := r.Resolve(context.Background(), &models.Instrument{Token: "T1", Symbol: "ACME"}, models.OrderTypeMarket, nil, nil)
	assert.ErrorIs(t, err, ErrPriceUnavailable)
}
