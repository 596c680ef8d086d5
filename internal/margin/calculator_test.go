package margin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradecore/internal/config"
	"github.com/tradecore/internal/models"
)

func TestCalculateLeveragedMargin(t *testing.T) {
	calc := NewCalculator(nil)

	// 50 * 200 at 100x leverage floors to 100
	res, err := calc.Calculate(models.SegmentNFO, models.ProductIntraday, 50, 200, 1)
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.RequiredMargin)
	assert.Equal(t, 20.0, res.Brokerage)
	assert.Equal(t, 30.0, res.TotalCharges)
	assert.Equal(t, 130.0, res.TotalRequired)
}

func TestCalculateFlooredMargin(t *testing.T) {
	calc := NewCalculator(nil)

	// 7 * 99.99 / 5 = 139.986 floors to 139
	res, err := calc.Calculate(models.SegmentNSE, models.ProductIntraday, 7, 99.99, 1)
	require.NoError(t, err)
	assert.Equal(t, 139.0, res.RequiredMargin)
}

func TestCalculateRateBrokerageWithCap(t *testing.T) {
	calc := NewCalculator(nil)

	// Small turnover: rate applies under the cap
	res, err := calc.Calculate(models.SegmentNSE, models.ProductIntraday, 10, 100, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, res.Brokerage, 1e-9)

	// Large turnover: brokerage caps at 20
	res, err = calc.Calculate(models.SegmentNSE, models.ProductIntraday, 1000, 1000, 1)
	require.NoError(t, err)
	assert.Equal(t, 20.0, res.Brokerage)
}

func TestCalculateValidation(t *testing.T) {
	calc := NewCalculator(nil)

	_, err := calc.Calculate(models.SegmentNSE, models.ProductIntraday, 0, 100, 1)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = calc.Calculate(models.SegmentNSE, models.ProductIntraday, 10, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = calc.Calculate(models.SegmentNFO, models.ProductIntraday, 55, 100, 50)
	assert.ErrorIs(t, err, ErrInvalidLotSize)

	_, err = calc.Calculate(models.SegmentNFO, models.ProductIntraday, 100, 100, 50)
	assert.NoError(t, err)
}

func TestRuleFallback(t *testing.T) {
	calc := NewCalculator(map[string]config.MarginRule{
		"NSE:INTRADAY": {Leverage: 10, FlatBrokerage: 5},
	})

	// Configured rule overrides the default
	rule := calc.Rule(models.SegmentNSE, models.ProductIntraday)
	assert.Equal(t, 10.0, rule.Leverage)

	// Segment-level fallback
	rule = calc.Rule(models.SegmentNFO, models.ProductDelivery)
	assert.Equal(t, 100.0, rule.Leverage)

	// Unknown segment falls back to unlevered
	rule = calc.Rule(models.Segment("XXX"), models.ProductIntraday)
	assert.Equal(t, 1.0, rule.Leverage)
}

func TestCalculateDeterministic(t *testing.T) {
	calc := NewCalculator(nil)

	first, err := calc.Calculate(models.SegmentMCX, models.ProductIntraday, 100, 543.21, 1)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := calc.Calculate(models.SegmentMCX, models.ProductIntraday, 100, 543.21, 1)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
