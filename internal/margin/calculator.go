package margin

import (
	"errors"
	"fmt"
	"math"

	"github.com/tradecore/internal/config"
	"github.com/tradecore/internal/models"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidPrice    = errors.New("price must be positive")
	ErrInvalidLotSize  = errors.New("quantity must be a multiple of lot size")
)

const defaultBrokerage = 20.0

// Result is the deterministic outcome of a margin calculation
type Result struct {
	RequiredMargin float64 `json:"required_margin"`
	Brokerage      float64 `json:"brokerage"`
	TotalCharges   float64 `json:"total_charges"`
	TotalRequired  float64 `json:"total_required"`
}

// Calculator computes required margin and charges from a static leverage/fee
// table keyed by segment and product type. Pure: no I/O, no account state.
type Calculator struct {
	rules map[string]config.MarginRule
}

// NewCalculator creates a Calculator from configured rules merged over defaults
func NewCalculator(rules map[string]config.MarginRule) *Calculator {
	merged := DefaultRules()
	for k, v := range rules {
		merged[k] = v
	}
	return &Calculator{rules: merged}
}

// DefaultRules returns the built-in leverage/fee table. Keys are either
// "SEGMENT:PRODUCT" or a bare "SEGMENT" fallback.
func DefaultRules() map[string]config.MarginRule {
	return map[string]config.MarginRule{
		"NSE:INTRADAY": {Leverage: 5, BrokerageRate: 0.0003, BrokerageCap: 20, FixedCharges: 5},
		"NSE:DELIVERY": {Leverage: 1, BrokerageRate: 0.0003, BrokerageCap: 20, FixedCharges: 15},
		"BSE:INTRADAY": {Leverage: 5, BrokerageRate: 0.0003, BrokerageCap: 20, FixedCharges: 5},
		"BSE:DELIVERY": {Leverage: 1, BrokerageRate: 0.0003, BrokerageCap: 20, FixedCharges: 15},
		"NFO":          {Leverage: 100, FlatBrokerage: 20, FixedCharges: 10},
		"MCX":          {Leverage: 50, FlatBrokerage: 20, FixedCharges: 10},
		"CDS":          {Leverage: 200, FlatBrokerage: 20, FixedCharges: 5},
	}
}

// Rule returns the rule for a segment/product pair, falling back from
// "SEGMENT:PRODUCT" to "SEGMENT" to a conservative unlevered default.
func (c *Calculator) Rule(segment models.Segment, product models.ProductType) config.MarginRule {
	if rule, ok := c.rules[fmt.Sprintf("%s:%s", segment, product)]; ok {
		return rule
	}
	if rule, ok := c.rules[string(segment)]; ok {
		return rule
	}
	return config.MarginRule{Leverage: 1, FlatBrokerage: defaultBrokerage}
}

// Calculate derives required margin, brokerage and total charges for an order.
// requiredMargin = floor(quantity * price / leverage).
func (c *Calculator) Calculate(segment models.Segment, product models.ProductType, quantity int64, price float64, lotSize int) (*Result, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if price <= 0 {
		return nil, ErrInvalidPrice
	}
	if lotSize > 1 && quantity%int64(lotSize) != 0 {
		return nil, ErrInvalidLotSize
	}

	rule := c.Rule(segment, product)
	leverage := rule.Leverage
	if leverage < 1 {
		leverage = 1
	}

	turnover := float64(quantity) * price
	requiredMargin := math.Floor(turnover / leverage)

	brokerage := defaultBrokerage
	switch {
	case rule.FlatBrokerage > 0:
		brokerage = rule.FlatBrokerage
	case rule.BrokerageRate > 0:
		brokerage = rule.BrokerageRate * turnover
		if rule.BrokerageCap > 0 && brokerage > rule.BrokerageCap {
			brokerage = rule.BrokerageCap
		}
	}

	totalCharges := brokerage + rule.FixedCharges

	return &Result{
		RequiredMargin: requiredMargin,
		Brokerage:      brokerage,
		TotalCharges:   totalCharges,
		TotalRequired:  requiredMargin + totalCharges,
	}, nil
}
