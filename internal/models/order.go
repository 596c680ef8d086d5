package models

import (
	"time"

	"gorm.io/gorm"
)

// OrderType represents the order type
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderSide represents the order side
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// ProductType represents the product an order is placed under
type ProductType string

const (
	ProductIntraday ProductType = "INTRADAY"
	ProductDelivery ProductType = "DELIVERY"
)

// OrderStatus represents the order status
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusExecuted  OrderStatus = "EXECUTED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// PriceSource records which resolver tier produced the execution price
type PriceSource string

const (
	PriceSourceLive       PriceSource = "LIVE"
	PriceSourceCached     PriceSource = "CACHED"
	PriceSourceEstimated  PriceSource = "ESTIMATED"
	PriceSourceLimitOrder PriceSource = "LIMIT_ORDER"
)

// Order represents a single buy/sell request. The resolved execution price,
// blocked margin and deducted charges are persisted at placement time so that
// cancellation releases exactly what was taken, without recomputation.
type Order struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	AccountID      uint           `gorm:"index;not null" json:"account_id"`
	InstrumentID   uint           `gorm:"index;not null" json:"instrument_id"`
	ClientOrderID  string         `gorm:"size:50;uniqueIndex" json:"client_order_id"`
	Side           OrderSide      `gorm:"size:10;not null" json:"side"`
	Type           OrderType      `gorm:"size:10;not null" json:"type"`
	ProductType    ProductType    `gorm:"size:20;not null;default:'INTRADAY'" json:"product_type"`
	Quantity       int64          `gorm:"not null" json:"quantity"`
	LimitPrice     *float64       `gorm:"type:decimal(20,4)" json:"limit_price,omitempty"`
	ExecutionPrice float64        `gorm:"type:decimal(20,4)" json:"execution_price"`
	PriceSource    PriceSource    `gorm:"size:20" json:"price_source"`
	MarginBlocked  float64        `gorm:"type:decimal(20,4)" json:"margin_blocked"`
	Charges        float64        `gorm:"type:decimal(20,4)" json:"charges"`
	StopLoss       *float64       `gorm:"type:decimal(20,4)" json:"stop_loss,omitempty"`
	Target         *float64       `gorm:"type:decimal(20,4)" json:"target,omitempty"`
	Status         OrderStatus    `gorm:"size:20;not null;default:'PENDING';index" json:"status"`
	ExecuteAfter   time.Time      `gorm:"index" json:"execute_after"`
	FilledPrice    float64        `gorm:"type:decimal(20,4)" json:"filled_price"`
	FilledQty      int64          `gorm:"default:0" json:"filled_qty"`
	FilledAt       *time.Time     `json:"filled_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	Account    TradingAccount `gorm:"foreignKey:AccountID" json:"-"`
	Instrument Instrument     `gorm:"foreignKey:InstrumentID" json:"-"`
}

// TableName specifies the table name for Order model
func (Order) TableName() string {
	return "orders"
}

// IsPending returns true if the order can still be filled, cancelled or modified
func (o *Order) IsPending() bool {
	return o.Status == OrderStatusPending
}

// SignedQuantity returns the quantity signed by side: positive for BUY, negative for SELL
func (o *Order) SignedQuantity() int64 {
	if o.Side == OrderSideSell {
		return -o.Quantity
	}
	return o.Quantity
}
