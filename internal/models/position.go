package models

import (
	"time"

	"gorm.io/gorm"
)

// Position represents the net holding of one account in one instrument.
// Quantity is signed: positive for long, negative for short. A row with
// quantity 0 is retained for history with its realized P&L frozen.
type Position struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	AccountID     uint           `gorm:"not null;uniqueIndex:idx_positions_account_instrument" json:"account_id"`
	InstrumentID  uint           `gorm:"not null;uniqueIndex:idx_positions_account_instrument" json:"instrument_id"`
	Quantity      int64          `gorm:"not null" json:"quantity"`
	ProductType   ProductType    `gorm:"size:20;default:'INTRADAY'" json:"product_type"`
	AvgPrice      float64        `gorm:"type:decimal(20,4)" json:"avg_price"`
	Margin        float64        `gorm:"type:decimal(20,4)" json:"margin"`
	UnrealizedPnL float64        `gorm:"column:unrealized_pnl;type:decimal(20,4)" json:"unrealized_pnl"`
	DayPnL        float64        `gorm:"column:day_pnl;type:decimal(20,4)" json:"day_pnl"`
	RealizedPnL   float64        `gorm:"column:realized_pnl;type:decimal(20,4)" json:"realized_pnl"`
	StopLoss      *float64       `gorm:"type:decimal(20,4)" json:"stop_loss,omitempty"`
	Target        *float64       `gorm:"type:decimal(20,4)" json:"target,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	Account    TradingAccount `gorm:"foreignKey:AccountID" json:"-"`
	Instrument Instrument     `gorm:"foreignKey:InstrumentID" json:"-"`
}

// TableName specifies the table name for Position model
func (Position) TableName() string {
	return "positions"
}

// IsOpen returns true while the position carries market risk
func (p *Position) IsOpen() bool {
	return p.Quantity != 0
}

// IsLong returns true for a net long position
func (p *Position) IsLong() bool {
	return p.Quantity > 0
}

// CalculateUnrealizedPnL computes P&L against the average entry price.
// The signed quantity makes the same formula correct for shorts.
func (p *Position) CalculateUnrealizedPnL(currentPrice float64) float64 {
	return (currentPrice - p.AvgPrice) * float64(p.Quantity)
}

// CalculateDayPnL computes P&L against the previous settlement price
func (p *Position) CalculateDayPnL(currentPrice, previousClose float64) float64 {
	if previousClose <= 0 {
		return 0
	}
	return (currentPrice - previousClose) * float64(p.Quantity)
}
