package models

import (
	"time"

	"gorm.io/gorm"
)

// Segment represents the market segment an instrument trades in
type Segment string

const (
	SegmentNSE Segment = "NSE"
	SegmentBSE Segment = "BSE"
	SegmentNFO Segment = "NFO"
	SegmentMCX Segment = "MCX"
	SegmentCDS Segment = "CDS"
)

// Instrument represents a tradeable instrument. LastPrice/LastPriceAt form the
// persistent quote cache read by the price resolver's CACHED tier; PreviousClose
// feeds day P&L and the ESTIMATED tier.
type Instrument struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Token         string         `gorm:"uniqueIndex;size:50;not null" json:"token"`
	Symbol        string         `gorm:"uniqueIndex;size:50;not null" json:"symbol"`
	Name          string         `gorm:"size:100" json:"name"`
	Segment       Segment        `gorm:"size:10;not null;index" json:"segment"`
	LotSize       int            `gorm:"default:1" json:"lot_size"`
	TickSize      float64        `gorm:"type:decimal(10,4);default:0.05" json:"tick_size"`
	PreviousClose float64        `gorm:"type:decimal(20,4)" json:"previous_close"`
	LastPrice     float64        `gorm:"type:decimal(20,4)" json:"last_price"`
	LastPriceAt   time.Time      `json:"last_price_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for Instrument model
func (Instrument) TableName() string {
	return "instruments"
}

// LastPriceAge returns how old the cached last price is, relative to now.
func (i *Instrument) LastPriceAge(now time.Time) time.Duration {
	if i.LastPriceAt.IsZero() {
		return 0
	}
	return now.Sub(i.LastPriceAt)
}
