package models

import (
	"time"

	"gorm.io/gorm"
)

// TradingAccount holds the funds of a single user. Balance, used margin and
// available margin are mutated exclusively through the fund ledger so that
// Balance == AvailableMargin + UsedMargin holds after every mutation.
type TradingAccount struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	UserID          uint           `gorm:"index;not null" json:"user_id"`
	Balance         float64        `gorm:"type:decimal(20,4);default:0" json:"balance"`
	UsedMargin      float64        `gorm:"type:decimal(20,4);default:0" json:"used_margin"`
	AvailableMargin float64        `gorm:"type:decimal(20,4);default:0" json:"available_margin"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	User      User       `gorm:"foreignKey:UserID" json:"-"`
	Positions []Position `gorm:"foreignKey:AccountID" json:"positions,omitempty"`
	Orders    []Order    `gorm:"foreignKey:AccountID" json:"orders,omitempty"`
}

// TableName specifies the table name for TradingAccount model
func (TradingAccount) TableName() string {
	return "trading_accounts"
}
