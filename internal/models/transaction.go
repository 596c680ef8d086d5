package models

import (
	"time"
)

// FundTxnType classifies a fund ledger mutation
type FundTxnType string

const (
	FundTxnBlock   FundTxnType = "BLOCK"
	FundTxnRelease FundTxnType = "RELEASE"
	FundTxnDebit   FundTxnType = "DEBIT"
	FundTxnCredit  FundTxnType = "CREDIT"
)

// FundTransaction is the audit record written by every fund ledger primitive,
// inside the same transaction as the mutation it describes.
type FundTransaction struct {
	ID             uint        `gorm:"primaryKey" json:"id"`
	AccountID      uint        `gorm:"index;not null" json:"account_id"`
	Type           FundTxnType `gorm:"size:10;not null" json:"type"`
	Amount         float64     `gorm:"type:decimal(20,4);not null" json:"amount"`
	Reason         string      `gorm:"size:255" json:"reason"`
	BalanceAfter   float64     `gorm:"type:decimal(20,4)" json:"balance_after"`
	AvailableAfter float64     `gorm:"type:decimal(20,4)" json:"available_after"`
	UsedAfter      float64     `gorm:"type:decimal(20,4)" json:"used_after"`
	CreatedAt      time.Time   `json:"created_at"`
}

// TableName specifies the table name for FundTransaction model
func (FundTransaction) TableName() string {
	return "fund_transactions"
}
