package service

import (
	"errors"
	"fmt"
	"log"

	"github.com/tradecore/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInvalidAmount = errors.New("amount must be positive")
)

// InsufficientFundsError carries the shortfall so callers can surface it
type InsufficientFundsError struct {
	Required  float64
	Available float64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %.2f, available %.2f (shortfall %.2f)",
		e.Required, e.Available, e.Shortfall())
}

// Shortfall returns how much is missing
func (e *InsufficientFundsError) Shortfall() float64 {
	return e.Required - e.Available
}

// FundsCheck is the non-mutating sufficiency read. It is inherently racy
// against concurrent orders; BlockMargin re-verifies under the row lock.
type FundsCheck struct {
	OK              bool    `json:"ok"`
	AvailableMargin float64 `json:"available_margin"`
	Shortfall       float64 `json:"shortfall"`
}

// FundLedger owns every mutation of a trading account's balance and margin
// fields. Each primitive locks the account row, re-checks its precondition,
// mutates, and appends an audit record in one transaction. The invariant
// Balance == AvailableMargin + UsedMargin holds after every primitive.
type FundLedger struct {
	db *gorm.DB
}

// NewFundLedger creates a new FundLedger
func NewFundLedger(db *gorm.DB) *FundLedger {
	return &FundLedger{db: db}
}

// WithTx returns a ledger bound to an enclosing transaction so primitives can
// commit atomically with sibling order/position writes.
func (l *FundLedger) WithTx(tx *gorm.DB) *FundLedger {
	return &FundLedger{db: tx}
}

// BlockMargin moves amount from available to used margin. Fails with
// InsufficientFundsError if the available margin at commit time is too low.
func (l *FundLedger) BlockMargin(accountID uint, amount float64, reason string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return l.db.Transaction(func(tx *gorm.DB) error {
		account, err := lockAccount(tx, accountID)
		if err != nil {
			return err
		}
		if amount > account.AvailableMargin {
			return &InsufficientFundsError{Required: amount, Available: account.AvailableMargin}
		}
		account.AvailableMargin -= amount
		account.UsedMargin += amount
		return saveWithAudit(tx, account, models.FundTxnBlock, amount, reason)
	})
}

// ReleaseMargin moves amount back from used to available margin. An attempt
// to release more than is blocked indicates a bug upstream: the release is
// clamped and logged rather than driving used margin negative.
func (l *FundLedger) ReleaseMargin(accountID uint, amount float64, reason string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return l.db.Transaction(func(tx *gorm.DB) error {
		account, err := lockAccount(tx, accountID)
		if err != nil {
			return err
		}
		if amount > account.UsedMargin {
			log.Printf("[ERROR] FundLedger: over-release on account %d: release %.2f > used %.2f (%s)",
				accountID, amount, account.UsedMargin, reason)
			amount = account.UsedMargin
		}
		account.UsedMargin -= amount
		account.AvailableMargin += amount
		return saveWithAudit(tx, account, models.FundTxnRelease, amount, reason)
	})
}

// Debit reduces balance and available margin together. Charges are validated
// before placement; a debit that still lands on a drained account is allowed
// through (realized losses must book) but logged.
func (l *FundLedger) Debit(accountID uint, amount float64, reason string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return l.db.Transaction(func(tx *gorm.DB) error {
		account, err := lockAccount(tx, accountID)
		if err != nil {
			return err
		}
		account.Balance -= amount
		account.AvailableMargin -= amount
		if account.AvailableMargin < 0 {
			log.Printf("[WARN] FundLedger: account %d available margin negative after debit %.2f (%s)",
				accountID, amount, reason)
		}
		return saveWithAudit(tx, account, models.FundTxnDebit, amount, reason)
	})
}

// Credit increases balance and available margin together
func (l *FundLedger) Credit(accountID uint, amount float64, reason string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return l.db.Transaction(func(tx *gorm.DB) error {
		account, err := lockAccount(tx, accountID)
		if err != nil {
			return err
		}
		account.Balance += amount
		account.AvailableMargin += amount
		return saveWithAudit(tx, account, models.FundTxnCredit, amount, reason)
	})
}

// CheckFunds reads current available margin and reports sufficiency without
// mutating state. Pair with BlockMargin, which re-checks under lock.
func (l *FundLedger) CheckFunds(accountID uint, totalRequired float64) (*FundsCheck, error) {
	var account models.TradingAccount
	if err := l.db.First(&account, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("trading account not found")
		}
		return nil, err
	}
	check := &FundsCheck{
		OK:              account.AvailableMargin >= totalRequired,
		AvailableMargin: account.AvailableMargin,
	}
	if !check.OK {
		check.Shortfall = totalRequired - account.AvailableMargin
	}
	return check, nil
}

func lockAccount(tx *gorm.DB, accountID uint) (*models.TradingAccount, error) {
	var account models.TradingAccount
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&account, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("trading account not found")
		}
		return nil, err
	}
	return &account, nil
}

func saveWithAudit(tx *gorm.DB, account *models.TradingAccount, txnType models.FundTxnType, amount float64, reason string) error {
	if err := tx.Save(account).Error; err != nil {
		return err
	}
	record := &models.FundTransaction{
		AccountID:      account.ID,
		Type:           txnType,
		Amount:         amount,
		Reason:         reason,
		BalanceAfter:   account.Balance,
		AvailableAfter: account.AvailableMargin,
		UsedAfter:      account.UsedMargin,
	}
	return tx.Create(record).Error
}
