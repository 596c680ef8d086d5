package repository

import (
	"github.com/tradecore/internal/models"
	"gorm.io/gorm"
)

// TransactionRepository handles fund transaction audit records
type TransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new TransactionRepository
func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// GetByAccountIDPaginated retrieves fund transactions with pagination, newest first
func (r *TransactionRepository) GetByAccountIDPaginated(accountID uint, page, pageSize int) ([]models.FundTransaction, int64, error) {
	var txns []models.FundTransaction
	var total int64

	if err := r.db.Model(&models.FundTransaction{}).Where("account_id = ?", accountID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	result := r.db.Where("account_id = ?", accountID).
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&txns)

	return txns, total, result.Error
}

// GetByAccountIDAndType retrieves fund transactions of one type for an account
func (r *TransactionRepository) GetByAccountIDAndType(accountID uint, txnType models.FundTxnType) ([]models.FundTransaction, error) {
	var txns []models.FundTransaction
	result := r.db.Where("account_id = ? AND type = ?", accountID, txnType).Find(&txns)
	return txns, result.Error
}
