package repository

import (
	"errors"

	"github.com/tradecore/internal/models"
	"gorm.io/gorm"
)

var (
	ErrAccountNotFound = errors.New("trading account not found")
)

// AccountRepository handles trading account data access
type AccountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new AccountRepository
func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create creates a new trading account
func (r *AccountRepository) Create(account *models.TradingAccount) error {
	return r.db.Create(account).Error
}

// GetByID retrieves a trading account by ID
func (r *AccountRepository) GetByID(id uint) (*models.TradingAccount, error) {
	var account models.TradingAccount
	result := r.db.First(&account, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, result.Error
	}
	return &account, nil
}

// GetByUserID retrieves the trading accounts of a user
func (r *AccountRepository) GetByUserID(userID uint) ([]models.TradingAccount, error) {
	var accounts []models.TradingAccount
	result := r.db.Where("user_id = ?", userID).Find(&accounts)
	return accounts, result.Error
}

// GetByIDAndUserID retrieves a trading account checking ownership
func (r *AccountRepository) GetByIDAndUserID(id, userID uint) (*models.TradingAccount, error) {
	var account models.TradingAccount
	result := r.db.Where("id = ? AND user_id = ?", id, userID).First(&account)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, result.Error
	}
	return &account, nil
}

// GetByIDs retrieves trading accounts by primary key, keyed by ID
func (r *AccountRepository) GetByIDs(ids []uint) (map[uint]models.TradingAccount, error) {
	var accounts []models.TradingAccount
	if err := r.db.Where("id IN ?", ids).Find(&accounts).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]models.TradingAccount, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}
	return byID, nil
}
