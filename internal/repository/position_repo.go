package repository

import (
	"errors"

	"github.com/tradecore/internal/models"
	"gorm.io/gorm"
)

var (
	ErrPositionNotFound = errors.New("position not found")
)

// PositionRepository handles position data access
type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a new PositionRepository
func NewPositionRepository(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create creates a new position
func (r *PositionRepository) Create(position *models.Position) error {
	return r.db.Create(position).Error
}

// GetByID retrieves a position by ID
func (r *PositionRepository) GetByID(id uint) (*models.Position, error) {
	var position models.Position
	result := r.db.First(&position, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrPositionNotFound
		}
		return nil, result.Error
	}
	return &position, nil
}

// GetByAccountAndInstrument retrieves the position of an account in an instrument
func (r *PositionRepository) GetByAccountAndInstrument(accountID, instrumentID uint) (*models.Position, error) {
	var position models.Position
	result := r.db.Where("account_id = ? AND instrument_id = ?", accountID, instrumentID).First(&position)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrPositionNotFound
		}
		return nil, result.Error
	}
	return &position, nil
}

// GetByAccountID retrieves all positions for an account, open and closed
func (r *PositionRepository) GetByAccountID(accountID uint) ([]models.Position, error) {
	var positions []models.Position
	result := r.db.Where("account_id = ?", accountID).Find(&positions)
	return positions, result.Error
}

// GetOpenByAccountID retrieves the open positions of an account
func (r *PositionRepository) GetOpenByAccountID(accountID uint) ([]models.Position, error) {
	var positions []models.Position
	result := r.db.Where("account_id = ? AND quantity != 0", accountID).Find(&positions)
	return positions, result.Error
}

// GetOpenPositions retrieves a bounded page of open positions, newest first.
// The PnL worker scans through this each cycle.
func (r *PositionRepository) GetOpenPositions(limit int) ([]models.Position, error) {
	var positions []models.Position
	result := r.db.Where("quantity != 0").
		Order("created_at DESC").
		Limit(limit).
		Find(&positions)
	return positions, result.Error
}

// UpdatePnL writes new unrealized/day P&L figures for a position
func (r *PositionRepository) UpdatePnL(id uint, unrealized, day float64) error {
	return r.db.Model(&models.Position{}).Where("id = ?", id).Updates(map[string]interface{}{
		"unrealized_pnl": unrealized,
		"day_pnl":        day,
	}).Error
}

// Update updates a position
func (r *PositionRepository) Update(position *models.Position) error {
	return r.db.Save(position).Error
}

// GetTotalUnrealizedPnL sums unrealized P&L across an account's positions
func (r *PositionRepository) GetTotalUnrealizedPnL(accountID uint) (float64, error) {
	var total struct {
		Sum float64
	}
	err := r.db.Model(&models.Position{}).
		Select("COALESCE(SUM(unrealized_pnl), 0) as sum").
		Where("account_id = ?", accountID).
		Scan(&total).Error
	return total.Sum, err
}
