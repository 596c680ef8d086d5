package repository

import (
	"errors"
	"time"

	"github.com/tradecore/internal/models"
	"gorm.io/gorm"
)

var (
	ErrOrderNotFound = errors.New("order not found")
)

// OrderRepository handles order data access
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new OrderRepository
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create creates a new order
func (r *OrderRepository) Create(order *models.Order) error {
	return r.db.Create(order).Error
}

// GetByID retrieves an order by ID
func (r *OrderRepository) GetByID(id uint) (*models.Order, error) {
	var order models.Order
	result := r.db.First(&order, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, result.Error
	}
	return &order, nil
}

// GetByIDAndAccountID retrieves an order checking account ownership
func (r *OrderRepository) GetByIDAndAccountID(id, accountID uint) (*models.Order, error) {
	var order models.Order
	result := r.db.Where("id = ? AND account_id = ?", id, accountID).First(&order)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, result.Error
	}
	return &order, nil
}

// GetByAccountIDPaginated retrieves orders with pagination, newest first
func (r *OrderRepository) GetByAccountIDPaginated(accountID uint, page, pageSize int) ([]models.Order, int64, error) {
	var orders []models.Order
	var total int64

	if err := r.db.Model(&models.Order{}).Where("account_id = ?", accountID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	result := r.db.Where("account_id = ?", accountID).
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&orders)

	return orders, total, result.Error
}

// GetPendingByAccountID retrieves all pending orders for an account
func (r *OrderRepository) GetPendingByAccountID(accountID uint) ([]models.Order, error) {
	var orders []models.Order
	result := r.db.Where("account_id = ? AND status = ?", accountID, models.OrderStatusPending).Find(&orders)
	return orders, result.Error
}

// CountPendingBySide counts the pending orders of one side for an account and
// instrument. Used to keep a position from being squared off twice while the
// first close order is still in flight.
func (r *OrderRepository) CountPendingBySide(accountID, instrumentID uint, side models.OrderSide) (int64, error) {
	var count int64
	err := r.db.Model(&models.Order{}).
		Where("account_id = ? AND instrument_id = ? AND side = ? AND status = ?",
			accountID, instrumentID, side, models.OrderStatusPending).
		Count(&count).Error
	return count, err
}

// GetDuePending retrieves pending orders whose scheduled execution time has
// passed, oldest first. The fill worker drains this set each cycle.
func (r *OrderRepository) GetDuePending(now time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	result := r.db.Where("status = ? AND execute_after <= ?", models.OrderStatusPending, now).
		Order("execute_after ASC").
		Limit(limit).
		Find(&orders)
	return orders, result.Error
}
