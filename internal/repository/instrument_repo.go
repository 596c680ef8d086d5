package repository

import (
	"errors"
	"time"

	"github.com/tradecore/internal/models"
	"gorm.io/gorm"
)

var (
	ErrInstrumentNotFound = errors.New("instrument not found")
)

// InstrumentRepository handles instrument static data and the persistent
// last-known-price cache
type InstrumentRepository struct {
	db *gorm.DB
}

// NewInstrumentRepository creates a new InstrumentRepository
func NewInstrumentRepository(db *gorm.DB) *InstrumentRepository {
	return &InstrumentRepository{db: db}
}

// Create creates a new instrument
func (r *InstrumentRepository) Create(instrument *models.Instrument) error {
	return r.db.Create(instrument).Error
}

// GetByID retrieves an instrument by ID
func (r *InstrumentRepository) GetByID(id uint) (*models.Instrument, error) {
	var instrument models.Instrument
	result := r.db.First(&instrument, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrInstrumentNotFound
		}
		return nil, result.Error
	}
	return &instrument, nil
}

// GetByToken retrieves an instrument by market-data token
func (r *InstrumentRepository) GetByToken(token string) (*models.Instrument, error) {
	var instrument models.Instrument
	result := r.db.Where("token = ?", token).First(&instrument)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrInstrumentNotFound
		}
		return nil, result.Error
	}
	return &instrument, nil
}

// GetBySymbol retrieves an instrument by trading symbol
func (r *InstrumentRepository) GetBySymbol(symbol string) (*models.Instrument, error) {
	var instrument models.Instrument
	result := r.db.Where("symbol = ?", symbol).First(&instrument)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrInstrumentNotFound
		}
		return nil, result.Error
	}
	return &instrument, nil
}

// GetByIDs retrieves instruments by primary key, keyed by ID
func (r *InstrumentRepository) GetByIDs(ids []uint) (map[uint]models.Instrument, error) {
	var instruments []models.Instrument
	if err := r.db.Where("id IN ?", ids).Find(&instruments).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]models.Instrument, len(instruments))
	for _, in := range instruments {
		byID[in.ID] = in
	}
	return byID, nil
}

// List retrieves all instruments
func (r *InstrumentRepository) List() ([]models.Instrument, error) {
	var instruments []models.Instrument
	result := r.db.Order("symbol ASC").Find(&instruments)
	return instruments, result.Error
}

// UpdateLastPrice refreshes the persistent last-known-price cache for a token
func (r *InstrumentRepository) UpdateLastPrice(token string, price float64, at time.Time) error {
	return r.db.Model(&models.Instrument{}).Where("token = ?", token).Updates(map[string]interface{}{
		"last_price":    price,
		"last_price_at": at,
	}).Error
}
