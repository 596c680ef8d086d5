package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/tradecore/internal/repository"
	"github.com/tradecore/pkg/response"
)

// InstrumentHandler exposes the tradable instrument catalog
type InstrumentHandler struct {
	instrumentRepo *repository.InstrumentRepository
}

// NewInstrumentHandler creates a new InstrumentHandler
func NewInstrumentHandler(instrumentRepo *repository.InstrumentRepository) *InstrumentHandler {
	return &InstrumentHandler{instrumentRepo: instrumentRepo}
}

// ListInstruments returns all instruments
// GET /api/v1/instruments
func (h *InstrumentHandler) ListInstruments(c *gin.Context) {
	instruments, err := h.instrumentRepo.List()
	if err != nil {
		response.InternalError(c, "failed to load instruments")
		return
	}
	response.Success(c, instruments)
}

// GetInstrument returns one instrument by symbol
// GET /api/v1/instruments/:symbol
func (h *InstrumentHandler) GetInstrument(c *gin.Context) {
	instrument, err := h.instrumentRepo.GetBySymbol(c.Param("symbol"))
	if err != nil {
		if errors.Is(err, repository.ErrInstrumentNotFound) {
			response.NotFound(c, "instrument not found")
			return
		}
		response.InternalError(c, "failed to load instrument")
		return
	}
	response.Success(c, instrument)
}

// RegisterRoutes registers instrument routes
func (h *InstrumentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	instruments := rg.Group("/instruments")
	{
		instruments.GET("", h.ListInstruments)
		instruments.GET("/:symbol", h.GetInstrument)
	}
}
