package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/tradecore/internal/repository"
	"github.com/tradecore/internal/service"
	"github.com/tradecore/pkg/response"
)

// PositionHandler handles position API requests
type PositionHandler struct {
	execution    *service.ExecutionService
	accountRepo  *repository.AccountRepository
	positionRepo *repository.PositionRepository
}

// NewPositionHandler creates a new PositionHandler
func NewPositionHandler(execution *service.ExecutionService, accountRepo *repository.AccountRepository, positionRepo *repository.PositionRepository) *PositionHandler {
	return &PositionHandler{
		execution:    execution,
		accountRepo:  accountRepo,
		positionRepo: positionRepo,
	}
}

// ListPositions returns the account's positions. By default only open ones;
// pass all=true to include closed rows retained for history.
// GET /api/v1/positions
func (h *PositionHandler) ListPositions(c *gin.Context) {
	account, err := resolveAccount(c, h.accountRepo)
	if err != nil {
		response.NotFound(c, "trading account not found")
		return
	}

	var positions interface{}
	if c.Query("all") == "true" {
		positions, err = h.positionRepo.GetByAccountID(account.ID)
	} else {
		positions, err = h.positionRepo.GetOpenByAccountID(account.ID)
	}
	if err != nil {
		response.InternalError(c, "failed to load positions")
		return
	}

	response.Success(c, positions)
}

// ClosePosition squares off the account's position in an instrument by
// placing an opposite market order.
// POST /api/v1/positions/:instrument_id/close
func (h *PositionHandler) ClosePosition(c *gin.Context) {
	account, err := resolveAccount(c, h.accountRepo)
	if err != nil {
		response.NotFound(c, "trading account not found")
		return
	}
	instrumentID, ok := parseID(c, "instrument_id")
	if !ok {
		response.BadRequest(c, "invalid instrument id")
		return
	}

	result, err := h.execution.ClosePosition(c.Request.Context(), account.ID, instrumentID, "user requested close")
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrPositionNotFound), errors.Is(err, service.ErrNoOpenPosition):
			response.NotFound(c, "no open position in this instrument")
		case errors.Is(err, service.ErrPriceUnavailable):
			response.PriceUnavailable(c, err.Error())
		default:
			response.InternalError(c, "failed to close position")
		}
		return
	}

	response.Success(c, result)
}

// SetStopAndTarget updates the risk exits on an open position
// PUT /api/v1/positions/:instrument_id/exits
func (h *PositionHandler) SetStopAndTarget(c *gin.Context) {
	account, err := resolveAccount(c, h.accountRepo)
	if err != nil {
		response.NotFound(c, "trading account not found")
		return
	}
	instrumentID, ok := parseID(c, "instrument_id")
	if !ok {
		response.BadRequest(c, "invalid instrument id")
		return
	}

	var req struct {
		StopLoss *float64 `json:"stop_loss"`
		Target   *float64 `json:"target"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	position, err := h.positionRepo.GetByAccountAndInstrument(account.ID, instrumentID)
	if err != nil {
		if errors.Is(err, repository.ErrPositionNotFound) {
			response.NotFound(c, "position not found")
			return
		}
		response.InternalError(c, "failed to load position")
		return
	}
	if !position.IsOpen() {
		response.Conflict(c, "position is closed")
		return
	}

	position.StopLoss = req.StopLoss
	position.Target = req.Target
	if err := h.positionRepo.Update(position); err != nil {
		response.InternalError(c, "failed to update position")
		return
	}

	response.Success(c, position)
}

// RegisterRoutes registers position routes
func (h *PositionHandler) RegisterRoutes(rg *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	positions := rg.Group("/positions", authMiddleware)
	{
		positions.GET("", h.ListPositions)
		positions.POST("/:instrument_id/close", h.ClosePosition)
		positions.PUT("/:instrument_id/exits", h.SetStopAndTarget)
	}
}
