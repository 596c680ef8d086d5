package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/tradecore/internal/margin"
	"github.com/tradecore/internal/repository"
	"github.com/tradecore/internal/service"
	"github.com/tradecore/pkg/response"
)

// OrderHandler handles order API requests
type OrderHandler struct {
	execution   *service.ExecutionService
	accountRepo *repository.AccountRepository
	orderRepo   *repository.OrderRepository
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(execution *service.ExecutionService, accountRepo *repository.AccountRepository, orderRepo *repository.OrderRepository) *OrderHandler {
	return &OrderHandler{
		execution:   execution,
		accountRepo: accountRepo,
		orderRepo:   orderRepo,
	}
}

// PlaceOrder handles order placement
// POST /api/v1/orders
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	account, err := resolveAccount(c, h.accountRepo)
	if err != nil {
		response.NotFound(c, "trading account not found")
		return
	}

	var req service.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	req.AccountID = account.ID

	result, err := h.execution.PlaceOrder(c.Request.Context(), &req)
	if err != nil {
		var fundsErr *service.InsufficientFundsError
		switch {
		case errors.As(err, &fundsErr):
			response.InsufficientFunds(c, "insufficient funds", fundsErr.Required, fundsErr.Available)
		case errors.Is(err, service.ErrPriceUnavailable):
			response.PriceUnavailable(c, err.Error())
		case errors.Is(err, repository.ErrInstrumentNotFound):
			response.NotFound(c, "instrument not found")
		case errors.Is(err, service.ErrInvalidQuantity),
			errors.Is(err, service.ErrInvalidSide),
			errors.Is(err, service.ErrInvalidOrderType),
			errors.Is(err, service.ErrLimitPriceRequired),
			errors.Is(err, margin.ErrInvalidLotSize),
			errors.Is(err, margin.ErrInvalidQuantity),
			errors.Is(err, margin.ErrInvalidPrice):
			response.BadRequest(c, err.Error())
		default:
			response.InternalError(c, "failed to place order")
		}
		return
	}

	if len(result.Resolution.Warnings) > 0 {
		response.SuccessWithWarnings(c, result, result.Resolution.Warnings)
		return
	}
	response.Created(c, result)
}

// CancelOrder handles order cancellation
// DELETE /api/v1/orders/:id
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	account, err := resolveAccount(c, h.accountRepo)
	if err != nil {
		response.NotFound(c, "trading account not found")
		return
	}
	orderID, ok := parseID(c, "id")
	if !ok {
		response.BadRequest(c, "invalid order id")
		return
	}

	order, err := h.execution.CancelOrder(account.ID, orderID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			response.NotFound(c, "order not found")
		case errors.Is(err, service.ErrOrderNotPending):
			response.Conflict(c, "order is no longer pending")
		default:
			response.InternalError(c, "failed to cancel order")
		}
		return
	}

	response.Success(c, order)
}

// ModifyOrder handles modification of a pending order
// PUT /api/v1/orders/:id
func (h *OrderHandler) ModifyOrder(c *gin.Context) {
	account, err := resolveAccount(c, h.accountRepo)
	if err != nil {
		response.NotFound(c, "trading account not found")
		return
	}
	orderID, ok := parseID(c, "id")
	if !ok {
		response.BadRequest(c, "invalid order id")
		return
	}

	var req service.ModifyOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	order, err := h.execution.ModifyOrder(account.ID, orderID, &req)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			response.NotFound(c, "order not found")
		case errors.Is(err, service.ErrOrderNotPending):
			response.Conflict(c, "order is no longer pending")
		case errors.Is(err, service.ErrInvalidQuantity), errors.Is(err, service.ErrInvalidOrderType):
			response.BadRequest(c, err.Error())
		default:
			response.InternalError(c, "failed to modify order")
		}
		return
	}

	response.Success(c, order)
}

// GetOrder returns one order
// GET /api/v1/orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	account, err := resolveAccount(c, h.accountRepo)
	if err != nil {
		response.NotFound(c, "trading account not found")
		return
	}
	orderID, ok := parseID(c, "id")
	if !ok {
		response.BadRequest(c, "invalid order id")
		return
	}

	order, err := h.orderRepo.GetByIDAndAccountID(orderID, account.ID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			response.NotFound(c, "order not found")
			return
		}
		response.InternalError(c, "failed to load order")
		return
	}

	response.Success(c, order)
}

// ListOrders returns the account's order history, newest first
// GET /api/v1/orders
func (h *OrderHandler) ListOrders(c *gin.Context) {
	account, err := resolveAccount(c, h.accountRepo)
	if err != nil {
		response.NotFound(c, "trading account not found")
		return
	}

	page, pageSize := parsePagination(c)
	orders, total, err := h.orderRepo.GetByAccountIDPaginated(account.ID, page, pageSize)
	if err != nil {
		response.InternalError(c, "failed to load orders")
		return
	}

	response.SuccessPaginated(c, orders, total, page, pageSize)
}

// RegisterRoutes registers order routes
func (h *OrderHandler) RegisterRoutes(rg *gin.RouterGroup, authMiddleware, orderLogger gin.HandlerFunc) {
	orders := rg.Group("/orders", authMiddleware)
	{
		orders.POST("", orderLogger, h.PlaceOrder)
		orders.GET("", h.ListOrders)
		orders.GET("/:id", h.GetOrder)
		orders.PUT("/:id", orderLogger, h.ModifyOrder)
		orders.DELETE("/:id", orderLogger, h.CancelOrder)
	}
}
