package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/tradecore/internal/repository"
	"github.com/tradecore/pkg/response"
)

// FundsHandler exposes account balances and the fund transaction trail
type FundsHandler struct {
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
	positionRepo    *repository.PositionRepository
}

// NewFundsHandler creates a new FundsHandler
func NewFundsHandler(accountRepo *repository.AccountRepository, transactionRepo *repository.TransactionRepository, positionRepo *repository.PositionRepository) *FundsHandler {
	return &FundsHandler{
		accountRepo:     accountRepo,
		transactionRepo: transactionRepo,
		positionRepo:    positionRepo,
	}
}

// GetFunds returns the account's fund summary
// GET /api/v1/funds
func (h *FundsHandler) GetFunds(c *gin.Context) {
	account, err := resolveAccount(c, h.accountRepo)
	if err != nil {
		response.NotFound(c, "trading account not found")
		return
	}

	unrealized, err := h.positionRepo.GetTotalUnrealizedPnL(account.ID)
	if err != nil {
		response.InternalError(c, "failed to load positions")
		return
	}

	response.Success(c, gin.H{
		"account_id":       account.ID,
		"balance":          account.Balance,
		"available_margin": account.AvailableMargin,
		"used_margin":      account.UsedMargin,
		"unrealized_pnl":   unrealized,
		"equity":           account.Balance + unrealized,
	})
}

// ListTransactions returns the account's fund transaction trail, newest first
// GET /api/v1/funds/transactions
func (h *FundsHandler) ListTransactions(c *gin.Context) {
	account, err := resolveAccount(c, h.accountRepo)
	if err != nil {
		response.NotFound(c, "trading account not found")
		return
	}

	page, pageSize := parsePagination(c)
	txns, total, err := h.transactionRepo.GetByAccountIDPaginated(account.ID, page, pageSize)
	if err != nil {
		response.InternalError(c, "failed to load transactions")
		return
	}

	response.SuccessPaginated(c, txns, total, page, pageSize)
}

// RegisterRoutes registers funds routes
func (h *FundsHandler) RegisterRoutes(rg *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	funds := rg.Group("/funds", authMiddleware)
	{
		funds.GET("", h.GetFunds)
		funds.GET("/transactions", h.ListTransactions)
	}
}
