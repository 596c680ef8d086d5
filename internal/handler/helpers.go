package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tradecore/internal/middleware"
	"github.com/tradecore/internal/models"
	"github.com/tradecore/internal/repository"
)

// resolveAccount returns the trading account a request operates on. An
// explicit account_id query parameter is ownership-checked; otherwise the
// user's first account is used.
func resolveAccount(c *gin.Context, accountRepo *repository.AccountRepository) (*models.TradingAccount, error) {
	userID := middleware.GetUserID(c)

	if raw := c.Query("account_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, repository.ErrAccountNotFound
		}
		return accountRepo.GetByIDAndUserID(uint(id), userID)
	}

	accounts, err := accountRepo.GetByUserID(userID)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, repository.ErrAccountNotFound
	}
	return &accounts[0], nil
}

// parsePagination reads page/page_size query parameters with sane bounds
func parsePagination(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

// parseID parses a numeric path parameter
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
