package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope is the standard API response body. Code is 0 on success and a
// negative stable identifier on failure so clients can branch without
// string-matching messages.
type Envelope struct {
	Code     int         `json:"code"`
	Message  string      `json:"message"`
	Data     interface{} `json:"data,omitempty"`
	Warnings []string    `json:"warnings,omitempty"`
}

// Stable error codes
const (
	CodeBadRequest        = -1
	CodeUnauthorized      = -1001
	CodeForbidden         = -1002
	CodeNotFound          = -1003
	CodeConflict          = -1004
	CodeInsufficientFunds = -2001
	CodePriceUnavailable  = -2002
)

// Success sends a 200 response
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Code: 0, Message: "success", Data: data})
}

// SuccessWithWarnings sends a 200 response carrying non-fatal warnings,
// used when an order executed on a degraded price source.
func SuccessWithWarnings(c *gin.Context, data interface{}, warnings []string) {
	c.JSON(http.StatusOK, Envelope{Code: 0, Message: "success", Data: data, Warnings: warnings})
}

// Created sends a 201 response
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Envelope{Code: 0, Message: "created", Data: data})
}

// Error sends an error response
func Error(c *gin.Context, statusCode, code int, message string) {
	c.JSON(statusCode, Envelope{Code: code, Message: message})
}

// BadRequest sends a 400 error response
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeBadRequest, message)
}

// Unauthorized sends a 401 error response
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden sends a 403 error response
func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, CodeForbidden, message)
}

// NotFound sends a 404 error response
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, CodeNotFound, message)
}

// Conflict sends a 409 error response, used for state-machine violations
// such as cancelling an already executed order.
func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, CodeConflict, message)
}

// InsufficientFunds sends a 422 error response with the shortfall attached
func InsufficientFunds(c *gin.Context, message string, required, available float64) {
	c.JSON(http.StatusUnprocessableEntity, Envelope{
		Code:    CodeInsufficientFunds,
		Message: message,
		Data: gin.H{
			"required":  required,
			"available": available,
			"shortfall": required - available,
		},
	})
}

// PriceUnavailable sends a 503 error response for exhausted price sources
func PriceUnavailable(c *gin.Context, message string) {
	Error(c, http.StatusServiceUnavailable, CodePriceUnavailable, message)
}

// InternalError sends a 500 error response
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, CodeBadRequest, message)
}

// Paginated is the body of a paginated listing
type Paginated struct {
	Items      interface{} `json:"items"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}

// SuccessPaginated sends a 200 response with paging metadata
func SuccessPaginated(c *gin.Context, items interface{}, total int64, page, pageSize int) {
	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	c.JSON(http.StatusOK, Envelope{
		Code:    0,
		Message: "success",
		Data: Paginated{
			Items:      items,
			Total:      total,
			Page:       page,
			PageSize:   pageSize,
			TotalPages: totalPages,
		},
	})
}
