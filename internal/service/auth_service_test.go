package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradecore/internal/config"
	"github.com/tradecore/internal/models"
	"github.com/tradecore/internal/repository"
)

func TestRegisterOpensFundedAccount(t *testing.T) {
	db := setupTestDB(t)
	svc := NewAuthService(db, repository.NewUserRepository(db),
		config.JWTConfig{Secret: "test-secret", ExpireHours: 1}, 100000)

	user, err := svc.Register(&RegisterRequest{
		Username: "trader1",
		Email:    "trader1@example.com",
		Password: "hunter22",
	})
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.NotEqual(t, "hunter22", user.PasswordHash)

	var account models.TradingAccount
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&account).Error)
	assert.Equal(t, 100000.0, account.Balance)
	assert.Equal(t, 100000.0, account.AvailableMargin)
	assert.Equal(t, 0.0, account.UsedMargin)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	db := setupTestDB(t)
	svc := NewAuthService(db, repository.NewUserRepository(db),
		config.JWTConfig{Secret: "test-secret", ExpireHours: 1}, 100000)

	req := &RegisterRequest{Username: "trader1", Email: "trader1@example.com", Password: "hunter22"}
	_, err := svc.Register(req)
	require.NoError(t, err)

	_, err = svc.Register(req)
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = svc.Register(&RegisterRequest{Username: "trader2", Email: "trader1@example.com", Password: "hunter22"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLoginAndValidateToken(t *testing.T) {
	db := setupTestDB(t)
	svc := NewAuthService(db, repository.NewUserRepository(db),
		config.JWTConfig{Secret: "test-secret", ExpireHours: 1}, 100000)

	user, err := svc.Register(&RegisterRequest{
		Username: "trader1", Email: "trader1@example.com", Password: "hunter22",
	})
	require.NoError(t, err)

	token, err := svc.Login(&LoginRequest{Username: "trader1", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", token.TokenType)

	claims, err := svc.ValidateToken(token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)

	_, err = svc.Login(&LoginRequest{Username: "trader1", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.ValidateToken("not-a-token")
	assert.Error(t, err)
}
