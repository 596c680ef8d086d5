package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradecore/internal/margin"
	"github.com/tradecore/internal/marketdata"
	"github.com/tradecore/internal/models"
	"github.com/tradecore/internal/repository"
	"gorm.io/gorm"
)

// fakePeeker controls the price the fill sees, independent of placement
type fakePeeker struct {
	price float64
}

func (f *fakePeeker) LastKnown(token string) (*marketdata.Quote, bool) {
	if f.price <= 0 {
		return nil, false
	}
	return &marketdata.Quote{Token: token, LastTradePrice: f.price}, true
}

type testEngine struct {
	db        *gorm.DB
	execution *ExecutionService
	ledger    *FundLedger
	account   *models.TradingAccount
	inst      *models.Instrument
	peeker    *fakePeeker
}

func newTestEngine(t *testing.T, balance float64) *testEngine {
	t.Helper()
	db := setupTestDB(t)

	account := createTestAccount(t, db, balance)
	inst := &models.Instrument{
		Token:   "TOK1",
		Symbol:  "ACME",
		Name:    "Acme Industries",
		Segment: models.SegmentNSE,
		LotSize: 1,
	}
	require.NoError(t, db.Create(inst).Error)

	ledger := NewFundLedger(db)
	calc := margin.NewCalculator(nil)
	resolver := NewPriceResolver(&fakeQuotes{quote: &marketdata.Quote{Token: "TOK1", LastTradePrice: 100}}, resolverConfig())
	peeker := &fakePeeker{}

	execution := NewExecutionService(
		db, ledger, calc, resolver,
		repository.NewAccountRepository(db),
		repository.NewOrderRepository(db),
		repository.NewPositionRepository(db),
		repository.NewInstrumentRepository(db),
		peeker, nil,
		0, // orders become due immediately
	)

	return &testEngine{
		db:        db,
		execution: execution,
		ledger:    ledger,
		account:   account,
		inst:      inst,
		peeker:    peeker,
	}
}

func (e *testEngine) place(t *testing.T, side models.OrderSide, qty int64) *PlaceOrderResult {
	t.Helper()
	result, err := e.execution.PlaceOrder(context.Background(), &PlaceOrderRequest{
		AccountID:    e.account.ID,
		InstrumentID: e.inst.ID,
		Side:         side,
		Type:         models.OrderTypeMarket,
		ProductType:  models.ProductIntraday,
		Quantity:     qty,
	})
	require.NoError(t, err)
	return result
}

func (e *testEngine) fillAll(t *testing.T) int {
	t.Helper()
	executed, err := e.execution.ExecuteDueFills(context.Background(), 100)
	require.NoError(t, err)
	return executed
}

func (e *testEngine) position(t *testing.T) *models.Position {
	t.Helper()
	var pos models.Position
	require.NoError(t, e.db.Where("account_id = ? AND instrument_id = ?", e.account.ID, e.inst.ID).First(&pos).Error)
	return &pos
}

func TestPlaceOrderBlocksFundsAndCharges(t *testing.T) {
	e := newTestEngine(t, 100000)

	// 10 * 100 at 5x: margin 200, brokerage 0.3, fixed 5
	result := e.place(t, models.OrderSideBuy, 10)

	assert.Equal(t, models.OrderStatusPending, result.Order.Status)
	assert.NotEmpty(t, result.Order.ClientOrderID)
	assert.Equal(t, 200.0, result.Order.MarginBlocked)
	assert.InDelta(t, 5.3, result.Order.Charges, 1e-9)
	assert.Equal(t, models.PriceSourceLive, result.Order.PriceSource)

	got := reloadAccount(t, e.db, e.account.ID)
	assert.InDelta(t, 99994.7, got.Balance, 1e-9)
	assert.Equal(t, 200.0, got.UsedMargin)
	assert.InDelta(t, 99794.7, got.AvailableMargin, 1e-9)
	assertFundsInvariant(t, got)
}

func TestPlaceOrderInsufficientFunds(t *testing.T) {
	e := newTestEngine(t, 50)

	_, err := e.execution.PlaceOrder(context.Background(), &PlaceOrderRequest{
		AccountID:    e.account.ID,
		InstrumentID: e.inst.ID,
		Side:         models.OrderSideBuy,
		Type:         models.OrderTypeMarket,
		Quantity:     10,
	})
	var fundsErr *InsufficientFundsError
	require.ErrorAs(t, err, &fundsErr)
	assert.Greater(t, fundsErr.Shortfall(), 0.0)

	// Nothing was taken
	got := reloadAccount(t, e.db, e.account.ID)
	assert.Equal(t, 50.0, got.Balance)
	assert.Equal(t, 0.0, got.UsedMargin)
}

func TestPlaceOrderValidation(t *testing.T) {
	e := newTestEngine(t, 100000)
	ctx := context.Background()

	_, err := e.execution.PlaceOrder(ctx, &PlaceOrderRequest{
		AccountID: e.account.ID, InstrumentID: e.inst.ID,
		Side: models.OrderSideBuy, Quantity: 0,
	})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = e.execution.PlaceOrder(ctx, &PlaceOrderRequest{
		AccountID: e.account.ID, InstrumentID: e.inst.ID,
		Side: "SIDEWAYS", Quantity: 1,
	})
	assert.ErrorIs(t, err, ErrInvalidSide)

	_, err = e.execution.PlaceOrder(ctx, &PlaceOrderRequest{
		AccountID: e.account.ID, InstrumentID: e.inst.ID,
		Side: models.OrderSideBuy, Type: models.OrderTypeLimit, Quantity: 1,
	})
	assert.ErrorIs(t, err, ErrLimitPriceRequired)
}

func TestCancelRestoresFundsExactly(t *testing.T) {
	e := newTestEngine(t, 100000)

	result := e.place(t, models.OrderSideBuy, 10)
	_, err := e.execution.CancelOrder(e.account.ID, result.Order.ID)
	require.NoError(t, err)

	// Place then cancel is a funds no-op
	got := reloadAccount(t, e.db, e.account.ID)
	assert.InDelta(t, 100000.0, got.Balance, 1e-9)
	assert.InDelta(t, 100000.0, got.AvailableMargin, 1e-9)
	assert.InDelta(t, 0.0, got.UsedMargin, 1e-9)

	var order models.Order
	require.NoError(t, e.db.First(&order, result.Order.ID).Error)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
}

func TestCancelExecutedOrderFails(t *testing.T) {
	e := newTestEngine(t, 100000)

	result := e.place(t, models.OrderSideBuy, 10)
	require.Equal(t, 1, e.fillAll(t))

	_, err := e.execution.CancelOrder(e.account.ID, result.Order.ID)
	assert.ErrorIs(t, err, ErrOrderNotPending)
}

func TestFillOpensPosition(t *testing.T) {
	e := newTestEngine(t, 100000)

	e.place(t, models.OrderSideBuy, 10)
	require.Equal(t, 1, e.fillAll(t))

	pos := e.position(t)
	assert.Equal(t, int64(10), pos.Quantity)
	assert.Equal(t, 100.0, pos.AvgPrice)
	assert.Equal(t, 200.0, pos.Margin)

	// Margin stays blocked, now owned by the position
	got := reloadAccount(t, e.db, e.account.ID)
	assert.Equal(t, 200.0, got.UsedMargin)
	assertFundsInvariant(t, got)

	// A second run over the same orders is a no-op
	assert.Equal(t, 0, e.fillAll(t))
}

func TestFillAfterCancelIsSilentNoOp(t *testing.T) {
	e := newTestEngine(t, 100000)

	result := e.place(t, models.OrderSideBuy, 10)
	_, err := e.execution.CancelOrder(e.account.ID, result.Order.ID)
	require.NoError(t, err)

	// Fire the fill directly, as if the cancel won the race mid-schedule
	require.NoError(t, e.execution.executeFill(result.Order.ID))

	var count int64
	require.NoError(t, e.db.Model(&models.Position{}).Count(&count).Error)
	assert.Zero(t, count)

	got := reloadAccount(t, e.db, e.account.ID)
	assert.InDelta(t, 100000.0, got.Balance, 1e-9)
	assert.InDelta(t, 0.0, got.UsedMargin, 1e-9)
}

func TestAddingFillAveragesPrice(t *testing.T) {
	e := newTestEngine(t, 100000)

	e.place(t, models.OrderSideBuy, 10)
	require.Equal(t, 1, e.fillAll(t))

	// Second buy fills at 110
	e.peeker.price = 110
	e.place(t, models.OrderSideBuy, 10)
	require.Equal(t, 1, e.fillAll(t))

	pos := e.position(t)
	assert.Equal(t, int64(20), pos.Quantity)
	assert.InDelta(t, 105.0, pos.AvgPrice, 1e-9)

	got := reloadAccount(t, e.db, e.account.ID)
	assert.InDelta(t, pos.Margin, got.UsedMargin, 1e-9)
	assertFundsInvariant(t, got)
}

func TestReducingFillBooksRealizedPnL(t *testing.T) {
	e := newTestEngine(t, 100000)

	e.place(t, models.OrderSideBuy, 10)
	require.Equal(t, 1, e.fillAll(t))
	balanceAfterOpen := reloadAccount(t, e.db, e.account.ID).Balance

	// Sell 4 at 110: +40 realized
	e.peeker.price = 110
	sell := e.place(t, models.OrderSideSell, 4)
	require.Equal(t, 1, e.fillAll(t))

	pos := e.position(t)
	assert.Equal(t, int64(6), pos.Quantity)
	assert.Equal(t, 100.0, pos.AvgPrice)
	assert.InDelta(t, 40.0, pos.RealizedPnL, 1e-9)
	// 4/10 of the 200 position margin released
	assert.InDelta(t, 120.0, pos.Margin, 1e-9)

	got := reloadAccount(t, e.db, e.account.ID)
	assert.InDelta(t, balanceAfterOpen-sell.Order.Charges+40, got.Balance, 1e-9)
	assert.InDelta(t, 120.0, got.UsedMargin, 1e-9)
	assertFundsInvariant(t, got)
}

func TestFullCloseReleasesAllMargin(t *testing.T) {
	e := newTestEngine(t, 100000)

	e.place(t, models.OrderSideBuy, 10)
	require.Equal(t, 1, e.fillAll(t))

	// Close at 90: -100 realized
	e.peeker.price = 90
	e.place(t, models.OrderSideSell, 10)
	require.Equal(t, 1, e.fillAll(t))

	pos := e.position(t)
	assert.Equal(t, int64(0), pos.Quantity)
	assert.InDelta(t, -100.0, pos.RealizedPnL, 1e-9)
	assert.Equal(t, 0.0, pos.Margin)
	assert.Equal(t, 0.0, pos.UnrealizedPnL)

	got := reloadAccount(t, e.db, e.account.ID)
	assert.InDelta(t, 0.0, got.UsedMargin, 1e-9)
	assertFundsInvariant(t, got)
}

func TestReversalFill(t *testing.T) {
	e := newTestEngine(t, 100000)

	e.place(t, models.OrderSideBuy, 10)
	require.Equal(t, 1, e.fillAll(t))

	// Sell 25 at 120: closes the 10 long (+200 realized), opens 15 short at 120
	e.peeker.price = 120
	sell := e.place(t, models.OrderSideSell, 25)
	require.Equal(t, 1, e.fillAll(t))

	pos := e.position(t)
	assert.Equal(t, int64(-15), pos.Quantity)
	assert.Equal(t, 120.0, pos.AvgPrice)
	assert.InDelta(t, 200.0, pos.RealizedPnL, 1e-9)
	// Remainder keeps 15/25 of the sell order's margin block
	expectedMargin := sell.Order.MarginBlocked * 15 / 25
	assert.InDelta(t, expectedMargin, pos.Margin, 1e-9)

	got := reloadAccount(t, e.db, e.account.ID)
	assert.InDelta(t, expectedMargin, got.UsedMargin, 1e-9)
	assertFundsInvariant(t, got)
}

func TestModifyOrder(t *testing.T) {
	e := newTestEngine(t, 100000)

	result := e.place(t, models.OrderSideBuy, 10)

	newQty := int64(20)
	order, err := e.execution.ModifyOrder(e.account.ID, result.Order.ID, &ModifyOrderRequest{Quantity: &newQty})
	require.NoError(t, err)
	assert.Equal(t, int64(20), order.Quantity)

	// Margin is not re-validated: the block is unchanged
	got := reloadAccount(t, e.db, e.account.ID)
	assert.Equal(t, 200.0, got.UsedMargin)
}

func TestModifyExecutedOrderFails(t *testing.T) {
	e := newTestEngine(t, 100000)

	result := e.place(t, models.OrderSideBuy, 10)
	require.Equal(t, 1, e.fillAll(t))

	newQty := int64(20)
	_, err := e.execution.ModifyOrder(e.account.ID, result.Order.ID, &ModifyOrderRequest{Quantity: &newQty})
	assert.ErrorIs(t, err, ErrOrderNotPending)
}

func TestClosePositionIssuesOppositeOrder(t *testing.T) {
	e := newTestEngine(t, 100000)

	e.place(t, models.OrderSideBuy, 10)
	require.Equal(t, 1, e.fillAll(t))

	result, err := e.execution.ClosePosition(context.Background(), e.account.ID, e.inst.ID, "test close")
	require.NoError(t, err)
	assert.Equal(t, models.OrderSideSell, result.Order.Side)
	assert.Equal(t, int64(10), result.Order.Quantity)

	require.Equal(t, 1, e.fillAll(t))
	pos := e.position(t)
	assert.Equal(t, int64(0), pos.Quantity)
}

func TestClosePositionRejectsSecondCloseWhilePending(t *testing.T) {
	e := newTestEngine(t, 100000)

	e.place(t, models.OrderSideBuy, 10)
	require.Equal(t, 1, e.fillAll(t))

	ctx := context.Background()
	_, err := e.execution.ClosePosition(ctx, e.account.ID, e.inst.ID, "first close")
	require.NoError(t, err)

	// The first close has not filled yet; a second would reverse the
	// position into a 10-lot short once both execute
	_, err = e.execution.ClosePosition(ctx, e.account.ID, e.inst.ID, "second close")
	assert.ErrorIs(t, err, ErrCloseAlreadyPending)

	require.Equal(t, 1, e.fillAll(t))
	pos := e.position(t)
	assert.Equal(t, int64(0), pos.Quantity)

	// With the position flat again, the duplicate guard no longer applies
	_, err = e.execution.ClosePosition(ctx, e.account.ID, e.inst.ID, "after flat")
	assert.ErrorIs(t, err, ErrNoOpenPosition)
}

func TestClosePositionKeepsProductType(t *testing.T) {
	e := newTestEngine(t, 100000)

	_, err := e.execution.PlaceOrder(context.Background(), &PlaceOrderRequest{
		AccountID:    e.account.ID,
		InstrumentID: e.inst.ID,
		Side:         models.OrderSideBuy,
		Type:         models.OrderTypeMarket,
		ProductType:  models.ProductDelivery,
		Quantity:     10,
	})
	require.NoError(t, err)
	require.Equal(t, 1, e.fillAll(t))

	pos := e.position(t)
	assert.Equal(t, models.ProductDelivery, pos.ProductType)

	// The close order must settle under the same product as the position,
	// not default back to intraday margining
	result, err := e.execution.ClosePosition(context.Background(), e.account.ID, e.inst.ID, "test close")
	require.NoError(t, err)
	assert.Equal(t, models.ProductDelivery, result.Order.ProductType)
}
