package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/tradecore/internal/margin"
	"github.com/tradecore/internal/marketdata"
	"github.com/tradecore/internal/models"
	"github.com/tradecore/internal/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrInvalidSide         = errors.New("invalid order side")
	ErrInvalidOrderType    = errors.New("invalid order type")
	ErrLimitPriceRequired  = errors.New("limit orders require a price")
	ErrOrderNotPending     = errors.New("order is not pending")
	ErrNoOpenPosition      = errors.New("no open position to close")
	ErrCloseAlreadyPending = errors.New("a close order for this position is already pending")
)

// Emitter publishes fire-and-forget events to a user's real-time channel
type Emitter interface {
	Emit(userID uint, event string, payload interface{})
}

// QuotePeeker reads the last known quote without an upstream round trip
type QuotePeeker interface {
	LastKnown(token string) (*marketdata.Quote, bool)
}

// ExecutionService orchestrates order placement, cancellation, modification
// and the deferred fills that turn pending orders into positions. All fund
// movements go through the ledger inside the same transaction as the order
// and position writes they belong to.
type ExecutionService struct {
	db             *gorm.DB
	ledger         *FundLedger
	calc           *margin.Calculator
	resolver       *PriceResolver
	accountRepo    *repository.AccountRepository
	orderRepo      *repository.OrderRepository
	positionRepo   *repository.PositionRepository
	instrumentRepo *repository.InstrumentRepository
	quotes         QuotePeeker
	hub            Emitter
	fillDelay      time.Duration
}

// NewExecutionService creates a new ExecutionService. quotes and hub may be
// nil; fills then use the placement price and skip event publication.
func NewExecutionService(
	db *gorm.DB,
	ledger *FundLedger,
	calc *margin.Calculator,
	resolver *PriceResolver,
	accountRepo *repository.AccountRepository,
	orderRepo *repository.OrderRepository,
	positionRepo *repository.PositionRepository,
	instrumentRepo *repository.InstrumentRepository,
	quotes QuotePeeker,
	hub Emitter,
	fillDelay time.Duration,
) *ExecutionService {
	return &ExecutionService{
		db:             db,
		ledger:         ledger,
		calc:           calc,
		resolver:       resolver,
		accountRepo:    accountRepo,
		orderRepo:      orderRepo,
		positionRepo:   positionRepo,
		instrumentRepo: instrumentRepo,
		quotes:         quotes,
		hub:            hub,
		fillDelay:      fillDelay,
	}
}

// PlaceOrderRequest represents a buy/sell request entering the engine
type PlaceOrderRequest struct {
	AccountID    uint               `json:"account_id"`
	InstrumentID uint               `json:"instrument_id" binding:"required"`
	Side         models.OrderSide   `json:"side" binding:"required"`
	Type         models.OrderType   `json:"type"`
	ProductType  models.ProductType `json:"product_type"`
	Quantity     int64              `json:"quantity" binding:"required,gt=0"`
	LimitPrice   *float64           `json:"limit_price"`
	HintPrice    *float64           `json:"hint_price"`
	StopLoss     *float64           `json:"stop_loss"`
	Target       *float64           `json:"target"`
}

// PlaceOrderResult reports what placement committed
type PlaceOrderResult struct {
	Order      *models.Order    `json:"order"`
	Resolution *PriceResolution `json:"resolution"`
	Margin     *margin.Result   `json:"margin"`
}

// ModifyOrderRequest carries the fields a pending order may change
type ModifyOrderRequest struct {
	LimitPrice *float64 `json:"limit_price"`
	Quantity   *int64   `json:"quantity"`
}

// PlaceOrder validates, prices and funds an order, committing the margin
// block, the charge debit and the PENDING order row in one transaction. The
// scheduled execution time is part of that row, so a committed order can
// never be left unscheduled.
func (s *ExecutionService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResult, error) {
	if err := normalizeRequest(req); err != nil {
		return nil, err
	}

	account, err := s.accountRepo.GetByID(req.AccountID)
	if err != nil {
		return nil, err
	}
	instrument, err := s.instrumentRepo.GetByID(req.InstrumentID)
	if err != nil {
		return nil, err
	}

	resolution, err := s.resolver.Resolve(ctx, instrument, req.Type, req.LimitPrice, req.HintPrice)
	if err != nil {
		return nil, err
	}

	marginRes, err := s.calc.Calculate(instrument.Segment, req.ProductType, req.Quantity, resolution.Price, instrument.LotSize)
	if err != nil {
		return nil, err
	}

	check, err := s.ledger.CheckFunds(account.ID, marginRes.TotalRequired)
	if err != nil {
		return nil, err
	}
	if !check.OK {
		return nil, &InsufficientFundsError{
			Required:  marginRes.TotalRequired,
			Available: check.AvailableMargin,
		}
	}

	order := &models.Order{
		AccountID:      account.ID,
		InstrumentID:   instrument.ID,
		ClientOrderID:  uuid.New().String(),
		Side:           req.Side,
		Type:           req.Type,
		ProductType:    req.ProductType,
		Quantity:       req.Quantity,
		LimitPrice:     req.LimitPrice,
		ExecutionPrice: resolution.Price,
		PriceSource:    resolution.Source,
		MarginBlocked:  marginRes.RequiredMargin,
		Charges:        marginRes.TotalCharges,
		StopLoss:       req.StopLoss,
		Target:         req.Target,
		Status:         models.OrderStatusPending,
		ExecuteAfter:   time.Now().Add(s.fillDelay),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		lg := s.ledger.WithTx(tx)
		if err := lg.BlockMargin(account.ID, marginRes.RequiredMargin,
			fmt.Sprintf("margin block for order %s", order.ClientOrderID)); err != nil {
			return err
		}
		if err := lg.Debit(account.ID, marginRes.TotalCharges,
			fmt.Sprintf("charges for order %s", order.ClientOrderID)); err != nil {
			return err
		}
		// The instrument must still exist when the order row lands
		var count int64
		if err := tx.Model(&models.Instrument{}).Where("id = ?", instrument.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return repository.ErrInstrumentNotFound
		}
		return tx.Create(order).Error
	})
	if err != nil {
		return nil, err
	}

	return &PlaceOrderResult{
		Order:      order,
		Resolution: resolution,
		Margin:     marginRes,
	}, nil
}

// CancelOrder marks a pending order cancelled and restores the account's
// funds to exactly their pre-placement state: the persisted margin block is
// released and the persisted charges are credited back.
func (s *ExecutionService) CancelOrder(accountID, orderID uint) (*models.Order, error) {
	var order models.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := lockOrder(tx, orderID, accountID, &order); err != nil {
			return err
		}
		if !order.IsPending() {
			return ErrOrderNotPending
		}

		order.Status = models.OrderStatusCancelled
		if err := tx.Save(&order).Error; err != nil {
			return err
		}

		lg := s.ledger.WithTx(tx)
		if order.MarginBlocked > 0 {
			if err := lg.ReleaseMargin(accountID, order.MarginBlocked,
				fmt.Sprintf("margin release on cancel of order %s", order.ClientOrderID)); err != nil {
				return err
			}
		}
		if order.Charges > 0 {
			if err := lg.Credit(accountID, order.Charges,
				fmt.Sprintf("charges refund on cancel of order %s", order.ClientOrderID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ModifyOrder updates the stored price/quantity of a pending order. Margin is
// not re-validated here; a quantity increase is logged so risk owners can see
// the under-collateralization exposure.
func (s *ExecutionService) ModifyOrder(accountID, orderID uint, req *ModifyOrderRequest) (*models.Order, error) {
	var order models.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := lockOrder(tx, orderID, accountID, &order); err != nil {
			return err
		}
		if !order.IsPending() {
			return ErrOrderNotPending
		}

		if req.Quantity != nil {
			if *req.Quantity <= 0 {
				return ErrInvalidQuantity
			}
			if *req.Quantity > order.Quantity {
				log.Printf("[WARN] ExecutionService: order %s quantity raised %d -> %d without margin re-validation",
					order.ClientOrderID, order.Quantity, *req.Quantity)
			}
			order.Quantity = *req.Quantity
		}
		if req.LimitPrice != nil {
			if *req.LimitPrice <= 0 {
				return ErrLimitPriceRequired
			}
			order.LimitPrice = req.LimitPrice
			order.ExecutionPrice = *req.LimitPrice
		}
		return tx.Save(&order).Error
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ExecuteDueFills runs every pending order whose scheduled time has passed.
// Each order fills in its own transaction; one failure never aborts the rest.
// Returns the number of orders executed.
func (s *ExecutionService) ExecuteDueFills(ctx context.Context, limit int) (int, error) {
	due, err := s.orderRepo.GetDuePending(time.Now(), limit)
	if err != nil {
		return 0, err
	}

	executed := 0
	for i := range due {
		select {
		case <-ctx.Done():
			return executed, ctx.Err()
		default:
		}
		if err := s.executeFill(due[i].ID); err != nil {
			log.Printf("[ERROR] ExecutionService: fill of order %d failed: %v", due[i].ID, err)
			continue
		}
		executed++
	}
	return executed, nil
}

// ClosePosition issues a market order opposite to the position's direction.
// Risk decisions route through here so fund invariants stay in one place.
func (s *ExecutionService) ClosePosition(ctx context.Context, accountID, instrumentID uint, reason string) (*PlaceOrderResult, error) {
	position, err := s.positionRepo.GetByAccountAndInstrument(accountID, instrumentID)
	if err != nil {
		return nil, err
	}
	if !position.IsOpen() {
		return nil, ErrNoOpenPosition
	}

	side := models.OrderSideSell
	quantity := position.Quantity
	if position.Quantity < 0 {
		side = models.OrderSideBuy
		quantity = -position.Quantity
	}

	// One close in flight at a time; a second full-quantity order while the
	// first is pending would fill too and reverse the position
	pending, err := s.orderRepo.CountPendingBySide(accountID, instrumentID, side)
	if err != nil {
		return nil, err
	}
	if pending > 0 {
		return nil, ErrCloseAlreadyPending
	}

	product := position.ProductType
	if product == "" {
		product = models.ProductIntraday
	}

	var hint *float64
	if instrument, err := s.instrumentRepo.GetByID(instrumentID); err == nil && instrument.LastPrice > 0 {
		hint = &instrument.LastPrice
	}

	log.Printf("[INFO] ExecutionService: closing position %d (account=%d instrument=%d qty=%d): %s",
		position.ID, accountID, instrumentID, position.Quantity, reason)

	return s.PlaceOrder(ctx, &PlaceOrderRequest{
		AccountID:    accountID,
		InstrumentID: instrumentID,
		Side:         side,
		Type:         models.OrderTypeMarket,
		ProductType:  product,
		Quantity:     quantity,
		HintPrice:    hint,
	})
}

// executeFill applies one deferred fill. Order state is re-read under a row
// lock at fire time: a cancel that won the race makes this a silent no-op.
func (s *ExecutionService) executeFill(orderID uint) error {
	var userID uint
	var filled *models.Order

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repository.ErrOrderNotFound
			}
			return err
		}
		if !order.IsPending() {
			// Cancellation legitimately won the race
			return nil
		}

		var instrument models.Instrument
		if err := tx.First(&instrument, order.InstrumentID).Error; err != nil {
			return err
		}

		fillPrice := order.ExecutionPrice
		if s.quotes != nil {
			if q, ok := s.quotes.LastKnown(instrument.Token); ok && q.LastTradePrice > 0 {
				fillPrice = q.LastTradePrice
			}
		}

		if err := s.applyFill(tx, &order, fillPrice); err != nil {
			return err
		}

		now := time.Now()
		order.Status = models.OrderStatusExecuted
		order.FilledPrice = fillPrice
		order.FilledQty = order.Quantity
		order.FilledAt = &now
		if err := tx.Save(&order).Error; err != nil {
			return err
		}

		var account models.TradingAccount
		if err := tx.First(&account, order.AccountID).Error; err != nil {
			return err
		}
		userID = account.UserID
		filled = &order
		return nil
	})
	if err != nil {
		return err
	}

	if filled != nil && s.hub != nil {
		s.hub.Emit(userID, "order_update", filled)
	}
	return nil
}

// applyFill upserts the position for an executed order and settles the
// associated fund movements. Adding to a direction keeps margin blocked and
// recomputes the weighted average price; reducing releases the closed
// portion's margin and books realized P&L; reversing does both and restarts
// the average at the fill price.
func (s *ExecutionService) applyFill(tx *gorm.DB, order *models.Order, fillPrice float64) error {
	signedQty := order.SignedQuantity()
	lg := s.ledger.WithTx(tx)

	var position models.Position
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ? AND instrument_id = ?", order.AccountID, order.InstrumentID).
		First(&position).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		position = models.Position{
			AccountID:    order.AccountID,
			InstrumentID: order.InstrumentID,
			Quantity:     signedQty,
			ProductType:  order.ProductType,
			AvgPrice:     fillPrice,
			Margin:       order.MarginBlocked,
			StopLoss:     order.StopLoss,
			Target:       order.Target,
		}
		return tx.Create(&position).Error
	}
	if err != nil {
		return err
	}

	oldQty := position.Quantity
	newQty := oldQty + signedQty
	var realized, release float64

	switch {
	case oldQty == 0 || sameSign(oldQty, signedQty):
		// Opening or adding: weighted average, order margin joins the position
		oldAbs := abs(oldQty)
		addAbs := abs(signedQty)
		if oldAbs == 0 {
			position.AvgPrice = fillPrice
		} else {
			position.AvgPrice = (position.AvgPrice*float64(oldAbs) + fillPrice*float64(addAbs)) / float64(oldAbs+addAbs)
		}
		position.Margin += order.MarginBlocked

	case abs(signedQty) <= abs(oldQty):
		// Reducing or fully closing: book P&L on the closed portion, release
		// its share of the position margin plus the reducing order's block
		closed := abs(signedQty)
		realized = (fillPrice - position.AvgPrice) * float64(closed) * float64(sign(oldQty))
		share := position.Margin * float64(closed) / float64(abs(oldQty))
		position.Margin -= share
		release = share + order.MarginBlocked
		position.RealizedPnL += realized
		if newQty == 0 {
			release += position.Margin
			position.Margin = 0
			position.UnrealizedPnL = 0
			position.DayPnL = 0
		}

	default:
		// Reversing: close the whole position, open the remainder the other
		// way at the fill price with its share of the order's block
		closed := abs(oldQty)
		realized = (fillPrice - position.AvgPrice) * float64(closed) * float64(sign(oldQty))
		remainder := abs(signedQty) - closed
		keep := order.MarginBlocked * float64(remainder) / float64(abs(signedQty))
		release = position.Margin + (order.MarginBlocked - keep)
		position.Margin = keep
		position.AvgPrice = fillPrice
		position.RealizedPnL += realized
	}

	position.Quantity = newQty
	if order.StopLoss != nil {
		position.StopLoss = order.StopLoss
	}
	if order.Target != nil {
		position.Target = order.Target
	}
	if err := tx.Save(&position).Error; err != nil {
		return err
	}

	if release > 0 {
		if err := lg.ReleaseMargin(order.AccountID, release,
			fmt.Sprintf("margin release on fill of order %s", order.ClientOrderID)); err != nil {
			return err
		}
	}
	if realized > 0 {
		return lg.Credit(order.AccountID, realized,
			fmt.Sprintf("realized P&L on order %s", order.ClientOrderID))
	}
	if realized < 0 {
		return lg.Debit(order.AccountID, -realized,
			fmt.Sprintf("realized P&L on order %s", order.ClientOrderID))
	}
	return nil
}

func normalizeRequest(req *PlaceOrderRequest) error {
	if req.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if req.Side != models.OrderSideBuy && req.Side != models.OrderSideSell {
		return ErrInvalidSide
	}
	if req.Type == "" {
		req.Type = models.OrderTypeMarket
	}
	if req.Type != models.OrderTypeMarket && req.Type != models.OrderTypeLimit {
		return ErrInvalidOrderType
	}
	if req.Type == models.OrderTypeLimit && (req.LimitPrice == nil || *req.LimitPrice <= 0) {
		return ErrLimitPriceRequired
	}
	if req.ProductType == "" {
		req.ProductType = models.ProductIntraday
	}
	return nil
}

func lockOrder(tx *gorm.DB, orderID, accountID uint, out *models.Order) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND account_id = ?", orderID, accountID).
		First(out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repository.ErrOrderNotFound
	}
	return err
}

func sameSign(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int64) int64 {
	if v < 0 {
		return -1
	}
	if v > 0 {
		return 1
	}
	return 0
}
