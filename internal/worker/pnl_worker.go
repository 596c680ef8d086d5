package worker

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"github.com/tradecore/internal/marketdata"
	"github.com/tradecore/internal/models"
	"github.com/tradecore/internal/repository"
	"github.com/tradecore/internal/risk"
	"github.com/tradecore/internal/service"
)

// QuoteSource is the slice of the market-data cache the worker reads from
type QuoteSource interface {
	LastKnown(token string) (*marketdata.Quote, bool)
	EnsureSubscribed(ctx context.Context, tokens []string) error
}

// Emitter pushes position updates to users' live channels
type Emitter interface {
	Emit(userID uint, event string, payload interface{})
}

// PnLWorkerConfig tunes the P&L cycle
type PnLWorkerConfig struct {
	Interval       time.Duration
	BatchSize      int
	WriteThreshold float64
	ChunkSize      int
	MaxAutoClose   int
	Thresholds     risk.Thresholds
}

// positionUpdate is the per-position payload streamed to clients
type positionUpdate struct {
	PositionID    uint    `json:"position_id"`
	InstrumentID  uint    `json:"instrument_id"`
	Symbol        string  `json:"symbol"`
	Quantity      int64   `json:"quantity"`
	Price         float64 `json:"price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	DayPnL        float64 `json:"day_pnl"`
}

// PnLWorker recomputes unrealized and day P&L for every open position on a
// fixed cadence. Fresh figures always land in the fast cache; the durable
// store is written only when the change crosses the configured threshold,
// keeping row churn proportional to market movement rather than tick rate.
// Each full pass over the same prices is idempotent.
type PnLWorker struct {
	positionRepo   *repository.PositionRepository
	instrumentRepo *repository.InstrumentRepository
	accountRepo    *repository.AccountRepository
	execution      *service.ExecutionService
	quotes         QuoteSource
	fastCache      FastCache
	heartbeat      HeartbeatStore
	hub            Emitter
	cfg            PnLWorkerConfig
	stopChan       chan struct{}
}

// NewPnLWorker creates a new PnLWorker. fastCache, heartbeat and hub may be
// nil in degraded setups.
func NewPnLWorker(
	positionRepo *repository.PositionRepository,
	instrumentRepo *repository.InstrumentRepository,
	accountRepo *repository.AccountRepository,
	execution *service.ExecutionService,
	quotes QuoteSource,
	fastCache FastCache,
	heartbeat HeartbeatStore,
	hub Emitter,
	cfg PnLWorkerConfig,
) *PnLWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 50
	}
	return &PnLWorker{
		positionRepo:   positionRepo,
		instrumentRepo: instrumentRepo,
		accountRepo:    accountRepo,
		execution:      execution,
		quotes:         quotes,
		fastCache:      fastCache,
		heartbeat:      heartbeat,
		hub:            hub,
		cfg:            cfg,
		stopChan:       make(chan struct{}),
	}
}

// Start begins the P&L loop. Blocks until Stop is called.
func (w *PnLWorker) Start() {
	log.Printf("PnL worker started with interval: %v", w.cfg.Interval)
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.RunCycle(context.Background())
		case <-w.stopChan:
			log.Println("PnL worker stopped")
			return
		}
	}
}

// Stop stops the P&L loop
func (w *PnLWorker) Stop() {
	close(w.stopChan)
}

// RunCycle performs one full pass: price every open position, refresh the
// fast cache, persist threshold-crossing changes, stream updates, evaluate
// risk. A failure on one position is counted and skipped, never fatal.
func (w *PnLWorker) RunCycle(ctx context.Context) {
	start := time.Now()
	var stats CycleStats
	defer func() {
		stats.Elapsed = time.Since(start)
		stats.At = time.Now()
		w.beat(ctx, stats)
	}()

	positions, err := w.positionRepo.GetOpenPositions(w.cfg.BatchSize)
	if err != nil {
		log.Printf("PnL worker: position scan failed: %v", err)
		stats.Errors++
		return
	}
	stats.Scanned = len(positions)
	if len(positions) == 0 {
		return
	}

	instrumentIDs := make([]uint, 0, len(positions))
	seen := make(map[uint]struct{}, len(positions))
	for _, p := range positions {
		if _, ok := seen[p.InstrumentID]; !ok {
			seen[p.InstrumentID] = struct{}{}
			instrumentIDs = append(instrumentIDs, p.InstrumentID)
		}
	}
	instruments, err := w.instrumentRepo.GetByIDs(instrumentIDs)
	if err != nil {
		log.Printf("PnL worker: instrument load failed: %v", err)
		stats.Errors++
		return
	}

	accountIDs := make([]uint, 0, len(positions))
	seenAccounts := make(map[uint]struct{}, len(positions))
	for _, p := range positions {
		if _, ok := seenAccounts[p.AccountID]; !ok {
			seenAccounts[p.AccountID] = struct{}{}
			accountIDs = append(accountIDs, p.AccountID)
		}
	}
	accounts, err := w.accountRepo.GetByIDs(accountIDs)
	if err != nil {
		log.Printf("PnL worker: account load failed: %v", err)
		stats.Errors++
		return
	}

	if w.quotes != nil {
		tokens := make([]string, 0, len(instruments))
		for _, inst := range instruments {
			tokens = append(tokens, inst.Token)
		}
		if err := w.quotes.EnsureSubscribed(ctx, tokens); err != nil {
			log.Printf("PnL worker: %v", err)
		}
	}

	byAccount := make(map[uint][]models.Position)
	byUser := make(map[uint][]positionUpdate)

	for i := range positions {
		pos := &positions[i]
		inst, ok := instruments[pos.InstrumentID]
		if !ok {
			stats.Skipped++
			continue
		}

		price, live := w.currentPrice(&inst)
		if price <= 0 {
			stats.Skipped++
			continue
		}

		// Persist live prices so the resolver's cached tier survives restarts
		if live && price != inst.LastPrice {
			if err := w.instrumentRepo.UpdateLastPrice(inst.Token, price, time.Now()); err != nil {
				log.Printf("PnL worker: last price update for %s failed: %v", inst.Token, err)
			}
		}

		unrealized := pos.CalculateUnrealizedPnL(price)
		day := pos.CalculateDayPnL(price, inst.PreviousClose)

		if w.fastCache != nil {
			if err := w.fastCache.WritePnL(ctx, pos.ID, unrealized, day, price); err != nil {
				log.Printf("PnL worker: %v", err)
				stats.Errors++
			}
		}

		// Either figure crossing the threshold warrants a durable write; day
		// P&L drifts on its own when the previous close changes overnight
		if math.Abs(unrealized-pos.UnrealizedPnL) >= w.cfg.WriteThreshold ||
			math.Abs(day-pos.DayPnL) >= w.cfg.WriteThreshold {
			if err := w.positionRepo.UpdatePnL(pos.ID, unrealized, day); err != nil {
				log.Printf("PnL worker: durable write for position %d failed: %v", pos.ID, err)
				stats.Errors++
				continue
			}
			stats.Updated++
		}
		pos.UnrealizedPnL = unrealized
		pos.DayPnL = day

		byAccount[pos.AccountID] = append(byAccount[pos.AccountID], *pos)

		if account, ok := accounts[pos.AccountID]; ok {
			userID := account.UserID
			byUser[userID] = append(byUser[userID], positionUpdate{
				PositionID:    pos.ID,
				InstrumentID:  pos.InstrumentID,
				Symbol:        inst.Symbol,
				Quantity:      pos.Quantity,
				Price:         price,
				UnrealizedPnL: unrealized,
				DayPnL:        day,
			})
		}

		w.checkStopAndTarget(ctx, pos, price)
	}

	w.emitUpdates(byUser)
	w.evaluateRisk(ctx, byAccount, accounts)

	if stats.Skipped > 0 || stats.Errors > 0 {
		log.Printf("PnL worker: cycle done, %d positions, %d durable writes, %d skipped, %d errors",
			stats.Scanned, stats.Updated, stats.Skipped, stats.Errors)
	}
}

// currentPrice prefers the shared quote cache and falls back to the
// instrument's persisted last price. The second return reports a cache hit.
func (w *PnLWorker) currentPrice(inst *models.Instrument) (float64, bool) {
	if w.quotes != nil {
		if q, ok := w.quotes.LastKnown(inst.Token); ok && q.LastTradePrice > 0 {
			return q.LastTradePrice, true
		}
	}
	return inst.LastPrice, false
}

func (w *PnLWorker) checkStopAndTarget(ctx context.Context, pos *models.Position, price float64) {
	if pos.StopLoss != nil && risk.IsStopLossHit(pos.Quantity, price, *pos.StopLoss) {
		w.closePosition(ctx, pos, "stop loss hit")
		return
	}
	if pos.Target != nil && risk.IsTargetHit(pos.Quantity, price, *pos.Target) {
		w.closePosition(ctx, pos, "target hit")
	}
}

// evaluateRisk checks each account's loss utilization against the configured
// thresholds and force-closes the worst losers past the auto-close level.
func (w *PnLWorker) evaluateRisk(ctx context.Context, byAccount map[uint][]models.Position, accounts map[uint]models.TradingAccount) {
	for accountID, positions := range byAccount {
		account, ok := accounts[accountID]
		if !ok {
			continue
		}

		decision := risk.PickAutoCloseCandidates(positions, account.Balance, w.cfg.Thresholds, w.cfg.MaxAutoClose)
		if decision.ShouldWarn && !decision.ShouldAutoClose {
			log.Printf("PnL worker: account %d margin utilization %.2f past warning level", accountID, decision.Utilization)
			if w.hub != nil {
				w.hub.Emit(account.UserID, "risk_warning", map[string]interface{}{
					"account_id":  accountID,
					"utilization": decision.Utilization,
				})
			}
		}
		if decision.ShouldAutoClose {
			log.Printf("PnL worker: account %d margin utilization %.2f, force-closing %d positions",
				accountID, decision.Utilization, len(decision.PositionsToClose))
			for i := range decision.PositionsToClose {
				w.closePosition(ctx, &decision.PositionsToClose[i], "margin utilization exceeded")
			}
		}
	}
}

func (w *PnLWorker) closePosition(ctx context.Context, pos *models.Position, reason string) {
	if w.execution == nil {
		return
	}
	_, err := w.execution.ClosePosition(ctx, pos.AccountID, pos.InstrumentID, reason)
	if errors.Is(err, service.ErrCloseAlreadyPending) {
		// A close from an earlier cycle is still waiting to fill
		return
	}
	if err != nil {
		log.Printf("PnL worker: auto-close of position %d failed: %v", pos.ID, err)
	}
}

// emitUpdates streams each user's position updates in bounded chunks so one
// account with hundreds of positions cannot monopolize a websocket write.
func (w *PnLWorker) emitUpdates(byUser map[uint][]positionUpdate) {
	if w.hub == nil {
		return
	}
	for userID, updates := range byUser {
		for start := 0; start < len(updates); start += w.cfg.ChunkSize {
			end := start + w.cfg.ChunkSize
			if end > len(updates) {
				end = len(updates)
			}
			w.hub.Emit(userID, "position_pnl", updates[start:end])
		}
	}
}

func (w *PnLWorker) beat(ctx context.Context, stats CycleStats) {
	if w.heartbeat == nil {
		return
	}
	if err := w.heartbeat.Beat(ctx, "pnl", stats); err != nil {
		log.Printf("PnL worker: heartbeat failed: %v", err)
	}
}
