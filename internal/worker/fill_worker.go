package worker

import (
	"context"
	"log"
	"time"

	"github.com/tradecore/internal/service"
)

// FillWorker polls for pending orders whose scheduled execution time has
// passed and runs them through the execution service. Because the schedule
// lives on the order row, fills survive process restarts; any order due
// while the process was down executes on the first tick after startup.
type FillWorker struct {
	execution *service.ExecutionService
	interval  time.Duration
	batchSize int
	stopChan  chan struct{}
}

// NewFillWorker creates a new FillWorker
func NewFillWorker(execution *service.ExecutionService, interval time.Duration, batchSize int) *FillWorker {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &FillWorker{
		execution: execution,
		interval:  interval,
		batchSize: batchSize,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the polling loop. Blocks until Stop is called.
func (w *FillWorker) Start() {
	log.Printf("Fill worker started with interval: %v", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.runOnce()
		case <-w.stopChan:
			log.Println("Fill worker stopped")
			return
		}
	}
}

// Stop stops the polling loop
func (w *FillWorker) Stop() {
	close(w.stopChan)
}

func (w *FillWorker) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), w.interval*4)
	defer cancel()

	executed, err := w.execution.ExecuteDueFills(ctx, w.batchSize)
	if err != nil {
		log.Printf("Fill worker: cycle error after %d fills: %v", executed, err)
		return
	}
	if executed > 0 {
		log.Printf("Fill worker: executed %d orders", executed)
	}
}
