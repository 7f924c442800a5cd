/*
alerts.go - Low-stock sweep over the central pool

PURPOSE:
  Periodically scans pool products and emits a stock.low event for every
  product at or below its reorder level. Dealer-side thresholds are the
  client's own concern; this sweep only watches the shared pool.

DESIGN:
  - Background goroutine with a configurable sweep interval
  - Emits through the same NotificationSink the engines use
  - Purely observational: never mutates stock

USAGE:
  alerter := NewLowStockAlerter(store, sink, logger)
  alerter.Start()
  // ... later
  alerter.Stop()

SEE ALSO:
  - loyalty/effects.go: Event and NotificationSink
  - cmd/server/main.go: wiring and lifecycle
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/revinosolutions/dealer-loyality-sub003/loyalty"
)

// LowStockAlerter sweeps the pool for products under their reorder level.
type LowStockAlerter struct {
	Store         loyalty.Store
	Sink          loyalty.NotificationSink
	SweepInterval time.Duration
	Enabled       bool

	log    *zap.Logger
	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewLowStockAlerter creates a new alerter. Sink may be nil; sweeps then
// only log.
func NewLowStockAlerter(store loyalty.Store, sink loyalty.NotificationSink, log *zap.Logger) *LowStockAlerter {
	if log == nil {
		log = zap.NewNop()
	}
	return &LowStockAlerter{
		Store:         store,
		Sink:          sink,
		SweepInterval: 15 * time.Minute,
		Enabled:       true,
		log:           log,
		stop:          make(chan bool),
	}
}

// Start begins the background sweep.
func (a *LowStockAlerter) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.Enabled {
		a.log.Info("low-stock alerter disabled, not starting")
		return
	}

	a.ticker = time.NewTicker(a.SweepInterval)
	a.wg.Add(1)

	go a.run()

	a.log.Info("low-stock alerter started", zap.Duration("interval", a.SweepInterval))
}

// Stop stops the background sweep and waits for it to finish.
func (a *LowStockAlerter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ticker != nil {
		a.ticker.Stop()
		close(a.stop)
		a.wg.Wait()
		a.log.Info("low-stock alerter stopped")
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (a *LowStockAlerter) RunNow() {
	a.sweep()
}

func (a *LowStockAlerter) run() {
	defer a.wg.Done()

	// Sweep immediately on start
	a.sweep()

	for {
		select {
		case <-a.ticker.C:
			a.sweep()
		case <-a.stop:
			return
		}
	}
}

func (a *LowStockAlerter) sweep() {
	ctx := context.Background()

	products, err := a.Store.Products().List(ctx)
	if err != nil {
		a.log.Warn("low-stock sweep failed", zap.Error(err))
		return
	}

	flagged := 0
	for _, p := range products {
		if p.ReorderLevel <= 0 || p.Stock > p.ReorderLevel {
			continue
		}
		flagged++

		a.log.Warn("pool stock at or below reorder level",
			zap.String("product_id", p.ID),
			zap.String("name", p.Name),
			zap.Int("stock", p.Stock),
			zap.Int("reorder_level", p.ReorderLevel))

		if a.Sink == nil {
			continue
		}
		ev := loyalty.Event{
			Type: loyalty.EventLowStock,
			At:   time.Now(),
			Payload: map[string]any{
				"product_id":    p.ID,
				"name":          p.Name,
				"stock":         p.Stock,
				"reorder_level": p.ReorderLevel,
			},
		}
		if err := a.Sink.Notify(ctx, ev); err != nil {
			a.log.Warn("low-stock notification failed",
				zap.String("product_id", p.ID),
				zap.Error(err))
		}
	}

	if flagged > 0 {
		a.log.Info("low-stock sweep completed", zap.Int("flagged", flagged))
	}
}
