// Package worker provides the background finalizer that closes sales once
// their window has elapsed or their sell cap is exhausted.
package worker

import (
	"context"
	"time"

	"github.com/crowdsale-engine/internal/logging"
	"github.com/crowdsale-engine/internal/sale"
)

// Finalizer periodically scans unfinalized sales and finalizes those past
// their end time or sold out. Purchases against such sales are already
// rejected by the engine's validation chain; finalization just settles the
// lifecycle flag.
type Finalizer struct {
	store    sale.SaleStore
	engine   *sale.Engine
	clock    sale.Clock
	interval time.Duration
	logger   *logging.Logger
}

// NewFinalizer creates a finalizer worker.
func NewFinalizer(store sale.SaleStore, engine *sale.Engine, clock sale.Clock, interval time.Duration, logger *logging.Logger) *Finalizer {
	if clock == nil {
		clock = sale.SystemClock{}
	}
	return &Finalizer{
		store:    store,
		engine:   engine,
		clock:    clock,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks until ctx is done, scanning on every tick.
func (f *Finalizer) Run(ctx context.Context) {
	f.logger.WithField("interval", f.interval.String()).Info("Finalizer started")

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("Finalizer stopped")
			return
		case <-ticker.C:
			f.Sweep(ctx)
		}
	}
}

// Sweep performs one scan over unfinalized sales.
func (f *Finalizer) Sweep(ctx context.Context) {
	ids, err := f.store.ListUnfinalized(ctx)
	if err != nil {
		f.logger.WithError(err).Error("Failed to list unfinalized sales")
		return
	}

	now := f.clock.Now()
	for _, id := range ids {
		if err := f.sweepSale(ctx, id, now); err != nil {
			f.logger.WithError(err).WithField("saleId", id).Error("Failed to sweep sale")
		}
	}
}

// sweepSale finalizes one sale when its window has elapsed or it is sold
// out.
func (f *Finalizer) sweepSale(ctx context.Context, saleID string, now uint64) error {
	cfg, err := f.store.GetConfig(ctx, saleID)
	if err != nil {
		return err
	}
	state, err := f.store.GetState(ctx, saleID)
	if err != nil {
		return err
	}

	if !state.Initialized {
		return nil
	}

	expired := now >= cfg.EndTime()
	soldOut := state.TokensSold.Cmp(cfg.SellCap) >= 0
	if !expired && !soldOut {
		return nil
	}

	if err := f.engine.Finalize(ctx, saleID); err != nil {
		return err
	}

	f.logger.WithFields(map[string]interface{}{
		"saleId":  saleID,
		"expired": expired,
		"soldOut": soldOut,
	}).Info("Sale finalized by sweep")
	return nil
}
