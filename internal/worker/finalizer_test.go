package worker

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/crowdsale-engine/internal/logging"
	"github.com/crowdsale-engine/internal/models"
	"github.com/crowdsale-engine/internal/sale"
	"github.com/crowdsale-engine/internal/storage"
	"github.com/ethereum/go-ethereum/common"
)

type fixedClock uint64

func (f fixedClock) Now() uint64 { return uint64(f) }

type nopPaymentSink struct{}

func (nopPaymentSink) Pay(context.Context, string, common.Address, *big.Int) error { return nil }

func sweepTestConfig(id string, startTime, duration uint64, sellCap int64) *models.SaleConfig {
	return &models.SaleConfig{
		ID:          id,
		TokenName:   "Test Token",
		TokenSymbol: "TST",
		Decimals:    0,
		TeamWallet:  common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		TotalSupply: big.NewInt(sellCap),
		SellCap:     big.NewInt(sellCap),
		StartPrice:  big.NewInt(1000),
		EndPrice:    big.NewInt(1000),
		StartTime:   startTime,
		Duration:    duration,
	}
}

func setupFinalizer(t *testing.T, now uint64) (*Finalizer, *sale.Engine, *storage.MemoryStore) {
	t.Helper()

	store := storage.NewMemoryStore()
	logger := logging.NewLogger(logging.LevelError, logging.FormatText)
	engine := sale.NewEngine(store, nopPaymentSink{}, nil, logger)
	finalizer := NewFinalizer(store, engine, fixedClock(now), time.Second, logger)
	return finalizer, engine, store
}

func TestSweepFinalizesExpiredSales(t *testing.T) {
	finalizer, engine, store := setupFinalizer(t, 5000)
	ctx := context.Background()

	// Ended at 2000, well before the sweep instant.
	expired := sweepTestConfig("expired", 1000, 1000, 1000)
	// Still open at 5000.
	active := sweepTestConfig("active", 1000, 10000, 1000)

	for _, cfg := range []*models.SaleConfig{expired, active} {
		if err := engine.CreateSale(ctx, cfg); err != nil {
			t.Fatalf("CreateSale(%s) error = %v", cfg.ID, err)
		}
		if err := engine.Initialize(ctx, cfg.ID); err != nil {
			t.Fatalf("Initialize(%s) error = %v", cfg.ID, err)
		}
	}

	finalizer.Sweep(ctx)

	state, err := store.GetState(ctx, "expired")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if !state.Finalized {
		t.Error("expired sale not finalized by sweep")
	}

	state, err = store.GetState(ctx, "active")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Finalized {
		t.Error("active sale finalized by sweep")
	}
}

func TestSweepFinalizesSoldOutSales(t *testing.T) {
	finalizer, engine, store := setupFinalizer(t, 1500)
	ctx := context.Background()

	cfg := sweepTestConfig("sale-1", 1000, 10000, 5)
	if err := engine.CreateSale(ctx, cfg); err != nil {
		t.Fatalf("CreateSale() error = %v", err)
	}
	if err := engine.Initialize(ctx, cfg.ID); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	buyer := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	if _, err := engine.Purchase(ctx, cfg.ID, buyer, big.NewInt(5000), 1200); err != nil {
		t.Fatalf("Purchase() error = %v", err)
	}

	finalizer.Sweep(ctx)

	state, err := store.GetState(ctx, cfg.ID)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if !state.Finalized {
		t.Error("sold-out sale not finalized by sweep")
	}
}

func TestSweepSkipsUninitializedSales(t *testing.T) {
	finalizer, engine, store := setupFinalizer(t, 5000)
	ctx := context.Background()

	// Expired but never initialized; finalizing it would block setup.
	cfg := sweepTestConfig("sale-1", 1000, 1000, 1000)
	if err := engine.CreateSale(ctx, cfg); err != nil {
		t.Fatalf("CreateSale() error = %v", err)
	}

	finalizer.Sweep(ctx)

	state, err := store.GetState(ctx, cfg.ID)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Finalized {
		t.Error("uninitialized sale finalized by sweep")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	finalizer, _, _ := setupFinalizer(t, 5000)
	finalizer.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		finalizer.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop after context cancellation")
	}
}
