package sale

import (
	"context"
	"math/big"
	"sync"

	apperrors "github.com/crowdsale-engine/internal/errors"
	"github.com/crowdsale-engine/internal/logging"
	"github.com/crowdsale-engine/internal/models"
	"github.com/crowdsale-engine/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

// Engine orchestrates purchases against a sale: it validates preconditions
// in a fixed order, prices the payment, clips the purchase to per-buyer and
// global constraints, and commits the new state. Rejections never mutate
// state; a failed payment transfer aborts the call before anything is
// committed.
type Engine struct {
	store    SaleStore
	payments PaymentSink
	notifier Notifier
	logger   *logging.Logger

	// per-sale locks; each purchase is a read-modify-write cycle that must
	// not interleave with another purchase on the same sale
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates a purchase engine.
func NewEngine(store SaleStore, payments PaymentSink, notifier Notifier, logger *logging.Logger) *Engine {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Engine{
		store:    store,
		payments: payments,
		notifier: notifier,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing operations on one sale.
func (e *Engine) lockFor(saleID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[saleID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[saleID] = lock
	}
	return lock
}

// CreateSale validates and persists a new sale config with zeroed state.
// The sale does not accept purchases until Initialize is called.
func (e *Engine) CreateSale(ctx context.Context, cfg *models.SaleConfig) error {
	if err := cfg.Validate(); err != nil {
		return apperrors.NewInvalidSaleConfigError(err)
	}
	if err := e.store.CreateSale(ctx, cfg, models.NewSaleState()); err != nil {
		return err
	}

	e.logger.WithFields(map[string]interface{}{
		"saleId":     cfg.ID,
		"startPrice": cfg.StartPrice.String(),
		"endPrice":   cfg.EndPrice.String(),
		"startTime":  cfg.StartTime,
		"duration":   cfg.Duration,
	}).Info("Sale created")
	return nil
}

// Initialize marks the sale ready to accept purchases.
func (e *Engine) Initialize(ctx context.Context, saleID string) error {
	lock := e.lockFor(saleID)
	lock.Lock()
	defer lock.Unlock()

	state, err := e.store.GetState(ctx, saleID)
	if err != nil {
		return err
	}
	if state.Finalized {
		return apperrors.NewConflictError("cannot initialize a finalized sale")
	}

	next := state.Clone()
	next.Initialized = true
	return e.store.SetState(ctx, saleID, next)
}

// Finalize flips the finalized flag; further purchases are rejected.
func (e *Engine) Finalize(ctx context.Context, saleID string) error {
	lock := e.lockFor(saleID)
	lock.Lock()
	defer lock.Unlock()

	state, err := e.store.GetState(ctx, saleID)
	if err != nil {
		return err
	}
	if state.Finalized {
		return nil
	}

	next := state.Clone()
	next.Finalized = true
	if err := e.store.SetState(ctx, saleID, next); err != nil {
		return err
	}

	e.logger.WithField("saleId", saleID).Info("Sale finalized")
	return nil
}

// SetGlobalMinimum sets the minimum first-purchase size, in units, for
// non-whitelisted sales.
func (e *Engine) SetGlobalMinimum(ctx context.Context, saleID string, units *big.Int) error {
	if units == nil || units.Sign() < 0 {
		return apperrors.NewInvalidParameterError("minimumUnits", "must be non-negative")
	}

	lock := e.lockFor(saleID)
	lock.Lock()
	defer lock.Unlock()

	state, err := e.store.GetState(ctx, saleID)
	if err != nil {
		return err
	}

	next := state.Clone()
	next.GlobalMinimumUnits.Set(units)
	return e.store.SetState(ctx, saleID, next)
}

// SetWhitelistEntry sets per-address purchase constraints for a whitelisted
// sale.
func (e *Engine) SetWhitelistEntry(ctx context.Context, saleID string, addr common.Address, entry *models.WhitelistEntry) error {
	if entry == nil || entry.MinimumUnits == nil || entry.MaxSpendRemaining == nil {
		return apperrors.NewInvalidParameterError("entry", "minimumUnits and maxSpendRemaining are required")
	}
	if entry.MinimumUnits.Sign() < 0 || entry.MaxSpendRemaining.Sign() < 0 {
		return apperrors.NewInvalidParameterError("entry", "limits must be non-negative")
	}

	lock := e.lockFor(saleID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := e.store.GetConfig(ctx, saleID); err != nil {
		return err
	}
	return e.store.SetWhitelistEntry(ctx, saleID, addr, entry.Clone())
}

// Purchase executes a single purchase of sale units for paymentWei at the
// injected instant. On success it returns a receipt with the units issued,
// the payment consumed, and the refund owed; acceptedWei + refundWei always
// equals paymentWei. On rejection it returns a categorized error carrying
// one of the stable rejection codes, and no state is mutated.
func (e *Engine) Purchase(ctx context.Context, saleID string, buyer common.Address, paymentWei *big.Int, now uint64) (*models.PurchaseReceipt, error) {
	lock := e.lockFor(saleID)
	lock.Lock()
	defer lock.Unlock()

	cfg, err := e.store.GetConfig(ctx, saleID)
	if err != nil {
		return nil, err
	}
	state, err := e.store.GetState(ctx, saleID)
	if err != nil {
		return nil, err
	}

	// Validation chain; the first failing check names the error.
	if paymentWei == nil || paymentWei.Sign() <= 0 {
		return nil, apperrors.NewNoWeiSentError()
	}
	if !state.Initialized {
		return nil, apperrors.NewNotInitializedError(saleID)
	}
	if state.Finalized {
		return nil, apperrors.NewCrowdsaleFinishedError(saleID, types.FinishCauseFinalized)
	}
	if now < cfg.StartTime {
		return nil, apperrors.NewBeforeStartTimeError(cfg.StartTime, now)
	}
	if now >= cfg.EndTime() {
		return nil, apperrors.NewCrowdsaleFinishedError(saleID, types.FinishCausePastEndTime)
	}
	if state.TokensSold.Cmp(cfg.SellCap) >= 0 {
		return nil, apperrors.NewCrowdsaleFinishedError(saleID, types.FinishCauseSoldOut)
	}

	priorBalance, err := e.store.GetBalance(ctx, saleID, buyer)
	if err != nil {
		return nil, err
	}

	price := CurrentPrice(cfg, now)
	rawUnits := UnitsForPayment(cfg, paymentWei, price)

	var entry *models.WhitelistEntry
	if cfg.Whitelisted {
		entry, err = e.store.GetWhitelistEntry(ctx, saleID, buyer)
		if err != nil {
			return nil, err
		}
		// an absent entry is a zero allowance
		if entry == nil || entry.MaxSpendRemaining.Sign() == 0 {
			return nil, apperrors.NewSpendAmountExceededError(buyer)
		}
	} else if priorBalance.Sign() == 0 && rawUnits.Cmp(state.GlobalMinimumUnits) < 0 {
		return nil, apperrors.NewUnderMinCapError(state.GlobalMinimumUnits, rawUnits)
	}

	allowed := new(big.Int).Set(rawUnits)
	if cfg.Whitelisted {
		// the minimum gate judges the pre-clip request, one time only
		if entry.MinimumUnits.Sign() > 0 && rawUnits.Cmp(entry.MinimumUnits) < 0 {
			return nil, apperrors.NewUnderMinCapError(entry.MinimumUnits, rawUnits)
		}
		if allowed.Cmp(entry.MaxSpendRemaining) > 0 {
			allowed.Set(entry.MaxSpendRemaining)
		}
	}

	remaining := new(big.Int).Sub(cfg.SellCap, state.TokensSold)
	if allowed.Cmp(remaining) > 0 {
		allowed.Set(remaining)
	}
	if allowed.Sign() == 0 {
		return nil, apperrors.NewInvalidPurchaseAmountError(paymentWei, price)
	}

	accepted := WeiForUnits(cfg, allowed, price)
	refund := new(big.Int).Sub(paymentWei, accepted)

	// Payment first: a failed transfer aborts with no state committed.
	if err := e.payments.Pay(ctx, saleID, cfg.TeamWallet, accepted); err != nil {
		return nil, apperrors.NewPaymentError(cfg.TeamWallet, err)
	}

	next := state.Clone()
	next.TokensSold.Add(next.TokensSold, allowed)
	next.WeiRaised.Add(next.WeiRaised, accepted)
	if priorBalance.Sign() == 0 {
		next.UniqueBuyers++
	}

	newBalance := new(big.Int).Add(priorBalance, allowed)
	if err := e.store.SetBalance(ctx, saleID, buyer, newBalance); err != nil {
		return nil, err
	}
	if cfg.Whitelisted {
		nextEntry := entry.Clone()
		nextEntry.MaxSpendRemaining.Sub(nextEntry.MaxSpendRemaining, allowed)
		nextEntry.MinimumUnits.SetUint64(0)
		if err := e.store.SetWhitelistEntry(ctx, saleID, buyer, nextEntry); err != nil {
			return nil, err
		}
	}
	if err := e.store.SetState(ctx, saleID, next); err != nil {
		return nil, err
	}

	e.notifier.TokensPurchased(ctx, saleID, price, now, allowed)
	e.notifier.PaymentDelivered(ctx, saleID, cfg.TeamWallet, accepted)

	e.logger.WithFields(map[string]interface{}{
		"saleId":      saleID,
		"buyer":       buyer.Hex(),
		"units":       allowed.String(),
		"acceptedWei": accepted.String(),
		"refundWei":   refund.String(),
		"priceWei":    price.String(),
	}).Debug("Purchase committed")

	return &models.PurchaseReceipt{
		SaleID:      saleID,
		Buyer:       buyer,
		Units:       allowed,
		AcceptedWei: accepted,
		RefundWei:   refund,
		PriceWei:    price,
		Timestamp:   now,
	}, nil
}
