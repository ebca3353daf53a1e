// Package adapter provides implementations of the engine's external
// collaborators: the payment-transfer primitive that delivers accepted
// funds to the team wallet.
package adapter

import (
	"context"
	"math/big"

	"github.com/crowdsale-engine/internal/logging"
	"github.com/crowdsale-engine/internal/models"
	"github.com/crowdsale-engine/internal/storage"
	"github.com/ethereum/go-ethereum/common"
)

// LedgerPaymentSink records each payment as a payout ledger row. A failed
// insert propagates to the engine, which aborts the purchase with no state
// committed.
type LedgerPaymentSink struct {
	payouts *storage.PayoutRepository
	logger  *logging.Logger
}

// NewLedgerPaymentSink creates a payment sink backed by the payout ledger.
func NewLedgerPaymentSink(payouts *storage.PayoutRepository, logger *logging.Logger) *LedgerPaymentSink {
	return &LedgerPaymentSink{payouts: payouts, logger: logger}
}

// Pay delivers an accepted payment to the team wallet.
func (s *LedgerPaymentSink) Pay(ctx context.Context, saleID string, destination common.Address, amountWei *big.Int) error {
	err := s.payouts.Create(ctx, &models.Payout{
		SaleID:      saleID,
		Destination: destination,
		AmountWei:   new(big.Int).Set(amountWei),
	})
	if err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"saleId":      saleID,
			"destination": destination.Hex(),
		}).Error("Payment transfer failed")
		return err
	}
	return nil
}

// NopPaymentSink accepts every payment without recording it; used in
// single-node runs without Postgres.
type NopPaymentSink struct{}

// Pay accepts the payment.
func (NopPaymentSink) Pay(context.Context, string, common.Address, *big.Int) error {
	return nil
}
