package sale

import (
	"context"
	"math/big"

	"github.com/crowdsale-engine/internal/logging"
	"github.com/ethereum/go-ethereum/common"
)

// LogNotifier writes purchase events to the structured log.
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a notifier backed by the given logger.
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// TokensPurchased logs a purchase event.
func (n *LogNotifier) TokensPurchased(_ context.Context, saleID string, priceWei *big.Int, at uint64, units *big.Int) {
	n.logger.WithFields(map[string]interface{}{
		"saleId":   saleID,
		"priceWei": priceWei.String(),
		"at":       at,
		"units":    units.String(),
	}).Info("Tokens purchased")
}

// PaymentDelivered logs a payment-delivered event.
func (n *LogNotifier) PaymentDelivered(_ context.Context, saleID string, destination common.Address, amountWei *big.Int) {
	n.logger.WithFields(map[string]interface{}{
		"saleId":      saleID,
		"destination": destination.Hex(),
		"amountWei":   amountWei.String(),
	}).Info("Payment delivered to team wallet")
}

// MultiNotifier fans events out to several notifiers in order.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a fan-out notifier.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// TokensPurchased forwards the event to every notifier.
func (m *MultiNotifier) TokensPurchased(ctx context.Context, saleID string, priceWei *big.Int, at uint64, units *big.Int) {
	for _, n := range m.notifiers {
		n.TokensPurchased(ctx, saleID, priceWei, at, units)
	}
}

// PaymentDelivered forwards the event to every notifier.
func (m *MultiNotifier) PaymentDelivered(ctx context.Context, saleID string, destination common.Address, amountWei *big.Int) {
	for _, n := range m.notifiers {
		n.PaymentDelivered(ctx, saleID, destination, amountWei)
	}
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) TokensPurchased(context.Context, string, *big.Int, uint64, *big.Int) {}

func (NopNotifier) PaymentDelivered(context.Context, string, common.Address, *big.Int) {}
