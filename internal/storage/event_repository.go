package storage

import (
	"context"
	"math/big"

	"github.com/crowdsale-engine/internal/circuitbreaker"
	"github.com/crowdsale-engine/internal/logging"
	"github.com/crowdsale-engine/internal/retry"
	"github.com/ethereum/go-ethereum/common"
)

// Event types recorded in the analytics sink.
const (
	eventTokensPurchased  = "tokens_purchased"
	eventPaymentDelivered = "payment_delivered"
)

// EventRepository records purchase and payment events in ClickHouse. It
// implements the engine's Notifier contract: writes are best-effort, guarded
// by a circuit breaker, and never fail the purchase that produced them.
type EventRepository struct {
	db      *ClickHouseDB
	breaker *circuitbreaker.CircuitBreaker
	retry   *retry.Config
	logger  *logging.Logger
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *ClickHouseDB, logger *logging.Logger) *EventRepository {
	return &EventRepository{
		db:      db,
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("clickhouse-events")),
		retry:   retry.DefaultConfig(),
		logger:  logger,
	}
}

// TokensPurchased records a purchase event.
func (r *EventRepository) TokensPurchased(ctx context.Context, saleID string, priceWei *big.Int, at uint64, units *big.Int) {
	r.insert(ctx, saleID, eventTokensPurchased, priceWei, units, new(big.Int), "", at)
}

// PaymentDelivered records a payment-delivered event.
func (r *EventRepository) PaymentDelivered(ctx context.Context, saleID string, destination common.Address, amountWei *big.Int) {
	r.insert(ctx, saleID, eventPaymentDelivered, new(big.Int), new(big.Int), amountWei, destination.Hex(), 0)
}

// insert writes one event row, retrying transient failures behind the
// breaker. Failures are logged and swallowed.
func (r *EventRepository) insert(ctx context.Context, saleID, eventType string, priceWei, units, amountWei *big.Int, destination string, occurredAt uint64) {
	query := `
		INSERT INTO sale_events (sale_id, event_type, price_wei, units, amount_wei, destination, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	err := retry.WithExponentialBackoff(ctx, r.retry, func(ctx context.Context, _ int) error {
		return r.breaker.Execute(ctx, func() error {
			return r.db.Conn().Exec(ctx, query,
				saleID,
				eventType,
				priceWei,
				units,
				amountWei,
				destination,
				occurredAt,
			)
		})
	})
	if err != nil {
		r.logger.WithError(err).WithFields(map[string]interface{}{
			"saleId":    saleID,
			"eventType": eventType,
		}).Warn("Failed to record sale event")
	}
}
