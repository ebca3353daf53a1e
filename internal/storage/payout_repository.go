package storage

import (
	"context"
	"time"

	apperrors "github.com/crowdsale-engine/internal/errors"
	"github.com/crowdsale-engine/internal/models"
	"github.com/google/uuid"
)

// PayoutRepository persists payments delivered to the team wallet. Each
// successful purchase produces exactly one payout row.
type PayoutRepository struct {
	db *PostgresDB
}

// NewPayoutRepository creates a new payout repository
func NewPayoutRepository(db *PostgresDB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

// Create records a payout.
func (r *PayoutRepository) Create(ctx context.Context, payout *models.Payout) error {
	if payout.ID == "" {
		payout.ID = uuid.New().String()
	}
	if payout.CreatedAt.IsZero() {
		payout.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO payouts (id, sale_id, destination, amount_wei, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		payout.ID,
		payout.SaleID,
		addressText(payout.Destination),
		payout.AmountWei.String(),
		payout.CreatedAt,
	)
	if err != nil {
		return apperrors.NewDatabaseError("create payout", err)
	}
	return nil
}

// TotalForSale sums all payouts delivered for a sale.
func (r *PayoutRepository) TotalForSale(ctx context.Context, saleID string) (string, error) {
	query := `
		SELECT COALESCE(SUM(amount_wei), 0)::text
		FROM payouts
		WHERE sale_id = $1
	`

	var total string
	if err := r.db.Pool().QueryRow(ctx, query, saleID).Scan(&total); err != nil {
		return "", apperrors.NewDatabaseError("sum payouts", err)
	}
	return total, nil
}
