package storage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	apperrors "github.com/crowdsale-engine/internal/errors"
	"github.com/crowdsale-engine/internal/models"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
)

// SaleRepository is the Postgres-backed SaleStore. Monetary and unit values
// are stored as NUMERIC and scanned through their decimal string form;
// addresses are stored as lowercase hex text.
type SaleRepository struct {
	db *PostgresDB
}

// NewSaleRepository creates a new sale repository
func NewSaleRepository(db *PostgresDB) *SaleRepository {
	return &SaleRepository{db: db}
}

// CreateSale persists a new sale config together with its starting state.
func (r *SaleRepository) CreateSale(ctx context.Context, cfg *models.SaleConfig, state *models.SaleState) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return apperrors.NewDatabaseError("create sale", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // no-op after commit
	}()

	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now()
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO sales (id, token_name, token_symbol, decimals, team_wallet,
			total_supply, sell_cap, start_price, end_price, start_time, duration,
			whitelisted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		cfg.ID,
		cfg.TokenName,
		cfg.TokenSymbol,
		int16(cfg.Decimals),
		addressText(cfg.TeamWallet),
		cfg.TotalSupply.String(),
		cfg.SellCap.String(),
		cfg.StartPrice.String(),
		cfg.EndPrice.String(),
		int64(cfg.StartTime),
		int64(cfg.Duration),
		cfg.Whitelisted,
		cfg.CreatedAt,
	)
	if err != nil {
		return apperrors.NewDatabaseError("create sale", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO sale_states (sale_id, wei_raised, tokens_sold, unique_buyers,
			global_minimum_units, initialized, finalized, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		cfg.ID,
		state.WeiRaised.String(),
		state.TokensSold.String(),
		int64(state.UniqueBuyers),
		state.GlobalMinimumUnits.String(),
		state.Initialized,
		state.Finalized,
		time.Now(),
	)
	if err != nil {
		return apperrors.NewDatabaseError("create sale state", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.NewDatabaseError("create sale", err)
	}
	return nil
}

// GetConfig retrieves the immutable sale config.
func (r *SaleRepository) GetConfig(ctx context.Context, saleID string) (*models.SaleConfig, error) {
	query := `
		SELECT id, token_name, token_symbol, decimals, team_wallet, total_supply,
			sell_cap, start_price, end_price, start_time, duration, whitelisted, created_at
		FROM sales
		WHERE id = $1
	`

	var cfg models.SaleConfig
	var decimals int16
	var wallet string
	var totalSupply, sellCap, startPrice, endPrice string
	var startTime, duration int64

	err := r.db.Pool().QueryRow(ctx, query, saleID).Scan(
		&cfg.ID,
		&cfg.TokenName,
		&cfg.TokenSymbol,
		&decimals,
		&wallet,
		&totalSupply,
		&sellCap,
		&startPrice,
		&endPrice,
		&startTime,
		&duration,
		&cfg.Whitelisted,
		&cfg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewSaleNotFoundError(saleID)
		}
		return nil, apperrors.NewDatabaseError("get sale config", err)
	}

	cfg.Decimals = uint8(decimals)
	cfg.TeamWallet = common.HexToAddress(wallet)
	cfg.StartTime = uint64(startTime)
	cfg.Duration = uint64(duration)
	if cfg.TotalSupply, err = parseNumeric(totalSupply); err != nil {
		return nil, apperrors.NewDatabaseError("get sale config", err)
	}
	if cfg.SellCap, err = parseNumeric(sellCap); err != nil {
		return nil, apperrors.NewDatabaseError("get sale config", err)
	}
	if cfg.StartPrice, err = parseNumeric(startPrice); err != nil {
		return nil, apperrors.NewDatabaseError("get sale config", err)
	}
	if cfg.EndPrice, err = parseNumeric(endPrice); err != nil {
		return nil, apperrors.NewDatabaseError("get sale config", err)
	}

	return &cfg, nil
}

// GetState retrieves the mutable sale state.
func (r *SaleRepository) GetState(ctx context.Context, saleID string) (*models.SaleState, error) {
	query := `
		SELECT wei_raised, tokens_sold, unique_buyers, global_minimum_units,
			initialized, finalized
		FROM sale_states
		WHERE sale_id = $1
	`

	var (
		state                            models.SaleState
		weiRaised, tokensSold, globalMin string
		uniqueBuyers                     int64
	)

	err := r.db.Pool().QueryRow(ctx, query, saleID).Scan(
		&weiRaised,
		&tokensSold,
		&uniqueBuyers,
		&globalMin,
		&state.Initialized,
		&state.Finalized,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewSaleNotFoundError(saleID)
		}
		return nil, apperrors.NewDatabaseError("get sale state", err)
	}

	state.UniqueBuyers = uint64(uniqueBuyers)
	if state.WeiRaised, err = parseNumeric(weiRaised); err != nil {
		return nil, apperrors.NewDatabaseError("get sale state", err)
	}
	if state.TokensSold, err = parseNumeric(tokensSold); err != nil {
		return nil, apperrors.NewDatabaseError("get sale state", err)
	}
	if state.GlobalMinimumUnits, err = parseNumeric(globalMin); err != nil {
		return nil, apperrors.NewDatabaseError("get sale state", err)
	}

	return &state, nil
}

// SetState replaces the mutable sale state.
func (r *SaleRepository) SetState(ctx context.Context, saleID string, state *models.SaleState) error {
	query := `
		UPDATE sale_states
		SET wei_raised = $2, tokens_sold = $3, unique_buyers = $4,
			global_minimum_units = $5, initialized = $6, finalized = $7, updated_at = $8
		WHERE sale_id = $1
	`

	tag, err := r.db.Pool().Exec(ctx, query,
		saleID,
		state.WeiRaised.String(),
		state.TokensSold.String(),
		int64(state.UniqueBuyers),
		state.GlobalMinimumUnits.String(),
		state.Initialized,
		state.Finalized,
		time.Now(),
	)
	if err != nil {
		return apperrors.NewDatabaseError("set sale state", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewSaleNotFoundError(saleID)
	}
	return nil
}

// GetBalance returns the unit balance for an address, zero when absent.
func (r *SaleRepository) GetBalance(ctx context.Context, saleID string, addr common.Address) (*big.Int, error) {
	query := `
		SELECT units
		FROM sale_balances
		WHERE sale_id = $1 AND address = $2
	`

	var units string
	err := r.db.Pool().QueryRow(ctx, query, saleID, addressText(addr)).Scan(&units)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(big.Int), nil
		}
		return nil, apperrors.NewDatabaseError("get balance", err)
	}

	balance, err := parseNumeric(units)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get balance", err)
	}
	return balance, nil
}

// SetBalance upserts the unit balance for an address.
func (r *SaleRepository) SetBalance(ctx context.Context, saleID string, addr common.Address, units *big.Int) error {
	query := `
		INSERT INTO sale_balances (sale_id, address, units, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (sale_id, address)
		DO UPDATE SET units = EXCLUDED.units, updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Pool().Exec(ctx, query, saleID, addressText(addr), units.String(), time.Now())
	if err != nil {
		return apperrors.NewDatabaseError("set balance", err)
	}
	return nil
}

// GetWhitelistEntry returns nil when the address has no entry.
func (r *SaleRepository) GetWhitelistEntry(ctx context.Context, saleID string, addr common.Address) (*models.WhitelistEntry, error) {
	query := `
		SELECT minimum_units, max_spend_remaining
		FROM whitelist_entries
		WHERE sale_id = $1 AND address = $2
	`

	var minUnits, maxSpend string
	err := r.db.Pool().QueryRow(ctx, query, saleID, addressText(addr)).Scan(&minUnits, &maxSpend)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewDatabaseError("get whitelist entry", err)
	}

	return scanWhitelistEntry(minUnits, maxSpend)
}

// SetWhitelistEntry upserts per-address purchase constraints.
func (r *SaleRepository) SetWhitelistEntry(ctx context.Context, saleID string, addr common.Address, entry *models.WhitelistEntry) error {
	query := `
		INSERT INTO whitelist_entries (sale_id, address, minimum_units, max_spend_remaining, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (sale_id, address)
		DO UPDATE SET minimum_units = EXCLUDED.minimum_units,
			max_spend_remaining = EXCLUDED.max_spend_remaining,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Pool().Exec(ctx, query,
		saleID,
		addressText(addr),
		entry.MinimumUnits.String(),
		entry.MaxSpendRemaining.String(),
		time.Now(),
	)
	if err != nil {
		return apperrors.NewDatabaseError("set whitelist entry", err)
	}
	return nil
}

// ListWhitelist returns all whitelist entries for a sale.
func (r *SaleRepository) ListWhitelist(ctx context.Context, saleID string) (map[common.Address]*models.WhitelistEntry, error) {
	query := `
		SELECT address, minimum_units, max_spend_remaining
		FROM whitelist_entries
		WHERE sale_id = $1
	`

	rows, err := r.db.Pool().Query(ctx, query, saleID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list whitelist", err)
	}
	defer rows.Close()

	entries := make(map[common.Address]*models.WhitelistEntry)
	for rows.Next() {
		var address, minUnits, maxSpend string
		if err := rows.Scan(&address, &minUnits, &maxSpend); err != nil {
			return nil, apperrors.NewDatabaseError("list whitelist", err)
		}
		entry, err := scanWhitelistEntry(minUnits, maxSpend)
		if err != nil {
			return nil, err
		}
		entries[common.HexToAddress(address)] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list whitelist", err)
	}

	return entries, nil
}

// ListUnfinalized returns IDs of sales whose finalized flag is unset.
func (r *SaleRepository) ListUnfinalized(ctx context.Context) ([]string, error) {
	query := `
		SELECT sale_id
		FROM sale_states
		WHERE finalized = false
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list unfinalized sales", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.NewDatabaseError("list unfinalized sales", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list unfinalized sales", err)
	}

	return ids, nil
}

// addressText normalizes an address for storage.
func addressText(addr common.Address) string {
	return addr.Hex()
}

// parseNumeric converts a NUMERIC column's string form into a big.Int.
func parseNumeric(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", s)
	}
	return v, nil
}

func scanWhitelistEntry(minUnits, maxSpend string) (*models.WhitelistEntry, error) {
	minimum, err := parseNumeric(minUnits)
	if err != nil {
		return nil, apperrors.NewDatabaseError("scan whitelist entry", err)
	}
	remaining, err := parseNumeric(maxSpend)
	if err != nil {
		return nil, apperrors.NewDatabaseError("scan whitelist entry", err)
	}
	return &models.WhitelistEntry{MinimumUnits: minimum, MaxSpendRemaining: remaining}, nil
}
