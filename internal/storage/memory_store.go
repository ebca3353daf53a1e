package storage

import (
	"context"
	"math/big"
	"sync"

	apperrors "github.com/crowdsale-engine/internal/errors"
	"github.com/crowdsale-engine/internal/models"
	"github.com/ethereum/go-ethereum/common"
)

// MemoryStore is an in-memory SaleStore for tests and single-node runs.
// Accessors are individually thread-safe; purchase-level atomicity comes
// from the engine's per-sale lock.
type MemoryStore struct {
	mu        sync.RWMutex
	configs   map[string]*models.SaleConfig
	states    map[string]*models.SaleState
	balances  map[string]map[common.Address]*big.Int
	whitelist map[string]map[common.Address]*models.WhitelistEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		configs:   make(map[string]*models.SaleConfig),
		states:    make(map[string]*models.SaleState),
		balances:  make(map[string]map[common.Address]*big.Int),
		whitelist: make(map[string]map[common.Address]*models.WhitelistEntry),
	}
}

// CreateSale persists a new config with its starting state.
func (m *MemoryStore) CreateSale(_ context.Context, cfg *models.SaleConfig, state *models.SaleState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.configs[cfg.ID]; exists {
		return apperrors.NewConflictError("sale already exists: " + cfg.ID)
	}

	m.configs[cfg.ID] = cfg
	m.states[cfg.ID] = state.Clone()
	m.balances[cfg.ID] = make(map[common.Address]*big.Int)
	m.whitelist[cfg.ID] = make(map[common.Address]*models.WhitelistEntry)
	return nil
}

// GetConfig returns the immutable config for a sale.
func (m *MemoryStore) GetConfig(_ context.Context, saleID string) (*models.SaleConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg, ok := m.configs[saleID]
	if !ok {
		return nil, apperrors.NewSaleNotFoundError(saleID)
	}
	return cfg, nil
}

// GetState returns a copy of the sale's mutable state.
func (m *MemoryStore) GetState(_ context.Context, saleID string) (*models.SaleState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[saleID]
	if !ok {
		return nil, apperrors.NewSaleNotFoundError(saleID)
	}
	return state.Clone(), nil
}

// SetState replaces the sale's mutable state.
func (m *MemoryStore) SetState(_ context.Context, saleID string, state *models.SaleState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.states[saleID]; !ok {
		return apperrors.NewSaleNotFoundError(saleID)
	}
	m.states[saleID] = state.Clone()
	return nil
}

// GetBalance returns the unit balance for an address, zero when absent.
func (m *MemoryStore) GetBalance(_ context.Context, saleID string, addr common.Address) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	balances, ok := m.balances[saleID]
	if !ok {
		return nil, apperrors.NewSaleNotFoundError(saleID)
	}
	if balance, ok := balances[addr]; ok {
		return new(big.Int).Set(balance), nil
	}
	return new(big.Int), nil
}

// SetBalance stores the unit balance for an address.
func (m *MemoryStore) SetBalance(_ context.Context, saleID string, addr common.Address, units *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	balances, ok := m.balances[saleID]
	if !ok {
		return apperrors.NewSaleNotFoundError(saleID)
	}
	balances[addr] = new(big.Int).Set(units)
	return nil
}

// GetWhitelistEntry returns nil when the address has no entry.
func (m *MemoryStore) GetWhitelistEntry(_ context.Context, saleID string, addr common.Address) (*models.WhitelistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries, ok := m.whitelist[saleID]
	if !ok {
		return nil, apperrors.NewSaleNotFoundError(saleID)
	}
	if entry, ok := entries[addr]; ok {
		return entry.Clone(), nil
	}
	return nil, nil
}

// SetWhitelistEntry stores per-address purchase constraints.
func (m *MemoryStore) SetWhitelistEntry(_ context.Context, saleID string, addr common.Address, entry *models.WhitelistEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, ok := m.whitelist[saleID]
	if !ok {
		return apperrors.NewSaleNotFoundError(saleID)
	}
	entries[addr] = entry.Clone()
	return nil
}

// ListWhitelist returns all whitelist entries for a sale.
func (m *MemoryStore) ListWhitelist(_ context.Context, saleID string) (map[common.Address]*models.WhitelistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries, ok := m.whitelist[saleID]
	if !ok {
		return nil, apperrors.NewSaleNotFoundError(saleID)
	}

	out := make(map[common.Address]*models.WhitelistEntry, len(entries))
	for addr, entry := range entries {
		out[addr] = entry.Clone()
	}
	return out, nil
}

// ListUnfinalized returns IDs of sales whose finalized flag is unset.
func (m *MemoryStore) ListUnfinalized(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, state := range m.states {
		if !state.Finalized {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
