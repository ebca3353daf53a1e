package sale

import (
	"context"
	"math/big"

	"github.com/crowdsale-engine/internal/models"
	"github.com/crowdsale-engine/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

// Read-only projections over the store. None of these mutate state, and
// calling any of them twice with the same instant and no intervening
// purchase returns identical results.

// CrowdsaleInfo summarizes the sale's financial state and lifecycle flags.
type CrowdsaleInfo struct {
	SaleID             string `json:"saleId"`
	WeiRaised          string `json:"weiRaised"`
	TeamWallet         string `json:"teamWallet"`
	GlobalMinimumUnits string `json:"globalMinimumUnits"`
	Initialized        bool   `json:"initialized"`
	Finalized          bool   `json:"finalized"`
}

// TokenInfo describes the sale asset.
type TokenInfo struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	TotalSupply string `json:"totalSupply"`
}

// CrowdsaleStatus is the time-dependent projection of the sale.
type CrowdsaleStatus struct {
	SaleID          string          `json:"saleId"`
	Stage           types.SaleStage `json:"stage"`
	StartPrice      string          `json:"startPrice"`
	EndPrice        string          `json:"endPrice"`
	CurrentPrice    string          `json:"currentPrice"`
	StartTime       uint64          `json:"startTime"`
	Duration        uint64          `json:"duration"`
	Elapsed         uint64          `json:"elapsed"`
	TimeRemaining   uint64          `json:"timeRemaining"`
	TokensSold      string          `json:"tokensSold"`
	TokensRemaining string          `json:"tokensRemaining"`
	At              uint64          `json:"at"` // the instant this projection was computed
}

// WhitelistStatus reports an address's whitelist constraints.
type WhitelistStatus struct {
	Address           string `json:"address"`
	Listed            bool   `json:"listed"`
	MinimumUnits      string `json:"minimumUnits"`
	MaxSpendRemaining string `json:"maxSpendRemaining"`
}

// StatusService serves the introspection queries.
type StatusService struct {
	store SaleStore
}

// NewStatusService creates a status service over the given store.
func NewStatusService(store SaleStore) *StatusService {
	return &StatusService{store: store}
}

// GetCrowdsaleInfo returns wei raised, team wallet, global minimum, and the
// lifecycle flags.
func (s *StatusService) GetCrowdsaleInfo(ctx context.Context, saleID string) (*CrowdsaleInfo, error) {
	cfg, err := s.store.GetConfig(ctx, saleID)
	if err != nil {
		return nil, err
	}
	state, err := s.store.GetState(ctx, saleID)
	if err != nil {
		return nil, err
	}

	return &CrowdsaleInfo{
		SaleID:             saleID,
		WeiRaised:          state.WeiRaised.String(),
		TeamWallet:         cfg.TeamWallet.Hex(),
		GlobalMinimumUnits: state.GlobalMinimumUnits.String(),
		Initialized:        state.Initialized,
		Finalized:          state.Finalized,
	}, nil
}

// GetTokenInfo returns name, symbol, decimals, and total supply.
func (s *StatusService) GetTokenInfo(ctx context.Context, saleID string) (*TokenInfo, error) {
	cfg, err := s.store.GetConfig(ctx, saleID)
	if err != nil {
		return nil, err
	}

	return &TokenInfo{
		Name:        cfg.TokenName,
		Symbol:      cfg.TokenSymbol,
		Decimals:    cfg.Decimals,
		TotalSupply: cfg.TotalSupply.String(),
	}, nil
}

// GetCrowdsaleStatus returns the price curve, elapsed/remaining time, and
// remaining capacity at the given instant.
func (s *StatusService) GetCrowdsaleStatus(ctx context.Context, saleID string, now uint64) (*CrowdsaleStatus, error) {
	cfg, err := s.store.GetConfig(ctx, saleID)
	if err != nil {
		return nil, err
	}
	state, err := s.store.GetState(ctx, saleID)
	if err != nil {
		return nil, err
	}

	remaining := new(big.Int).Sub(cfg.SellCap, state.TokensSold)

	return &CrowdsaleStatus{
		SaleID:          saleID,
		Stage:           stageOf(cfg, state, now),
		StartPrice:      cfg.StartPrice.String(),
		EndPrice:        cfg.EndPrice.String(),
		CurrentPrice:    CurrentPrice(cfg, now).String(),
		StartTime:       cfg.StartTime,
		Duration:        cfg.Duration,
		Elapsed:         Elapsed(cfg, now),
		TimeRemaining:   TimeRemaining(cfg, now),
		TokensSold:      state.TokensSold.String(),
		TokensRemaining: remaining.String(),
		At:              now,
	}, nil
}

// GetWhitelistStatus returns the whitelist constraints for one address. An
// address without an entry reports zeroed limits.
func (s *StatusService) GetWhitelistStatus(ctx context.Context, saleID string, addr common.Address) (*WhitelistStatus, error) {
	if _, err := s.store.GetConfig(ctx, saleID); err != nil {
		return nil, err
	}

	entry, err := s.store.GetWhitelistEntry(ctx, saleID, addr)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return &WhitelistStatus{
			Address:           addr.Hex(),
			Listed:            false,
			MinimumUnits:      "0",
			MaxSpendRemaining: "0",
		}, nil
	}

	return &WhitelistStatus{
		Address:           addr.Hex(),
		Listed:            true,
		MinimumUnits:      entry.MinimumUnits.String(),
		MaxSpendRemaining: entry.MaxSpendRemaining.String(),
	}, nil
}

// GetCrowdsaleWhitelist returns every whitelisted address with its limits.
func (s *StatusService) GetCrowdsaleWhitelist(ctx context.Context, saleID string) ([]*WhitelistStatus, error) {
	if _, err := s.store.GetConfig(ctx, saleID); err != nil {
		return nil, err
	}

	entries, err := s.store.ListWhitelist(ctx, saleID)
	if err != nil {
		return nil, err
	}

	statuses := make([]*WhitelistStatus, 0, len(entries))
	for addr, entry := range entries {
		statuses = append(statuses, &WhitelistStatus{
			Address:           addr.Hex(),
			Listed:            true,
			MinimumUnits:      entry.MinimumUnits.String(),
			MaxSpendRemaining: entry.MaxSpendRemaining.String(),
		})
	}
	return statuses, nil
}

// BalanceOf returns the unit balance of an address.
func (s *StatusService) BalanceOf(ctx context.Context, saleID string, addr common.Address) (*big.Int, error) {
	if _, err := s.store.GetConfig(ctx, saleID); err != nil {
		return nil, err
	}
	return s.store.GetBalance(ctx, saleID, addr)
}

// TotalSupply returns the total token supply in units.
func (s *StatusService) TotalSupply(ctx context.Context, saleID string) (*big.Int, error) {
	cfg, err := s.store.GetConfig(ctx, saleID)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(cfg.TotalSupply), nil
}

// GetTokensSold returns the cumulative units issued.
func (s *StatusService) GetTokensSold(ctx context.Context, saleID string) (*big.Int, error) {
	state, err := s.store.GetState(ctx, saleID)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(state.TokensSold), nil
}

// stageOf derives the lifecycle stage from config, state, and the clock.
func stageOf(cfg *models.SaleConfig, state *models.SaleState, now uint64) types.SaleStage {
	switch {
	case state.Finalized:
		return types.StageFinalized
	case now < cfg.StartTime:
		return types.StagePending
	case now >= cfg.EndTime() || state.TokensSold.Cmp(cfg.SellCap) >= 0:
		return types.StageEnded
	default:
		return types.StageActive
	}
}
