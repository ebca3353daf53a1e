// Package models provides data models for the crowdsale engine.
package models

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SaleConfig holds the immutable parameters of a sale. It is written once
// when the sale is initialized and never mutated afterwards.
type SaleConfig struct {
	ID          string         `json:"id" db:"id"`
	TokenName   string         `json:"tokenName" db:"token_name"`
	TokenSymbol string         `json:"tokenSymbol" db:"token_symbol"`
	Decimals    uint8          `json:"decimals" db:"decimals"`
	TeamWallet  common.Address `json:"teamWallet" db:"team_wallet"`
	TotalSupply *big.Int       `json:"totalSupply" db:"total_supply"` // units, including reserved amounts not for sale
	SellCap     *big.Int       `json:"sellCap" db:"sell_cap"`         // maximum units sellable
	StartPrice  *big.Int       `json:"startPrice" db:"start_price"`   // wei per whole token at start
	EndPrice    *big.Int       `json:"endPrice" db:"end_price"`       // wei per whole token at end
	StartTime   uint64         `json:"startTime" db:"start_time"`     // unix seconds
	Duration    uint64         `json:"duration" db:"duration"`        // seconds
	Whitelisted bool           `json:"whitelisted" db:"whitelisted"`
	CreatedAt   time.Time      `json:"createdAt" db:"created_at"`
}

// EndTime returns the instant the sale window closes.
func (c *SaleConfig) EndTime() uint64 {
	return c.StartTime + c.Duration
}

// UnitScale returns 10^decimals, the number of units per whole token.
func (c *SaleConfig) UnitScale() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(c.Decimals)), nil)
}

// Validate checks the configuration invariants that must hold before a sale
// may accept purchases. A config that fails here is a fatal setup error, not
// a per-purchase rejection: the purchase engine assumes price > 0 for any
// instant inside the sale window.
func (c *SaleConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("sale id is required")
	}
	if c.TeamWallet == (common.Address{}) {
		return fmt.Errorf("team wallet is required")
	}
	if c.StartPrice == nil || c.StartPrice.Sign() <= 0 {
		return fmt.Errorf("start price must be positive")
	}
	if c.EndPrice == nil || c.EndPrice.Sign() <= 0 {
		return fmt.Errorf("end price must be positive")
	}
	if c.Duration == 0 {
		return fmt.Errorf("duration must be positive")
	}
	if c.SellCap == nil || c.SellCap.Sign() <= 0 {
		return fmt.Errorf("sell cap must be positive")
	}
	if c.TotalSupply == nil || c.TotalSupply.Cmp(c.SellCap) < 0 {
		return fmt.Errorf("total supply must cover the sell cap")
	}
	return nil
}

// SaleState holds the mutable accumulators of a sale. It begins zeroed and
// is written only by the purchase engine and the administrative setters.
type SaleState struct {
	WeiRaised          *big.Int `json:"weiRaised" db:"wei_raised"`
	TokensSold         *big.Int `json:"tokensSold" db:"tokens_sold"`
	UniqueBuyers       uint64   `json:"uniqueBuyers" db:"unique_buyers"`
	GlobalMinimumUnits *big.Int `json:"globalMinimumUnits" db:"global_minimum_units"` // open-sale first-purchase floor
	Initialized        bool     `json:"initialized" db:"initialized"`
	Finalized          bool     `json:"finalized" db:"finalized"`
}

// NewSaleState returns a zeroed state ready for initialization.
func NewSaleState() *SaleState {
	return &SaleState{
		WeiRaised:          new(big.Int),
		TokensSold:         new(big.Int),
		GlobalMinimumUnits: new(big.Int),
	}
}

// Clone returns a deep copy, so the engine can mutate a working copy and
// commit it atomically.
func (s *SaleState) Clone() *SaleState {
	cp := *s
	cp.WeiRaised = new(big.Int).Set(s.WeiRaised)
	cp.TokensSold = new(big.Int).Set(s.TokensSold)
	cp.GlobalMinimumUnits = new(big.Int).Set(s.GlobalMinimumUnits)
	return &cp
}

// WhitelistEntry holds per-address purchase constraints for whitelisted
// sales. MinimumUnits is a one-time gate on the address's first contribution
// and is zeroed after the first successful purchase. MaxSpendRemaining is
// denominated in units and shrinks with every purchase; once it reaches zero
// the address cannot buy again.
type WhitelistEntry struct {
	MinimumUnits      *big.Int `json:"minimumUnits" db:"minimum_units"`
	MaxSpendRemaining *big.Int `json:"maxSpendRemaining" db:"max_spend_remaining"`
}

// Clone returns a deep copy of the entry.
func (e *WhitelistEntry) Clone() *WhitelistEntry {
	return &WhitelistEntry{
		MinimumUnits:      new(big.Int).Set(e.MinimumUnits),
		MaxSpendRemaining: new(big.Int).Set(e.MaxSpendRemaining),
	}
}

// PurchaseReceipt is the structured outcome of a successful purchase.
type PurchaseReceipt struct {
	SaleID      string         `json:"saleId"`
	Buyer       common.Address `json:"buyer"`
	Units       *big.Int       `json:"units"`
	AcceptedWei *big.Int       `json:"acceptedWei"`
	RefundWei   *big.Int       `json:"refundWei"`
	PriceWei    *big.Int       `json:"priceWei"` // price per whole token at purchase time
	Timestamp   uint64         `json:"timestamp"`
}

// Payout records a payment delivered to the team wallet.
type Payout struct {
	ID          string         `json:"id" db:"id"`
	SaleID      string         `json:"saleId" db:"sale_id"`
	Destination common.Address `json:"destination" db:"destination"`
	AmountWei   *big.Int       `json:"amountWei" db:"amount_wei"`
	CreatedAt   time.Time      `json:"createdAt" db:"created_at"`
}
