// Package sale implements the pricing and purchase core of a Dutch-auction
// token crowdsale: a time-dependent linear price, an ordered sequence of
// purchase validations, and partial-refund accounting. All arithmetic is
// big.Int with truncating division; the clock is always injected, never read.
package sale

import (
	"math/big"

	"github.com/crowdsale-engine/internal/models"
)

// CurrentPrice returns the per-token price in wei at the given instant.
// Before the start time it reports the start price (purchases are rejected
// earlier in the validation chain, so this value only serves introspection).
// At or past startTime+duration it reports the end price. Inside the window
// the price interpolates linearly:
//
//	price = startPrice + (endPrice - startPrice) * elapsed / duration
//
// with truncating division, which for a descending auction reduces to
// startPrice - floor((startPrice-endPrice)*elapsed/duration). The function
// is pure: repeated calls with the same inputs return equal values.
func CurrentPrice(cfg *models.SaleConfig, now uint64) *big.Int {
	if now < cfg.StartTime {
		return new(big.Int).Set(cfg.StartPrice)
	}
	if now >= cfg.EndTime() {
		return new(big.Int).Set(cfg.EndPrice)
	}

	elapsed := now - cfg.StartTime
	step := new(big.Int).Sub(cfg.EndPrice, cfg.StartPrice)
	step.Mul(step, new(big.Int).SetUint64(elapsed))
	step.Quo(step, new(big.Int).SetUint64(cfg.Duration))
	return step.Add(step, cfg.StartPrice)
}

// Elapsed returns seconds since the sale start, clamped to [0, duration].
func Elapsed(cfg *models.SaleConfig, now uint64) uint64 {
	if now < cfg.StartTime {
		return 0
	}
	elapsed := now - cfg.StartTime
	if elapsed > cfg.Duration {
		return cfg.Duration
	}
	return elapsed
}

// TimeRemaining returns seconds until the sale window closes, or 0 once it
// has.
func TimeRemaining(cfg *models.SaleConfig, now uint64) uint64 {
	end := cfg.EndTime()
	if now >= end {
		return 0
	}
	return end - now
}

// UnitsForPayment returns how many indivisible units the payment buys at the
// given per-token price: paymentWei * 10^decimals / priceWei, truncated.
func UnitsForPayment(cfg *models.SaleConfig, paymentWei, priceWei *big.Int) *big.Int {
	units := new(big.Int).Mul(paymentWei, cfg.UnitScale())
	return units.Quo(units, priceWei)
}

// WeiForUnits returns the payment consumed by the given number of units at
// the given per-token price: units * priceWei / 10^decimals, truncated. It
// inverts UnitsForPayment, so accepted plus refund always reconstructs the
// original payment.
func WeiForUnits(cfg *models.SaleConfig, units, priceWei *big.Int) *big.Int {
	wei := new(big.Int).Mul(units, priceWei)
	return wei.Quo(wei, cfg.UnitScale())
}
