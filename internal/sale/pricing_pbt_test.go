package sale

import (
	"math/big"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestPriceCurveProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Property: for a descending auction the price always stays inside
	// [endPrice, startPrice], whatever the instant.
	properties.Property("price is bounded by the endpoints", prop.ForAll(
		func(startPrice, endPrice int64, duration, offset uint64) bool {
			if endPrice > startPrice {
				startPrice, endPrice = endPrice, startPrice
			}
			cfg := descendingConfig(startPrice, endPrice, 1000, duration)
			price := CurrentPrice(cfg, 1000+offset)
			return price.Cmp(cfg.EndPrice) >= 0 && price.Cmp(cfg.StartPrice) <= 0
		},
		gen.Int64Range(1, 1_000_000_000),
		gen.Int64Range(1, 1_000_000_000),
		gen.UInt64Range(1, 1_000_000),
		gen.UInt64Range(0, 2_000_000),
	))

	// Property: the price never increases as time advances.
	properties.Property("price decays monotonically", prop.ForAll(
		func(startPrice, endPrice int64, duration, t1, t2 uint64) bool {
			if endPrice > startPrice {
				startPrice, endPrice = endPrice, startPrice
			}
			if t1 > t2 {
				t1, t2 = t2, t1
			}
			cfg := descendingConfig(startPrice, endPrice, 1000, duration)
			earlier := CurrentPrice(cfg, 1000+t1)
			later := CurrentPrice(cfg, 1000+t2)
			return later.Cmp(earlier) <= 0
		},
		gen.Int64Range(1, 1_000_000_000),
		gen.Int64Range(1, 1_000_000_000),
		gen.UInt64Range(1, 1_000_000),
		gen.UInt64Range(0, 2_000_000),
		gen.UInt64Range(0, 2_000_000),
	))

	properties.TestingRun(t)
}

func TestPaymentConservationProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Property: the wei consumed by the purchased units never exceeds the
	// payment, and the refund makes up the exact difference.
	properties.Property("accepted plus refund reconstructs the payment", prop.ForAll(
		func(payment, price int64, decimals uint8) bool {
			cfg := descendingConfig(price, 1, 0, 1000)
			cfg.Decimals = decimals

			paymentWei := big.NewInt(payment)
			priceWei := big.NewInt(price)

			units := UnitsForPayment(cfg, paymentWei, priceWei)
			accepted := WeiForUnits(cfg, units, priceWei)
			refund := new(big.Int).Sub(paymentWei, accepted)

			sum := new(big.Int).Add(accepted, refund)
			return refund.Sign() >= 0 && sum.Cmp(paymentWei) == 0
		},
		gen.Int64Range(1, 1_000_000_000_000),
		gen.Int64Range(1, 1_000_000_000),
		gen.UInt8Range(0, 18),
	))

	properties.TestingRun(t)
}
