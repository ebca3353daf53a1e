package sale

import (
	"context"
	"math/big"
	"time"

	"github.com/crowdsale-engine/internal/models"
	"github.com/ethereum/go-ethereum/common"
)

// Collaborator interfaces for dependency injection. The engine owns these
// contracts; internal/storage and internal/adapter provide implementations.

// SaleStore provides typed access to all sale state, keyed by sale ID. The
// store serializes nothing itself; the engine holds a per-sale lock around
// each read-modify-write cycle.
type SaleStore interface {
	// CreateSale persists a new config with its zeroed state. It fails on
	// duplicate IDs; configs are immutable after creation.
	CreateSale(ctx context.Context, cfg *models.SaleConfig, state *models.SaleState) error
	GetConfig(ctx context.Context, saleID string) (*models.SaleConfig, error)
	GetState(ctx context.Context, saleID string) (*models.SaleState, error)
	SetState(ctx context.Context, saleID string, state *models.SaleState) error
	// GetBalance returns the unit balance for an address, zero when the
	// address has never purchased.
	GetBalance(ctx context.Context, saleID string, addr common.Address) (*big.Int, error)
	SetBalance(ctx context.Context, saleID string, addr common.Address, units *big.Int) error
	// GetWhitelistEntry returns nil (and no error) when the address has no
	// whitelist entry.
	GetWhitelistEntry(ctx context.Context, saleID string, addr common.Address) (*models.WhitelistEntry, error)
	SetWhitelistEntry(ctx context.Context, saleID string, addr common.Address, entry *models.WhitelistEntry) error
	ListWhitelist(ctx context.Context, saleID string) (map[common.Address]*models.WhitelistEntry, error)
	// ListUnfinalized returns the IDs of sales whose finalized flag is not
	// set; the finalizer worker scans these.
	ListUnfinalized(ctx context.Context) ([]string, error)
}

// PaymentSink delivers accepted payments to the team wallet. A failure
// aborts the purchase before any state is committed.
type PaymentSink interface {
	Pay(ctx context.Context, saleID string, destination common.Address, amountWei *big.Int) error
}

// Notifier receives the informative events the engine emits after a
// successful purchase. Implementations are best-effort: they must not fail
// the purchase.
type Notifier interface {
	TokensPurchased(ctx context.Context, saleID string, priceWei *big.Int, at uint64, units *big.Int)
	PaymentDelivered(ctx context.Context, saleID string, destination common.Address, amountWei *big.Int)
}

// Clock supplies the current unix timestamp. Production code uses
// SystemClock; tests inject fixed instants.
type Clock interface {
	Now() uint64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current unix time in seconds.
func (SystemClock) Now() uint64 {
	return uint64(time.Now().Unix())
}
