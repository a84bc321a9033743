package interfaces

import (
	"context"

	"github.com/shopspring/decimal"
)

// AssetGateway observes the pooled asset and moves it between accounts.
// Transfer failures are not distinguished by cause. The reference is the
// ledger operation ID, so a transfer can be matched to its intent on the
// gateway side.
type AssetGateway interface {
	BalanceOf(ctx context.Context, account string) (decimal.Decimal, error)
	Transfer(ctx context.Context, reference, from, to string, amount decimal.Decimal) error
}
