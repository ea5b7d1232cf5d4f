package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"hlmaker/pkg/types"
)

// ModifyRequest describes one resting order to move in-place, the batch
// shape the venue's batch-modify endpoint expects (batch size >= 20).
type ModifyRequest struct {
	ExchangeID string
	NewPrice   decimal.Decimal
	NewSize    decimal.Decimal
}

// ModifyResult is the per-order outcome of a ModifyOrders batch call.
type ModifyResult struct {
	ExchangeID string
	OK         bool
	Err        error
}

// Adapter is the ExchangeAdapter contract the OrderManager and
// StrategyLoop consume (the venue-facing operations a quoting strategy
// needs). All operations
// are asynchronous and cancellable via ctx; failures are reported as
// *types.AdapterError so callers can switch on Kind instead of string
// matching. Market-data reads are lock-free snapshots; order submission
// is serialised per asset by the caller, not by the Adapter itself.
type Adapter interface {
	MidPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	OrderBook(ctx context.Context, symbol string, depth int) (types.OrderBookSnapshot, error)
	RecentTrades(ctx context.Context, symbol string, since time.Time) ([]types.Trade, error)
	PlaceOrder(ctx context.Context, intent types.OrderIntent, postOnly bool) (exchangeID string, err error)
	ModifyOrders(ctx context.Context, mods []ModifyRequest) ([]ModifyResult, error)
	CancelOrders(ctx context.Context, symbol string, exchangeIDs []string) error
	CancelAll(ctx context.Context, symbol string) error
	OpenOrders(ctx context.Context, symbol string) ([]types.LiveOrder, error)
	Position(ctx context.Context, symbol string) (decimal.Decimal, error)
	ArmDeadMansSwitch(ctx context.Context, timeout time.Duration) error
	Metadata(ctx context.Context) (map[string]types.Precision, error)
}
