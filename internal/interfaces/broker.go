package interfaces

import (
	"context"

	"mt5-ensemble-bot/internal/types"
)

// Broker is the MetaTrader terminal binding. Every call may block and
// may fail; callers attach their own deadlines.
type Broker interface {
	AccountInfo(ctx context.Context) (*types.AccountInfo, error)
	SymbolInfo(ctx context.Context, symbol string) (*types.SymbolInfo, error)
	Tick(ctx context.Context, symbol string) (*types.Tick, error)
	RecentCandles(ctx context.Context, symbol string, timeframe string, n int) ([]types.Candle, error)
	OrderSend(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error)
	Close(ctx context.Context)
}
