package brokerobs

import (
	"context"
	"time"

	"mt5-ensemble-bot/internal/interfaces"
	"mt5-ensemble-bot/internal/logger"
	"mt5-ensemble-bot/internal/trace"
	"mt5-ensemble-bot/internal/types"
)

type observableBroker struct {
	broker interfaces.Broker
}

var _ interfaces.Broker = (*observableBroker)(nil)

func Wrap(b interfaces.Broker) interfaces.Broker {
	return &observableBroker{broker: b}
}

func (ob *observableBroker) AccountInfo(ctx context.Context) (*types.AccountInfo, error) {
	ctx, span := trace.StartSpan(ctx, "broker.AccountInfo")
	defer span.End()

	start := time.Now()
	info, err := ob.broker.AccountInfo(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Account info fetch failed", err,
			"duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}
	return info, nil
}

func (ob *observableBroker) SymbolInfo(ctx context.Context, symbol string) (*types.SymbolInfo, error) {
	ctx, span := trace.StartSpan(ctx, "broker.SymbolInfo")
	defer span.End()

	start := time.Now()
	si, err := ob.broker.SymbolInfo(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Symbol info fetch failed", err,
			"symbol", symbol,
			"duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}
	return si, nil
}

func (ob *observableBroker) Tick(ctx context.Context, symbol string) (*types.Tick, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Tick")
	defer span.End()

	tick, err := ob.broker.Tick(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Tick fetch failed", err, "symbol", symbol)
		return nil, err
	}
	return tick, nil
}

func (ob *observableBroker) RecentCandles(ctx context.Context, symbol, timeframe string, n int) ([]types.Candle, error) {
	ctx, span := trace.StartSpan(ctx, "broker.RecentCandles")
	defer span.End()

	start := time.Now()
	candles, err := ob.broker.RecentCandles(ctx, symbol, timeframe, n)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Candle fetch failed", err,
			"symbol", symbol,
			"timeframe", timeframe,
			"duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}
	logger.Debug(ctx, "Candles fetched", "symbol", symbol, "count", len(candles),
		"duration_ms", time.Since(start).Milliseconds())
	return candles, nil
}

func (ob *observableBroker) OrderSend(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error) {
	ctx, span := trace.StartSpan(ctx, "broker.OrderSend")
	defer span.End()

	start := time.Now()
	res, err := ob.broker.OrderSend(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Order send failed", err,
			"symbol", req.Symbol,
			"side", req.Side,
			"volume", req.Volume,
			"duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}
	logger.InfoSkip(ctx, 1, "Order send reply",
		"symbol", req.Symbol,
		"side", req.Side,
		"volume", req.Volume,
		"retcode", res.Retcode,
		"duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

func (ob *observableBroker) Close(ctx context.Context) {
	ob.broker.Close(ctx)
}
