package mt5

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"mt5-ensemble-bot/internal/interfaces"
	"mt5-ensemble-bot/internal/types"
)

// mock is the DRY_RUN broker: synthetic candles around a plausible FX
// base price, standard symbol constraints, simulated fills.
type mock struct {
	rng *rand.Rand
}

var _ interfaces.Broker = (*mock)(nil)

func newMock() *mock {
	return &mock{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func basePrice(symbol string) float64 {
	if strings.Contains(symbol, "JPY") {
		return 150.0
	}
	return 1.1000
}

func (m *mock) AccountInfo(ctx context.Context) (*types.AccountInfo, error) {
	return &types.AccountInfo{Balance: 10000, Equity: 10000, Leverage: 100}, nil
}

func (m *mock) SymbolInfo(ctx context.Context, symbol string) (*types.SymbolInfo, error) {
	si := &types.SymbolInfo{
		Point:      0.00001,
		Digits:     5,
		VolumeMin:  0.01,
		VolumeStep: 0.01,
		VolumeMax:  100,
		StopsLevel: 10,
		TickValue:  1.0,
		TickSize:   0.00001,
		ContractSz: 100000,
	}
	if strings.Contains(symbol, "JPY") {
		si.Point = 0.001
		si.Digits = 3
		si.TickSize = 0.001
	}
	return si, nil
}

func (m *mock) Tick(ctx context.Context, symbol string) (*types.Tick, error) {
	base := basePrice(symbol)
	spread := base * 0.0001
	return &types.Tick{
		Bid: base - spread/2,
		Ask: base + spread/2,
		Ts:  time.Now().Unix(),
	}, nil
}

func (m *mock) RecentCandles(ctx context.Context, symbol, timeframe string, n int) ([]types.Candle, error) {
	base := basePrice(symbol)
	step := base * 0.0005
	now := time.Now().Unix()

	cs := make([]types.Candle, 0, n)
	price := base
	for i := n; i > 0; i-- {
		price += (m.rng.Float64() - 0.5) * step
		h := price + m.rng.Float64()*step
		l := price - m.rng.Float64()*step
		cs = append(cs, types.Candle{
			Ts:    now - int64(i*60),
			Open:  price - step/4,
			High:  h,
			Low:   l,
			Close: price,
			Vol:   m.rng.Float64() * 1000,
		})
	}
	return cs, nil
}

func (m *mock) OrderSend(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error) {
	return &types.OrderResult{
		Retcode: types.RetcodeDone,
		DealID:  fmt.Sprintf("SIM-%d", time.Now().UnixNano()),
		Comment: "dry-run",
		Price:   req.Price,
	}, nil
}

func (m *mock) Close(ctx context.Context) {}
