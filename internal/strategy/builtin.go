package strategy

import (
	"context"
	"math"

	"mt5-ensemble-bot/internal/ta"
	"mt5-ensemble-bot/internal/types"
)

// Built-in reference strategies for the five weighted families. Each
// returns nil when it has no opinion or the history is too short.

func RegisterBuiltins(r *Registry) {
	_ = r.Register("supertrend", &SuperTrend{Period: 10, Multiplier: 3.0})
	_ = r.Register("ema", &EMACross{Fast: 9, Slow: 21})
	_ = r.Register("rsi", &RSIStrategy{Period: 14, Oversold: 30, Overbought: 70})
	_ = r.Register("bollinger", &BollingerStrategy{Window: 20, StdDev: 2.0})
	_ = r.Register("ict", &ICTSweep{Lookback: 20})
}

func series(snap *types.MarketSnapshot) (closes, highs, lows []float64) {
	closes = make([]float64, len(snap.Candles))
	highs = make([]float64, len(snap.Candles))
	lows = make([]float64, len(snap.Candles))
	for i, c := range snap.Candles {
		closes[i], highs[i], lows[i] = c.Close, c.High, c.Low
	}
	return
}

func pipSize(symbol string) float64 {
	if isJPY(symbol) {
		return 0.01
	}
	return 0.0001
}

func isJPY(symbol string) bool {
	return len(symbol) >= 6 && (symbol[3:6] == "JPY" || symbol[0:3] == "JPY")
}

// atrPips converts an ATR in price units to pips, with sane floors.
func atrPips(symbol string, atr float64) (tp, sl float64) {
	pips := atr / pipSize(symbol)
	if math.IsNaN(pips) || pips < 10 {
		pips = 10
	}
	return pips * 2, pips
}

type SuperTrend struct {
	Period     int
	Multiplier float64
}

func (s *SuperTrend) Name() string { return "supertrend" }

func (s *SuperTrend) Analyze(ctx context.Context, snap *types.MarketSnapshot) (*types.StrategyVote, error) {
	closes, highs, lows := series(snap)
	if len(closes) < s.Period+2 {
		return nil, nil
	}
	atr := ta.ATR(highs, lows, closes, s.Period)
	if math.IsNaN(atr) {
		return nil, nil
	}
	last := closes[len(closes)-1]
	mid := (ta.Highest(highs, s.Period) + ta.Lowest(lows, s.Period)) / 2
	upper := mid + s.Multiplier*atr
	lower := mid - s.Multiplier*atr

	tp, sl := atrPips(snap.Symbol, atr)
	switch {
	case last > upper:
		return &types.StrategyVote{Decision: types.ActionBuy, Confidence: 0.7, TPPips: tp, SLPips: sl}, nil
	case last < lower:
		return &types.StrategyVote{Decision: types.ActionSell, Confidence: 0.7, TPPips: tp, SLPips: sl}, nil
	}
	return nil, nil
}

type EMACross struct {
	Fast, Slow int
}

func (s *EMACross) Name() string { return "ema" }

func (s *EMACross) Analyze(ctx context.Context, snap *types.MarketSnapshot) (*types.StrategyVote, error) {
	closes, highs, lows := series(snap)
	if len(closes) < s.Slow+2 {
		return nil, nil
	}
	fastNow := ta.EMA(closes, s.Fast)
	slowNow := ta.EMA(closes, s.Slow)
	fastPrev := ta.EMA(closes[:len(closes)-1], s.Fast)
	slowPrev := ta.EMA(closes[:len(closes)-1], s.Slow)
	if math.IsNaN(fastNow) || math.IsNaN(slowNow) || math.IsNaN(fastPrev) || math.IsNaN(slowPrev) {
		return nil, nil
	}
	tp, sl := atrPips(snap.Symbol, ta.ATR(highs, lows, closes, 14))
	if fastPrev <= slowPrev && fastNow > slowNow {
		return &types.StrategyVote{Decision: types.ActionBuy, Confidence: 0.6, TPPips: tp, SLPips: sl}, nil
	}
	if fastPrev >= slowPrev && fastNow < slowNow {
		return &types.StrategyVote{Decision: types.ActionSell, Confidence: 0.6, TPPips: tp, SLPips: sl}, nil
	}
	return nil, nil
}

type RSIStrategy struct {
	Period               int
	Oversold, Overbought float64
}

func (s *RSIStrategy) Name() string { return "rsi" }

func (s *RSIStrategy) Analyze(ctx context.Context, snap *types.MarketSnapshot) (*types.StrategyVote, error) {
	closes, highs, lows := series(snap)
	rsi := ta.RSI(closes, s.Period)
	if math.IsNaN(rsi) {
		return nil, nil
	}
	tp, sl := atrPips(snap.Symbol, ta.ATR(highs, lows, closes, 14))
	if rsi < s.Oversold {
		conf := 0.5 + (s.Oversold-rsi)/s.Oversold*0.4
		return &types.StrategyVote{Decision: types.ActionBuy, Confidence: conf, TPPips: tp, SLPips: sl}, nil
	}
	if rsi > s.Overbought {
		conf := 0.5 + (rsi-s.Overbought)/(100-s.Overbought)*0.4
		return &types.StrategyVote{Decision: types.ActionSell, Confidence: conf, TPPips: tp, SLPips: sl}, nil
	}
	return nil, nil
}

type BollingerStrategy struct {
	Window int
	StdDev float64
}

func (s *BollingerStrategy) Name() string { return "bollinger" }

func (s *BollingerStrategy) Analyze(ctx context.Context, snap *types.MarketSnapshot) (*types.StrategyVote, error) {
	closes, highs, lows := series(snap)
	mid, up, low := ta.Bollinger(closes, s.Window, s.StdDev)
	if math.IsNaN(mid) {
		return nil, nil
	}
	last := closes[len(closes)-1]
	tp, sl := atrPips(snap.Symbol, ta.ATR(highs, lows, closes, 14))
	if last < low {
		return &types.StrategyVote{Decision: types.ActionBuy, Confidence: 0.55, TPPips: tp, SLPips: sl}, nil
	}
	if last > up {
		return &types.StrategyVote{Decision: types.ActionSell, Confidence: 0.55, TPPips: tp, SLPips: sl}, nil
	}
	return nil, nil
}

// ICTSweep looks for a liquidity sweep: price trades through a recent
// extreme and closes back inside the range.
type ICTSweep struct {
	Lookback int
}

func (s *ICTSweep) Name() string { return "ict" }

func (s *ICTSweep) Analyze(ctx context.Context, snap *types.MarketSnapshot) (*types.StrategyVote, error) {
	closes, highs, lows := series(snap)
	if len(closes) < s.Lookback+2 {
		return nil, nil
	}
	last := snap.Candles[len(snap.Candles)-1]
	prevLow := ta.Lowest(lows[:len(lows)-1], s.Lookback)
	prevHigh := ta.Highest(highs[:len(highs)-1], s.Lookback)
	tp, sl := atrPips(snap.Symbol, ta.ATR(highs, lows, closes, 14))

	if last.Low < prevLow && last.Close > prevLow {
		return &types.StrategyVote{Decision: types.ActionBuy, Confidence: 0.6, TPPips: tp, SLPips: sl}, nil
	}
	if last.High > prevHigh && last.Close < prevHigh {
		return &types.StrategyVote{Decision: types.ActionSell, Confidence: 0.6, TPPips: tp, SLPips: sl}, nil
	}
	return nil, nil
}
