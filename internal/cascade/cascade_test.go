package cascade

import (
	"context"
	"testing"

	"mt5-ensemble-bot/internal/ensemble"
	"mt5-ensemble-bot/internal/rl"
	"mt5-ensemble-bot/internal/types"
)

type stubPolicy struct {
	action string
	conf   float64
	err    error
}

func (p stubPolicy) Act(ctx context.Context, snap *types.MarketSnapshot) (string, float64, error) {
	return p.action, p.conf, p.err
}

type panicPolicy struct{}

func (panicPolicy) Act(ctx context.Context, snap *types.MarketSnapshot) (string, float64, error) {
	panic("policy blew up")
}

// neutralSnapshot alternates equal up and down moves so RSI sits at 50
// and the indicator tier stays silent.
func neutralSnapshot(symbol string) *types.MarketSnapshot {
	candles := make([]types.Candle, 60)
	price := 1.1000
	for i := range candles {
		if i%2 == 0 {
			price += 0.0002
		} else {
			price -= 0.0002
		}
		candles[i] = types.Candle{Ts: int64(i) * 300, Open: price, High: price, Low: price, Close: price, Vol: 100}
	}
	return &types.MarketSnapshot{
		Symbol:  symbol,
		Candles: candles,
		Tick:    types.Tick{Bid: price - 0.0001, Ask: price + 0.0001},
	}
}

// oversoldSnapshot rallies hard then drifts down: RSI collapses while
// the fast average is still above the slow one.
func oversoldSnapshot(symbol string) *types.MarketSnapshot {
	candles := make([]types.Candle, 0, 55)
	price := 1.0000
	for i := 0; i < 40; i++ {
		price += 0.0100
		candles = append(candles, types.Candle{Ts: int64(i) * 300, Close: price})
	}
	for i := 40; i < 55; i++ {
		price -= 0.0005
		candles = append(candles, types.Candle{Ts: int64(i) * 300, Close: price})
	}
	return &types.MarketSnapshot{
		Symbol:  symbol,
		Candles: candles,
		Tick:    types.Tick{Bid: price, Ask: price + 0.0002},
	}
}

func ensResult(action string, conf, topScore float64, aiFailed bool) *ensemble.Result {
	return &ensemble.Result{
		Decision: types.Decision{Action: action, Confidence: conf, TPPips: 100, SLPips: 50, AIFailed: aiFailed},
		Scores:   map[string]float64{action: topScore},
		TopScore: topScore,
	}
}

func TestExternalSignalWins(t *testing.T) {
	c := New(rl.NoopPolicy{}, Config{})
	ext := &types.ExternalSignal{
		Action: types.ActionBuy, Confidence: 0.5, Symbol: "EURUSD",
		Price: 1.1000, TakeProfit: 1.1100, StopLoss: 1.0950,
	}

	d := c.Decide(context.Background(), neutralSnapshot("EURUSD"), nil, nil, ext)
	if d.Action != types.ActionBuy {
		t.Fatalf("Expected BUY, got %s", d.Action)
	}
	if d.Reason != "external_signal" {
		t.Errorf("Expected reason external_signal, got %s", d.Reason)
	}
	if d.TPPips != 100 {
		t.Errorf("Expected tp_pips=100 for a 0.0100 distance, got %f", d.TPPips)
	}
	if d.SLPips != 50 {
		t.Errorf("Expected sl_pips=50 for a 0.0050 distance, got %f", d.SLPips)
	}
	if !d.AIFailed {
		t.Error("Expected ai_failed=true when the ensemble produced nothing")
	}
}

func TestExternalSignalJPYPipScale(t *testing.T) {
	c := New(rl.NoopPolicy{}, Config{})
	ext := &types.ExternalSignal{
		Action: types.ActionSell, Confidence: 0.5, Symbol: "USDJPY",
		Price: 150.00, TakeProfit: 149.50, StopLoss: 150.25,
	}

	d := c.Decide(context.Background(), neutralSnapshot("USDJPY"), nil, nil, ext)
	if d.TPPips != 500 {
		t.Errorf("Expected tp_pips=500 for a 0.50 JPY distance, got %f", d.TPPips)
	}
	if d.SLPips != 250 {
		t.Errorf("Expected sl_pips=250 for a 0.25 JPY distance, got %f", d.SLPips)
	}
}

func TestExternalSignalBelowFloorIgnored(t *testing.T) {
	c := New(stubPolicy{action: types.ActionHold}, Config{})
	ext := &types.ExternalSignal{Action: types.ActionBuy, Confidence: 0.10, Symbol: "EURUSD", Price: 1.1}

	d := c.Decide(context.Background(), neutralSnapshot("EURUSD"), nil, nil, ext)
	if d.Action != types.ActionHold {
		t.Fatalf("Expected HOLD when external confidence is under the floor, got %s", d.Action)
	}
	if d.Reason != "no_signal" {
		t.Errorf("Expected reason no_signal, got %s", d.Reason)
	}
}

func TestHybridConfidenceCap(t *testing.T) {
	c := New(rl.NoopPolicy{}, Config{})
	ext := &types.ExternalSignal{Action: types.ActionBuy, Confidence: 0.95, Symbol: "EURUSD", Price: 1.1}

	// weak ensemble round plus strong external signal: capped
	d := c.Decide(context.Background(), neutralSnapshot("EURUSD"), nil, nil, ext)
	if d.Confidence != 0.85 {
		t.Errorf("Expected confidence capped at 0.85, got %f", d.Confidence)
	}

	// decisive ensemble round: no cap applies
	ens := ensResult(types.ActionBuy, 0.9, 0.9, false)
	d = c.Decide(context.Background(), neutralSnapshot("EURUSD"), ens, nil, ext)
	if d.Confidence != 0.95 {
		t.Errorf("Expected uncapped confidence 0.95, got %f", d.Confidence)
	}
}

func TestEnsembleTier(t *testing.T) {
	c := New(rl.NoopPolicy{}, Config{})
	ens := ensResult(types.ActionSell, 0.7, 0.9, false)

	d := c.Decide(context.Background(), neutralSnapshot("EURUSD"), ens, nil, nil)
	if d.Action != types.ActionSell {
		t.Fatalf("Expected SELL from the ensemble tier, got %s", d.Action)
	}
	if d.Reason != "ensemble_vote" {
		t.Errorf("Expected reason ensemble_vote, got %s", d.Reason)
	}
}

func TestEnsembleBelowScoreSkipped(t *testing.T) {
	c := New(stubPolicy{action: types.ActionHold}, Config{})
	ens := ensResult(types.ActionBuy, 0.6, 0.25, false)

	d := c.Decide(context.Background(), neutralSnapshot("EURUSD"), ens, nil, nil)
	if d.Action != types.ActionHold {
		t.Fatalf("Expected HOLD when the winning bucket is under 0.3, got %s", d.Action)
	}
	if !d.AIFailed {
		t.Error("Expected ai_failed=true on a sub-threshold ensemble round")
	}
}

func TestStrategyMetaTier(t *testing.T) {
	c := New(rl.NoopPolicy{}, Config{})
	meta := &types.Decision{Action: types.ActionBuy, Confidence: 0.5, TPPips: 80, SLPips: 40, Reason: "strategy_meta_vote"}

	d := c.Decide(context.Background(), neutralSnapshot("EURUSD"), nil, meta, nil)
	if d.Action != types.ActionBuy {
		t.Fatalf("Expected BUY from the strategy tier, got %s", d.Action)
	}
	if d.Reason != "strategy_meta_vote" {
		t.Errorf("Expected reason strategy_meta_vote, got %s", d.Reason)
	}
	if !d.AIFailed {
		t.Error("Expected ai_failed=true when strategies decide without the ensemble")
	}
}

func TestPolicyTierSanitisesAction(t *testing.T) {
	c := New(stubPolicy{action: "LONG", conf: 0.8}, Config{})

	d := c.Decide(context.Background(), neutralSnapshot("EURUSD"), nil, nil, nil)
	if d.Action != types.ActionBuy {
		t.Fatalf("Expected LONG sanitised to BUY, got %s", d.Action)
	}
	if d.Reason != "rl_policy" {
		t.Errorf("Expected reason rl_policy, got %s", d.Reason)
	}
}

func TestPolicyTierBelowOverrideConfidence(t *testing.T) {
	c := New(stubPolicy{action: "SELL", conf: 0.5}, Config{})

	d := c.Decide(context.Background(), neutralSnapshot("EURUSD"), nil, nil, nil)
	if d.Action != types.ActionHold {
		t.Errorf("Expected HOLD when the policy is under its override floor, got %s", d.Action)
	}
}

func TestIndicatorFallback(t *testing.T) {
	c := New(rl.NoopPolicy{}, Config{})

	d := c.Decide(context.Background(), oversoldSnapshot("EURUSD"), nil, nil, nil)
	if d.Action != types.ActionBuy {
		t.Fatalf("Expected BUY from the oversold fallback, got %s", d.Action)
	}
	if d.Reason != "indicator_fallback" {
		t.Errorf("Expected reason indicator_fallback, got %s", d.Reason)
	}
	if d.Confidence > 0.65 {
		t.Errorf("Expected fallback confidence capped at 0.65, got %f", d.Confidence)
	}
}

func TestHoldWhenNothingFires(t *testing.T) {
	c := New(rl.NoopPolicy{}, Config{})

	d := c.Decide(context.Background(), neutralSnapshot("EURUSD"), nil, nil, nil)
	if d.Action != types.ActionHold {
		t.Fatalf("Expected HOLD, got %s", d.Action)
	}
	if d.Reason != "no_signal" {
		t.Errorf("Expected reason no_signal, got %s", d.Reason)
	}
	if !d.AIFailed {
		t.Error("Expected ai_failed=true on an empty round")
	}
}

func TestPanicCollapsesToHardFail(t *testing.T) {
	c := New(panicPolicy{}, Config{})

	d := c.Decide(context.Background(), neutralSnapshot("EURUSD"), nil, nil, nil)
	if d.Action != types.ActionHold {
		t.Fatalf("Expected HOLD after an internal panic, got %s", d.Action)
	}
	if d.Reason != "hard_fail" {
		t.Errorf("Expected reason hard_fail, got %s", d.Reason)
	}
}

func TestPipMultiplier(t *testing.T) {
	cases := map[string]float64{
		"EURUSD": 10000,
		"GBPUSD": 10000,
		"USDJPY": 1000,
		"JPYXXX": 1000,
		"XAUUSD": 10000,
	}
	for symbol, want := range cases {
		if got := PipMultiplier(symbol); got != want {
			t.Errorf("PipMultiplier(%s) = %f, want %f", symbol, got, want)
		}
	}
}
