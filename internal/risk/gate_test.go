package risk

import (
	"errors"
	"testing"
	"time"

	"mt5-ensemble-bot/internal/types"
)

func buyIntent(symbol string, conf float64) *types.OrderIntent {
	return &types.OrderIntent{
		Decision: types.Decision{Action: types.ActionBuy, Confidence: conf},
		Symbol:   symbol,
		Volume:   0.01,
	}
}

func TestGateBlocksHold(t *testing.T) {
	g := NewGate(GateConfig{MinTradeInterval: time.Minute})

	intent := buyIntent("EURUSD", 0.9)
	intent.Action = types.ActionHold
	err := g.Check(intent)

	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("Expected a rejection, got %v", err)
	}
	if rej.Code != "hold_blocked" {
		t.Errorf("Expected code hold_blocked, got %s", rej.Code)
	}
}

func TestGateCooldown(t *testing.T) {
	g := NewGate(GateConfig{MinTradeInterval: 5 * time.Minute, MinConfidence: 0.25})

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	g.now = func() time.Time { return now }

	if err := g.Check(buyIntent("EURUSD", 0.8)); err != nil {
		t.Fatalf("Expected first intent to pass, got %v", err)
	}
	g.MarkSent("EURUSD", types.ActionBuy)

	// two minutes later, still inside the window
	now = base.Add(2 * time.Minute)
	err := g.Check(buyIntent("EURUSD", 0.8))
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("Expected a rejection inside the window, got %v", err)
	}
	if rej.Code != "min_interval_not_reached" {
		t.Errorf("Expected code min_interval_not_reached, got %s", rej.Code)
	}

	// another symbol is unaffected
	if err := g.Check(buyIntent("USDJPY", 0.8)); err != nil {
		t.Errorf("Expected other symbol to pass, got %v", err)
	}

	// after the window the symbol unlocks
	now = base.Add(6 * time.Minute)
	if err := g.Check(buyIntent("EURUSD", 0.8)); err != nil {
		t.Errorf("Expected intent to pass after the window, got %v", err)
	}
}

func TestGateConfidenceFloor(t *testing.T) {
	g := NewGate(GateConfig{MinTradeInterval: time.Minute, MinConfidence: 0.25})

	err := g.Check(buyIntent("EURUSD", 0.1))
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("Expected a rejection, got %v", err)
	}
	if rej.Code != "low_confidence" {
		t.Errorf("Expected code low_confidence, got %s", rej.Code)
	}

	// Force bypasses the confidence floor but nothing else
	forced := buyIntent("EURUSD", 0.1)
	forced.Force = true
	if err := g.Check(forced); err != nil {
		t.Errorf("Expected forced intent to pass, got %v", err)
	}
}

func TestGateCooldownRemaining(t *testing.T) {
	g := NewGate(GateConfig{MinTradeInterval: 5 * time.Minute})

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	g.now = func() time.Time { return now }

	if rem := g.CooldownRemaining("EURUSD"); rem != 0 {
		t.Errorf("Expected zero cooldown before any send, got %v", rem)
	}

	g.MarkSent("EURUSD", types.ActionSell)
	now = base.Add(2 * time.Minute)
	if rem := g.CooldownRemaining("EURUSD"); rem != 3*time.Minute {
		t.Errorf("Expected 3m remaining, got %v", rem)
	}

	now = base.Add(10 * time.Minute)
	if rem := g.CooldownRemaining("EURUSD"); rem != 0 {
		t.Errorf("Expected expired cooldown, got %v", rem)
	}
}
