package engine

import (
	"testing"

	"mt5-ensemble-bot/internal/types"
)

func TestSignalBufferTakeNewest(t *testing.T) {
	b := NewSignalBuffer(8)
	b.Push(types.ExternalSignal{Symbol: "EURUSD", Action: types.ActionBuy, Confidence: 0.3})
	b.Push(types.ExternalSignal{Symbol: "USDJPY", Action: types.ActionSell, Confidence: 0.5})
	b.Push(types.ExternalSignal{Symbol: "EURUSD", Action: types.ActionSell, Confidence: 0.7})

	sig := b.Take("EURUSD")
	if sig == nil {
		t.Fatal("Expected a signal for EURUSD")
	}
	// the newest EURUSD signal wins; the stale one is discarded with it
	if sig.Action != types.ActionSell || sig.Confidence != 0.7 {
		t.Errorf("Expected the newest signal, got %+v", sig)
	}
	if again := b.Take("EURUSD"); again != nil {
		t.Errorf("Expected no further EURUSD signals, got %+v", again)
	}

	// other symbols are untouched
	if b.Len() != 1 {
		t.Errorf("Expected 1 remaining signal, got %d", b.Len())
	}
	if sig := b.Take("USDJPY"); sig == nil || sig.Action != types.ActionSell {
		t.Errorf("Expected USDJPY signal preserved, got %+v", sig)
	}
}

func TestSignalBufferEmptyTake(t *testing.T) {
	b := NewSignalBuffer(4)
	if sig := b.Take("EURUSD"); sig != nil {
		t.Errorf("Expected nil from an empty buffer, got %+v", sig)
	}
}

func TestSignalBufferDropsOldestWhenFull(t *testing.T) {
	b := NewSignalBuffer(2)
	b.Push(types.ExternalSignal{Symbol: "A", Confidence: 0.1})
	b.Push(types.ExternalSignal{Symbol: "B", Confidence: 0.2})
	b.Push(types.ExternalSignal{Symbol: "C", Confidence: 0.3})

	if b.Len() != 2 {
		t.Fatalf("Expected buffer capped at 2, got %d", b.Len())
	}
	if sig := b.Take("A"); sig != nil {
		t.Errorf("Expected oldest signal dropped, got %+v", sig)
	}
	if sig := b.Take("C"); sig == nil {
		t.Error("Expected newest signal retained")
	}
}
