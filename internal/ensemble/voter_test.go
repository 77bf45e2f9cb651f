package ensemble

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"mt5-ensemble-bot/internal/interfaces"
	"mt5-ensemble-bot/internal/stats"
	"mt5-ensemble-bot/internal/types"
)

type stubModel struct {
	id    string
	out   string
	err   error
	delay time.Duration
}

func (s *stubModel) ID() string { return s.id }

func (s *stubModel) Generate(ctx context.Context, prompt string) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.out, s.err
}

func testSnapshot(symbol string) *types.MarketSnapshot {
	candles := make([]types.Candle, 60)
	price := 1.1000
	for i := range candles {
		if i%2 == 0 {
			price += 0.0003
		} else {
			price -= 0.0001
		}
		candles[i] = types.Candle{
			Ts:    int64(i) * 300,
			Open:  price - 0.0001,
			High:  price + 0.0002,
			Low:   price - 0.0002,
			Close: price,
			Vol:   1000,
		}
	}
	return &types.MarketSnapshot{
		Symbol:  symbol,
		Candles: candles,
		Tick:    types.Tick{Bid: price - 0.0001, Ask: price + 0.0001, Ts: 18000},
	}
}

func testStats(t *testing.T) *stats.Store {
	t.Helper()
	return stats.New(filepath.Join(t.TempDir(), "stats.json"), time.Minute)
}

func testVoter(t *testing.T, models []interfaces.Generator, cfg VoterConfig) *Voter {
	t.Helper()
	st := testStats(t)
	runner := NewRunner(st, 2*time.Second, time.Minute)
	return NewVoter(runner, st, models, cfg)
}

func TestVoteUnanimousBuy(t *testing.T) {
	models := []interfaces.Generator{
		&stubModel{id: "m1", out: `{"decision":"BUY","confidence":0.9,"tp":100,"sl":50}`},
		&stubModel{id: "m2", out: `{"decision":"BUY","confidence":0.8,"tp":120,"sl":60}`},
	}
	v := testVoter(t, models, VoterConfig{ActiveModels: 3, TotalTimeout: 5 * time.Second})

	res := v.Vote(context.Background(), testSnapshot("EURUSD"))
	if res.Decision.Action != types.ActionBuy {
		t.Fatalf("Expected BUY, got %s", res.Decision.Action)
	}
	// both votes land in the BUY bucket, so the winner takes everything
	if res.Decision.Confidence < 0.99 {
		t.Errorf("Expected confidence near 1.0, got %f", res.Decision.Confidence)
	}
	if res.Decision.AIFailed {
		t.Error("Expected ai_failed=false on a decisive round")
	}
	if res.Decision.TPPips < 100 || res.Decision.TPPips > 120 {
		t.Errorf("Expected TP between agreeing votes, got %f", res.Decision.TPPips)
	}
	if len(res.Decision.Votes) != 2 {
		t.Errorf("Expected 2 votes recorded, got %d", len(res.Decision.Votes))
	}
}

func TestVoteSplitDecision(t *testing.T) {
	models := []interfaces.Generator{
		&stubModel{id: "m1", out: `{"decision":"BUY","confidence":0.9}`},
		&stubModel{id: "m2", out: `{"decision":"SELL","confidence":0.6}`},
	}
	v := testVoter(t, models, VoterConfig{ActiveModels: 3, TotalTimeout: 5 * time.Second})

	res := v.Vote(context.Background(), testSnapshot("EURUSD"))
	if res.Decision.Action != types.ActionBuy {
		t.Fatalf("Expected BUY to win the split, got %s", res.Decision.Action)
	}
	if res.Decision.Confidence >= 1.0 || res.Decision.Confidence <= 0.5 {
		t.Errorf("Expected confidence in (0.5,1.0) on a split, got %f", res.Decision.Confidence)
	}
}

func TestVoteNoModels(t *testing.T) {
	v := testVoter(t, nil, VoterConfig{ActiveModels: 3})

	res := v.Vote(context.Background(), testSnapshot("EURUSD"))
	if res.Decision.Action != types.ActionHold {
		t.Errorf("Expected HOLD with no models, got %s", res.Decision.Action)
	}
	if !res.Decision.AIFailed {
		t.Error("Expected ai_failed=true with no models")
	}
	if res.Decision.Reason != "no_models" {
		t.Errorf("Expected reason no_models, got %s", res.Decision.Reason)
	}
}

func TestVoteAllModelsFail(t *testing.T) {
	models := []interfaces.Generator{
		&stubModel{id: "m1", err: errors.New("connection refused")},
		&stubModel{id: "m2", err: errors.New("connection refused")},
	}
	v := testVoter(t, models, VoterConfig{ActiveModels: 3, TotalTimeout: 5 * time.Second})

	res := v.Vote(context.Background(), testSnapshot("EURUSD"))
	if res.Decision.Action != types.ActionHold {
		t.Fatalf("Expected HOLD when every model fails, got %s", res.Decision.Action)
	}
	if !res.Decision.AIFailed {
		t.Error("Expected ai_failed=true when every model fails")
	}
	if res.Decision.Reason != "all_models_failed" {
		t.Errorf("Expected reason all_models_failed, got %s", res.Decision.Reason)
	}
	if res.Decision.Confidence != 0.0 {
		t.Errorf("Expected confidence 0.0, got %f", res.Decision.Confidence)
	}
}

func TestVoteSlowModelTimesOut(t *testing.T) {
	models := []interfaces.Generator{
		&stubModel{id: "fast", out: `{"decision":"SELL","confidence":0.8,"tp":100,"sl":50}`},
		&stubModel{id: "slow", out: `{"decision":"BUY","confidence":0.9}`, delay: 3 * time.Second},
	}
	v := testVoter(t, models, VoterConfig{ActiveModels: 3, TotalTimeout: 300 * time.Millisecond})

	start := time.Now()
	res := v.Vote(context.Background(), testSnapshot("EURUSD"))
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Vote overran its total timeout: %v", elapsed)
	}
	if res.Decision.Action != types.ActionSell {
		t.Errorf("Expected SELL from the fast model, got %s", res.Decision.Action)
	}
}

func TestVoteWeakDirectionalFlagsAIFailed(t *testing.T) {
	// one hesitant vote: the winning bucket stays under the score floor
	// even after the runner credits the model for a parseable reply
	models := []interfaces.Generator{
		&stubModel{id: "m1", out: `{"decision":"BUY","confidence":0.1}`},
	}
	v := testVoter(t, models, VoterConfig{ActiveModels: 3, TotalTimeout: 5 * time.Second, MinBucketScore: 0.3})

	res := v.Vote(context.Background(), testSnapshot("EURUSD"))
	if !res.Decision.AIFailed {
		t.Errorf("Expected ai_failed=true when both directional buckets stay under %f", 0.3)
	}
}

func TestSelectBatchPrefersHeavierModels(t *testing.T) {
	st := testStats(t)
	// m2 earns a track record, m1 and m3 stay at the neutral weight
	for i := 0; i < 10; i++ {
		st.Update("m2", true)
	}
	runner := NewRunner(st, time.Second, time.Minute)
	models := []interfaces.Generator{
		&stubModel{id: "m1"}, &stubModel{id: "m2"}, &stubModel{id: "m3"},
	}
	v := NewVoter(runner, st, models, VoterConfig{ActiveModels: 2})

	batch := v.selectBatch()
	if len(batch) != 2 {
		t.Fatalf("Expected batch of 2, got %d", len(batch))
	}
	if batch[0].ID() != "m2" {
		t.Errorf("Expected m2 first by weight, got %s", batch[0].ID())
	}
}

func TestBuildPromptDeterministic(t *testing.T) {
	snap := testSnapshot("USDJPY")
	a := BuildPrompt(snap, 6000)
	b := BuildPrompt(snap, 6000)
	if a != b {
		t.Error("Expected identical prompts for the same snapshot")
	}
	if len(a) == 0 {
		t.Fatal("Expected non-empty prompt")
	}
}

func TestBuildPromptTruncatesHead(t *testing.T) {
	snap := testSnapshot("EURUSD")
	full := BuildPrompt(snap, 0)
	cut := BuildPrompt(snap, 200)
	if len(cut) != 200 {
		t.Fatalf("Expected prompt truncated to 200 chars, got %d", len(cut))
	}
	// the tail of the payload must survive truncation
	if full[len(full)-50:] != cut[len(cut)-50:] {
		t.Error("Expected truncation to keep the tail of the prompt")
	}
}
