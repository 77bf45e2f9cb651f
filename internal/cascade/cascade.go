package cascade

import (
	"context"
	"fmt"
	"math"

	"mt5-ensemble-bot/internal/ensemble"
	"mt5-ensemble-bot/internal/interfaces"
	"mt5-ensemble-bot/internal/logger"
	"mt5-ensemble-bot/internal/rl"
	"mt5-ensemble-bot/internal/ta"
	"mt5-ensemble-bot/internal/types"
)

type Config struct {
	ExternalMinConfidence float64 // tier 1 floor
	MinBucketScore        float64 // tier 2 threshold
	HybridExternalFloor   float64 // external confidence enabling the hybrid override
	HybridConfidenceCap   float64
	RLOverrideConfidence  float64
	RSIPeriod             int
	MAFast, MASlow        int
}

func (c *Config) defaults() {
	if c.ExternalMinConfidence == 0 {
		c.ExternalMinConfidence = 0.15
	}
	if c.MinBucketScore == 0 {
		c.MinBucketScore = 0.3
	}
	if c.HybridExternalFloor == 0 {
		c.HybridExternalFloor = 0.40
	}
	if c.HybridConfidenceCap == 0 {
		c.HybridConfidenceCap = 0.85
	}
	if c.RLOverrideConfidence == 0 {
		c.RLOverrideConfidence = 0.60
	}
	if c.RSIPeriod == 0 {
		c.RSIPeriod = 14
	}
	if c.MAFast == 0 {
		c.MAFast = 10
	}
	if c.MASlow == 0 {
		c.MASlow = 30
	}
}

// Cascade selects the final pre-risk decision from the available signal
// sources, trying tiers in order and stopping at the first valid
// non-HOLD answer. It never returns an error: any internal failure
// collapses to a HOLD with reason "hard_fail".
type Cascade struct {
	policy interfaces.Policy
	cfg    Config
}

func New(policy interfaces.Policy, cfg Config) *Cascade {
	cfg.defaults()
	return &Cascade{policy: policy, cfg: cfg}
}

// PipMultiplier converts a price distance to pips: JPY pairs quote two
// fewer decimals than the rest.
func PipMultiplier(symbol string) float64 {
	if len(symbol) >= 6 && (symbol[3:6] == "JPY" || symbol[0:3] == "JPY") {
		return 1000
	}
	return 10000
}

func (c *Cascade) Decide(
	ctx context.Context,
	snap *types.MarketSnapshot,
	ens *ensemble.Result,
	meta *types.Decision,
	ext *types.ExternalSignal,
) (out *types.Decision) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "Cascade panicked, returning HOLD", "symbol", snap.Symbol, "panic", fmt.Sprint(r))
			out = &types.Decision{Action: types.ActionHold, Confidence: 0, TPPips: 150, SLPips: 75, Reason: "hard_fail"}
		}
	}()

	// tier 1: external technical signal
	if d := c.fromExternal(snap, ens, ext); d != nil {
		logger.Decision(ctx, snap.Symbol, d.Action, d.Confidence, d.Reason, "tier", 1)
		return d
	}

	// tier 2: ensemble vote
	if ens != nil && ens.Decision.Action != types.ActionHold && ens.TopScore > c.cfg.MinBucketScore {
		d := ens.Decision
		d.Reason = "ensemble_vote"
		logger.Decision(ctx, snap.Symbol, d.Action, d.Confidence, d.Reason, "tier", 2)
		return &d
	}

	// tier 3: strategy meta vote
	if meta != nil && meta.Action != types.ActionHold {
		d := *meta
		d.AIFailed = aiMissed(ens, c.cfg.MinBucketScore)
		logger.Decision(ctx, snap.Symbol, d.Action, d.Confidence, d.Reason, "tier", 3)
		return &d
	}

	// tier 4: RL policy
	if d := c.fromPolicy(ctx, snap, ens); d != nil {
		logger.Decision(ctx, snap.Symbol, d.Action, d.Confidence, d.Reason, "tier", 4)
		return d
	}

	// tier 5: simple indicator fallback
	if d := c.fromIndicators(snap, ens); d != nil {
		logger.Decision(ctx, snap.Symbol, d.Action, d.Confidence, d.Reason, "tier", 5)
		return d
	}

	// tier 6: HOLD
	hold := &types.Decision{
		Action: types.ActionHold, Confidence: 0,
		TPPips: 150, SLPips: 75,
		Reason:   "no_signal",
		AIFailed: aiMissed(ens, c.cfg.MinBucketScore),
	}
	if ens != nil {
		hold.Votes = ens.Decision.Votes
	}
	return hold
}

// aiMissed reports whether no AI bucket won this round: that is what
// flags ai_failed on every non-ensemble decision.
func aiMissed(ens *ensemble.Result, minScore float64) bool {
	if ens == nil {
		return true
	}
	return ens.Decision.AIFailed ||
		ens.Decision.Action == types.ActionHold ||
		ens.TopScore <= minScore
}

func (c *Cascade) fromExternal(snap *types.MarketSnapshot, ens *ensemble.Result, ext *types.ExternalSignal) *types.Decision {
	if ext == nil {
		return nil
	}
	if ext.Action != types.ActionBuy && ext.Action != types.ActionSell {
		return nil
	}
	if ext.Confidence < c.cfg.ExternalMinConfidence {
		return nil
	}

	mult := PipMultiplier(snap.Symbol)
	tp, sl := 150.0, 75.0
	if ext.Price > 0 {
		if ext.TakeProfit > 0 {
			tp = math.Abs(ext.TakeProfit-ext.Price) * mult
		}
		if ext.StopLoss > 0 {
			sl = math.Abs(ext.Price-ext.StopLoss) * mult
		}
	}
	if tp < 1 {
		tp = 1
	}
	if sl < 1 {
		sl = 1
	}

	conf := ext.Confidence
	// hybrid rule: a weak ensemble round defers to a strong external
	// signal, capped so it can never look certain
	if aiMissed(ens, c.cfg.MinBucketScore) && conf >= c.cfg.HybridExternalFloor && conf > c.cfg.HybridConfidenceCap {
		conf = c.cfg.HybridConfidenceCap
	}

	d := &types.Decision{
		Action:     ext.Action,
		Confidence: conf,
		TPPips:     tp,
		SLPips:     sl,
		Reason:     "external_signal",
		AIFailed:   aiMissed(ens, c.cfg.MinBucketScore),
	}
	if ens != nil {
		d.Votes = ens.Decision.Votes
	}
	return d
}

func (c *Cascade) fromPolicy(ctx context.Context, snap *types.MarketSnapshot, ens *ensemble.Result) *types.Decision {
	if c.policy == nil {
		return nil
	}
	action, conf, err := c.policy.Act(ctx, snap)
	if err != nil {
		logger.Warn(ctx, "RL policy failed", "symbol", snap.Symbol, "error", err)
		return nil
	}
	action = rl.Sanitize(action)
	if action == types.ActionHold || conf < c.cfg.RLOverrideConfidence {
		return nil
	}
	return &types.Decision{
		Action:     action,
		Confidence: conf,
		TPPips:     150,
		SLPips:     75,
		Reason:     "rl_policy",
		AIFailed:   aiMissed(ens, c.cfg.MinBucketScore),
	}
}

// fromIndicators is the last resort before HOLD: RSI extreme plus a
// confirming moving-average crossover.
func (c *Cascade) fromIndicators(snap *types.MarketSnapshot, ens *ensemble.Result) *types.Decision {
	closes := make([]float64, len(snap.Candles))
	for i, cd := range snap.Candles {
		closes[i] = cd.Close
	}
	rsi := ta.RSI(closes, c.cfg.RSIPeriod)
	maFast := ta.SMA(closes, c.cfg.MAFast)
	maSlow := ta.SMA(closes, c.cfg.MASlow)
	if math.IsNaN(rsi) || math.IsNaN(maFast) || math.IsNaN(maSlow) {
		return nil
	}

	var action string
	var conf float64
	if rsi < 30 && maFast > maSlow {
		action = types.ActionBuy
		conf = 0.35 + (30-rsi)/30*0.30
	} else if rsi > 70 && maFast < maSlow {
		action = types.ActionSell
		conf = 0.35 + (rsi-70)/30*0.30
	} else {
		return nil
	}
	if conf > 0.65 {
		conf = 0.65
	}

	return &types.Decision{
		Action:     action,
		Confidence: conf,
		TPPips:     150,
		SLPips:     75,
		Reason:     "indicator_fallback",
		AIFailed:   aiMissed(ens, c.cfg.MinBucketScore),
	}
}
