package strategy

import (
	"context"
	"fmt"
	"time"

	"mt5-ensemble-bot/internal/interfaces"
	"mt5-ensemble-bot/internal/logger"
	"mt5-ensemble-bot/internal/types"
)

// Default vote weights per strategy family, renormalised on use.
var defaultWeights = map[string]float64{
	"supertrend": 0.30,
	"ema":        0.20,
	"rsi":        0.20,
	"bollinger":  0.15,
	"ict":        0.15,
}

type MetaVoterConfig struct {
	Weights       map[string]float64
	MinConfidence float64
	Timeout       time.Duration
	Workers       int
}

// MetaVoter runs every registered strategy in a bounded pool and folds
// their votes into one meta signal.
type MetaVoter struct {
	registry *Registry
	cfg      MetaVoterConfig
}

func NewMetaVoter(registry *Registry, cfg MetaVoterConfig) *MetaVoter {
	if cfg.Weights == nil {
		cfg.Weights = defaultWeights
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.35
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &MetaVoter{registry: registry, cfg: cfg}
}

// Vote collects strategy votes and aggregates. A strategy that panics,
// errors or overruns its timeout is excluded from the round.
func (m *MetaVoter) Vote(ctx context.Context, snap *types.MarketSnapshot) (*types.Decision, []types.StrategyVote) {
	strategies := m.registry.All()
	if len(strategies) == 0 {
		return holdDecision("no_strategies"), nil
	}

	votes := m.collect(ctx, strategies, snap)
	if len(votes) == 0 {
		return holdDecision("no_strategy_votes"), nil
	}
	return m.aggregate(votes), votes
}

func (m *MetaVoter) collect(ctx context.Context, strategies []interfaces.Strategy, snap *types.MarketSnapshot) []types.StrategyVote {
	sem := make(chan struct{}, m.cfg.Workers)
	out := make(chan *types.StrategyVote, len(strategies))

	for _, s := range strategies {
		go func(s interfaces.Strategy) {
			sem <- struct{}{}
			defer func() { <-sem }()
			out <- m.runOne(ctx, s, snap)
		}(s)
	}

	votes := make([]types.StrategyVote, 0, len(strategies))
	for range strategies {
		if v := <-out; v != nil {
			votes = append(votes, *v)
		}
	}
	return votes
}

func (m *MetaVoter) runOne(ctx context.Context, s interfaces.Strategy, snap *types.MarketSnapshot) (vote *types.StrategyVote) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn(ctx, "Strategy panicked, excluded from round", "strategy", s.Name(), "panic", fmt.Sprint(r))
			vote = nil
		}
	}()

	sctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	v, err := s.Analyze(sctx, snap)
	if err != nil {
		logger.Warn(ctx, "Strategy failed, excluded from round", "strategy", s.Name(), "error", err)
		return nil
	}
	if v == nil {
		return nil
	}
	v.Strategy = s.Name()
	v.Decision = normalizeVoteAction(v.Decision)
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 1 {
		v.Confidence = 1
	}
	if v.Weight <= 0 {
		v.Weight = m.weightFor(s.Name())
	}
	return v
}

func (m *MetaVoter) weightFor(name string) float64 {
	if w, ok := m.cfg.Weights[name]; ok && w > 0 {
		return w
	}
	return 0.10
}

func (m *MetaVoter) aggregate(votes []types.StrategyVote) *types.Decision {
	// renormalise the weights of the strategies that actually voted
	totalW := 0.0
	for _, v := range votes {
		totalW += v.Weight
	}
	if totalW <= 0 {
		return holdDecision("zero_strategy_weight")
	}

	scores := map[string]float64{}
	for _, v := range votes {
		scores[v.Decision] += v.Confidence * (v.Weight / totalW)
	}

	winner, winScore := types.ActionHold, 0.0
	for _, a := range []string{types.ActionBuy, types.ActionSell} {
		if scores[a] > winScore {
			winner, winScore = a, scores[a]
		}
	}
	if winner == types.ActionHold || winScore < m.cfg.MinConfidence {
		return holdDecision("below_hybrid_min_confidence")
	}

	tpSum, slSum, wSum := 0.0, 0.0, 0.0
	for _, v := range votes {
		if v.Decision != winner {
			continue
		}
		w := v.Confidence * v.Weight
		if w <= 0 || v.TPPips <= 0 || v.SLPips <= 0 {
			continue
		}
		tpSum += v.TPPips * w
		slSum += v.SLPips * w
		wSum += w
	}
	tp, sl := 150.0, 75.0
	if wSum > 0 {
		tp, sl = tpSum/wSum, slSum/wSum
	}

	return &types.Decision{
		Action:     winner,
		Confidence: winScore,
		TPPips:     tp,
		SLPips:     sl,
		Reason:     "strategy_meta_vote",
	}
}

func holdDecision(reason string) *types.Decision {
	return &types.Decision{
		Action: types.ActionHold, Confidence: 0,
		TPPips: 150, SLPips: 75,
		Reason: reason,
	}
}

func normalizeVoteAction(a string) string {
	switch a {
	case types.ActionBuy, types.ActionSell:
		return a
	default:
		return types.ActionHold
	}
}
