package ensemble

import (
	"context"
	"sort"
	"time"

	"mt5-ensemble-bot/internal/interfaces"
	"mt5-ensemble-bot/internal/logger"
	"mt5-ensemble-bot/internal/stats"
	"mt5-ensemble-bot/internal/types"
)

// Result carries the aggregated decision plus the raw bucket scores the
// cascade needs for its threshold checks.
type Result struct {
	Decision types.Decision
	Scores   map[string]float64
	TopScore float64
}

type VoterConfig struct {
	ActiveModels   int
	PromptMaxChars int
	TotalTimeout   time.Duration
	MinBucketScore float64
}

// Voter fans a market prompt out to the active model batch and folds
// the replies into one weighted decision.
type Voter struct {
	runner *Runner
	stats  *stats.Store
	models []interfaces.Generator
	cfg    VoterConfig
}

func NewVoter(runner *Runner, st *stats.Store, models []interfaces.Generator, cfg VoterConfig) *Voter {
	if cfg.ActiveModels <= 0 {
		cfg.ActiveModels = 3
	}
	if cfg.MinBucketScore <= 0 {
		cfg.MinBucketScore = 0.3
	}
	return &Voter{runner: runner, stats: st, models: models, cfg: cfg}
}

// Vote runs one ensemble round. It never returns an error; total
// failure is reported through AIFailed on the decision.
func (v *Voter) Vote(ctx context.Context, snap *types.MarketSnapshot) *Result {
	start := time.Now()

	batch := v.selectBatch()
	if len(batch) == 0 {
		logger.Warn(ctx, "No models available for ensemble vote", "symbol", snap.Symbol)
		return &Result{
			Decision: types.Decision{
				Action: types.ActionHold, Confidence: 0,
				TPPips: defaultTPPips, SLPips: defaultSLPips,
				Reason: "no_models", AIFailed: true,
				Elapsed: time.Since(start).Seconds(),
			},
			Scores: map[string]float64{},
		}
	}

	prompt := BuildPrompt(snap, v.cfg.PromptMaxChars)

	vctx := ctx
	if v.cfg.TotalTimeout > 0 {
		var cancel context.CancelFunc
		vctx, cancel = context.WithTimeout(ctx, v.cfg.TotalTimeout)
		defer cancel()
	}

	votes := v.collect(vctx, batch, prompt)
	res := v.aggregate(votes)
	res.Decision.Elapsed = time.Since(start).Seconds()

	logger.Debug(ctx, "Ensemble round complete",
		"symbol", snap.Symbol,
		"action", res.Decision.Action,
		"confidence", res.Decision.Confidence,
		"top_score", res.TopScore,
		"models", len(batch),
		"ai_failed", res.Decision.AIFailed,
	)
	return res
}

// selectBatch picks the top-K models by persisted weight.
func (v *Voter) selectBatch() []interfaces.Generator {
	sorted := make([]interfaces.Generator, len(v.models))
	copy(sorted, v.models)
	sort.SliceStable(sorted, func(i, j int) bool {
		return v.stats.Weight(sorted[i].ID()) > v.stats.Weight(sorted[j].ID())
	})
	if len(sorted) > v.cfg.ActiveModels {
		sorted = sorted[:v.cfg.ActiveModels]
	}
	return sorted
}

// collect fans out to the batch and gathers votes as they complete.
// Results arriving after the context deadline are dropped.
func (v *Voter) collect(ctx context.Context, batch []interfaces.Generator, prompt string) []types.ModelVote {
	type item struct {
		vote types.ModelVote
	}
	ch := make(chan item, len(batch))
	for _, m := range batch {
		go func(m interfaces.Generator) {
			raw, ok := v.runner.Run(ctx, m, prompt)
			vote := types.ModelVote{ModelID: m.ID(), Raw: raw}
			if !ok {
				vote.Decision = types.ActionHold
				vote.Confidence = 0.0
				vote.TPPips = defaultTPPips
				vote.SLPips = defaultSLPips
				vote.AIFailed = true
			} else {
				d, c, tp, sl := ParseResponse(raw)
				vote.Decision, vote.Confidence, vote.TPPips, vote.SLPips = d, c, tp, sl
			}
			ch <- item{vote}
		}(m)
	}

	votes := make([]types.ModelVote, 0, len(batch))
	for range batch {
		select {
		case it := <-ch:
			votes = append(votes, it.vote)
		case <-ctx.Done():
			// remaining models are abandoned; account for them as failed
			for len(votes) < len(batch) {
				votes = append(votes, types.ModelVote{
					ModelID: "timeout", Decision: types.ActionHold,
					TPPips: defaultTPPips, SLPips: defaultSLPips,
					Raw: RawTimeout, AIFailed: true,
				})
			}
			return votes
		}
	}
	return votes
}

func (v *Voter) aggregate(votes []types.ModelVote) *Result {
	scores := map[string]float64{types.ActionBuy: 0, types.ActionSell: 0, types.ActionHold: 0}
	for _, vote := range votes {
		w := v.stats.Weight(vote.ModelID)
		scores[vote.Decision] += vote.Confidence * w
	}

	winner, winScore := types.ActionHold, 0.0
	total := 0.0
	for _, a := range []string{types.ActionBuy, types.ActionSell, types.ActionHold} {
		total += scores[a]
		if scores[a] > winScore {
			winner, winScore = a, scores[a]
		}
	}

	confidence := 0.0
	if total > 0 {
		confidence = winScore / total
	}

	tp, sl := defaultTPPips, defaultSLPips
	if winner != types.ActionHold {
		tpSum, slSum, wSum := 0.0, 0.0, 0.0
		for _, vote := range votes {
			if vote.Decision != winner {
				continue
			}
			w := vote.Confidence * v.stats.Weight(vote.ModelID)
			if w <= 0 {
				continue
			}
			tpSum += vote.TPPips * w
			slSum += vote.SLPips * w
			wSum += w
		}
		if wSum > 0 {
			tp, sl = tpSum/wSum, slSum/wSum
		}
	}

	allFailed := true
	for _, vote := range votes {
		if !vote.AIFailed {
			allFailed = false
			break
		}
	}
	weakDirectional := scores[types.ActionBuy] <= v.cfg.MinBucketScore &&
		scores[types.ActionSell] <= v.cfg.MinBucketScore
	aiFailed := allFailed || weakDirectional

	reason := "ensemble_vote"
	if winner == types.ActionHold {
		confidence = 0.0
		if allFailed {
			reason = "all_models_failed"
		}
	}

	return &Result{
		Decision: types.Decision{
			Action:     winner,
			Confidence: confidence,
			TPPips:     tp,
			SLPips:     sl,
			Votes:      votes,
			Reason:     reason,
			AIFailed:   aiFailed,
		},
		Scores:   scores,
		TopScore: winScore,
	}
}
