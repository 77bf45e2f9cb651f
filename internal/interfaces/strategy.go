package interfaces

import (
	"context"

	"mt5-ensemble-bot/internal/types"
)

// Strategy is a rule-based signal producer. A nil vote means the
// strategy has no opinion this cycle. Implementations must not panic;
// the meta voter recovers and excludes them anyway.
type Strategy interface {
	Name() string
	Analyze(ctx context.Context, snap *types.MarketSnapshot) (*types.StrategyVote, error)
}
