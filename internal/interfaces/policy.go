package interfaces

import (
	"context"

	"mt5-ensemble-bot/internal/types"
)

// Policy is an optional reinforcement-learning decision source. Its raw
// output is sanitised by the cascade before use.
type Policy interface {
	Act(ctx context.Context, snap *types.MarketSnapshot) (action string, confidence float64, err error)
}
