package rl

import (
	"context"
	"strings"

	"mt5-ensemble-bot/internal/interfaces"
	"mt5-ensemble-bot/internal/types"
)

// Sanitize maps arbitrary policy output onto a trade direction.
// Numeric Deep-Q action indices and common synonyms are accepted.
func Sanitize(action string) string {
	switch strings.ToUpper(strings.TrimSpace(action)) {
	case "BUY", "LONG", "1":
		return types.ActionBuy
	case "SELL", "SHORT", "2":
		return types.ActionSell
	default:
		return types.ActionHold
	}
}

// NoopPolicy always abstains; it keeps the RL tier wireable without a
// trained model.
type NoopPolicy struct{}

var _ interfaces.Policy = (*NoopPolicy)(nil)

func (NoopPolicy) Act(ctx context.Context, snap *types.MarketSnapshot) (string, float64, error) {
	return types.ActionHold, 0, nil
}
