package interfaces

import (
	"context"

	"mt5-ensemble-bot/internal/types"
)

// Engine runs one full decision cycle for a symbol.
type Engine interface {
	Step(ctx context.Context, symbol string) (*types.Decision, error)
}
