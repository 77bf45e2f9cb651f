package engineobs

import (
	"context"
	"time"

	"mt5-ensemble-bot/internal/interfaces"
	"mt5-ensemble-bot/internal/logger"
	"mt5-ensemble-bot/internal/trace"
	"mt5-ensemble-bot/internal/types"
)

type observableEngine struct {
	engine interfaces.Engine
}

var _ interfaces.Engine = (*observableEngine)(nil)

func Wrap(eng interfaces.Engine) interfaces.Engine {
	return &observableEngine{engine: eng}
}

func (oe *observableEngine) Step(ctx context.Context, symbol string) (*types.Decision, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Step")
	defer span.End()

	start := time.Now()

	logger.InfoSkip(ctx, 1, "Starting decision cycle", "symbol", symbol)

	decision, err := oe.engine.Step(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Decision cycle failed", err,
			"symbol", symbol,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	logger.InfoSkip(ctx, 1, "Decision cycle completed",
		"symbol", symbol,
		"action", decision.Action,
		"confidence", decision.Confidence,
		"reason", decision.Reason,
		"ai_failed", decision.AIFailed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return decision, nil
}
