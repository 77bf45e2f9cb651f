package mt5

import (
	"context"
	"time"

	"mt5-ensemble-bot/internal/interfaces"
)

type Params struct {
	Mode    string // DRY_RUN or LIVE
	URL     string // bridge websocket endpoint
	Timeout time.Duration
}

// New returns the MetaTrader binding for the configured mode. DRY_RUN
// runs fully in-process with synthetic data.
func New(ctx context.Context, p Params) (interfaces.Broker, error) {
	if p.Timeout <= 0 {
		p.Timeout = 10 * time.Second
	}
	if p.Mode == "DRY_RUN" {
		return newMock(), nil
	}
	return dialBridge(ctx, p)
}
