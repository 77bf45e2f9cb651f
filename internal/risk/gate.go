package risk

import (
	"fmt"
	"sync"
	"time"

	"mt5-ensemble-bot/internal/types"
)

type GateConfig struct {
	MinTradeInterval time.Duration
	MinConfidence    float64
}

// Gate enforces the per-symbol cooldown, the same-direction anti-flap
// rule and the confidence floor. One gate instance is shared by all
// symbol workers.
type Gate struct {
	cfg GateConfig

	mu       sync.Mutex
	lastSend map[string]time.Time
	lastSide map[string]string
	now      func() time.Time
}

func NewGate(cfg GateConfig) *Gate {
	if cfg.MinTradeInterval <= 0 {
		cfg.MinTradeInterval = 5 * time.Minute
	}
	return &Gate{
		cfg:      cfg,
		lastSend: map[string]time.Time{},
		lastSide: map[string]string{},
		now:      time.Now,
	}
}

// Check returns nil if the intent may proceed, or a structured
// rejection. HOLD intents never pass.
func (g *Gate) Check(intent *types.OrderIntent) error {
	if intent.Action == types.ActionHold {
		return &Rejection{Code: "hold_blocked"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.lastSend[intent.Symbol]; ok {
		since := g.now().Sub(last)
		if since < g.cfg.MinTradeInterval {
			// covers the same-direction anti-flap case too: any
			// repeat inside the window is refused
			return &Rejection{
				Code:   "min_interval_not_reached",
				Detail: fmt.Sprintf("last send %.0fs ago, min interval %.0fs", since.Seconds(), g.cfg.MinTradeInterval.Seconds()),
			}
		}
	}

	if intent.Confidence < g.cfg.MinConfidence && !intent.Force {
		return &Rejection{
			Code:   "low_confidence",
			Detail: fmt.Sprintf("confidence=%.3f min=%.3f", intent.Confidence, g.cfg.MinConfidence),
		}
	}
	return nil
}

// MarkSent records a successful send and starts the symbol cooldown.
func (g *Gate) MarkSent(symbol, side string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastSend[symbol] = g.now()
	g.lastSide[symbol] = side
}

// CooldownRemaining reports how long the symbol stays locked.
func (g *Gate) CooldownRemaining(symbol string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	last, ok := g.lastSend[symbol]
	if !ok {
		return 0
	}
	rem := g.cfg.MinTradeInterval - g.now().Sub(last)
	if rem < 0 {
		return 0
	}
	return rem
}
