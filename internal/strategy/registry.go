package strategy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"mt5-ensemble-bot/internal/interfaces"
	"mt5-ensemble-bot/internal/logger"
	"mt5-ensemble-bot/internal/types"
)

// SignalGenerator and MarketAnalyzer are the alternative entry points a
// plug-in may expose instead of the canonical Analyze.
type SignalGenerator interface {
	GenerateSignal(ctx context.Context, snap *types.MarketSnapshot) (*types.StrategyVote, error)
}

type MarketAnalyzer interface {
	AnalyzeMarket(ctx context.Context, snap *types.MarketSnapshot) (*types.StrategyVote, error)
}

// Registry holds the registered strategies keyed by lower-case name.
// Register probes the value for a known entry point, mirroring the way
// plug-ins are discovered by callable name.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]interfaces.Strategy
	failures   map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		strategies: map[string]interfaces.Strategy{},
		failures:   map[string]string{},
	}
}

type named struct {
	name string
	fn   func(ctx context.Context, snap *types.MarketSnapshot) (*types.StrategyVote, error)
}

func (n *named) Name() string { return n.name }
func (n *named) Analyze(ctx context.Context, snap *types.MarketSnapshot) (*types.StrategyVote, error) {
	return n.fn(ctx, snap)
}

// Register accepts anything exposing Analyze, GenerateSignal or
// AnalyzeMarket. Unusable values are recorded and skipped, not fatal.
func (r *Registry) Register(name string, v any) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return fmt.Errorf("strategy name cannot be empty")
	}

	var s interfaces.Strategy
	switch impl := v.(type) {
	case interfaces.Strategy:
		s = impl
	case SignalGenerator:
		s = &named{name: key, fn: impl.GenerateSignal}
	case MarketAnalyzer:
		s = &named{name: key, fn: impl.AnalyzeMarket}
	default:
		r.mu.Lock()
		r.failures[key] = fmt.Sprintf("no usable entry point on %T", v)
		r.mu.Unlock()
		logger.Warn(context.Background(), "Strategy has no usable entry point", "strategy", key, "type", fmt.Sprintf("%T", v))
		return fmt.Errorf("strategy %q: no usable entry point", key)
	}

	r.mu.Lock()
	r.strategies[key] = s
	r.mu.Unlock()
	return nil
}

func (r *Registry) All() []interfaces.Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for n := range r.strategies {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]interfaces.Strategy, 0, len(names))
	for _, n := range names {
		out = append(out, r.strategies[n])
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.strategies)
}

// Failures lists strategies that could not be registered.
func (r *Registry) Failures() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.failures))
	for k, v := range r.failures {
		out[k] = v
	}
	return out
}
