package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"mt5-ensemble-bot/internal/cascade"
	"mt5-ensemble-bot/internal/dispatch"
	"mt5-ensemble-bot/internal/ensemble"
	"mt5-ensemble-bot/internal/interfaces"
	"mt5-ensemble-bot/internal/logger"
	"mt5-ensemble-bot/internal/risk"
	"mt5-ensemble-bot/internal/store"
	"mt5-ensemble-bot/internal/strategy"
	"mt5-ensemble-bot/internal/tradelog"
	"mt5-ensemble-bot/internal/types"
)

var errNotEnoughHistory = errors.New("not enough candles")

// Engine drives one decision cycle per symbol: snapshot, ensemble and
// strategy votes, cascade, risk gate, dispatch.
type Engine struct {
	cfg        *store.Config
	brk        interfaces.Broker
	voter      *ensemble.Voter
	meta       *strategy.MetaVoter
	casc       *cascade.Cascade
	normaliser *risk.Normaliser
	gate       *risk.Gate
	dispatcher *dispatch.Dispatcher
	signals    *SignalBuffer
	trades     *tradelog.Writer
}

func New(
	cfg *store.Config,
	brk interfaces.Broker,
	voter *ensemble.Voter,
	meta *strategy.MetaVoter,
	casc *cascade.Cascade,
	normaliser *risk.Normaliser,
	gate *risk.Gate,
	dispatcher *dispatch.Dispatcher,
	signals *SignalBuffer,
	trades *tradelog.Writer,
) *Engine {
	return &Engine{
		cfg: cfg, brk: brk, voter: voter, meta: meta, casc: casc,
		normaliser: normaliser, gate: gate, dispatcher: dispatcher,
		signals: signals, trades: trades,
	}
}

// Signals exposes the external-signal buffer to upstream producers.
func (e *Engine) Signals() *SignalBuffer { return e.signals }

func (e *Engine) snapshot(ctx context.Context, symbol string) (*types.MarketSnapshot, error) {
	n := e.cfg.MinHistory
	if n < 250 {
		n = 250
	}
	candles, err := e.brk.RecentCandles(ctx, symbol, e.cfg.Timeframe, n)
	if err != nil {
		return nil, err
	}
	if len(candles) < e.cfg.MinHistory {
		logger.Warn(ctx, "Insufficient candle data, skipping symbol",
			"symbol", symbol, "received", len(candles), "required", e.cfg.MinHistory)
		return nil, errNotEnoughHistory
	}
	tick, err := e.brk.Tick(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return &types.MarketSnapshot{Symbol: symbol, Candles: candles, Tick: *tick}, nil
}

// Step runs one full cycle for the symbol. It only returns an error on
// a no-data condition; every decision path terminates in a Decision.
func (e *Engine) Step(ctx context.Context, symbol string) (*types.Decision, error) {
	snap, err := e.snapshot(ctx, symbol)
	if err != nil {
		return nil, err
	}

	// ensemble and strategy rounds run concurrently; both are
	// deadline-bounded internally
	var (
		wg      sync.WaitGroup
		ensRes  *ensemble.Result
		metaDec *types.Decision
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		ensRes = e.voter.Vote(ctx, snap)
	}()
	go func() {
		defer wg.Done()
		if e.meta != nil && e.cfg.Strategies.Enabled {
			metaDec, _ = e.meta.Vote(ctx, snap)
		}
	}()
	wg.Wait()

	ext := e.signals.Take(symbol)
	decision := e.casc.Decide(ctx, snap, ensRes, metaDec, ext)

	if decision.Action == types.ActionHold {
		logger.Debug(ctx, "HOLD decision, no order", "symbol", symbol, "reason", decision.Reason)
		return decision, nil
	}

	e.submit(ctx, snap, decision)
	return decision, nil
}

// submit pushes a non-HOLD decision through the normaliser, the gate
// and the dispatcher. Rejections are logged and dropped, not retried.
func (e *Engine) submit(ctx context.Context, snap *types.MarketSnapshot, decision *types.Decision) {
	symbol := snap.Symbol
	intent := types.OrderIntent{
		Decision: *decision,
		Symbol:   symbol,
		Volume:   e.cfg.Risk.DefaultVolume,
		UUID:     uuid.NewString(),
		Source:   decision.Reason,
	}

	if err := e.gate.Check(&intent); err != nil {
		logger.Risk(ctx, symbol, "gate_rejected", "reason", err.Error(), "uuid", intent.UUID)
		_ = e.trades.History(symbol, decision.Action, 0, decision.TPPips, decision.SLPips, decision.Confidence, "rejected:"+err.Error())
		return
	}

	si, err := e.brk.SymbolInfo(ctx, symbol)
	if err != nil || si == nil {
		logger.ErrorWithErr(ctx, "Symbol info unavailable, dropping intent", err, "symbol", symbol)
		return
	}
	acct, err := e.brk.AccountInfo(ctx)
	if err != nil {
		logger.Warn(ctx, "Account info unavailable, sizing without balance", "symbol", symbol, "error", err)
		acct = nil
	}

	volume, err := e.normaliser.Volume(intent.Volume, si, acct, decision.SLPips)
	if err != nil {
		logger.Risk(ctx, symbol, "volume_rejected", "reason", err.Error(), "uuid", intent.UUID)
		_ = e.trades.History(symbol, decision.Action, 0, decision.TPPips, decision.SLPips, decision.Confidence, "rejected:"+err.Error())
		return
	}
	intent.Volume = volume

	pip := 10 * si.Point
	var price, sl, tp float64
	if decision.Action == types.ActionBuy {
		price = snap.Tick.Ask
		sl = price - decision.SLPips*pip
		tp = price + decision.TPPips*pip
	} else {
		price = snap.Tick.Bid
		sl = price + decision.SLPips*pip
		tp = price - decision.TPPips*pip
	}
	sl, tp, err = risk.AdjustStops(decision.Action, price, sl, tp, si)
	if err != nil {
		logger.Risk(ctx, symbol, "stops_rejected", "reason", err.Error(), "uuid", intent.UUID)
		return
	}

	order := &types.Order{OrderIntent: intent, Price: price, SL: sl, TP: tp}
	res := e.dispatcher.Send(ctx, order)

	result := "failed:" + res.Reason
	if res.OK {
		result = "sent"
	}
	_ = e.trades.History(symbol, decision.Action, res.Volume, decision.TPPips, decision.SLPips, decision.Confidence, result)
}

// Run is the periodic orchestrator: every loop interval it fans the
// symbol set out over a bounded pool and waits for the cycle to drain.
func (e *Engine) Run(ctx context.Context, step interfaces.Engine) {
	interval := time.Duration(e.cfg.LoopSeconds) * time.Second
	tick := time.NewTicker(interval)
	defer tick.Stop()

	logger.Info(ctx, "Trading loop started",
		"symbols", e.cfg.Symbols, "interval_seconds", e.cfg.LoopSeconds, "mode", e.cfg.Mode)

	for {
		e.cycle(ctx, step)
		select {
		case <-tick.C:
		case <-ctx.Done():
			logger.Info(ctx, "Trading loop stopping")
			return
		}
	}
}

func (e *Engine) cycle(ctx context.Context, step interfaces.Engine) {
	pool := len(e.cfg.Symbols)
	if pool > 8 {
		pool = 8
	}
	sem := make(chan struct{}, pool)
	var wg sync.WaitGroup

	for _, symbol := range e.cfg.Symbols {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if _, err := step.Step(ctx, symbol); err != nil && !errors.Is(err, errNotEnoughHistory) {
				logger.ErrorWithErr(ctx, "Cycle failed for symbol", err, "symbol", symbol)
			}
		}(symbol)
	}
	wg.Wait()
}
