package dispatch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"mt5-ensemble-bot/internal/interfaces"
	"mt5-ensemble-bot/internal/logger"
	"mt5-ensemble-bot/internal/risk"
	"mt5-ensemble-bot/internal/stats"
	"mt5-ensemble-bot/internal/tradelog"
	"mt5-ensemble-bot/internal/types"
)

type Config struct {
	MaxRetries    int
	BackoffBase   time.Duration
	FillingLadder []string
}

// Dispatcher sends one normalised order to the broker, walking the
// filling-policy ladder and retrying transient failures. The broker
// binding is serialised: a single order in flight at a time.
type Dispatcher struct {
	broker interfaces.Broker
	gate   *risk.Gate
	audit  *tradelog.Writer
	stats  *stats.Store
	cfg    Config

	sendMu sync.Mutex
}

func New(broker interfaces.Broker, gate *risk.Gate, audit *tradelog.Writer, st *stats.Store, cfg Config) *Dispatcher {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if len(cfg.FillingLadder) == 0 {
		cfg.FillingLadder = []string{"", "IOC", "FOK"}
	}
	return &Dispatcher{broker: broker, gate: gate, audit: audit, stats: st, cfg: cfg}
}

// retryable retcodes: requote, off quotes, broker busy.
func retryableRetcode(rc int) bool {
	switch rc {
	case 10004, 10018, 10021, 10024, 10031:
		return true
	}
	return false
}

func successRetcode(rc int) bool {
	return rc == types.RetcodeDone || rc == types.RetcodePlaced
}

// Send dispatches the order. HOLD orders are refused outright.
func (d *Dispatcher) Send(ctx context.Context, order *types.Order) *types.SendResult {
	if order.Action == types.ActionHold {
		return &types.SendResult{OK: false, Reason: "hold_blocked"}
	}

	d.sendMu.Lock()
	defer d.sendMu.Unlock()

	req := types.OrderRequest{
		Symbol:  order.Symbol,
		Side:    order.Action,
		Volume:  order.Volume,
		Price:   order.Price,
		SL:      order.SL,
		TP:      order.TP,
		Comment: order.Source + ":" + order.UUID,
	}

	var lastRetcode int
	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := d.cfg.BackoffBase * time.Duration(1<<uint(attempt-1))
			jitter := time.Duration(rand.Int63n(int64(d.cfg.BackoffBase)))
			select {
			case <-time.After(backoff + jitter):
			case <-ctx.Done():
				return &types.SendResult{OK: false, Retcode: lastRetcode, Reason: "cancelled"}
			}
			logger.Debug(ctx, "Retrying order send", "symbol", order.Symbol, "attempt", attempt)
		}

		res, retryable := d.tryLadder(ctx, order, req)
		if res != nil {
			if res.OK || !retryable {
				return res
			}
			lastRetcode = res.Retcode
			continue
		}
		if !retryable {
			return &types.SendResult{OK: false, Retcode: lastRetcode, Reason: "broker_fatal"}
		}
	}

	logger.Error(ctx, "Order send failed after retries", "symbol", order.Symbol, "uuid", order.UUID, "retries", d.cfg.MaxRetries)
	return &types.SendResult{OK: false, Retcode: lastRetcode, Reason: "retries_exhausted"}
}

// tryLadder walks the filling policies once, taking the first reply
// with a done/placed retcode. A non-success reply moves to the next
// policy. When the whole ladder fails it returns the last broker reply
// plus whether any failure was worth another attempt.
func (d *Dispatcher) tryLadder(ctx context.Context, order *types.Order, req types.OrderRequest) (*types.SendResult, bool) {
	sawRetryable := false
	var lastRes *types.OrderResult

	for _, filling := range d.cfg.FillingLadder {
		req.Filling = filling

		res, err := d.broker.OrderSend(ctx, req)
		rec := types.TradeRecord{
			Order:   order.OrderIntent,
			Filling: filling,
			Volume:  req.Volume,
			SL:      req.SL,
			TP:      req.TP,
		}
		if err != nil {
			rec.Comment = err.Error()
			_ = d.audit.Audit(rec)
			logger.Warn(ctx, "Broker send error", "symbol", order.Symbol, "filling", filling, "error", err)
			sawRetryable = true
			continue
		}
		rec.Retcode = res.Retcode
		rec.DealID = res.DealID
		rec.Comment = res.Comment
		rec.OK = successRetcode(res.Retcode)
		_ = d.audit.Audit(rec)

		if successRetcode(res.Retcode) {
			d.gate.MarkSent(order.Symbol, order.Action)
			d.creditModels(order)
			logger.Trade(ctx, order.Symbol, order.Action, req.Volume, res.Price, res.DealID,
				"retcode", res.Retcode, "filling", filling, "uuid", order.UUID)
			return &types.SendResult{OK: true, Result: res, Volume: req.Volume, Retcode: res.Retcode}, false
		}
		lastRes = res
		if retryableRetcode(res.Retcode) {
			sawRetryable = true
		} else {
			logger.Warn(ctx, "Broker rejected order", "symbol", order.Symbol, "retcode", res.Retcode, "filling", filling, "comment", res.Comment)
		}
	}

	if lastRes != nil && !sawRetryable {
		return &types.SendResult{OK: false, Result: lastRes, Retcode: lastRes.Retcode, Reason: "broker_fatal"}, false
	}
	return nil, sawRetryable
}

// creditModels marks the votes that agreed with the sent decision as a
// net positive in the stats store.
func (d *Dispatcher) creditModels(order *types.Order) {
	for _, v := range order.Votes {
		if v.AIFailed || v.ModelID == "" {
			continue
		}
		if v.Decision == order.Action {
			d.stats.Update(v.ModelID, true)
		}
	}
}
