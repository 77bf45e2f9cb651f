package mt5

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mt5-ensemble-bot/internal/interfaces"
	"mt5-ensemble-bot/internal/logger"
	"mt5-ensemble-bot/internal/types"
)

// bridge talks JSON frames to the terminal-side MetaTrader bridge:
// {id, op, params} out, {id, ok, data|error} back. Calls are
// serialised; the bridge answers strictly in request order.
type bridge struct {
	url     string
	timeout time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID uint64
}

var _ interfaces.Broker = (*bridge)(nil)

type bridgeRequest struct {
	ID     uint64         `json:"id"`
	Op     string         `json:"op"`
	Params map[string]any `json:"params,omitempty"`
}

type bridgeResponse struct {
	ID    uint64          `json:"id"`
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

func dialBridge(ctx context.Context, p Params) (*bridge, error) {
	b := &bridge{url: p.URL, timeout: p.Timeout}
	if err := b.connect(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *bridge) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.url, nil)
	if err != nil {
		return fmt.Errorf("dial bridge %s: %w", b.url, err)
	}
	b.conn = conn
	return nil
}

func (b *bridge) call(ctx context.Context, op string, params map[string]any, out any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		if err := b.connect(ctx); err != nil {
			return err
		}
	}

	b.nextID++
	req := bridgeRequest{ID: b.nextID, Op: op, Params: params}

	deadline := time.Now().Add(b.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = b.conn.SetWriteDeadline(deadline)
	if err := b.conn.WriteJSON(req); err != nil {
		b.drop()
		return fmt.Errorf("bridge write %s: %w", op, err)
	}

	_ = b.conn.SetReadDeadline(deadline)
	for {
		var resp bridgeResponse
		if err := b.conn.ReadJSON(&resp); err != nil {
			b.drop()
			return fmt.Errorf("bridge read %s: %w", op, err)
		}
		if resp.ID != req.ID {
			// stale reply from a timed-out predecessor
			continue
		}
		if !resp.OK {
			return fmt.Errorf("bridge %s: %s", op, resp.Error)
		}
		if out == nil {
			return nil
		}
		return json.Unmarshal(resp.Data, out)
	}
}

func (b *bridge) drop() {
	if b.conn != nil {
		_ = b.conn.Close()
		b.conn = nil
	}
}

func (b *bridge) AccountInfo(ctx context.Context) (*types.AccountInfo, error) {
	var out types.AccountInfo
	if err := b.call(ctx, "account_info", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *bridge) SymbolInfo(ctx context.Context, symbol string) (*types.SymbolInfo, error) {
	var out types.SymbolInfo
	if err := b.call(ctx, "symbol_info", map[string]any{"symbol": symbol}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *bridge) Tick(ctx context.Context, symbol string) (*types.Tick, error) {
	var out types.Tick
	if err := b.call(ctx, "tick", map[string]any{"symbol": symbol}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *bridge) RecentCandles(ctx context.Context, symbol, timeframe string, n int) ([]types.Candle, error) {
	var out []types.Candle
	params := map[string]any{"symbol": symbol, "timeframe": timeframe, "count": n}
	if err := b.call(ctx, "rates", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *bridge) OrderSend(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error) {
	var out types.OrderResult
	params := map[string]any{
		"symbol":  req.Symbol,
		"side":    req.Side,
		"volume":  req.Volume,
		"price":   req.Price,
		"sl":      req.SL,
		"tp":      req.TP,
		"filling": req.Filling,
		"comment": req.Comment,
	}
	if err := b.call(ctx, "order_send", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *bridge) Close(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		_ = b.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		b.drop()
		logger.Debug(ctx, "Bridge connection closed")
	}
}
