package mt5

import (
	"context"
	"testing"

	"mt5-ensemble-bot/internal/types"
)

func TestNewDryRunReturnsMock(t *testing.T) {
	brk, err := New(context.Background(), Params{Mode: "DRY_RUN"})
	if err != nil {
		t.Fatalf("Expected DRY_RUN broker, got error: %v", err)
	}
	if _, ok := brk.(*mock); !ok {
		t.Fatalf("Expected in-process mock, got %T", brk)
	}
}

func TestMockCandles(t *testing.T) {
	m := newMock()

	cs, err := m.RecentCandles(context.Background(), "EURUSD", "M5", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(cs) != 100 {
		t.Fatalf("Expected 100 candles, got %d", len(cs))
	}
	for i := 1; i < len(cs); i++ {
		if cs[i].Ts <= cs[i-1].Ts {
			t.Fatalf("Expected ascending timestamps at %d: %d then %d", i, cs[i-1].Ts, cs[i].Ts)
		}
	}
	for i, c := range cs {
		if c.High < c.Close || c.Low > c.Close {
			t.Errorf("Candle %d violates high/low bounds: %+v", i, c)
		}
	}
}

func TestMockSymbolInfoJPY(t *testing.T) {
	m := newMock()

	si, err := m.SymbolInfo(context.Background(), "USDJPY")
	if err != nil {
		t.Fatal(err)
	}
	if si.Point != 0.001 || si.Digits != 3 {
		t.Errorf("Expected JPY quoting (point 0.001, 3 digits), got point=%f digits=%d", si.Point, si.Digits)
	}

	si, err = m.SymbolInfo(context.Background(), "EURUSD")
	if err != nil {
		t.Fatal(err)
	}
	if si.Point != 0.00001 || si.Digits != 5 {
		t.Errorf("Expected 5-digit quoting, got point=%f digits=%d", si.Point, si.Digits)
	}
	if si.VolumeMin <= 0 || si.VolumeStep <= 0 {
		t.Error("Expected usable volume constraints")
	}
}

func TestMockOrderSendAlwaysFills(t *testing.T) {
	m := newMock()

	res, err := m.OrderSend(context.Background(), types.OrderRequest{
		Symbol: "EURUSD", Side: types.ActionBuy, Volume: 0.01, Price: 1.1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Retcode != types.RetcodeDone {
		t.Errorf("Expected done retcode, got %d", res.Retcode)
	}
	if res.DealID == "" {
		t.Error("Expected a simulated deal id")
	}
}

func TestMockTickSpread(t *testing.T) {
	m := newMock()

	tick, err := m.Tick(context.Background(), "EURUSD")
	if err != nil {
		t.Fatal(err)
	}
	if tick.Ask <= tick.Bid {
		t.Errorf("Expected ask above bid, got bid=%f ask=%f", tick.Bid, tick.Ask)
	}
}
