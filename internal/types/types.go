package types

import "time"

const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionHold = "HOLD"
)

type Candle struct {
	Ts                          int64
	Open, High, Low, Close, Vol float64
}

type Tick struct {
	Bid, Ask float64
	Ts       int64
}

// MarketSnapshot is immutable for the duration of one decision cycle.
type MarketSnapshot struct {
	Symbol  string
	Candles []Candle
	Tick    Tick
}

func (s *MarketSnapshot) LastClose() float64 {
	if len(s.Candles) == 0 {
		return 0
	}
	return s.Candles[len(s.Candles)-1].Close
}

func (s *MarketSnapshot) PrevClose() float64 {
	if len(s.Candles) < 2 {
		return s.LastClose()
	}
	return s.Candles[len(s.Candles)-2].Close
}

type ModelVote struct {
	Decision   string  `json:"decision"`
	Confidence float64 `json:"confidence"`
	TPPips     float64 `json:"tp_pips"`
	SLPips     float64 `json:"sl_pips"`
	ModelID    string  `json:"model_id"`
	AIFailed   bool    `json:"ai_failed"`
	Raw        string  `json:"raw,omitempty"`
}

type StrategyVote struct {
	Decision   string  `json:"decision"`
	Confidence float64 `json:"confidence"`
	TPPips     float64 `json:"tp_pips"`
	SLPips     float64 `json:"sl_pips"`
	Strategy   string  `json:"strategy"`
	Weight     float64 `json:"weight"`
}

// ExternalSignal is a pre-computed suggestion from the upstream
// rule-based layer. Either the pip or the price form of TP/SL is set.
type ExternalSignal struct {
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Price      float64 `json:"price"`
	TakeProfit float64 `json:"take_profit"`
	StopLoss   float64 `json:"stop_loss"`
	Symbol     string  `json:"symbol"`
	Source     string  `json:"source"`
}

type Decision struct {
	Action     string      `json:"action"`
	Confidence float64     `json:"confidence"`
	TPPips     float64     `json:"tp_pips"`
	SLPips     float64     `json:"sl_pips"`
	Votes      []ModelVote `json:"votes,omitempty"`
	Elapsed    float64     `json:"elapsed_seconds"`
	Reason     string      `json:"reason"`
	AIFailed   bool        `json:"ai_failed"`
}

type OrderIntent struct {
	Decision
	Symbol string  `json:"symbol"`
	Volume float64 `json:"volume"`
	UUID   string  `json:"uuid"`
	Source string  `json:"source"`
	Force  bool    `json:"force,omitempty"`
}

// Order is the normalised payload handed to the broker: volume snapped
// to the broker step, SL/TP clamped to the stops level.
type Order struct {
	OrderIntent
	Price float64 `json:"price"`
	SL    float64 `json:"sl"`
	TP    float64 `json:"tp"`
}

type TradeRecord struct {
	Time    string      `json:"time"`
	Order   OrderIntent `json:"order"`
	Retcode int         `json:"retcode"`
	DealID  string      `json:"deal_id,omitempty"`
	Filling string      `json:"filling"`
	Volume  float64     `json:"volume"`
	SL      float64     `json:"sl"`
	TP      float64     `json:"tp"`
	Comment string      `json:"comment,omitempty"`
	OK      bool        `json:"ok"`
}

type AccountInfo struct {
	Balance  float64
	Equity   float64
	Leverage int
}

type SymbolInfo struct {
	Point       float64
	Digits      int
	VolumeMin   float64
	VolumeStep  float64
	VolumeMax   float64
	StopsLevel  int
	TickValue   float64
	TickSize    float64
	ContractSz  float64
	Description string
}

type OrderRequest struct {
	Symbol  string  `json:"symbol"`
	Side    string  `json:"side"`
	Volume  float64 `json:"volume"`
	Price   float64 `json:"price"`
	SL      float64 `json:"sl"`
	TP      float64 `json:"tp"`
	Filling string  `json:"filling,omitempty"`
	Comment string  `json:"comment,omitempty"`
}

type OrderResult struct {
	Retcode int     `json:"retcode"`
	DealID  string  `json:"deal_id"`
	Comment string  `json:"comment"`
	Price   float64 `json:"price"`
}

// MetaTrader retcodes the dispatcher treats as success.
const (
	RetcodeDone   = 10009
	RetcodePlaced = 10008
)

type SendResult struct {
	OK      bool         `json:"ok"`
	Result  *OrderResult `json:"result,omitempty"`
	Volume  float64      `json:"volume"`
	Retcode int          `json:"retcode"`
	Reason  string       `json:"reason,omitempty"`
}

func Now() int64 { return time.Now().Unix() }
