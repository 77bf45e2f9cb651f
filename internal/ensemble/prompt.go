package ensemble

import (
	"encoding/json"
	"fmt"
	"math"

	"mt5-ensemble-bot/internal/types"
)

const promptBars = 20

// PromptFeatures is the deterministic view of a snapshot the models see.
type PromptFeatures struct {
	Symbol     string       `json:"symbol"`
	LastClose  float64      `json:"last_close"`
	PrevClose  float64      `json:"prev_close"`
	Return1    float64      `json:"return_1"`
	Volatility float64      `json:"volatility"`
	TrendShort float64      `json:"trend_short"`
	TrendLong  float64      `json:"trend_long"`
	Bid        float64      `json:"bid"`
	Ask        float64      `json:"ask"`
	Bars       [][5]float64 `json:"bars"`
}

// BuildFeatures derives prompt features from a snapshot. Same snapshot,
// same features.
func BuildFeatures(snap *types.MarketSnapshot) PromptFeatures {
	f := PromptFeatures{
		Symbol:    snap.Symbol,
		LastClose: snap.LastClose(),
		PrevClose: snap.PrevClose(),
		Bid:       snap.Tick.Bid,
		Ask:       snap.Tick.Ask,
	}
	if f.PrevClose != 0 {
		f.Return1 = (f.LastClose - f.PrevClose) / f.PrevClose
	}

	closes := make([]float64, len(snap.Candles))
	for i, c := range snap.Candles {
		closes[i] = c.Close
	}
	f.Volatility = rollingStd(closes, 14)
	f.TrendShort = tailMean(closes, 5)
	f.TrendLong = tailMean(closes, 20)

	start := len(snap.Candles) - promptBars
	if start < 0 {
		start = 0
	}
	for _, c := range snap.Candles[start:] {
		f.Bars = append(f.Bars, [5]float64{c.Open, c.High, c.Low, c.Close, c.Vol})
	}
	return f
}

// BuildPrompt renders the JSON prompt sent to every model. Payloads
// over maxChars are truncated at the head so the most recent context
// survives.
func BuildPrompt(snap *types.MarketSnapshot, maxChars int) string {
	f := BuildFeatures(snap)
	fb, _ := json.Marshal(f)

	prompt := fmt.Sprintf(
		"You are a forex trading model. Analyze the market state below and respond ONLY with compact JSON: "+
			`{"decision":"BUY"|"SELL","confidence":0.5-1.0,"tp":<take profit pips>,"sl":<stop loss pips>}`+
			"\nMarket state: %s", string(fb))

	if maxChars > 0 && len(prompt) > maxChars {
		prompt = prompt[len(prompt)-maxChars:]
	}
	return prompt
}

func tailMean(vals []float64, n int) float64 {
	if len(vals) == 0 {
		return 0
	}
	if n > len(vals) {
		n = len(vals)
	}
	sum := 0.0
	for _, v := range vals[len(vals)-n:] {
		sum += v
	}
	return sum / float64(n)
}

func rollingStd(vals []float64, n int) float64 {
	if len(vals) < 2 {
		return 0
	}
	if n > len(vals) {
		n = len(vals)
	}
	w := vals[len(vals)-n:]
	m := tailMean(w, len(w))
	s := 0.0
	for _, v := range w {
		d := v - m
		s += d * d
	}
	return math.Sqrt(s / float64(len(w)))
}
