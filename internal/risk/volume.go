package risk

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"mt5-ensemble-bot/internal/types"
)

// Rejection is a structured pre-trade failure. Callers log and skip;
// they must not retry immediately.
type Rejection struct {
	Code   string
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return r.Code
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Detail)
}

type NormaliserConfig struct {
	PerTradeRiskPct float64 // fraction of balance risked per trade, in percent
	PipValueEst     float64 // fallback pip value per lot when the broker reports no tick value
	MaxVolume       float64 // policy cap independent of broker limits
}

// Normaliser turns a requested volume into a broker-legal one: clamped
// to broker and policy limits, floored to the volume step, rounded to
// the step precision. Applying it twice is a no-op.
type Normaliser struct {
	cfg NormaliserConfig
}

func NewNormaliser(cfg NormaliserConfig) *Normaliser {
	if cfg.PipValueEst <= 0 {
		cfg.PipValueEst = 10.0
	}
	return &Normaliser{cfg: cfg}
}

func (n *Normaliser) Volume(requested float64, si *types.SymbolInfo, acct *types.AccountInfo, slPips float64) (float64, error) {
	if si.VolumeStep <= 0 || si.VolumeMin <= 0 {
		return 0, &Rejection{Code: "broker_constraints_missing"}
	}

	cap := si.VolumeMax
	if n.cfg.MaxVolume > 0 && n.cfg.MaxVolume < cap {
		cap = n.cfg.MaxVolume
	}
	if acct != nil && acct.Balance > 0 && slPips > 0 {
		riskBudget := math.Max(1.0, acct.Balance*n.cfg.PerTradeRiskPct/100.0)
		riskCap := riskBudget / (slPips * n.pipValue(si))
		if riskCap < cap {
			cap = riskCap
		}
	}
	if cap < si.VolumeMin {
		return 0, &Rejection{
			Code:   "volume_cap_below_minimum",
			Detail: fmt.Sprintf("cap=%.4f min=%.4f", cap, si.VolumeMin),
		}
	}

	v := requested
	if v < si.VolumeMin {
		v = si.VolumeMin
	}
	if v > cap {
		v = cap
	}

	// floor to step, never ceil
	dv := decimal.NewFromFloat(v)
	step := decimal.NewFromFloat(si.VolumeStep)
	steps := dv.Div(step).Floor()
	snapped := steps.Mul(step).Round(int32(stepPrecision(si.VolumeStep)))

	out, _ := snapped.Float64()
	if out < si.VolumeMin {
		out = si.VolumeMin
	}
	if out <= 0 {
		return 0, &Rejection{Code: "degenerate_volume", Detail: fmt.Sprintf("requested=%.4f", requested)}
	}
	return out, nil
}

// pipValue prefers the broker's tick value scaled to a pip; the config
// estimate is the fallback.
func (n *Normaliser) pipValue(si *types.SymbolInfo) float64 {
	if si.TickValue > 0 && si.TickSize > 0 {
		pip := 10 * si.Point
		if pip <= 0 {
			return n.cfg.PipValueEst
		}
		return si.TickValue * (pip / si.TickSize)
	}
	return n.cfg.PipValueEst
}

func stepPrecision(step float64) int {
	d := decimal.NewFromFloat(step)
	return int(-d.Exponent())
}

// AdjustStops shifts SL/TP outward to respect the broker's minimum
// stop distance and rounds both to the symbol's digits. Stops already
// beyond the minimum distance are left untouched.
func AdjustStops(side string, price, sl, tp float64, si *types.SymbolInfo) (float64, float64, error) {
	minDist := float64(si.StopsLevel) * si.Point

	if sl > 0 && math.Abs(price-sl) < minDist {
		if side == types.ActionBuy {
			sl = price - minDist
		} else {
			sl = price + minDist
		}
	}
	if tp > 0 && math.Abs(tp-price) < minDist {
		if side == types.ActionBuy {
			tp = price + minDist
		} else {
			tp = price - minDist
		}
	}

	sl = roundDigits(sl, si.Digits)
	tp = roundDigits(tp, si.Digits)

	if sl > 0 && tp > 0 {
		wrongSide := (side == types.ActionBuy && (sl >= price || tp <= price)) ||
			(side == types.ActionSell && (sl <= price || tp >= price))
		if wrongSide {
			return 0, 0, &Rejection{
				Code:   "stops_unresolvable",
				Detail: fmt.Sprintf("side=%s price=%v sl=%v tp=%v", side, price, sl, tp),
			}
		}
	}
	return sl, tp, nil
}

func roundDigits(v float64, digits int) float64 {
	if digits <= 0 {
		return v
	}
	d := decimal.NewFromFloat(v).Round(int32(digits))
	out, _ := d.Float64()
	return out
}
