package ensemble

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"mt5-ensemble-bot/internal/types"
)

const (
	defaultTPPips = 150.0
	defaultSLPips = 75.0
)

var (
	percentRe = regexp.MustCompile(`(\d{1,3})\s*%`)
	confRe    = regexp.MustCompile(`(?i)conf(?:idence)?\s*[:=]\s*([0-9]*\.?[0-9]+)`)
	tpRe      = regexp.MustCompile(`(?i)\btp\s*[:=]\s*([0-9]*\.?[0-9]+)`)
	slRe      = regexp.MustCompile(`(?i)\bsl\s*[:=]\s*([0-9]*\.?[0-9]+)`)
	numberRe  = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?`)
)

type modelReply struct {
	Decision   string  `json:"decision"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	TP         float64 `json:"tp"`
	SL         float64 `json:"sl"`
}

// ParseResponse extracts (decision, confidence, tp, sl) from arbitrary
// model output. It is total: any input yields a clamped 4-tuple, the
// worst case being HOLD with defaults.
func ParseResponse(raw string) (decision string, confidence, tp, sl float64) {
	decision, confidence, tp, sl = types.ActionHold, 0.0, defaultTPPips, defaultSLPips

	t := strings.TrimSpace(raw)
	if t == "" {
		return clampResult(decision, confidence, tp, sl)
	}

	if r, ok := parseJSONReply(t); ok {
		return clampResult(normalizeAction(pick(r.Decision, r.Action)), r.Confidence, r.TP, r.SL)
	}
	if frag := extractBraced(t); frag != "" {
		if r, ok := parseJSONReply(frag); ok {
			return clampResult(normalizeAction(pick(r.Decision, r.Action)), r.Confidence, r.TP, r.SL)
		}
	}
	return parseHeuristic(t)
}

func pick(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

func parseJSONReply(s string) (modelReply, bool) {
	var r modelReply
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return r, false
	}
	if strings.TrimSpace(r.Decision) == "" && strings.TrimSpace(r.Action) == "" {
		return r, false
	}
	return r, true
}

// extractBraced locates the first JSON object in free text using brace
// counting, tolerating an unbalanced tail by closing open braces.
func extractBraced(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inStr := false
	esc := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if esc {
			esc = false
			continue
		}
		switch c {
		case '\\':
			if inStr {
				esc = true
			}
		case '"':
			inStr = !inStr
		case '{':
			if !inStr {
				depth++
			}
		case '}':
			if !inStr {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	// unbalanced: close whatever is still open
	if depth > 0 {
		return s[start:] + strings.Repeat("}", depth)
	}
	return ""
}

func parseHeuristic(t string) (string, float64, float64, float64) {
	up := strings.ToUpper(t)
	hasBuy := strings.Contains(up, "BUY")
	hasSell := strings.Contains(up, "SELL")

	decision := types.ActionHold
	if hasBuy && !hasSell {
		decision = types.ActionBuy
	} else if hasSell && !hasBuy {
		decision = types.ActionSell
	}

	confidence := 0.5
	if m := confRe.FindStringSubmatch(t); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			if v > 1 {
				v /= 100
			}
			confidence = v
		}
	} else if m := percentRe.FindStringSubmatch(t); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			confidence = v / 100
		}
	}

	tp, sl := defaultTPPips, defaultSLPips
	tpm := tpRe.FindStringSubmatch(t)
	slm := slRe.FindStringSubmatch(t)
	if tpm != nil && slm != nil {
		tp, _ = strconv.ParseFloat(tpm[1], 64)
		sl, _ = strconv.ParseFloat(slm[1], 64)
	} else if tp2, sl2, ok := lastTwoReasonable(t); ok {
		tp, sl = tp2, sl2
	}

	if decision == types.ActionHold {
		confidence = 0.0
	}
	return clampResult(decision, confidence, tp, sl)
}

// lastTwoReasonable picks the last two numbers in [0.5, 10000] found in
// the text, interpreting them as TP then SL in order of appearance.
func lastTwoReasonable(t string) (tp, sl float64, ok bool) {
	var reasonable []float64
	for _, m := range numberRe.FindAllString(t, -1) {
		v, err := strconv.ParseFloat(m, 64)
		if err != nil {
			continue
		}
		if v >= 0.5 && v <= 10000 {
			reasonable = append(reasonable, v)
		}
	}
	if len(reasonable) < 2 {
		return 0, 0, false
	}
	return reasonable[len(reasonable)-2], reasonable[len(reasonable)-1], true
}

func normalizeAction(a string) string {
	switch strings.ToUpper(strings.TrimSpace(a)) {
	case types.ActionBuy:
		return types.ActionBuy
	case types.ActionSell:
		return types.ActionSell
	default:
		return types.ActionHold
	}
}

func clampResult(decision string, confidence, tp, sl float64) (string, float64, float64, float64) {
	if decision != types.ActionBuy && decision != types.ActionSell {
		decision = types.ActionHold
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	if tp < 1 {
		tp = defaultTPPips
	}
	if sl < 1 {
		sl = defaultSLPips
	}
	return decision, confidence, tp, sl
}
