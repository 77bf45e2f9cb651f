package ensemble

import (
	"strings"
	"testing"

	"mt5-ensemble-bot/internal/types"
)

func TestParseResponseCleanJSON(t *testing.T) {
	raw := `{"decision":"BUY","confidence":0.8,"tp":120,"sl":60}`

	d, conf, tp, sl := ParseResponse(raw)
	if d != types.ActionBuy {
		t.Errorf("Expected BUY, got %s", d)
	}
	if conf != 0.8 {
		t.Errorf("Expected confidence 0.8, got %f", conf)
	}
	if tp != 120 || sl != 60 {
		t.Errorf("Expected tp=120 sl=60, got tp=%f sl=%f", tp, sl)
	}
}

func TestParseResponseActionAlias(t *testing.T) {
	raw := `{"action":"sell","confidence":0.6}`

	d, conf, tp, sl := ParseResponse(raw)
	if d != types.ActionSell {
		t.Errorf("Expected SELL, got %s", d)
	}
	if conf != 0.6 {
		t.Errorf("Expected confidence 0.6, got %f", conf)
	}
	// missing tp/sl fall back to defaults
	if tp != 150 || sl != 75 {
		t.Errorf("Expected default tp=150 sl=75, got tp=%f sl=%f", tp, sl)
	}
}

func TestParseResponseJSONEmbeddedInProse(t *testing.T) {
	raw := "Sure! Based on the chart I would say:\n" +
		`{"decision":"SELL","confidence":0.7,"tp":90,"sl":45}` +
		"\nLet me know if you need anything else."

	d, conf, tp, sl := ParseResponse(raw)
	if d != types.ActionSell {
		t.Errorf("Expected SELL, got %s", d)
	}
	if conf != 0.7 || tp != 90 || sl != 45 {
		t.Errorf("Unexpected tuple: conf=%f tp=%f sl=%f", conf, tp, sl)
	}
}

func TestParseResponseUnbalancedBraces(t *testing.T) {
	// truncated model output: closing brace never arrives
	raw := `here you go {"decision":"BUY","confidence":0.55,"tp":110,"sl":55`

	d, conf, _, _ := ParseResponse(raw)
	if d != types.ActionBuy {
		t.Errorf("Expected BUY from repaired JSON, got %s", d)
	}
	if conf != 0.55 {
		t.Errorf("Expected confidence 0.55, got %f", conf)
	}
}

func TestParseResponseKeywordHeuristic(t *testing.T) {
	d, conf, tp, sl := ParseResponse("I think you should BUY here, confidence: 0.65, tp: 130, sl: 70")
	if d != types.ActionBuy {
		t.Errorf("Expected BUY, got %s", d)
	}
	if conf != 0.65 {
		t.Errorf("Expected confidence 0.65, got %f", conf)
	}
	if tp != 130 || sl != 70 {
		t.Errorf("Expected tp=130 sl=70, got tp=%f sl=%f", tp, sl)
	}
}

func TestParseResponsePercentConfidence(t *testing.T) {
	_, conf, _, _ := ParseResponse("SELL with 80% certainty")
	if conf != 0.8 {
		t.Errorf("Expected confidence 0.8 from percentage, got %f", conf)
	}
}

func TestParseResponseConflictingKeywords(t *testing.T) {
	d, conf, _, _ := ParseResponse("you could BUY or SELL depending on the session")
	if d != types.ActionHold {
		t.Errorf("Expected HOLD when both keywords present, got %s", d)
	}
	if conf != 0.0 {
		t.Errorf("Expected HOLD confidence 0.0, got %f", conf)
	}
}

func TestParseResponseLastTwoNumbers(t *testing.T) {
	// no tp:/sl: labels, the last two reasonable numbers are taken in order
	_, _, tp, sl := ParseResponse("BUY. Target around 200 pips, protect at 100")
	if tp != 200 || sl != 100 {
		t.Errorf("Expected tp=200 sl=100, got tp=%f sl=%f", tp, sl)
	}
}

func TestParseResponseEmptyAndGarbage(t *testing.T) {
	for _, raw := range []string{"", "   ", "lorem ipsum dolor", strings.Repeat("x", 5000)} {
		d, conf, tp, sl := ParseResponse(raw)
		if d != types.ActionHold {
			t.Errorf("Expected HOLD for input of %d bytes, got %s", len(raw), d)
		}
		if conf != 0.0 {
			t.Errorf("Expected confidence 0.0, got %f", conf)
		}
		if tp != 150 || sl != 75 {
			t.Errorf("Expected defaults tp=150 sl=75, got tp=%f sl=%f", tp, sl)
		}
	}
}

func TestParseResponseClamping(t *testing.T) {
	d, conf, tp, sl := ParseResponse(`{"decision":"BUY","confidence":7.5,"tp":0.2,"sl":-3}`)
	if d != types.ActionBuy {
		t.Errorf("Expected BUY, got %s", d)
	}
	if conf != 1.0 {
		t.Errorf("Expected confidence clamped to 1.0, got %f", conf)
	}
	if tp != 150 || sl != 75 {
		t.Errorf("Expected sub-pip tp/sl replaced with defaults, got tp=%f sl=%f", tp, sl)
	}
}
