// Package scoring computes a fraud risk score for one order.
//
// Scoring is a pure function over pre-fetched facts: deterministic rules,
// pluggable external-signal adapters, and velocity counts are combined into
// a 0-100 score, a categorical verdict, an ordered reason list, and an
// evidence bundle for the audit trail. No I/O happens here.
package scoring

import "strings"

// Verdict is the categorical risk label derived from the numeric score.
type Verdict string

const (
	VerdictGreen Verdict = "green"
	VerdictAmber Verdict = "amber"
	VerdictRed   Verdict = "red"
)

// Verdict thresholds: score >= RedThreshold is red, >= AmberThreshold amber.
const (
	RedThreshold   = 70
	AmberThreshold = 30
	MaxScore       = 100
)

// OrderFacts are the order fields relevant to risk evaluation, extracted
// from the raw webhook payload before scoring.
type OrderFacts struct {
	OrderID         string  `json:"orderId"`
	ShopID          string  `json:"shopId"`
	TotalPrice      float64 `json:"totalPrice"`
	Currency        string  `json:"currency"`
	Email           string  `json:"email"`
	IP              string  `json:"ip"`
	DeviceID        string  `json:"deviceId"`
	BillingCountry  string  `json:"billingCountry"`
	ShippingCountry string  `json:"shippingCountry"`
	LineItemCount   int     `json:"lineItemCount"`
}

// IdentityFacts carry the pre-increment sighting counts for the order's
// identifiers: how many times each was seen before this event. Zero on
// first sighting.
type IdentityFacts struct {
	RepeatEmail  int `json:"repeatEmail"`
	RepeatIP     int `json:"repeatIp"`
	RepeatDevice int `json:"repeatDevice"`
}

// Facts bundles everything a rule or adapter may inspect.
type Facts struct {
	Order    OrderFacts
	Identity IdentityFacts
}

// Result is the complete outcome of scoring one order.
type Result struct {
	Score      int            `json:"score"`
	RulesScore int            `json:"rulesScore"`
	Verdict    Verdict        `json:"verdict"`
	Reasons    []string       `json:"reasons"`
	Evidence   map[string]any `json:"evidence"`
}

// VerdictFor maps a clamped score to its verdict band.
func VerdictFor(score int) Verdict {
	switch {
	case score >= RedThreshold:
		return VerdictRed
	case score >= AmberThreshold:
		return VerdictAmber
	default:
		return VerdictGreen
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// cleanReason normalizes a reason tag: trimmed, lowered, spaces to underscores.
func cleanReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(reason), " ", "_")
}

// dedupeReasons removes duplicate tags preserving first-occurrence order.
func dedupeReasons(reasons []string) []string {
	seen := make(map[string]struct{}, len(reasons))
	out := make([]string, 0, len(reasons))
	for _, r := range reasons {
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
