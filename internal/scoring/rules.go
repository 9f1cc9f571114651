package scoring

import (
	"fmt"
	"strings"
)

// Finding is the outcome of a rule that fired.
type Finding struct {
	Weight int
	Reason string
}

// Rule is one deterministic risk signal. Evaluate returns nil when the rule
// does not apply; each rule fires at most once per scoring call.
type Rule interface {
	Name() string
	Evaluate(f *Facts) *Finding
}

// RuleConfig carries the tunable thresholds for the built-in rules.
type RuleConfig struct {
	HighValueAmount   float64  // total price strictly above this fires high_value
	HighItemCount     int      // line item count at or above this fires high_item_count
	VelocityThreshold int      // prior email sightings strictly above this fires email_high_velocity
	EmailTLDDenylist  []string // domain suffixes like ".ru"
}

// DefaultRuleConfig mirrors the production tuning.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		HighValueAmount:   500,
		HighItemCount:     5,
		VelocityThreshold: 3,
		EmailTLDDenylist:  []string{".ru", ".cn"},
	}
}

// DefaultRules returns the built-in rule set.
func DefaultRules(cfg RuleConfig) []Rule {
	return []Rule{
		&CountryMismatchRule{},
		&HighValueRule{Amount: cfg.HighValueAmount},
		&HighItemCountRule{Count: cfg.HighItemCount},
		&EmailTLDRule{Denylist: cfg.EmailTLDDenylist},
		&BogusIPRule{},
		&EmailVelocityRule{Threshold: cfg.VelocityThreshold},
	}
}

// ---------------------------------------------------------------------------
// CountryMismatchRule: billing and shipping country differ
// ---------------------------------------------------------------------------

type CountryMismatchRule struct{}

func (r *CountryMismatchRule) Name() string { return "country_mismatch" }

func (r *CountryMismatchRule) Evaluate(f *Facts) *Finding {
	b := strings.ToUpper(strings.TrimSpace(f.Order.BillingCountry))
	s := strings.ToUpper(strings.TrimSpace(f.Order.ShippingCountry))
	if b == "" || s == "" {
		return nil // need both to compare
	}
	if b != s {
		return &Finding{Weight: 25, Reason: r.Name()}
	}
	return nil
}

// ---------------------------------------------------------------------------
// HighValueRule: total price above the configured amount
// ---------------------------------------------------------------------------

type HighValueRule struct {
	Amount float64
}

func (r *HighValueRule) Name() string { return "high_value" }

func (r *HighValueRule) Evaluate(f *Facts) *Finding {
	if f.Order.TotalPrice > r.Amount {
		return &Finding{Weight: 15, Reason: r.Name()}
	}
	return nil
}

// ---------------------------------------------------------------------------
// HighItemCountRule: unusually long line item list
// ---------------------------------------------------------------------------

type HighItemCountRule struct {
	Count int
}

func (r *HighItemCountRule) Name() string { return "high_item_count" }

func (r *HighItemCountRule) Evaluate(f *Facts) *Finding {
	if r.Count > 0 && f.Order.LineItemCount >= r.Count {
		return &Finding{Weight: 10, Reason: r.Name()}
	}
	return nil
}

// ---------------------------------------------------------------------------
// EmailTLDRule: email domain suffix on the denylist
// ---------------------------------------------------------------------------

type EmailTLDRule struct {
	Denylist []string
}

func (r *EmailTLDRule) Name() string { return "suspicious_email_tld" }

func (r *EmailTLDRule) Evaluate(f *Facts) *Finding {
	email := strings.ToLower(strings.TrimSpace(f.Order.Email))
	if email == "" {
		return nil
	}
	for _, tld := range r.Denylist {
		if strings.HasSuffix(email, strings.ToLower(tld)) {
			return &Finding{Weight: 10, Reason: r.Name()}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// BogusIPRule: sentinel addresses that no real buyer has
// ---------------------------------------------------------------------------

var bogusIPs = map[string]struct{}{
	"0.0.0.0":   {},
	"127.0.0.1": {},
	"::1":       {},
}

type BogusIPRule struct{}

func (r *BogusIPRule) Name() string { return "bogus_ip" }

func (r *BogusIPRule) Evaluate(f *Facts) *Finding {
	if _, ok := bogusIPs[strings.TrimSpace(f.Order.IP)]; ok {
		return &Finding{Weight: 20, Reason: r.Name()}
	}
	return nil
}

// ---------------------------------------------------------------------------
// EmailVelocityRule: email hash seen too often before this order
// ---------------------------------------------------------------------------

type EmailVelocityRule struct {
	Threshold int
}

func (r *EmailVelocityRule) Name() string { return "email_high_velocity" }

// Evaluate fires on the pre-increment count: the current sighting does not
// count against itself.
func (r *EmailVelocityRule) Evaluate(f *Facts) *Finding {
	if f.Identity.RepeatEmail > r.Threshold {
		return &Finding{Weight: 20, Reason: r.Name()}
	}
	return nil
}

// validateRules panics at wire-up time if two rules share a name; reasons
// would silently collapse in the dedupe pass otherwise.
func validateRules(rules []Rule) {
	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if _, ok := seen[r.Name()]; ok {
			panic(fmt.Sprintf("scoring: duplicate rule name %q", r.Name()))
		}
		seen[r.Name()] = struct{}{}
	}
}
