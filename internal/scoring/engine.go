package scoring

// Engine combines rule findings and adapter signals into one Result.
// It holds no mutable state; Score is safe for concurrent use.
type Engine struct {
	rules    []Rule
	adapters AdapterSet
}

// NewEngine creates an engine with the given rules and adapters.
func NewEngine(rules []Rule, adapters AdapterSet) *Engine {
	validateRules(rules)
	return &Engine{rules: rules, adapters: adapters}
}

// NewDefaultEngine creates an engine with the built-in rules and adapters.
func NewDefaultEngine(cfg RuleConfig) *Engine {
	return NewEngine(DefaultRules(cfg), DefaultAdapters())
}

// Score evaluates one order. Pure: identical facts always produce an
// identical result, and the result score is always within [0, 100].
func (e *Engine) Score(order OrderFacts, identity IdentityFacts) *Result {
	facts := &Facts{Order: order, Identity: identity}

	// Rules: additive, each fires at most once.
	rulesSum := 0
	reasons := make([]string, 0, len(e.rules))
	ruleEvidence := map[string]any{
		"billing_country":  order.BillingCountry,
		"shipping_country": order.ShippingCountry,
		"total_price":      order.TotalPrice,
		"line_item_count":  order.LineItemCount,
	}
	fired := make([]string, 0, len(e.rules))
	for _, rule := range e.rules {
		finding := rule.Evaluate(facts)
		if finding == nil {
			continue
		}
		rulesSum += finding.Weight
		reasons = append(reasons, cleanReason(finding.Reason))
		fired = append(fired, rule.Name())
	}
	ruleEvidence["fired"] = fired

	// Adapters: capped, fail-soft, deterministic order (email, ip, device).
	adapterSum := 0
	adapterEvidence := map[string]any{}
	runAdapters := func(adapters []Adapter, value string) {
		for _, a := range adapters {
			sig := a.Score(value)
			contribution := clamp(sig.Contribution, 0, a.Cap())
			adapterSum += contribution
			if reason := cleanReason(sig.Reason); reason != "" {
				reasons = append(reasons, reason)
			}
			adapterEvidence[a.Name()] = map[string]any{
				"contribution": contribution,
				"evidence":     sig.Evidence,
			}
		}
	}
	runAdapters(e.adapters.Email, order.Email)
	runAdapters(e.adapters.IP, order.IP)
	runAdapters(e.adapters.Device, order.DeviceID)

	score := clamp(rulesSum+adapterSum, 0, MaxScore)
	rulesScore := clamp(rulesSum, 0, MaxScore)

	return &Result{
		Score:      score,
		RulesScore: rulesScore,
		Verdict:    VerdictFor(score),
		Reasons:    dedupeReasons(reasons),
		Evidence: map[string]any{
			"rules":    ruleEvidence,
			"adapters": adapterEvidence,
			"velocity": map[string]any{
				"repeat_email":  identity.RepeatEmail,
				"repeat_ip":     identity.RepeatIP,
				"repeat_device": identity.RepeatDevice,
			},
		},
	}
}
