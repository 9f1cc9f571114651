package scoring

import "testing"

func defaultFacts() *Facts {
	return &Facts{
		Order: OrderFacts{
			OrderID:         "5678901234",
			ShopID:          "demo.myshopify.com",
			TotalPrice:      100,
			Currency:        "USD",
			Email:           "buyer@example.com",
			IP:              "203.0.113.9",
			BillingCountry:  "US",
			ShippingCountry: "US",
			LineItemCount:   1,
		},
	}
}

func TestCountryMismatchRule(t *testing.T) {
	r := &CountryMismatchRule{}

	f := defaultFacts()
	f.Order.BillingCountry = "US"
	f.Order.ShippingCountry = "CA"
	finding := r.Evaluate(f)
	if finding == nil || finding.Weight != 25 {
		t.Fatalf("expected +25 finding, got %+v", finding)
	}

	// Case-insensitive comparison.
	f.Order.ShippingCountry = "us"
	if r.Evaluate(f) != nil {
		t.Error("us vs US should not mismatch")
	}

	// Both sides required.
	f.Order.BillingCountry = ""
	f.Order.ShippingCountry = "CA"
	if r.Evaluate(f) != nil {
		t.Error("missing billing country should not fire")
	}
}

func TestHighValueRule(t *testing.T) {
	r := &HighValueRule{Amount: 500}

	f := defaultFacts()
	f.Order.TotalPrice = 600
	if finding := r.Evaluate(f); finding == nil || finding.Weight != 15 {
		t.Fatalf("expected +15 finding, got %+v", finding)
	}

	// Strictly greater than: threshold itself does not fire.
	f.Order.TotalPrice = 500
	if r.Evaluate(f) != nil {
		t.Error("total equal to threshold should not fire")
	}
}

func TestHighItemCountRule(t *testing.T) {
	r := &HighItemCountRule{Count: 5}

	f := defaultFacts()
	f.Order.LineItemCount = 5
	if finding := r.Evaluate(f); finding == nil || finding.Weight != 10 {
		t.Fatalf("count at threshold should fire, got %+v", finding)
	}

	f.Order.LineItemCount = 4
	if r.Evaluate(f) != nil {
		t.Error("count below threshold should not fire")
	}
}

func TestEmailTLDRule(t *testing.T) {
	r := &EmailTLDRule{Denylist: []string{".ru", ".cn"}}

	f := defaultFacts()
	f.Order.Email = "buyer@mail.RU"
	if finding := r.Evaluate(f); finding == nil || finding.Weight != 10 {
		t.Fatalf("denylisted TLD should fire, got %+v", finding)
	}

	f.Order.Email = "buyer@example.com"
	if r.Evaluate(f) != nil {
		t.Error("ordinary TLD should not fire")
	}

	f.Order.Email = ""
	if r.Evaluate(f) != nil {
		t.Error("missing email should not fire")
	}
}

func TestBogusIPRule(t *testing.T) {
	r := &BogusIPRule{}

	for _, ip := range []string{"0.0.0.0", "127.0.0.1", "::1"} {
		f := defaultFacts()
		f.Order.IP = ip
		if finding := r.Evaluate(f); finding == nil || finding.Weight != 20 {
			t.Errorf("sentinel %s should fire, got %+v", ip, finding)
		}
	}

	f := defaultFacts()
	f.Order.IP = "203.0.113.9"
	if r.Evaluate(f) != nil {
		t.Error("public IP should not fire")
	}
}

func TestEmailVelocityRule(t *testing.T) {
	r := &EmailVelocityRule{Threshold: 3}

	// Pre-increment count of 4 exceeds threshold 3.
	f := defaultFacts()
	f.Identity.RepeatEmail = 4
	if finding := r.Evaluate(f); finding == nil || finding.Weight != 20 {
		t.Fatalf("4 prior sightings should fire, got %+v", finding)
	}

	// 2 prior sightings does not.
	f.Identity.RepeatEmail = 2
	if r.Evaluate(f) != nil {
		t.Error("2 prior sightings should not fire")
	}

	// Threshold itself does not fire (strictly greater).
	f.Identity.RepeatEmail = 3
	if r.Evaluate(f) != nil {
		t.Error("exactly threshold sightings should not fire")
	}
}

func TestValidateRules_PanicsOnDuplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate rule name")
		}
	}()
	validateRules([]Rule{&BogusIPRule{}, &BogusIPRule{}})
}
