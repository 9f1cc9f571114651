package pipeline

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Kenny3D1/fraudpop/internal/scoring"
)

// orderPayload mirrors the fields of an orders/create webhook body that
// feed scoring. Everything else in the payload is ignored.
type orderPayload struct {
	ID               json.Number `json:"id"`
	AdminGraphQLID   string      `json:"admin_graphql_api_id"`
	Email            string      `json:"email"`
	ContactEmail     string      `json:"contact_email"`
	TotalPrice       string      `json:"total_price"`
	Currency         string      `json:"currency"`
	BrowserIP        string      `json:"browser_ip"`
	ClientDetails    *struct {
		BrowserIP string `json:"browser_ip"`
	} `json:"client_details"`
	BillingAddress *struct {
		CountryCode string `json:"country_code"`
	} `json:"billing_address"`
	ShippingAddress *struct {
		CountryCode string `json:"country_code"`
	} `json:"shipping_address"`
	LineItems      []json.RawMessage `json:"line_items"`
	NoteAttributes []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"note_attributes"`
}

// deviceAttribute is the note attribute the storefront snippet writes the
// fingerprint into at checkout.
const deviceAttribute = "fraudpop_device_id"

// ParseOrder extracts scoring facts from a raw orders/create payload.
// Missing optional fields come back zero: rules treat absent data as
// non-signal, so a sparse payload still scores.
func ParseOrder(shopID string, raw []byte) (scoring.OrderFacts, error) {
	var p orderPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return scoring.OrderFacts{}, fmt.Errorf("parse order payload: %w", err)
	}

	orderID := p.ID.String()
	if orderID == "" || orderID == "0" {
		if p.AdminGraphQLID != "" {
			orderID = p.AdminGraphQLID
		} else {
			return scoring.OrderFacts{}, fmt.Errorf("order payload has no id")
		}
	}

	email := p.Email
	if email == "" {
		email = p.ContactEmail
	}

	ip := p.BrowserIP
	if ip == "" && p.ClientDetails != nil {
		ip = p.ClientDetails.BrowserIP
	}

	var total float64
	if p.TotalPrice != "" {
		v, err := strconv.ParseFloat(p.TotalPrice, 64)
		if err != nil {
			return scoring.OrderFacts{}, fmt.Errorf("parse total_price %q: %w", p.TotalPrice, err)
		}
		total = v
	}

	var deviceID string
	for _, attr := range p.NoteAttributes {
		if attr.Name == deviceAttribute {
			deviceID = attr.Value
			break
		}
	}

	facts := scoring.OrderFacts{
		OrderID:       orderID,
		DeviceID:      deviceID,
		ShopID:        shopID,
		TotalPrice:    total,
		Currency:      p.Currency,
		Email:         email,
		IP:            ip,
		LineItemCount: len(p.LineItems),
	}
	if p.BillingAddress != nil {
		facts.BillingCountry = p.BillingAddress.CountryCode
	}
	if p.ShippingAddress != nil {
		facts.ShippingCountry = p.ShippingAddress.CountryCode
	}
	return facts, nil
}
