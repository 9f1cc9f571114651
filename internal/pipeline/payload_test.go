package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderFull(t *testing.T) {
	raw := []byte(`{
		"id": 5678901234,
		"admin_graphql_api_id": "gid://shopify/Order/5678901234",
		"email": "buyer@example.com",
		"total_price": "600.00",
		"currency": "USD",
		"browser_ip": "203.0.113.9",
		"billing_address": {"country_code": "US"},
		"shipping_address": {"country_code": "CA"},
		"line_items": [{"id": 1}, {"id": 2}]
	}`)

	facts, err := ParseOrder("demo.myshopify.com", raw)
	require.NoError(t, err)
	assert.Equal(t, "5678901234", facts.OrderID)
	assert.Equal(t, "demo.myshopify.com", facts.ShopID)
	assert.Equal(t, 600.0, facts.TotalPrice)
	assert.Equal(t, "USD", facts.Currency)
	assert.Equal(t, "buyer@example.com", facts.Email)
	assert.Equal(t, "203.0.113.9", facts.IP)
	assert.Equal(t, "US", facts.BillingCountry)
	assert.Equal(t, "CA", facts.ShippingCountry)
	assert.Equal(t, 2, facts.LineItemCount)
}

func TestParseOrderFallbacks(t *testing.T) {
	raw := []byte(`{
		"id": 42,
		"contact_email": "fallback@example.com",
		"client_details": {"browser_ip": "198.51.100.7"}
	}`)

	facts, err := ParseOrder("demo.myshopify.com", raw)
	require.NoError(t, err)
	assert.Equal(t, "fallback@example.com", facts.Email, "contact_email backs up email")
	assert.Equal(t, "198.51.100.7", facts.IP, "client_details backs up browser_ip")
	assert.Zero(t, facts.TotalPrice)
	assert.Empty(t, facts.BillingCountry)
}

func TestParseOrderDeviceIDFromNoteAttributes(t *testing.T) {
	raw := []byte(`{
		"id": 42,
		"note_attributes": [
			{"name": "gift_message", "value": "happy birthday"},
			{"name": "fraudpop_device_id", "value": "dev-inline-7"}
		]
	}`)

	facts, err := ParseOrder("demo.myshopify.com", raw)
	require.NoError(t, err)
	assert.Equal(t, "dev-inline-7", facts.DeviceID)

	// Orders without the attribute carry no device signal.
	facts, err = ParseOrder("demo.myshopify.com", []byte(`{"id": 42, "note_attributes": [{"name": "gift_message", "value": "hi"}]}`))
	require.NoError(t, err)
	assert.Empty(t, facts.DeviceID)
}

func TestParseOrderGraphQLIDFallback(t *testing.T) {
	raw := []byte(`{"admin_graphql_api_id": "gid://shopify/Order/99"}`)
	facts, err := ParseOrder("demo.myshopify.com", raw)
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/Order/99", facts.OrderID)
}

func TestParseOrderErrors(t *testing.T) {
	_, err := ParseOrder("demo.myshopify.com", []byte(`not json`))
	assert.Error(t, err)

	_, err = ParseOrder("demo.myshopify.com", []byte(`{"email": "x@y.com"}`))
	assert.Error(t, err, "an order without any id cannot be keyed")

	_, err = ParseOrder("demo.myshopify.com", []byte(`{"id": 1, "total_price": "abc"}`))
	assert.Error(t, err)
}
