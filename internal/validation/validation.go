// Package validation provides input validation helpers for the webhook ingest path.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxWebhookBody is the maximum inbound webhook body size (1MB).
// Order payloads are a few KB; anything near the cap is hostile.
const MaxWebhookBody = 1 << 20

// MaxStringLength is the maximum length for free-form string fields
const MaxStringLength = 10000

var (
	// shopDomainRegex validates store domains like example.myshopify.com
	shopDomainRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*(\.[a-z0-9][a-z0-9-]*)+$`)
	// orderIDRegex validates provider order identifiers (numeric or gid form)
	orderIDRegex = regexp.MustCompile(`^(\d+|gid://[a-zA-Z0-9/._-]+)$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidShopDomain checks if a string looks like a store domain.
func IsValidShopDomain(shop string) bool {
	shop = strings.ToLower(strings.TrimSpace(shop))
	if shop == "" || len(shop) > 255 {
		return false
	}
	return shopDomainRegex.MatchString(shop)
}

// IsValidOrderID checks if a string is a plausible order identifier.
func IsValidOrderID(id string) bool {
	return id != "" && len(id) <= 255 && orderIDRegex.MatchString(id)
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)

	if len(s) > maxLen {
		s = s[:maxLen]
	}

	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	return s
}

// SanitizeShopDomain normalizes a shop domain header value.
// Returns "" if the value does not look like a domain at all.
func SanitizeShopDomain(shop string) string {
	shop = strings.ToLower(SanitizeString(shop, 255))
	if !shopDomainRegex.MatchString(shop) {
		return ""
	}
	return shop
}
