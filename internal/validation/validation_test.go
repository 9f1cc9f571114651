package validation

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestIsValidShopDomain(t *testing.T) {
	valid := []string{
		"demo.myshopify.com",
		"my-store.myshopify.com",
		"shop.example.co.uk",
	}
	for _, s := range valid {
		if !IsValidShopDomain(s) {
			t.Errorf("expected %q to be valid", s)
		}
	}

	invalid := []string{
		"",
		"no-dots",
		"-leading.myshopify.com",
		"spaces in.domain.com",
		"javascript://evil",
		strings.Repeat("a", 300) + ".com",
	}
	for _, s := range invalid {
		if IsValidShopDomain(s) {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}

func TestIsValidOrderID(t *testing.T) {
	if !IsValidOrderID("5678901234") {
		t.Error("numeric id should be valid")
	}
	if !IsValidOrderID("gid://shopify/Order/5678901234") {
		t.Error("gid should be valid")
	}
	if IsValidOrderID("") || IsValidOrderID("DROP TABLE") {
		t.Error("junk should be invalid")
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello\x00world  ", 100); got != "helloworld" {
		t.Errorf("got %q", got)
	}
	if got := SanitizeString("abcdef", 3); got != "abc" {
		t.Errorf("expected truncation, got %q", got)
	}
}

func TestSanitizeShopDomain(t *testing.T) {
	if got := SanitizeShopDomain("  DEMO.Myshopify.COM "); got != "demo.myshopify.com" {
		t.Errorf("got %q", got)
	}
	if got := SanitizeShopDomain("<script>"); got != "" {
		t.Errorf("expected empty for junk, got %q", got)
	}
}

func TestRequestSizeMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestSizeMiddleware(16))
	r.POST("/hook", func(c *gin.Context) {
		body := make([]byte, 64)
		if _, err := c.Request.Body.Read(body); err != nil && err.Error() == "http: request body too large" {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/hook", bytes.NewReader(bytes.Repeat([]byte("x"), 64)))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}
