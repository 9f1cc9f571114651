package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestAllow_BurstThenLimit(t *testing.T) {
	l := New(Config{RequestsPerMinute: 60, BurstSize: 3, CleanupInterval: time.Minute})
	defer l.Stop()

	for i := 0; i < 3; i++ {
		if !l.Allow("shop:a") {
			t.Fatalf("request %d within burst should be allowed", i)
		}
	}
	if l.Allow("shop:a") {
		t.Error("request beyond burst should be denied")
	}
}

func TestAllow_IndependentKeys(t *testing.T) {
	l := New(Config{RequestsPerMinute: 60, BurstSize: 1, CleanupInterval: time.Minute})
	defer l.Stop()

	if !l.Allow("shop:a") {
		t.Fatal("first request for shop:a should pass")
	}
	if !l.Allow("shop:b") {
		t.Error("shop:b should not be throttled by shop:a")
	}
}

func TestAllow_Refills(t *testing.T) {
	// 600 rpm = 10 tokens/sec, so ~100ms buys a token back.
	l := New(Config{RequestsPerMinute: 600, BurstSize: 1, CleanupInterval: time.Minute})
	defer l.Stop()

	l.Allow("k")
	if l.Allow("k") {
		t.Fatal("bucket should be empty")
	}
	time.Sleep(150 * time.Millisecond)
	if !l.Allow("k") {
		t.Error("bucket should have refilled")
	}
}

func TestMiddleware_KeysByShopDomain(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := New(Config{RequestsPerMinute: 60, BurstSize: 1, CleanupInterval: time.Minute})
	defer l.Stop()

	r := gin.New()
	r.Use(l.Middleware())
	r.POST("/webhooks/orders-create", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(shop string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhooks/orders-create", nil)
		req.Header.Set("X-Shopify-Shop-Domain", shop)
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := send("a.myshopify.com"); code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", code)
	}
	if code := send("a.myshopify.com"); code != http.StatusTooManyRequests {
		t.Errorf("second request: expected 429, got %d", code)
	}
	if code := send("b.myshopify.com"); code != http.StatusOK {
		t.Errorf("other shop: expected 200, got %d", code)
	}
}
