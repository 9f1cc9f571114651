package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kenny3D1/fraudpop/internal/jobs"
	"github.com/Kenny3D1/fraudpop/internal/ledger"
	"github.com/Kenny3D1/fraudpop/internal/pipeline"
	"github.com/Kenny3D1/fraudpop/internal/risk"
	"github.com/Kenny3D1/fraudpop/internal/signature"
)

const testSecret = "shared-webhook-secret"

type fixture struct {
	ledger *ledger.MemoryStore
	queue  *jobs.MemoryQueue
	risks  *risk.MemoryStore
	router *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{
		ledger: ledger.NewMemoryStore(),
		queue:  jobs.NewMemoryQueue(),
		risks:  risk.NewMemoryStore(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(f.ledger, f.queue, f.risks, testSecret, 5, logger)

	f.router = gin.New()
	h.RegisterRoutes(f.router.Group(""))
	h.RegisterCaptureRoutes(f.router.Group("/v1"))
	return f
}

func validOrderBody() []byte {
	return []byte(`{
		"id": 5678901234,
		"admin_graphql_api_id": "gid://shopify/Order/5678901234",
		"email": "buyer@example.com",
		"total_price": "600.00",
		"billing_address": {"country_code": "US"},
		"shipping_address": {"country_code": "CA"},
		"line_items": [{}]
	}`)
}

func (f *fixture) deliver(t *testing.T, body []byte, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/orders-create", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderHMAC, signature.Sign(body, testSecret))
	req.Header.Set(HeaderShopDomain, "demo.myshopify.com")
	req.Header.Set(HeaderWebhookID, "wh-123")
	req.Header.Set(HeaderTopic, "orders/create")
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestOrdersCreateAccepted(t *testing.T) {
	f := newFixture(t)

	w := f.deliver(t, validOrderBody(), nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, true, resp["queued"])

	// The admission record exists and a job carries the raw payload.
	event, err := f.ledger.Get(context.Background(), "wh-123")
	require.NoError(t, err)
	assert.Equal(t, "demo.myshopify.com", event.ShopID)

	job, err := f.queue.Claim(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, jobs.TypeProcessOrder, job.Type)

	var oj pipeline.OrderJob
	require.NoError(t, json.Unmarshal(job.Payload, &oj))
	assert.Equal(t, "wh-123", oj.EventID)
	assert.JSONEq(t, string(validOrderBody()), string(oj.Order))
}

func TestOrdersCreateDuplicateIsIdempotent(t *testing.T) {
	f := newFixture(t)

	w := f.deliver(t, validOrderBody(), nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	// The platform redelivers the same webhook id.
	w = f.deliver(t, validOrderBody(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["idempotent"])

	depth, err := f.queue.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, depth, "a redelivery must not enqueue a second job")
}

func TestOrdersCreateInvalidSignature(t *testing.T) {
	f := newFixture(t)

	w := f.deliver(t, validOrderBody(), func(r *http.Request) {
		r.Header.Set(HeaderHMAC, signature.Sign(validOrderBody(), "wrong-secret"))
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.deliver(t, validOrderBody(), func(r *http.Request) {
		r.Header.Del(HeaderHMAC)
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Nothing was admitted or enqueued.
	_, err := f.ledger.Get(context.Background(), "wh-123")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	depth, err := f.queue.Depth(context.Background())
	require.NoError(t, err)
	assert.Zero(t, depth)
}

func TestOrdersCreateTamperedBody(t *testing.T) {
	f := newFixture(t)

	// Header signs the original body; the delivered bytes differ.
	tampered := bytes.Replace(validOrderBody(), []byte("600.00"), []byte("6.00"), 1)
	w := f.deliver(t, tampered, func(r *http.Request) {
		r.Header.Set(HeaderHMAC, signature.Sign(validOrderBody(), testSecret))
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOrdersCreateMalformedPayload(t *testing.T) {
	f := newFixture(t)

	w := f.deliver(t, []byte(`{"id": broken`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrdersCreateInvalidShopDomain(t *testing.T) {
	f := newFixture(t)

	w := f.deliver(t, validOrderBody(), func(r *http.Request) {
		r.Header.Set(HeaderShopDomain, "not a domain")
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmissionKeyFallbacks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// No webhook id: the GraphQL order id keys the delivery, shop-scoped.
	w := f.deliver(t, validOrderBody(), func(r *http.Request) {
		r.Header.Del(HeaderWebhookID)
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	_, err := f.ledger.Get(ctx, "demo.myshopify.com|gid://shopify/Order/5678901234")
	assert.NoError(t, err)

	// No GraphQL id either: the numeric order id, shop-scoped.
	body := []byte(`{"id": 42}`)
	w = f.deliver(t, body, func(r *http.Request) {
		r.Header.Del(HeaderWebhookID)
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	_, err = f.ledger.Get(ctx, "demo.myshopify.com|order|42")
	assert.NoError(t, err)

	// No usable id at all: still processed, never deduplicated.
	empty := []byte(`{"email": "x@y.com"}`)
	for i := 0; i < 2; i++ {
		w = f.deliver(t, empty, func(r *http.Request) {
			r.Header.Del(HeaderWebhookID)
		})
		require.Equal(t, http.StatusAccepted, w.Code)
	}
	depth, err := f.queue.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, depth, "deliveries without ids each get their own job")
}

func TestCaptureRecordsDevice(t *testing.T) {
	f := newFixture(t)

	body := []byte(`{"shop": "demo.myshopify.com", "order_id": "1001", "device_id": "dev-abc", "ip": "203.0.113.9"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/capture", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	capture, err := f.risks.LatestCapture(context.Background(), "demo.myshopify.com", "1001")
	require.NoError(t, err)
	assert.Equal(t, "dev-abc", capture.DeviceID)
	assert.Equal(t, "203.0.113.9", capture.IP)
	assert.Equal(t, "Mozilla/5.0", capture.UserAgent)
}

func TestCaptureRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	cases := []string{
		`{}`,
		`{"shop": "javascript:alert(1)", "order_id": "1", "device_id": "d"}`,
		`{"shop": "demo.myshopify.com", "order_id": "DROP TABLE", "device_id": "d"}`,
	}
	for _, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/v1/capture", bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}
