package risk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kenny3D1/fraudpop/internal/scoring"
)

func setupRouter(t *testing.T) (*MemoryStore, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := NewMemoryStore()
	router := gin.New()
	NewHandler(store).RegisterRoutes(router.Group("/v1"))
	return store, router
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGetRisk(t *testing.T) {
	store, router := setupRouter(t)

	require.NoError(t, store.Upsert(context.Background(), &OrderRisk{
		ShopID:  "demo.myshopify.com",
		OrderID: "1001",
		Score:   40,
		Verdict: scoring.VerdictAmber,
		Reasons: []string{"country_mismatch", "high_value"},
	}))

	w := get(router, "/v1/shops/demo.myshopify.com/orders/1001/risk")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Risk OrderRisk `json:"risk"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 40, resp.Risk.Score)
	assert.Equal(t, scoring.VerdictAmber, resp.Risk.Verdict)

	w = get(router, "/v1/shops/demo.myshopify.com/orders/9999/risk")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetRiskRejectsBadParams(t *testing.T) {
	_, router := setupRouter(t)

	w := get(router, "/v1/shops/demo.myshopify.com/orders/not-an-id/risk")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListRisks(t *testing.T) {
	store, router := setupRouter(t)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, store.Upsert(ctx, &OrderRisk{
			ShopID: "demo.myshopify.com", OrderID: id, Verdict: scoring.VerdictGreen,
		}))
	}

	w := get(router, "/v1/shops/demo.myshopify.com/risks?limit=2")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Risks      []OrderRisk `json:"risks"`
		Count      int         `json:"count"`
		HasMore    bool        `json:"has_more"`
		NextCursor string      `json:"next_cursor"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.True(t, resp.HasMore)
	require.NotEmpty(t, resp.NextCursor)

	// The cursor fetches the remaining page.
	w = get(router, "/v1/shops/demo.myshopify.com/risks?limit=2&cursor="+resp.NextCursor)
	require.Equal(t, http.StatusOK, w.Code)
	var page2 struct {
		Risks   []OrderRisk `json:"risks"`
		HasMore bool        `json:"has_more"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page2))
	require.Len(t, page2.Risks, 1)
	assert.False(t, page2.HasMore)
	assert.NotEqual(t, resp.Risks[0].OrderID, page2.Risks[0].OrderID)
	assert.NotEqual(t, resp.Risks[1].OrderID, page2.Risks[0].OrderID)

	w = get(router, "/v1/shops/demo.myshopify.com/risks?cursor=!!!not-a-cursor")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Empty shops answer an empty list, not null.
	w = get(router, "/v1/shops/empty.myshopify.com/risks")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"risks":[]`)

	w = get(router, "/v1/shops/demo.myshopify.com/risks?limit=0")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetEvidence(t *testing.T) {
	store, router := setupRouter(t)

	require.NoError(t, store.AppendEvidence(context.Background(), &EvidenceEntry{
		ShopID: "demo.myshopify.com", OrderID: "1001",
		Source: "input", Payload: map[string]any{"total_price": 600.0},
	}))

	w := get(router, "/v1/shops/demo.myshopify.com/orders/1001/evidence")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Evidence []EvidenceEntry `json:"evidence"`
		Count    int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "input", resp.Evidence[0].Source)
}
