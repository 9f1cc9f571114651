package risk

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Kenny3D1/fraudpop/internal/pagination"
	"github.com/Kenny3D1/fraudpop/internal/validation"
)

// Handler provides read endpoints over stored risk results.
type Handler struct {
	store Store
}

// NewHandler creates a risk query handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up the query routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/shops/:shop/risks", h.ListRisks)
	r.GET("/shops/:shop/orders/:orderId/risk", h.GetRisk)
	r.GET("/shops/:shop/orders/:orderId/evidence", h.GetEvidence)
}

// GetRisk handles GET /v1/shops/:shop/orders/:orderId/risk.
func (h *Handler) GetRisk(c *gin.Context) {
	shop, orderID, ok := pathParams(c)
	if !ok {
		return
	}

	r, err := h.store.Get(c.Request.Context(), shop, orderID)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"risk": r})
}

// ListRisks handles GET /v1/shops/:shop/risks.
func (h *Handler) ListRisks(c *gin.Context) {
	shop := validation.SanitizeShopDomain(c.Param("shop"))
	if !validation.IsValidShopDomain(shop) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_shop_domain"})
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return
		}
		limit = n
	}
	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cursor"})
		return
	}

	// Fetch one extra row to learn whether another page exists.
	risks, err := h.store.ListByShop(c.Request.Context(), shop, limit+1, cursor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	risks, next, hasMore := pagination.Page(risks, limit, func(r *OrderRisk) (time.Time, string) {
		return r.UpdatedAt, r.ID
	})
	if risks == nil {
		risks = []*OrderRisk{}
	}
	resp := gin.H{"risks": risks, "count": len(risks), "has_more": hasMore}
	if next != "" {
		resp["next_cursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}

// GetEvidence handles GET /v1/shops/:shop/orders/:orderId/evidence.
func (h *Handler) GetEvidence(c *gin.Context) {
	shop, orderID, ok := pathParams(c)
	if !ok {
		return
	}

	entries, err := h.store.ListEvidence(c.Request.Context(), shop, orderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	if entries == nil {
		entries = []*EvidenceEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"evidence": entries, "count": len(entries)})
}

func pathParams(c *gin.Context) (shop, orderID string, ok bool) {
	shop = validation.SanitizeShopDomain(c.Param("shop"))
	if !validation.IsValidShopDomain(shop) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_shop_domain"})
		return "", "", false
	}
	orderID = c.Param("orderId")
	if !validation.IsValidOrderID(orderID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_order_id"})
		return "", "", false
	}
	return shop, orderID, true
}
