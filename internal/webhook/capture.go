package webhook

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Kenny3D1/fraudpop/internal/risk"
	"github.com/Kenny3D1/fraudpop/internal/validation"
)

// CaptureRequest is the storefront fingerprint beacon body.
type CaptureRequest struct {
	Shop     string `json:"shop" binding:"required"`
	OrderID  string `json:"order_id" binding:"required"`
	DeviceID string `json:"device_id" binding:"required"`
	IP       string `json:"ip"`
}

// RegisterCaptureRoutes sets up the beacon route. Separate from the
// webhook routes: the beacon is called by storefront JavaScript, not the
// platform, and carries no HMAC.
func (h *Handler) RegisterCaptureRoutes(r *gin.RouterGroup) {
	r.POST("/capture", h.Capture)
}

// Capture handles POST /v1/capture.
func (h *Handler) Capture(c *gin.Context) {
	var req CaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	shop := validation.SanitizeShopDomain(req.Shop)
	if !validation.IsValidShopDomain(shop) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_shop_domain"})
		return
	}
	if !validation.IsValidOrderID(req.OrderID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_order_id"})
		return
	}

	ip := req.IP
	if ip == "" {
		ip = c.ClientIP()
	}

	capture := &risk.DeviceCapture{
		ShopID:    shop,
		OrderID:   req.OrderID,
		DeviceID:  validation.SanitizeString(req.DeviceID, 256),
		IP:        ip,
		UserAgent: validation.SanitizeString(c.GetHeader("User-Agent"), 512),
	}
	if err := h.risks.RecordCapture(c.Request.Context(), capture); err != nil {
		h.logger.Error("device capture failed", "shop", shop, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "capture_failed"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"ok": true})
}
