// Package webhook is the inbound ingest surface for shop platform events.
//
// The orders/create route does only three things before answering: verify
// the HMAC signature, admit the delivery against the idempotency ledger,
// and enqueue a processing job. Scoring never happens on this path; the
// platform expects an answer within seconds and retries anything slow.
package webhook

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Kenny3D1/fraudpop/internal/jobs"
	"github.com/Kenny3D1/fraudpop/internal/ledger"
	"github.com/Kenny3D1/fraudpop/internal/metrics"
	"github.com/Kenny3D1/fraudpop/internal/pipeline"
	"github.com/Kenny3D1/fraudpop/internal/risk"
	"github.com/Kenny3D1/fraudpop/internal/signature"
	"github.com/Kenny3D1/fraudpop/internal/validation"
)

// Platform webhook headers.
const (
	HeaderHMAC       = "X-Shopify-Hmac-Sha256"
	HeaderShopDomain = "X-Shopify-Shop-Domain"
	HeaderWebhookID  = "X-Shopify-Webhook-Id"
	HeaderTopic      = "X-Shopify-Topic"
)

const topicOrdersCreate = "orders/create"

// Handler provides the webhook ingest endpoints.
type Handler struct {
	ledger      ledger.Store
	queue       jobs.Queue
	risks       risk.Store
	secret      string
	maxAttempts int
	logger      *slog.Logger
}

// NewHandler creates the ingest handler.
func NewHandler(ledgerStore ledger.Store, queue jobs.Queue, riskStore risk.Store, secret string, maxAttempts int, logger *slog.Logger) *Handler {
	return &Handler{
		ledger:      ledgerStore,
		queue:       queue,
		risks:       riskStore,
		secret:      secret,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// RegisterRoutes sets up the ingest routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/orders-create", h.OrdersCreate)
}

// OrdersCreate handles POST /webhooks/orders-create.
//
// Signature verification runs on the raw request bytes, before any JSON
// decoding: a re-serialized body would not reproduce the platform's HMAC.
func (h *Handler) OrdersCreate(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, validation.MaxWebhookBody+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read_failed"})
		return
	}
	if len(raw) > validation.MaxWebhookBody {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "body_too_large"})
		return
	}

	if !signature.Verify(raw, c.GetHeader(HeaderHMAC), h.secret) {
		metrics.WebhookAdmissionsTotal.WithLabelValues("unauthorized").Inc()
		h.logger.Warn("webhook signature verification failed",
			"shop", c.GetHeader(HeaderShopDomain),
			"remote", c.ClientIP(),
		)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_signature"})
		return
	}

	shop := validation.SanitizeShopDomain(c.GetHeader(HeaderShopDomain))
	if !validation.IsValidShopDomain(shop) {
		metrics.WebhookAdmissionsTotal.WithLabelValues("malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_shop_domain"})
		return
	}

	// A signed but undecodable body is a permanent defect: answering 4xx
	// stops the platform from redelivering it forever.
	var ids struct {
		ID             json.Number `json:"id"`
		AdminGraphQLID string      `json:"admin_graphql_api_id"`
	}
	if err := json.Unmarshal(raw, &ids); err != nil {
		metrics.WebhookAdmissionsTotal.WithLabelValues("malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed_payload"})
		return
	}

	eventID := h.admissionKey(c.GetHeader(HeaderWebhookID), shop, ids.AdminGraphQLID, ids.ID.String())

	alreadySeen, err := h.ledger.Admit(c.Request.Context(), eventID, topicOrdersCreate, shop)
	if err != nil {
		h.logger.Error("webhook admission failed", "eventId", eventID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "admission_failed"})
		return
	}
	if alreadySeen {
		metrics.WebhookAdmissionsTotal.WithLabelValues("duplicate").Inc()
		c.JSON(http.StatusOK, gin.H{"ok": true, "idempotent": true})
		return
	}

	payload, err := json.Marshal(pipeline.OrderJob{
		EventID: eventID,
		ShopID:  shop,
		Topic:   topicOrdersCreate,
		Order:   raw,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue_failed"})
		return
	}
	job := &jobs.Job{
		Type:        jobs.TypeProcessOrder,
		ShopID:      shop,
		Payload:     payload,
		MaxAttempts: h.maxAttempts,
	}
	if err := h.queue.Enqueue(c.Request.Context(), job); err != nil {
		h.logger.Error("webhook enqueue failed", "eventId", eventID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue_failed"})
		return
	}

	metrics.WebhookAdmissionsTotal.WithLabelValues("accepted").Inc()
	h.logger.Info("webhook admitted", "eventId", eventID, "shop", shop, "jobId", job.ID)
	c.JSON(http.StatusAccepted, gin.H{"ok": true, "queued": true})
}

// admissionKey picks the dedup key for a delivery: the platform webhook id
// when present, otherwise an order-derived key scoped by shop, otherwise a
// synthetic id (processed, but never deduplicated).
func (h *Handler) admissionKey(webhookID, shop, graphqlID, orderID string) string {
	if webhookID != "" {
		return webhookID
	}
	if graphqlID != "" {
		return shop + "|" + graphqlID
	}
	if orderID != "" && orderID != "0" {
		return shop + "|order|" + orderID
	}
	return ledger.SyntheticEventID(topicOrdersCreate)
}
