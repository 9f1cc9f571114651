// Package risk persists per-order risk results and their audit trail.
//
// Each (shop, order) pair has at most one OrderRisk row — re-processing the
// same order overwrites the scored result in place. The evidence log is
// append-only: every processing pass adds entries and nothing is ever
// rewritten, so the full history of how a verdict came to be survives
// retries and re-scores.
package risk

import (
	"context"
	"errors"
	"time"

	"github.com/Kenny3D1/fraudpop/internal/pagination"
	"github.com/Kenny3D1/fraudpop/internal/scoring"
)

// ErrNotFound is returned when no risk row exists for the order.
var ErrNotFound = errors.New("order risk not found")

// WritebackStatus tracks whether the verdict reached the shop platform.
type WritebackStatus string

const (
	WritebackPending WritebackStatus = "pending"
	WritebackDone    WritebackStatus = "done"
	WritebackFailed  WritebackStatus = "failed"
)

// OrderRisk is the current scored result for one order. Reasons and
// Evidence come straight from the scoring engine.
type OrderRisk struct {
	ID         string          `json:"id"`
	ShopID     string          `json:"shopId"`
	OrderID    string          `json:"orderId"`
	Score      int             `json:"score"`
	RulesScore int             `json:"rulesScore"`
	Verdict    scoring.Verdict `json:"verdict"`
	Reasons    []string        `json:"reasons"`
	Evidence   map[string]any  `json:"evidence"`
	Writeback  WritebackStatus `json:"writeback"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// EvidenceEntry is one append-only audit record for an order.
type EvidenceEntry struct {
	ID        string         `json:"id"`
	ShopID    string         `json:"shopId"`
	OrderID   string         `json:"orderId"`
	Source    string         `json:"source"` // "input", "scores", "writeback"
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"createdAt"`
}

// DeviceCapture is a storefront fingerprint beacon tied to an order.
// Captures may arrive before or after the order webhook.
type DeviceCapture struct {
	ID        string    `json:"id"`
	ShopID    string    `json:"shopId"`
	OrderID   string    `json:"orderId"`
	DeviceID  string    `json:"deviceId"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists risk results, the evidence log, and device captures.
type Store interface {
	// Upsert writes the scored result for (shop, order), replacing any
	// previous result. CreatedAt of the first write is preserved.
	Upsert(ctx context.Context, r *OrderRisk) error

	// SetWriteback updates only the writeback status of an existing row.
	SetWriteback(ctx context.Context, shopID, orderID string, status WritebackStatus) error

	// Get returns the current result for (shop, order).
	Get(ctx context.Context, shopID, orderID string) (*OrderRisk, error)

	// ListByShop returns the most recently updated results for a shop,
	// resuming after the cursor position when cursor is non-nil. It may
	// return up to limit rows; callers fetch limit+1 to detect more pages.
	ListByShop(ctx context.Context, shopID string, limit int, cursor *pagination.Cursor) ([]*OrderRisk, error)

	// AppendEvidence adds one audit record. Never updates existing rows.
	AppendEvidence(ctx context.Context, e *EvidenceEntry) error

	// ListEvidence returns an order's audit trail, oldest first.
	ListEvidence(ctx context.Context, shopID, orderID string) ([]*EvidenceEntry, error)

	// RecordCapture stores a device fingerprint beacon.
	RecordCapture(ctx context.Context, c *DeviceCapture) error

	// LatestCapture returns the newest capture for (shop, order), or
	// ErrNotFound when none arrived.
	LatestCapture(ctx context.Context, shopID, orderID string) (*DeviceCapture, error)
}
