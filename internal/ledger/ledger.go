// Package ledger records webhook event admissions for exactly-once processing.
//
// Every inbound delivery is keyed by its provider-assigned event id. The
// unique constraint on that id is the single source of truth for "already
// admitted": concurrent duplicate deliveries race on the insert and exactly
// one wins. Records are never deleted; completion is marked by a timestamp.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Kenny3D1/fraudpop/internal/idgen"
)

// ErrNotFound is returned when no event exists for an id.
var ErrNotFound = errors.New("event not found")

// Event is one admitted webhook delivery.
type Event struct {
	EventID     string     `json:"eventId"`
	Topic       string     `json:"topic"`
	ShopID      string     `json:"shopId"`
	ReceivedAt  time.Time  `json:"receivedAt"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
}

// Store persists admission records.
type Store interface {
	// Admit records the event id atomically. Returns alreadySeen=true when a
	// record for eventID exists (this is not an error: duplicate deliveries
	// are expected). The insert-or-conflict must be a single atomic operation.
	Admit(ctx context.Context, eventID, topic, shopID string) (alreadySeen bool, err error)

	// MarkProcessed stamps the event as completed. Idempotent: calling it
	// again only refreshes nothing (the first timestamp wins).
	MarkProcessed(ctx context.Context, eventID string) error

	// Get returns the admission record for an event id.
	Get(ctx context.Context, eventID string) (*Event, error)
}

// SyntheticEventID builds a guaranteed-unique admission key for deliveries
// that arrive without a provider event id. Processing still happens, but the
// delivery is explicitly non-deduplicated: a redelivery gets a fresh id.
func SyntheticEventID(topic string) string {
	return fmt.Sprintf("%s-noid-%d-%s", topic, time.Now().UnixNano(), idgen.WithPrefix(""))
}
