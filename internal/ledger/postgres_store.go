package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed admission store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Admit inserts the event record. A unique-constraint conflict on event_id
// means a concurrent or earlier delivery already won the race; that is
// reported as alreadySeen, never as an error.
func (p *PostgresStore) Admit(ctx context.Context, eventID, topic, shopID string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO webhook_events (event_id, topic, shop_id, received_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, topic, shopID)
	if err != nil {
		// ON CONFLICT handles the duplicate path; a 23505 can still surface
		// from exotic serialization failures, treat it the same way.
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return true, nil
		}
		return false, fmt.Errorf("admit event: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("admit event: %w", err)
	}
	return rows == 0, nil
}

func (p *PostgresStore) MarkProcessed(ctx context.Context, eventID string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE webhook_events
		SET processed_at = NOW()
		WHERE event_id = $1 AND processed_at IS NULL
	`, eventID)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}

	// Zero rows means either already processed (fine, idempotent) or unknown.
	rows, _ := res.RowsAffected()
	if rows == 0 {
		var exists bool
		err := p.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM webhook_events WHERE event_id = $1)`, eventID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("mark processed: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, eventID string) (*Event, error) {
	ev := &Event{}
	var processedAt sql.NullTime
	err := p.db.QueryRowContext(ctx, `
		SELECT event_id, topic, shop_id, received_at, processed_at
		FROM webhook_events WHERE event_id = $1
	`, eventID).Scan(&ev.EventID, &ev.Topic, &ev.ShopID, &ev.ReceivedAt, &processedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	if processedAt.Valid {
		ev.ProcessedAt = &processedAt.Time
	}
	return ev, nil
}
