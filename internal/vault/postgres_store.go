package vault

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed identity store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Bump upserts the counter in one atomic statement. The unique constraint on
// (kind, hash) resolves concurrent bumps without explicit locking; each
// concurrent caller's increment lands.
func (p *PostgresStore) Bump(ctx context.Context, kind Kind, hash string) (int, error) {
	var seenCount int
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO risk_identities (kind, hash, seen_count, last_seen)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (kind, hash) DO UPDATE SET
			seen_count = risk_identities.seen_count + 1,
			last_seen  = NOW()
		RETURNING seen_count
	`, kind, hash).Scan(&seenCount)
	if err != nil {
		return 0, fmt.Errorf("bump identity: %w", err)
	}
	// Post-increment count came back; the velocity signal is pre-increment.
	return seenCount - 1, nil
}

func (p *PostgresStore) Get(ctx context.Context, kind Kind, hash string) (*Identity, error) {
	id := &Identity{}
	err := p.db.QueryRowContext(ctx, `
		SELECT kind, hash, seen_count, last_seen
		FROM risk_identities WHERE kind = $1 AND hash = $2
	`, kind, hash).Scan(&id.Kind, &id.Hash, &id.SeenCount, &id.LastSeen)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return id, nil
}
