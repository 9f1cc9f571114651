package risk

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Kenny3D1/fraudpop/internal/idgen"
	"github.com/Kenny3D1/fraudpop/internal/pagination"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed risk store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Upsert replaces the scored result for (shop, order) in one statement.
// The unique constraint on (shop_id, order_id) makes concurrent re-scores
// last-write-wins without explicit locking.
func (p *PostgresStore) Upsert(ctx context.Context, r *OrderRisk) error {
	reasonsJSON, err := json.Marshal(r.Reasons)
	if err != nil {
		return fmt.Errorf("marshal reasons: %w", err)
	}
	evidenceJSON, err := json.Marshal(r.Evidence)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}

	id := r.ID
	if id == "" {
		id = idgen.New()
	}
	writeback := r.Writeback
	if writeback == "" {
		writeback = WritebackPending
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO order_risks (id, shop_id, order_id, score, rules_score, verdict, reasons, evidence, writeback, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (shop_id, order_id) DO UPDATE SET
			score       = EXCLUDED.score,
			rules_score = EXCLUDED.rules_score,
			verdict     = EXCLUDED.verdict,
			reasons     = EXCLUDED.reasons,
			evidence    = EXCLUDED.evidence,
			writeback   = EXCLUDED.writeback,
			updated_at  = NOW()
	`, id, r.ShopID, r.OrderID, r.Score, r.RulesScore, string(r.Verdict), reasonsJSON, evidenceJSON, string(writeback))
	if err != nil {
		return fmt.Errorf("upsert order risk: %w", err)
	}
	return nil
}

func (p *PostgresStore) SetWriteback(ctx context.Context, shopID, orderID string, status WritebackStatus) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE order_risks SET writeback = $3, updated_at = NOW()
		WHERE shop_id = $1 AND order_id = $2
	`, shopID, orderID, string(status))
	if err != nil {
		return fmt.Errorf("set writeback status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, shopID, orderID string) (*OrderRisk, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, shop_id, order_id, score, rules_score, verdict, reasons, evidence, writeback, created_at, updated_at
		FROM order_risks WHERE shop_id = $1 AND order_id = $2
	`, shopID, orderID)

	r, err := scanOrderRisk(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order risk: %w", err)
	}
	return r, nil
}

func (p *PostgresStore) ListByShop(ctx context.Context, shopID string, limit int, cursor *pagination.Cursor) ([]*OrderRisk, error) {
	if limit <= 0 {
		limit = 50
	}
	var (
		rows *sql.Rows
		err  error
	)
	if cursor == nil {
		rows, err = p.db.QueryContext(ctx, `
			SELECT id, shop_id, order_id, score, rules_score, verdict, reasons, evidence, writeback, created_at, updated_at
			FROM order_risks
			WHERE shop_id = $1
			ORDER BY updated_at DESC, id DESC
			LIMIT $2
		`, shopID, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `
			SELECT id, shop_id, order_id, score, rules_score, verdict, reasons, evidence, writeback, created_at, updated_at
			FROM order_risks
			WHERE shop_id = $1 AND (updated_at, id) < ($2, $3)
			ORDER BY updated_at DESC, id DESC
			LIMIT $4
		`, shopID, cursor.UpdatedAt, cursor.ID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list order risks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*OrderRisk
	for rows.Next() {
		r, err := scanOrderRisk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order risk: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrderRisk(row rowScanner) (*OrderRisk, error) {
	r := &OrderRisk{}
	var reasonsJSON, evidenceJSON []byte
	err := row.Scan(&r.ID, &r.ShopID, &r.OrderID, &r.Score, &r.RulesScore,
		&r.Verdict, &reasonsJSON, &evidenceJSON, &r.Writeback, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal(reasonsJSON, &r.Reasons)
	_ = json.Unmarshal(evidenceJSON, &r.Evidence)
	return r, nil
}

func (p *PostgresStore) AppendEvidence(ctx context.Context, e *EvidenceEntry) error {
	payloadJSON, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal evidence payload: %w", err)
	}
	id := e.ID
	if id == "" {
		id = idgen.New()
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO evidence_log (id, shop_id, order_id, source, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, id, e.ShopID, e.OrderID, e.Source, payloadJSON)
	if err != nil {
		return fmt.Errorf("append evidence: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListEvidence(ctx context.Context, shopID, orderID string) ([]*EvidenceEntry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, shop_id, order_id, source, payload, created_at
		FROM evidence_log
		WHERE shop_id = $1 AND order_id = $2
		ORDER BY created_at ASC, id ASC
	`, shopID, orderID)
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*EvidenceEntry
	for rows.Next() {
		e := &EvidenceEntry{}
		var payloadJSON []byte
		if err := rows.Scan(&e.ID, &e.ShopID, &e.OrderID, &e.Source, &payloadJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		_ = json.Unmarshal(payloadJSON, &e.Payload)
		result = append(result, e)
	}
	return result, rows.Err()
}

func (p *PostgresStore) RecordCapture(ctx context.Context, c *DeviceCapture) error {
	id := c.ID
	if id == "" {
		id = idgen.New()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO device_captures (id, shop_id, order_id, device_id, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, id, c.ShopID, c.OrderID, c.DeviceID, c.IP, c.UserAgent)
	if err != nil {
		return fmt.Errorf("record device capture: %w", err)
	}
	return nil
}

func (p *PostgresStore) LatestCapture(ctx context.Context, shopID, orderID string) (*DeviceCapture, error) {
	c := &DeviceCapture{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, shop_id, order_id, device_id, ip, user_agent, created_at
		FROM device_captures
		WHERE shop_id = $1 AND order_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, shopID, orderID).Scan(&c.ID, &c.ShopID, &c.OrderID, &c.DeviceID, &c.IP, &c.UserAgent, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest device capture: %w", err)
	}
	return c, nil
}
