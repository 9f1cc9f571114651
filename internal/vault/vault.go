// Package vault tracks hashed buyer identifiers for velocity signals.
//
// Raw identifier values (email, IP, device id) are never stored. Each value
// is normalized, then digested with a server-side pepper and the owning shop
// domain, so the same raw value hashes differently across shops and stored
// hashes resist offline dictionary attacks. Counters are per (kind, hash)
// and only ever grow.
package vault

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// Kind is the identifier category.
type Kind string

const (
	KindEmail  Kind = "email"
	KindIP     Kind = "ip"
	KindDevice Kind = "device"
)

// ErrNotFound is returned when no identity row exists.
var ErrNotFound = errors.New("identity not found")

// Identity is one hashed identifier and its sighting counter.
type Identity struct {
	Kind      Kind      `json:"kind"`
	Hash      string    `json:"hash"`
	SeenCount int       `json:"seenCount"`
	LastSeen  time.Time `json:"lastSeen"`
}

// Store persists identity counters. Bump must be a single atomic unit:
// concurrent bumps of the same (kind, hash) must each be counted.
type Store interface {
	// Bump increments the sighting counter for (kind, hash), inserting with
	// seen_count=1 on first sight. It returns the pre-increment count: 0 on
	// first sighting, N-1 on the Nth.
	Bump(ctx context.Context, kind Kind, hash string) (prior int, err error)

	// Get returns the current identity row.
	Get(ctx context.Context, kind Kind, hash string) (*Identity, error)
}

// Hasher derives privacy-safe digests from raw identifier values.
type Hasher struct {
	pepper string
}

// NewHasher creates a hasher with the given server-side pepper.
func NewHasher(pepper string) *Hasher {
	return &Hasher{pepper: pepper}
}

// Normalize prepares a raw value for hashing: whitespace is trimmed, and
// emails are lowercased so Foo@Ex.com and foo@ex.com correlate.
func Normalize(kind Kind, value string) string {
	v := strings.TrimSpace(value)
	if kind == KindEmail {
		v = strings.ToLower(v)
	}
	return v
}

// Hash returns the hex SHA-256 digest of pepper||shop||kind||normalized.
// Shop-scoped: the same raw value in two shops yields different hashes, so
// identifiers cannot be correlated across tenants. Returns "" for empty
// values; callers skip empty hashes.
func (h *Hasher) Hash(shopID string, kind Kind, value string) string {
	norm := Normalize(kind, value)
	if norm == "" {
		return ""
	}

	d := sha256.New()
	d.Write([]byte(h.pepper))
	d.Write([]byte(shopID))
	d.Write([]byte(kind))
	d.Write([]byte(norm))
	return hex.EncodeToString(d.Sum(nil))
}
