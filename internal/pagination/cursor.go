// Package pagination implements opaque keyset cursors for list endpoints.
//
// Risk listings are ordered by last update, newest first, with the row ID
// breaking ties. A cursor encodes the sort key of the last row on a page so
// the next page can resume with a range predicate instead of OFFSET.
package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cursor is a decoded position in an update-ordered result set.
type Cursor struct {
	UpdatedAt time.Time
	ID        string
}

// Encode returns an opaque token for the given sort key.
func Encode(updatedAt time.Time, id string) string {
	raw := fmt.Sprintf("%d|%s", updatedAt.UnixNano(), id)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// Decode parses a cursor token. Empty input decodes to a nil cursor,
// which callers treat as "start from the newest row".
func Decode(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor")
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("invalid cursor")
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor")
	}
	return &Cursor{
		UpdatedAt: time.Unix(0, nanos).UTC(),
		ID:        parts[1],
	}, nil
}

// Before reports whether a row with the given sort key sorts strictly after
// the cursor position, i.e. belongs on a later page.
func (c *Cursor) Before(updatedAt time.Time, id string) bool {
	if c == nil {
		return true
	}
	if !updatedAt.Equal(c.UpdatedAt) {
		return updatedAt.Before(c.UpdatedAt)
	}
	return id < c.ID
}

// Page trims a slice fetched with limit+1 rows down to the page size.
// It returns the page, the token for the next page, and whether more
// rows remain.
func Page[T any](items []T, limit int, key func(T) (time.Time, string)) ([]T, string, bool) {
	if len(items) <= limit {
		return items, "", false
	}
	items = items[:limit]
	updatedAt, id := key(items[len(items)-1])
	return items, Encode(updatedAt, id), true
}
