// Package pagination pages ordered result sets with opaque keyset cursors.
package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// ErrInvalidCursor is returned for cursors this package did not issue.
var ErrInvalidCursor = errors.New("pagination: invalid cursor")

// Cursor is the (created_at, id) key of the last item on a page.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Encode returns an opaque cursor for the item keyed by createdAt and id.
func Encode(createdAt time.Time, id string) string {
	raw := strconv.FormatInt(createdAt.UnixNano(), 10) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode parses a cursor. An empty string yields nil.
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	nanos, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{CreatedAt: time.Unix(0, n).UTC(), ID: id}, nil
}

// after reports whether (t, id) sorts strictly after c.
func (c *Cursor) after(t time.Time, id string) bool {
	if !t.Equal(c.CreatedAt) {
		return t.After(c.CreatedAt)
	}
	return id > c.ID
}

// Request is a parsed page request.
type Request struct {
	Limit int
	After *Cursor
}

// ParseRequest reads limit and cursor query values. Limits are clamped to
// [1, MaxLimit]; an empty limit means DefaultLimit.
func ParseRequest(limit, cursor string) (Request, error) {
	req := Request{Limit: DefaultLimit}
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return req, errors.New("pagination: limit must be a number")
		}
		req.Limit = min(max(n, 1), MaxLimit)
	}
	after, err := Decode(cursor)
	if err != nil {
		return req, err
	}
	req.After = after
	return req, nil
}

// Page cuts one page out of items, which must be sorted by (createdAt, id).
// It returns the page and the cursor for the next one, empty on the last.
func Page[T any](items []T, req Request, key func(T) (time.Time, string)) ([]T, string) {
	start := 0
	if req.After != nil {
		start = len(items)
		for i, it := range items {
			if t, id := key(it); req.After.after(t, id) {
				start = i
				break
			}
		}
	}
	items = items[start:]
	if len(items) <= req.Limit {
		return items, ""
	}
	items = items[:req.Limit]
	t, id := key(items[len(items)-1])
	return items, Encode(t, id)
}
