// Package pagination implements newest-first keyset paging over
// (created_at, id), which stays stable while rows are being inserted.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the keyset of the last row on a page. It is opaque to clients.
type Cursor struct {
	CreatedAt time.Time `json:"t"`
	ID        uuid.UUID `json:"id"`
}

type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
}

var errMalformedCursor = errors.New("malformed cursor")

func clamp(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// Apply adds the keyset predicate and ordering to q and fetches one row past
// the page so Build can tell whether another page exists. table qualifies
// the columns when q joins other tables.
func Apply(q *gorm.DB, table string, p Params) (*gorm.DB, error) {
	after, err := ParseCursor(p.Cursor)
	if err != nil {
		return nil, err
	}
	col := func(name string) string {
		if table == "" {
			return name
		}
		return table + "." + name
	}
	if after != nil {
		q = q.Where(
			fmt.Sprintf("%s < ? OR (%s = ? AND %s < ?)", col("created_at"), col("created_at"), col("id")),
			after.CreatedAt, after.CreatedAt, after.ID,
		)
	}
	return q.Order(col("created_at") + " DESC").Order(col("id") + " DESC").Limit(clamp(p.Limit) + 1), nil
}

// Build drops the lookahead row fetched by Apply and derives the next cursor
// from the last row kept.
func Build[T any](rows []T, limit int, key func(T) Cursor) Page[T] {
	limit = clamp(limit)
	if len(rows) <= limit {
		if rows == nil {
			rows = []T{}
		}
		return Page[T]{Items: rows}
	}
	rows = rows[:limit]
	return Page[T]{Items: rows, NextCursor: key(rows[limit-1]).Encode()}
}

func (c Cursor) Encode() string {
	c.CreatedAt = c.CreatedAt.UTC()
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// ParseCursor returns nil for a blank cursor.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedCursor, err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedCursor, err)
	}
	if c.CreatedAt.IsZero() || c.ID == uuid.Nil {
		return nil, errMalformedCursor
	}
	return &c, nil
}
