package repository

import (
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// validID reports whether id can be compared against a UUID column. Postgres
// rejects malformed UUIDs with a syntax error, so lookups by such an id are
// answered as not found without a query.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// priceChanged reports whether an upsert moved the price from prev to cur.
// A new product records its first known price.
func priceChanged(existed bool, prev sql.NullString, cur decimal.NullDecimal) bool {
	if !existed || !prev.Valid {
		return cur.Valid
	}
	if !cur.Valid {
		return true
	}
	old, err := decimal.NewFromString(prev.String)
	if err != nil {
		return true
	}
	return !old.Equal(cur.Decimal)
}

// MaxPageSize caps the rows returned by one paged list query.
const MaxPageSize = 500

// pageOffset normalizes page/limit and returns the row offset.
func pageOffset(page, limit, defLimit int) (int, int, int) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = defLimit
	}
	limit = min(limit, MaxPageSize)
	return page, limit, (page - 1) * limit
}
