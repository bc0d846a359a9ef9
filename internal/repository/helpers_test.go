package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceChanged(t *testing.T) {
	p := func(v string) decimal.NullDecimal {
		return decimal.NewNullDecimal(decimal.RequireFromString(v))
	}
	prev := func(v string) sql.NullString {
		return sql.NullString{String: v, Valid: true}
	}

	tests := []struct {
		name    string
		existed bool
		prev    sql.NullString
		cur     decimal.NullDecimal
		want    bool
	}{
		{"new product with price", false, sql.NullString{}, p("100"), true},
		{"new product without price", false, sql.NullString{}, decimal.NullDecimal{}, false},
		{"same price different scale", true, prev("100.00"), p("100"), false},
		{"price dropped", true, prev("3200.00"), p("3050"), true},
		{"price removed", true, prev("3200.00"), decimal.NullDecimal{}, true},
		{"price added", true, sql.NullString{}, p("10"), true},
		{"still no price", true, sql.NullString{}, decimal.NullDecimal{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, priceChanged(tt.existed, tt.prev, tt.cur))
		})
	}
}

func TestPageOffset(t *testing.T) {
	page, limit, offset := pageOffset(0, 0, 50)
	assert.Equal(t, []int{1, 50, 0}, []int{page, limit, offset})

	page, limit, offset = pageOffset(3, 20, 50)
	assert.Equal(t, []int{3, 20, 40}, []int{page, limit, offset})

	_, limit, _ = pageOffset(1, 10000, 50)
	assert.Equal(t, MaxPageSize, limit)
}

func TestValidID(t *testing.T) {
	assert.True(t, validID(uuid.NewString()))
	assert.False(t, validID("idc:123"))
	assert.False(t, validID(""))
}

func TestMalformedIDsAreNotFound(t *testing.T) {
	ctx := context.Background()
	// no database: malformed ids must be answered before any query
	products := NewProductRepository(nil)
	matches := NewMatchRepository(nil)

	_, err := products.GetByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	_, err = matches.GetByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.ErrorIs(t, matches.SetRejected(ctx, "not-a-uuid", true), sql.ErrNoRows)
	assert.ErrorIs(t, matches.Delete(ctx, "not-a-uuid"), sql.ErrNoRows)

	exists, err := matches.PairExists(ctx, "idc-1", uuid.NewString())
	require.NoError(t, err)
	assert.False(t, exists)

	rows, total, err := matches.ListHistory(ctx, "not-a-uuid", 1, 50)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Zero(t, total)
}
