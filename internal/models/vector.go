package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Vector is an embedding persisted as a JSON array in a TEXT column.
// A nil Vector is stored as NULL.
type Vector []float64

// Value implements driver.Valuer.
func (v Vector) Value() (driver.Value, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal([]float64(v))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (v *Vector) Scan(src any) error {
	var raw []byte
	switch s := src.(type) {
	case nil:
		*v = nil
		return nil
	case []byte:
		raw = s
	case string:
		raw = []byte(s)
	default:
		return fmt.Errorf("vector: unsupported scan type %T", src)
	}
	if len(raw) == 0 {
		*v = nil
		return nil
	}
	var out []float64
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("vector: %w", err)
	}
	*v = out
	return nil
}
