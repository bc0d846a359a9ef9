package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceReference is the source key of the canonical (MAP) catalog.
const SourceReference = "idc"

// Product represents a catalog entry from either the reference source or a
// competitor source. Unique on (external_id, source).
type Product struct {
	ID             string              `db:"id" json:"id"`
	ExternalID     string              `db:"external_id" json:"externalId"`
	Source         string              `db:"source" json:"source"`
	Title          string              `db:"title" json:"title"`
	Vendor         string              `db:"vendor" json:"vendor"`
	ProductType    string              `db:"product_type" json:"productType"`
	Description    string              `db:"description" json:"description,omitempty"`
	Price          decimal.NullDecimal `db:"price" json:"price"`
	CompareAtPrice decimal.NullDecimal `db:"compare_at_price" json:"compareAtPrice"`
	Available      bool                `db:"available" json:"available"`
	URL            string              `db:"url" json:"url"`
	ImageURL       string              `db:"image_url" json:"imageUrl"`
	Handle         string              `db:"handle" json:"handle"`
	SKU            string              `db:"sku" json:"sku"`

	// Derived/cached
	Features          string `db:"features" json:"features"`
	TitleEmbedding    Vector `db:"title_embedding" json:"-"`
	FeaturesEmbedding Vector `db:"features_embedding" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// IsReference reports whether p belongs to the reference catalog.
func (p *Product) IsReference() bool {
	return p.Source == SourceReference
}

// PriceValue returns the price as float64, or 0 when the price is unknown.
func (p *Product) PriceValue() float64 {
	if !p.Price.Valid {
		return 0
	}
	return p.Price.Decimal.InexactFloat64()
}

// HasEmbeddings reports whether a title embedding is stored.
func (p *Product) HasEmbeddings() bool {
	return len(p.TitleEmbedding) > 0
}

// PriceHistory is appended whenever an upsert changes a product's price.
type PriceHistory struct {
	ID             string              `db:"id" json:"id"`
	ProductID      string              `db:"product_id" json:"productId"`
	Price          decimal.NullDecimal `db:"price" json:"price"`
	CompareAtPrice decimal.NullDecimal `db:"compare_at_price" json:"compareAtPrice"`
	RecordedAt     time.Time           `db:"recorded_at" json:"recordedAt"`
}

// ProductFilter narrows catalog listings. Empty fields are ignored.
type ProductFilter struct {
	Source            string
	Brand             string
	Search            string
	ExcludeSource     string
	MissingEmbeddings bool
	Page              int
	Limit             int
}
