package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/GTDGit/gtd_map/internal/database"
	"github.com/GTDGit/gtd_map/internal/models"
)

// ProductRepository is the catalog store for reference and competitor products.
type ProductRepository struct {
	db *sqlx.DB
}

// NewProductRepository creates a new ProductRepository.
func NewProductRepository(db *sqlx.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// List returns products matching filter and the total count before paging.
// A non-positive filter.Limit returns every matching row.
func (r *ProductRepository) List(ctx context.Context, filter models.ProductFilter) ([]models.Product, int, error) {
	where := func(sb *sqlbuilder.SelectBuilder) {
		var conds []string
		if filter.Source != "" {
			conds = append(conds, sb.Equal("source", filter.Source))
		}
		if filter.ExcludeSource != "" {
			conds = append(conds, sb.NotEqual("source", filter.ExcludeSource))
		}
		if filter.Brand != "" {
			conds = append(conds, sb.Equal("LOWER(vendor)", lower(filter.Brand)))
		}
		if filter.Search != "" {
			conds = append(conds, sb.ILike("title", "%"+filter.Search+"%"))
		}
		if filter.MissingEmbeddings {
			conds = append(conds, sb.IsNull("title_embedding"))
		}
		if len(conds) > 0 {
			sb.Where(conds...)
		}
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(1)").From("products")
	where(cb)
	countQuery, countArgs := cb.Build()

	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("*").From("products")
	where(sb)
	// created_at, id keeps catalog input order stable across runs
	sb.OrderBy("created_at ASC", "id ASC")
	if filter.Limit > 0 {
		page := max(filter.Page, 1)
		sb.Limit(filter.Limit).Offset((page - 1) * filter.Limit)
	}
	query, args := sb.Build()

	var products []models.Product
	if err := r.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	return products, total, nil
}

// GetByID returns a single product by id.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	if !validID(id) {
		return nil, sql.ErrNoRows
	}
	const q = `SELECT * FROM products WHERE id = $1 LIMIT 1`
	var p models.Product
	if err := r.db.GetContext(ctx, &p, q, id); err != nil {
		return nil, err
	}
	return &p, nil
}

// Upsert inserts or updates a product by (external_id, source). A price
// change (or a first price) appends a price_history row. Stored embeddings
// are cleared when the embedded text (vendor, title) changes.
func (r *ProductRepository) Upsert(ctx context.Context, p *models.Product) (*models.Product, error) {
	const prevQ = `SELECT price, compare_at_price FROM products WHERE external_id = $1 AND source = $2 FOR UPDATE`
	const upsertQ = `
        INSERT INTO products (id, external_id, source, title, vendor, product_type, description,
            price, compare_at_price, available, url, image_url, handle, sku, features)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
        ON CONFLICT (external_id, source) DO UPDATE SET
            title = EXCLUDED.title,
            vendor = EXCLUDED.vendor,
            product_type = EXCLUDED.product_type,
            description = EXCLUDED.description,
            price = EXCLUDED.price,
            compare_at_price = EXCLUDED.compare_at_price,
            available = EXCLUDED.available,
            url = EXCLUDED.url,
            image_url = EXCLUDED.image_url,
            handle = EXCLUDED.handle,
            sku = EXCLUDED.sku,
            features = EXCLUDED.features,
            title_embedding = CASE
                WHEN products.title IS DISTINCT FROM EXCLUDED.title OR products.vendor IS DISTINCT FROM EXCLUDED.vendor
                THEN NULL ELSE products.title_embedding END,
            features_embedding = CASE
                WHEN products.features IS DISTINCT FROM EXCLUDED.features
                THEN NULL ELSE products.features_embedding END,
            updated_at = NOW()
        RETURNING *`
	const historyQ = `
        INSERT INTO price_history (id, product_id, price, compare_at_price, recorded_at)
        VALUES ($1, $2, $3, $4, NOW())`

	var saved models.Product
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var prev struct {
			Price          sql.NullString `db:"price"`
			CompareAtPrice sql.NullString `db:"compare_at_price"`
		}
		existed := true
		if err := tx.GetContext(ctx, &prev, prevQ, p.ExternalID, p.Source); err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("load previous price: %w", err)
			}
			existed = false
		}

		if err := tx.GetContext(ctx, &saved, upsertQ,
			uuid.NewString(), p.ExternalID, p.Source, p.Title, p.Vendor, p.ProductType, p.Description,
			p.Price, p.CompareAtPrice, p.Available, p.URL, p.ImageURL, p.Handle, p.SKU, p.Features,
		); err != nil {
			return fmt.Errorf("upsert product: %w", err)
		}

		if !priceChanged(existed, prev.Price, saved.Price) {
			return nil
		}
		if _, err := tx.ExecContext(ctx, historyQ, uuid.NewString(), saved.ID, saved.Price, saved.CompareAtPrice); err != nil {
			return fmt.Errorf("insert price history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// DeleteProducts removes products of a source. When keepExternalIDs is
// non-empty, only products outside that set are removed (full re-sync).
func (r *ProductRepository) DeleteProducts(ctx context.Context, source string, keepExternalIDs []string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if len(keepExternalIDs) == 0 {
		res, err = r.db.ExecContext(ctx, `DELETE FROM products WHERE source = $1`, source)
	} else {
		res, err = r.db.ExecContext(ctx,
			`DELETE FROM products WHERE source = $1 AND NOT (external_id = ANY($2))`,
			source, pq.Array(keepExternalIDs))
	}
	if err != nil {
		return 0, fmt.Errorf("delete products: %w", err)
	}
	return res.RowsAffected()
}

// UpdateEmbeddings stores the title and features vectors of a product.
func (r *ProductRepository) UpdateEmbeddings(ctx context.Context, id string, title, features models.Vector) error {
	const q = `UPDATE products SET title_embedding = $2, features_embedding = $3, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id, title, features)
	return err
}

// UpdateVendor rewrites the vendor and features of a product and drops its
// title embedding, which was computed from the old vendor.
func (r *ProductRepository) UpdateVendor(ctx context.Context, id, vendor, features string) error {
	const q = `
        UPDATE products
        SET vendor = $2, features = $3, title_embedding = NULL, features_embedding = NULL, updated_at = NOW()
        WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id, vendor, features)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountBySource returns product counts per source.
func (r *ProductRepository) CountBySource(ctx context.Context) ([]models.SourceCount, error) {
	const q = `SELECT source, COUNT(1) AS count FROM products GROUP BY source ORDER BY source`
	var counts []models.SourceCount
	if err := r.db.SelectContext(ctx, &counts, q); err != nil {
		return nil, err
	}
	return counts, nil
}

// ListPriceHistory returns the newest price history rows of a product.
func (r *ProductRepository) ListPriceHistory(ctx context.Context, productID string, limit int) ([]models.PriceHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT * FROM price_history WHERE product_id = $1 ORDER BY recorded_at DESC LIMIT $2`
	var rows []models.PriceHistory
	if err := r.db.SelectContext(ctx, &rows, q, productID, limit); err != nil {
		return nil, err
	}
	return rows, nil
}
