// Package ledger_repo provides the PostgreSQL product and movement repositories.
package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/product"
	"stockledger/internal/infrastructure/storage/postgres"
)

const productsTable = "products"

var productColumns = []string{
	"id", "sku", "name", "current_stock", "cost_price",
	"low_stock_threshold", "reorder_point", "over_stock_limit", "expiry_date",
	"created_at", "updated_at",
}

var _ product.Reader = (*ProductRepo)(nil)

// ProductRepo implements product.Reader.
type ProductRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewProductRepo creates a product repository.
func NewProductRepo(txManager *postgres.TxManager) *ProductRepo {
	return &ProductRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetByID implements product.Reader.
func (r *ProductRepo) GetByID(ctx context.Context, productID id.ID) (*product.Product, error) {
	q := r.builder.Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{"id": productID})
	return r.getOne(ctx, q, productID)
}

// GetForUpdate locks the product row until the surrounding transaction ends.
func (r *ProductRepo) GetForUpdate(ctx context.Context, productID id.ID) (*product.Product, error) {
	if !r.txManager.InTx(ctx) {
		return nil, fmt.Errorf("lock product %s: no transaction in context", productID)
	}
	q := r.builder.Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{"id": productID}).
		Suffix("FOR UPDATE")
	return r.getOne(ctx, q, productID)
}

func (r *ProductRepo) getOne(ctx context.Context, q squirrel.SelectBuilder, productID id.ID) (*product.Product, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var p product.Product
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("product", productID)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// ListPage implements product.Reader with keyset pagination.
func (r *ProductRepo) ListPage(ctx context.Context, afterID id.ID, limit int) ([]product.Product, error) {
	q := r.builder.Select(productColumns...).
		From(productsTable).
		Where(squirrel.Gt{"id": afterID}).
		OrderBy("id").
		Limit(uint64(limit))

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var products []product.Product
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &products, sql, args...); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// ListIDs implements product.Reader.
func (r *ProductRepo) ListIDs(ctx context.Context) ([]id.ID, error) {
	sql, args, err := r.builder.Select("id").From(productsTable).OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var ids []id.ID
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &ids, sql, args...); err != nil {
		return nil, fmt.Errorf("list product ids: %w", err)
	}
	return ids, nil
}

// Upsert inserts or replaces a product's master data. Stock and cost are
// only written on insert; afterwards they change through movements.
func (r *ProductRepo) Upsert(ctx context.Context, p *product.Product) error {
	q := r.builder.Insert(productsTable).
		Columns(productColumns...).
		Values(
			p.ID, p.SKU, p.Name, p.CurrentStock, p.CostPrice,
			p.LowStockThreshold, p.ReorderPoint, p.OverStockLimit, p.ExpiryDate,
			p.CreatedAt, p.UpdatedAt,
		).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			sku = EXCLUDED.sku,
			name = EXCLUDED.name,
			low_stock_threshold = EXCLUDED.low_stock_threshold,
			reorder_point = EXCLUDED.reorder_point,
			over_stock_limit = EXCLUDED.over_stock_limit,
			expiry_date = EXCLUDED.expiry_date,
			updated_at = EXCLUDED.updated_at`)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}
