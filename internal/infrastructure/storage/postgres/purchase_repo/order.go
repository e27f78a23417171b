// Package purchase_repo provides the PostgreSQL purchase order repository.
package purchase_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/purchasing"
	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	ordersTable = "purchase_orders"
	itemsTable  = "purchase_order_items"
)

var orderColumns = []string{
	"id", "number", "supplier_id", "status", "expected_date", "received_at",
	"notes", "created_by", "created_at", "updated_at",
}

var itemColumns = []string{
	"id", "order_id", "product_id", "quantity_ordered", "quantity_received", "unit_cost",
}

var _ purchasing.Repository = (*OrderRepo)(nil)

// OrderRepo implements purchasing.Repository.
type OrderRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewOrderRepo creates a purchase order repository.
func NewOrderRepo(txManager *postgres.TxManager) *OrderRepo {
	return &OrderRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create implements purchasing.Repository. Items are sent in one batch.
func (r *OrderRepo) Create(ctx context.Context, o *purchasing.Order) error {
	q := r.builder.Insert(ordersTable).
		Columns(orderColumns...).
		Values(
			o.ID, o.Number, o.SupplierID, o.Status, o.ExpectedDate, o.ReceivedAt,
			o.Notes, o.CreatedBy, o.CreatedAt, o.UpdatedAt,
		)
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperror.NewConflict("purchase order number already used").
				WithDetail("number", o.Number).
				WithCause(err)
		}
		return fmt.Errorf("insert purchase order: %w", err)
	}

	batch := &pgx.Batch{}
	for i, it := range o.Items {
		sql, args, err := r.builder.Insert(itemsTable).
			Columns(append([]string{"line_no"}, itemColumns...)...).
			Values(i+1, it.ID, o.ID, it.ProductID, it.QuantityOrdered, it.QuantityReceived, it.UnitCost).
			ToSql()
		if err != nil {
			return fmt.Errorf("build item insert: %w", err)
		}
		batch.Queue(sql, args...)
	}

	tx := r.txManager.GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("create purchase order: no transaction in context")
	}
	results := tx.SendBatch(ctx, batch)
	defer results.Close()
	for range o.Items {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert purchase order item: %w", err)
		}
	}
	return nil
}

// Get implements purchasing.Repository.
func (r *OrderRepo) Get(ctx context.Context, orderID id.ID) (*purchasing.Order, error) {
	return r.get(ctx, orderID, false)
}

// GetForUpdate implements purchasing.Repository.
func (r *OrderRepo) GetForUpdate(ctx context.Context, orderID id.ID) (*purchasing.Order, error) {
	if !r.txManager.InTx(ctx) {
		return nil, fmt.Errorf("lock purchase order %s: no transaction in context", orderID)
	}
	return r.get(ctx, orderID, true)
}

func (r *OrderRepo) get(ctx context.Context, orderID id.ID, lock bool) (*purchasing.Order, error) {
	q := r.builder.Select(orderColumns...).
		From(ordersTable).
		Where(squirrel.Eq{"id": orderID})
	if lock {
		q = q.Suffix("FOR UPDATE")
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	var o purchasing.Order
	if err := pgxscan.Get(ctx, querier, &o, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("purchase order", orderID)
		}
		return nil, fmt.Errorf("get purchase order: %w", err)
	}

	sql, args, err = r.builder.Select(itemColumns...).
		From(itemsTable).
		Where(squirrel.Eq{"order_id": orderID}).
		OrderBy("line_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build items query: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &o.Items, sql, args...); err != nil {
		return nil, fmt.Errorf("select purchase order items: %w", err)
	}
	return &o, nil
}

// UpdateItemReceived implements purchasing.Repository.
func (r *OrderRepo) UpdateItemReceived(ctx context.Context, itemID id.ID, received int64) error {
	sql, args, err := r.builder.Update(itemsTable).
		Set("quantity_received", received).
		Where(squirrel.Eq{"id": itemID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update item received: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("purchase order item", itemID)
	}
	return nil
}

// UpdateStatus implements purchasing.Repository.
func (r *OrderRepo) UpdateStatus(ctx context.Context, orderID id.ID, status purchasing.Status, receivedAt *time.Time, updatedAt time.Time) error {
	sql, args, err := r.builder.Update(ordersTable).
		Set("status", status).
		Set("received_at", receivedAt).
		Set("updated_at", updatedAt).
		Where(squirrel.Eq{"id": orderID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("update purchase order status: %w", err)
	}
	return nil
}

// List implements purchasing.Repository.
func (r *OrderRepo) List(ctx context.Context, f purchasing.ListFilter) ([]purchasing.Order, int64, error) {
	where := squirrel.And{}
	if f.Status != nil {
		where = append(where, squirrel.Eq{"status": *f.Status})
	}
	if f.SupplierID != nil {
		where = append(where, squirrel.Eq{"supplier_id": *f.SupplierID})
	}

	querier := r.txManager.GetQuerier(ctx)
	countSQL, countArgs, err := r.builder.Select("COUNT(*)").From(ordersTable).Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	var total int64
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count purchase orders: %w", err)
	}

	sql, args, err := r.builder.Select(orderColumns...).
		From(ordersTable).
		Where(where).
		OrderBy("created_at DESC").
		Limit(uint64(f.Limit)).
		Offset(uint64(f.Offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query: %w", err)
	}

	var orders []purchasing.Order
	if err := pgxscan.Select(ctx, querier, &orders, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("select purchase orders: %w", err)
	}
	return orders, total, nil
}
