package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/product"
	"stockledger/internal/infrastructure/storage/postgres"
)

const movementsTable = "inventory_movements"

var movementColumns = []string{
	"id", "product_id", "type", "quantity", "stock_after", "cost_price",
	"supplier_id", "user_id", "reversal_of", "notes", "created_at",
}

var _ ledger.Repository = (*LedgerRepo)(nil)

// LedgerRepo implements ledger.Repository.
type LedgerRepo struct {
	txManager *postgres.TxManager
	products  *ProductRepo
	builder   squirrel.StatementBuilderType
}

// NewLedgerRepo creates a ledger repository.
func NewLedgerRepo(txManager *postgres.TxManager, products *ProductRepo) *LedgerRepo {
	return &LedgerRepo{
		txManager: txManager,
		products:  products,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetProduct implements ledger.Repository.
func (r *LedgerRepo) GetProduct(ctx context.Context, productID id.ID) (*product.Product, error) {
	return r.products.GetByID(ctx, productID)
}

// GetProductForUpdate implements ledger.Repository.
func (r *LedgerRepo) GetProductForUpdate(ctx context.Context, productID id.ID) (*product.Product, error) {
	return r.products.GetForUpdate(ctx, productID)
}

// UpdateProductStock implements ledger.Repository.
func (r *LedgerRepo) UpdateProductStock(ctx context.Context, productID id.ID, stock int64, cost types.Money) error {
	q := r.builder.Update(productsTable).
		Set("current_stock", stock).
		Set("cost_price", cost).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": productID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update product stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("product", productID)
	}
	return nil
}

// InsertMovement implements ledger.Repository.
func (r *LedgerRepo) InsertMovement(ctx context.Context, m *ledger.Movement) error {
	q := r.builder.Insert(movementsTable).
		Columns(movementColumns...).
		Values(
			m.ID, m.ProductID, m.Type, m.Quantity, m.StockAfter, m.CostPrice,
			m.SupplierID, m.UserID, m.ReversalOf, m.Notes, m.CreatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperror.NewConflict("sale has already been reversed").WithCause(err)
		}
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

// GetMovement implements ledger.Repository.
func (r *LedgerRepo) GetMovement(ctx context.Context, movementID id.ID) (*ledger.Movement, error) {
	sql, args, err := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"id": movementID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var m ledger.Movement
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &m, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("movement", movementID)
		}
		return nil, fmt.Errorf("get movement: %w", err)
	}
	return &m, nil
}

// ReversalExists implements ledger.Repository.
func (r *LedgerRepo) ReversalExists(ctx context.Context, movementID id.ID) (bool, error) {
	var exists bool
	err := r.txManager.GetQuerier(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM inventory_movements WHERE reversal_of = $1)`, movementID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check reversal: %w", err)
	}
	return exists, nil
}

// ListMovements implements ledger.Repository.
func (r *LedgerRepo) ListMovements(ctx context.Context, f ledger.MovementFilter) ([]ledger.Movement, int64, error) {
	where := movementWhere(f)

	countSQL, countArgs, err := r.builder.Select("COUNT(*)").From(movementsTable).Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	querier := r.txManager.GetQuerier(ctx)

	var total int64
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count movements: %w", err)
	}

	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(where).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(f.Limit)).
		Offset(uint64(f.Offset))

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query: %w", err)
	}

	var movements []ledger.Movement
	if err := pgxscan.Select(ctx, querier, &movements, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("select movements: %w", err)
	}
	return movements, total, nil
}

// SumMovements implements ledger.Repository.
func (r *LedgerRepo) SumMovements(ctx context.Context, productID id.ID) (int64, error) {
	var sum int64
	err := r.txManager.GetQuerier(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0)::BIGINT FROM inventory_movements WHERE product_id = $1`, productID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum movements: %w", err)
	}
	return sum, nil
}

func movementWhere(f ledger.MovementFilter) squirrel.And {
	where := squirrel.And{squirrel.Eq{"product_id": f.ProductID}}
	if len(f.Types) > 0 {
		where = append(where, squirrel.Eq{"type": f.Types})
	}
	if f.Since != nil {
		where = append(where, squirrel.GtOrEq{"created_at": *f.Since})
	}
	return where
}
