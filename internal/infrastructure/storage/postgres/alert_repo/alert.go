// Package alert_repo provides the PostgreSQL alert repository. Dedup relies on
// the partial unique index uq_alerts_active (product_id, type) WHERE NOT is_resolved.
package alert_repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/alerts"
	"stockledger/internal/infrastructure/storage/postgres"
)

const alertsTable = "alerts"

var alertColumns = []string{
	"id", "product_id", "type", "message", "is_resolved", "is_read",
	"resolution_note", "created_at", "updated_at", "resolved_at",
}

const activeConflict = "ON CONFLICT (product_id, type) WHERE NOT is_resolved"

var _ alerts.Repository = (*AlertRepo)(nil)

// AlertRepo implements alerts.Repository.
type AlertRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewAlertRepo creates an alert repository.
func NewAlertRepo(txManager *postgres.TxManager) *AlertRepo {
	return &AlertRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// upsertRow is an alert plus whether the statement inserted it.
type upsertRow struct {
	alerts.Alert
	Inserted bool `db:"inserted"`
}

func (r *AlertRepo) insert(a *alerts.Alert, onConflict string) squirrel.InsertBuilder {
	return r.builder.Insert(alertsTable).
		Columns(alertColumns...).
		Values(
			a.ID, a.ProductID, a.Type, a.Message, a.IsResolved, a.IsRead,
			a.ResolutionNote, a.CreatedAt, a.UpdatedAt, a.ResolvedAt,
		).
		Suffix(onConflict + " RETURNING " + strings.Join(alertColumns, ", ") + ", (xmax = 0) AS inserted")
}

// EnsureActive implements alerts.Repository.
func (r *AlertRepo) EnsureActive(ctx context.Context, a *alerts.Alert) (*alerts.Alert, alerts.Outcome, error) {
	return r.upsert(ctx, a, r.insert(a, activeConflict+" DO NOTHING"))
}

// UpsertActive implements alerts.Repository. The WHERE clause turns an
// identical message into a no-op, so no row comes back.
func (r *AlertRepo) UpsertActive(ctx context.Context, a *alerts.Alert) (*alerts.Alert, alerts.Outcome, error) {
	return r.upsert(ctx, a, r.insert(a, activeConflict+` DO UPDATE SET
		message = EXCLUDED.message,
		updated_at = EXCLUDED.updated_at
		WHERE alerts.message IS DISTINCT FROM EXCLUDED.message`))
}

func (r *AlertRepo) upsert(ctx context.Context, a *alerts.Alert, q squirrel.InsertBuilder) (*alerts.Alert, alerts.Outcome, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, alerts.OutcomeUnchanged, fmt.Errorf("build upsert: %w", err)
	}

	var row upsertRow
	err = pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &row, sql, args...)
	switch {
	case err == nil && row.Inserted:
		return &row.Alert, alerts.OutcomeCreated, nil
	case err == nil:
		return &row.Alert, alerts.OutcomeUpdated, nil
	case !pgxscan.NotFound(err):
		return nil, alerts.OutcomeUnchanged, fmt.Errorf("upsert %s alert: %w", a.Type, err)
	}

	existing, err := r.getActive(ctx, a.ProductID, a.Type)
	if err != nil {
		return nil, alerts.OutcomeUnchanged, err
	}
	return existing, alerts.OutcomeUnchanged, nil
}

func (r *AlertRepo) getActive(ctx context.Context, productID id.ID, t alerts.Type) (*alerts.Alert, error) {
	sql, args, err := r.builder.Select(alertColumns...).
		From(alertsTable).
		Where(squirrel.Eq{"product_id": productID, "type": t, "is_resolved": false}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var a alerts.Alert
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &a, sql, args...); err != nil {
		return nil, fmt.Errorf("get active %s alert: %w", t, err)
	}
	return &a, nil
}

// ResolveActive implements alerts.Repository.
func (r *AlertRepo) ResolveActive(ctx context.Context, productID id.ID, types []alerts.Type, note string, at time.Time) ([]alerts.Alert, error) {
	sql, args, err := r.builder.Update(alertsTable).
		Set("is_resolved", true).
		Set("resolution_note", note).
		Set("resolved_at", at).
		Set("updated_at", at).
		Where(squirrel.Eq{"product_id": productID, "type": types, "is_resolved": false}).
		Suffix("RETURNING " + strings.Join(alertColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}

	var resolved []alerts.Alert
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &resolved, sql, args...); err != nil {
		return nil, fmt.Errorf("resolve alerts: %w", err)
	}
	return resolved, nil
}

// GetByID implements alerts.Repository.
func (r *AlertRepo) GetByID(ctx context.Context, alertID id.ID) (*alerts.Alert, error) {
	sql, args, err := r.builder.Select(alertColumns...).
		From(alertsTable).
		Where(squirrel.Eq{"id": alertID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var a alerts.Alert
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &a, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("alert", alertID)
		}
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return &a, nil
}

// List implements alerts.Repository.
func (r *AlertRepo) List(ctx context.Context, f alerts.Filter) ([]alerts.Alert, int64, error) {
	where := squirrel.And{}
	if f.ProductID != nil {
		where = append(where, squirrel.Eq{"product_id": *f.ProductID})
	}
	if len(f.Types) > 0 {
		where = append(where, squirrel.Eq{"type": f.Types})
	}
	if f.Active != nil {
		where = append(where, squirrel.Eq{"is_resolved": !*f.Active})
	}
	if f.Unread != nil {
		where = append(where, squirrel.Eq{"is_read": !*f.Unread})
	}

	querier := r.txManager.GetQuerier(ctx)
	countSQL, countArgs, err := r.builder.Select("COUNT(*)").From(alertsTable).Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	var total int64
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	sql, args, err := r.builder.Select(alertColumns...).
		From(alertsTable).
		Where(where).
		OrderBy("created_at DESC").
		Limit(uint64(f.Limit)).
		Offset(uint64(f.Offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query: %w", err)
	}
	var list []alerts.Alert
	if err := pgxscan.Select(ctx, querier, &list, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("select alerts: %w", err)
	}
	return list, total, nil
}

// MarkRead implements alerts.Repository.
func (r *AlertRepo) MarkRead(ctx context.Context, alertID id.ID, at time.Time) (*alerts.Alert, error) {
	sql, args, err := r.builder.Update(alertsTable).
		Set("is_read", true).
		Set("updated_at", squirrel.Expr("CASE WHEN is_read THEN updated_at ELSE ? END", at)).
		Where(squirrel.Eq{"id": alertID}).
		Suffix("RETURNING " + strings.Join(alertColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}
	var a alerts.Alert
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &a, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("alert", alertID)
		}
		return nil, fmt.Errorf("mark alert read: %w", err)
	}
	return &a, nil
}
