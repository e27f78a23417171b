// Package forecast_repo reads forecasts written by the external forecasting job.
package forecast_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/forecast"
	"stockledger/internal/infrastructure/storage/postgres"
)

var _ forecast.Provider = (*ForecastRepo)(nil)

var pointColumns = []string{"run_id", "period", "predicted", "lower95", "upper95"}

// ForecastRepo implements forecast.Provider.
type ForecastRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewForecastRepo creates a forecast repository.
func NewForecastRepo(txManager *postgres.TxManager) *ForecastRepo {
	return &ForecastRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Latest implements forecast.Provider.
func (r *ForecastRepo) Latest(ctx context.Context, productID id.ID) (*forecast.Run, error) {
	querier := r.txManager.GetQuerier(ctx)

	sql, args, err := r.builder.Select("id", "product_id", "created_at").
		From("forecast_runs").
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var run forecast.Run
	if err := pgxscan.Get(ctx, querier, &run, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest forecast run: %w", err)
	}

	sql, args, err = r.builder.Select("period", "predicted", "lower95", "upper95").
		From("forecast_points").
		Where(squirrel.Eq{"run_id": run.ID}).
		OrderBy("period").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build points query: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &run.Points, sql, args...); err != nil {
		return nil, fmt.Errorf("select forecast points: %w", err)
	}
	return &run, nil
}

// Save stores a forecast run with its points. Used by the seed command; in
// production runs arrive from the forecasting job.
func (r *ForecastRepo) Save(ctx context.Context, run *forecast.Run) error {
	return r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		querier := r.txManager.GetQuerier(ctx)
		sql, args, err := r.builder.Insert("forecast_runs").
			Columns("id", "product_id", "created_at").
			Values(run.ID, run.ProductID, run.CreatedAt).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := querier.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("insert forecast run: %w", err)
		}
		rows := make([][]any, 0, len(run.Points))
		for _, pt := range run.Points {
			rows = append(rows, []any{run.ID, pt.Period, pt.Predicted, pt.Lower95, pt.Upper95})
		}
		if _, err := r.txManager.CopyRows(ctx, "forecast_points", pointColumns, rows); err != nil {
			return fmt.Errorf("insert forecast points: %w", err)
		}
		return nil
	})
}
