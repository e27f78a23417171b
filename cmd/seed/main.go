// Package main seeds demo products, opening stock and forecasts.
// Safe to rerun: products are keyed by SKU and opening stock is only booked
// for products without movements.
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/google/uuid"

	"stockledger/internal/app"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/config"
	"stockledger/internal/domain/forecast"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/product"
	"stockledger/internal/infrastructure/storage/postgres/forecast_repo"
	"stockledger/pkg/logger"
)

const forecastDays = 30

type demoProduct struct {
	sku          string
	name         string
	opening      int64
	cost         string
	lowStock     int64
	reorderPoint int64
	overLimit    int64
	expiresIn    time.Duration
	dailyDemand  float64
}

var demoProducts = []demoProduct{
	{sku: "BEAN-1KG", name: "Coffee beans 1kg", opening: 40, cost: "12.50", lowStock: 10, reorderPoint: 25, overLimit: 300, dailyDemand: 6},
	{sku: "MILK-1L", name: "Oat milk 1L", opening: 18, cost: "1.90", lowStock: 12, reorderPoint: 30, overLimit: 200, expiresIn: 10 * 24 * time.Hour, dailyDemand: 5},
	{sku: "CUP-12OZ", name: "Paper cup 12oz", opening: 2400, cost: "0.08", lowStock: 200, reorderPoint: 500, overLimit: 1500, dailyDemand: 40},
	{sku: "FILTER-100", name: "Paper filters x100", opening: 0, cost: "3.20", lowStock: 5, reorderPoint: 8, overLimit: 60, dailyDemand: 1.5},
	{sku: "SYRUP-VAN", name: "Vanilla syrup", opening: 7, cost: "6.75", lowStock: 4, reorderPoint: 6, overLimit: 40, expiresIn: 120 * 24 * time.Hour, dailyDemand: 0.4},
}

func main() {
	log, err := logger.New(logger.Config{Level: "info", Development: true})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("failed to load config", "error", err)
	}

	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "seed", Source: "cli"})
	ctx = logger.WithLogger(ctx, log.WithComponent("seed"))

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to initialize application", "error", err)
	}
	defer a.Close()

	forecasts := forecast_repo.NewForecastRepo(a.TxManager)
	now := time.Now().UTC()

	for _, d := range demoProducts {
		p, err := seedProduct(ctx, a, d, now)
		if err != nil {
			log.Fatalw("failed to seed product", "sku", d.sku, "error", err)
		}
		run := demandForecast(p.ID, d.dailyDemand, now)
		if err := forecasts.Save(ctx, run); err != nil {
			log.Fatalw("failed to seed forecast", "sku", d.sku, "error", err)
		}
		if _, err := a.Alerts.EvaluateAndReconcile(ctx, p.ID); err != nil {
			log.Warnw("initial evaluation failed", "sku", d.sku, "error", err)
		}
		log.Infow("seeded product", "sku", d.sku, "id", p.ID)
	}

	log.Info("seeding completed successfully")
}

// productID derives a stable ID from the SKU so reruns update in place.
func productID(sku string) id.ID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("stockledger:product:"+sku))
}

func seedProduct(ctx context.Context, a *app.App, d demoProduct, now time.Time) (*product.Product, error) {
	p := &product.Product{
		ID:                productID(d.sku),
		SKU:               d.sku,
		Name:              d.name,
		LowStockThreshold: d.lowStock,
		ReorderPoint:      d.reorderPoint,
		OverStockLimit:    d.overLimit,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if d.expiresIn > 0 {
		exp := now.Add(d.expiresIn)
		p.ExpiryDate = &exp
	}
	if err := a.Products.Upsert(ctx, p); err != nil {
		return nil, err
	}

	_, total, err := a.Ledger.History(ctx, ledger.MovementFilter{ProductID: p.ID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if total > 0 || d.opening == 0 {
		return p, nil
	}

	cost := types.MustMoney(d.cost)
	if _, err := a.Ledger.ApplyMovement(ctx, ledger.MovementInput{
		ProductID: p.ID,
		Type:      ledger.MovementReceipt,
		Quantity:  d.opening,
		CostPrice: &cost,
		Notes:     "opening balance",
	}); err != nil {
		return nil, fmt.Errorf("book opening balance: %w", err)
	}
	return p, nil
}

// demandForecast builds a gently weekly-seasonal daily forecast.
func demandForecast(productID id.ID, daily float64, now time.Time) *forecast.Run {
	start := now.Truncate(24 * time.Hour)
	run := &forecast.Run{ID: id.New(), ProductID: productID, CreatedAt: now}
	for i := 0; i < forecastDays; i++ {
		predicted := daily * (1 + 0.2*math.Sin(2*math.Pi*float64(i)/7))
		run.Points = append(run.Points, forecast.Point{
			Period:    start.AddDate(0, 0, i),
			Predicted: predicted,
			Lower95:   predicted * 0.7,
			Upper95:   predicted * 1.3,
		})
	}
	return run
}
