package alerts

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/product"
	"stockledger/internal/domain/risk"
	"stockledger/pkg/logger"
)

// RunDailySweep flags stock levels for every product without looking at
// forecasts. It only raises alerts; resolution is left to reconciliation,
// receipts and reorders. A failing product is logged and skipped.
func (s *Service) RunDailySweep(ctx context.Context) (*SweepResult, error) {
	started := time.Now()
	result := &SweepResult{}

	after := id.Nil()
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		page, err := s.products.ListPage(ctx, after, sweepPageSize)
		if err != nil {
			return result, fmt.Errorf("list products: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for i := range page {
			p := &page[i]
			result.Scanned++
			created, err := s.sweepProduct(ctx, p)
			if err != nil {
				result.Failed++
				logger.Error(ctx, "daily sweep failed for product", "product_id", p.ID, "error", err)
				continue
			}
			result.Created += created
		}
		after = page[len(page)-1].ID
	}

	result.Duration = time.Since(started)
	logger.Info(ctx, "daily sweep finished",
		"scanned", result.Scanned,
		"created", result.Created,
		"failed", result.Failed,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

func (s *Service) sweepProduct(ctx context.Context, p *product.Product) (int, error) {
	now := s.now()
	var wanted []*Alert

	switch {
	case p.CurrentStock <= 0:
		wanted = append(wanted, NewActive(p.ID, TypeOutOfStock, Message{
			Text:      fmt.Sprintf("%s is out of stock", p.Label()),
			RiskScore: risk.ScoreOutOfStock,
		}, now))
	case p.CurrentStock <= p.LowStockThreshold:
		wanted = append(wanted, NewActive(p.ID, TypeLowStock, Message{
			Text:      fmt.Sprintf("%s stock %d is at or below threshold %d", p.Label(), p.CurrentStock, p.LowStockThreshold),
			RiskScore: risk.ScoreStockoutSoon,
		}, now))
	}
	if p.CurrentStock >= s.highWaterMark {
		wanted = append(wanted, NewActive(p.ID, TypeOverstock, Message{
			Text:      fmt.Sprintf("%s stock %d reached high-water mark %d", p.Label(), p.CurrentStock, s.highWaterMark),
			RiskScore: risk.ScoreOverstock,
		}, now))
	}
	if len(wanted) == 0 {
		return 0, nil
	}

	result := &ReconcileResult{ProductID: p.ID}
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, a := range wanted {
			if err := s.ensure(ctx, result, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(result.Created), nil
}
