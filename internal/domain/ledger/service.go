package ledger

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/events"
	"stockledger/internal/domain/product"
	"stockledger/pkg/logger"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// StockChange describes one applied movement.
type StockChange struct {
	Product       product.Product
	Movement      Movement
	PreviousStock int64
}

// StockObserver is notified inside the movement transaction, after the
// counter and the movement row are written. Returning an error aborts the
// movement.
type StockObserver interface {
	StockChanged(ctx context.Context, change StockChange) error
}

// Metrics receives movement outcomes.
type Metrics interface {
	MovementApplied(movementType string)
	MovementRejected(movementType, code string)
}

type nopMetrics struct{}

func (nopMetrics) MovementApplied(string)          {}
func (nopMetrics) MovementRejected(string, string) {}

// Service applies stock movements.
type Service struct {
	repo      Repository
	txManager tx.Manager
	publisher events.Publisher
	metrics   Metrics
	observers []StockObserver
	now       func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithPublisher sets the notification port for stock.changed events.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a ledger service.
func NewService(repo Repository, txManager tx.Manager, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		txManager: txManager,
		metrics:   nopMetrics{},
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddObserver registers an observer. Call during wiring, before serving.
func (s *Service) AddObserver(o StockObserver) {
	s.observers = append(s.observers, o)
}

// ApplyMovement validates the input, locks the product row, checks stock,
// updates the counter (and the weighted-average cost for receipts) and appends
// the movement, all in one transaction. Called inside an open transaction it
// joins it.
func (s *Service) ApplyMovement(ctx context.Context, in MovementInput) (*MovementResult, error) {
	if err := in.Validate(); err != nil {
		s.reject(in.Type, err)
		return nil, err
	}
	if in.UserID == "" {
		in.UserID = appctx.GetUserID(ctx)
	}

	var result *MovementResult
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetProductForUpdate(ctx, in.ProductID)
		if err != nil {
			return err
		}
		result, err = s.applyLocked(ctx, p, in, nil)
		return err
	})
	if err != nil {
		s.reject(in.Type, err)
		return nil, s.describeFailure(ctx, in.ProductID, err)
	}

	s.metrics.MovementApplied(string(in.Type))
	logger.Info(ctx, "movement applied",
		"product_id", in.ProductID,
		"movement_id", result.Movement.ID,
		"type", in.Type,
		"quantity", result.Movement.Quantity,
		"stock_after", result.Movement.StockAfter,
	)
	return result, nil
}

// ReverseSale appends a SALE_REVERSAL that returns the units of a SALE to
// stock. The original movement is left untouched. A sale can be reversed once.
func (s *Service) ReverseSale(ctx context.Context, movementID id.ID, userID, notes string) (*MovementResult, error) {
	if userID == "" {
		userID = appctx.GetUserID(ctx)
	}

	var result *MovementResult
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		orig, err := s.repo.GetMovement(ctx, movementID)
		if err != nil {
			return err
		}
		if orig.Type != MovementSale {
			return apperror.NewConflict("only SALE movements can be reversed").
				WithDetail("movement_id", movementID).
				WithDetail("type", orig.Type)
		}

		// Lock the product first: concurrent reversals of the same sale
		// serialize here, so the existence check below is reliable.
		p, err := s.repo.GetProductForUpdate(ctx, orig.ProductID)
		if err != nil {
			return err
		}
		reversed, err := s.repo.ReversalExists(ctx, orig.ID)
		if err != nil {
			return fmt.Errorf("check reversal: %w", err)
		}
		if reversed {
			return apperror.NewConflict("sale has already been reversed").
				WithDetail("movement_id", orig.ID)
		}

		in := MovementInput{
			ProductID: orig.ProductID,
			Type:      MovementSaleReversal,
			Quantity:  -orig.Quantity,
			UserID:    userID,
			Notes:     notes,
		}
		result, err = s.applyLocked(ctx, p, in, &orig.ID)
		return err
	})
	if err != nil {
		s.reject(MovementSaleReversal, err)
		return nil, err
	}

	s.metrics.MovementApplied(string(MovementSaleReversal))
	logger.Info(ctx, "sale reversed",
		"movement_id", movementID,
		"reversal_id", result.Movement.ID,
		"stock_after", result.Movement.StockAfter,
	)
	return result, nil
}

// applyLocked mutates a product whose row is already locked by the caller.
func (s *Service) applyLocked(ctx context.Context, p *product.Product, in MovementInput, reversalOf *id.ID) (*MovementResult, error) {
	prev := p.CurrentStock
	if in.Type.IsOutbound() && prev < in.Quantity {
		return nil, apperror.NewInsufficientStock(p.ID.String(), in.Quantity, prev)
	}

	signed := in.Type.Signed(in.Quantity)
	stockAfter := prev + signed
	if stockAfter < 0 {
		return nil, apperror.NewInsufficientStock(p.ID.String(), in.Quantity, prev)
	}

	cost := p.CostPrice
	if in.Type == MovementReceipt {
		cost = WeightedAverageCost(prev, p.CostPrice, in.Quantity, *in.CostPrice)
	}

	if err := s.repo.UpdateProductStock(ctx, p.ID, stockAfter, cost); err != nil {
		return nil, fmt.Errorf("update product stock: %w", err)
	}

	now := s.now()
	m := Movement{
		ID:         id.New(),
		ProductID:  p.ID,
		Type:       in.Type,
		Quantity:   signed,
		StockAfter: stockAfter,
		CostPrice:  in.CostPrice,
		SupplierID: in.SupplierID,
		UserID:     in.UserID,
		ReversalOf: reversalOf,
		Notes:      in.Notes,
		CreatedAt:  now,
	}
	if err := s.repo.InsertMovement(ctx, &m); err != nil {
		return nil, fmt.Errorf("insert movement: %w", err)
	}

	p.CurrentStock = stockAfter
	p.CostPrice = cost
	p.UpdatedAt = now

	change := StockChange{Product: *p, Movement: m, PreviousStock: prev}
	for _, o := range s.observers {
		if err := o.StockChanged(ctx, change); err != nil {
			return nil, fmt.Errorf("stock observer: %w", err)
		}
	}

	events.Emit(ctx, s.publisher, events.Event{
		Type:          events.TypeStockChanged,
		AggregateType: events.AggregateProduct,
		AggregateID:   p.ID,
		Payload: events.StockChanged{
			ProductID:    p.ID,
			MovementID:   m.ID,
			MovementType: string(m.Type),
			Quantity:     m.Quantity,
			StockAfter:   stockAfter,
			CostPrice:    cost.String(),
			OccurredAt:   now,
		},
	})

	return &MovementResult{Product: *p, Movement: m}, nil
}

// describeFailure rewrites an insufficient-stock error with the product as it
// is after the rollback, so the message never quotes a stale name or balance.
func (s *Service) describeFailure(ctx context.Context, productID id.ID, err error) error {
	appErr, ok := apperror.AsAppError(err)
	if !ok || appErr.Code != apperror.CodeInsufficientStock {
		return err
	}

	p, readErr := s.repo.GetProduct(ctx, productID)
	if readErr != nil {
		logger.Warn(ctx, "re-read product after failed movement", "product_id", productID, "error", readErr)
		return err
	}
	return appErr.
		WithMessage(fmt.Sprintf("Insufficient stock for %s: %d available", p.Label(), p.CurrentStock)).
		WithDetail("current_stock", p.CurrentStock).
		WithDetail("sku", p.SKU)
}

func (s *Service) reject(t MovementType, err error) {
	code := apperror.CodeInternal
	if appErr, ok := apperror.AsAppError(err); ok {
		code = appErr.Code
	}
	s.metrics.MovementRejected(string(t), code)
}

// History returns movements newest first, with the total count for paging.
func (s *Service) History(ctx context.Context, filter MovementFilter) ([]Movement, int64, error) {
	if id.IsNil(filter.ProductID) {
		return nil, 0, apperror.NewValidation("product_id is required")
	}
	if _, err := s.repo.GetProduct(ctx, filter.ProductID); err != nil {
		return nil, 0, err
	}
	for _, t := range filter.Types {
		if !t.IsValid() {
			return nil, 0, apperror.NewValidation(fmt.Sprintf("unknown movement type %q", t))
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultHistoryLimit
	}
	if filter.Limit > maxHistoryLimit {
		filter.Limit = maxHistoryLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	movements, total, err := s.repo.ListMovements(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list movements: %w", err)
	}
	return movements, total, nil
}

// VerifyConservation checks that the stock counter equals the ledger sum.
func (s *Service) VerifyConservation(ctx context.Context, productID id.ID) (*ConservationReport, error) {
	var report *ConservationReport
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		sum, err := s.repo.SumMovements(ctx, productID)
		if err != nil {
			return fmt.Errorf("sum movements: %w", err)
		}
		report = &ConservationReport{
			ProductID:    productID,
			CurrentStock: p.CurrentStock,
			LedgerSum:    sum,
			Balanced:     p.CurrentStock == sum,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !report.Balanced {
		logger.Error(ctx, "ledger conservation violated",
			"product_id", productID,
			"current_stock", report.CurrentStock,
			"ledger_sum", report.LedgerSum,
		)
	}
	return report, nil
}
