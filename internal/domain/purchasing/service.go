package purchasing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/alerts"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/product"
	"stockledger/pkg/logger"
)

// NumberPrefix prefixes purchase order numbers, e.g. PO-2026-00042.
const NumberPrefix = "PO"

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// StockReceiver is the ledger entry point used for receipts.
type StockReceiver interface {
	ApplyMovement(ctx context.Context, in ledger.MovementInput) (*ledger.MovementResult, error)
}

// AlertReconciler is the part of the alert manager purchasing drives.
type AlertReconciler interface {
	EvaluateAndReconcile(ctx context.Context, productID id.ID) (*alerts.ReconcileResult, error)
	ResolveForReorder(ctx context.Context, productIDs []id.ID, orderRef string) ([]alerts.Alert, error)
}

// Service places and receives purchase orders.
type Service struct {
	repo      Repository
	products  product.Reader
	stock     StockReceiver
	alerts    AlertReconciler
	numbers   NumberGenerator
	txManager tx.Manager
	now       func() time.Time
}

// NewService creates a purchasing service.
func NewService(
	repo Repository,
	products product.Reader,
	stock StockReceiver,
	alertReconciler AlertReconciler,
	numbers NumberGenerator,
	txManager tx.Manager,
) *Service {
	return &Service{
		repo:      repo,
		products:  products,
		stock:     stock,
		alerts:    alertReconciler,
		numbers:   numbers,
		txManager: txManager,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides time.Now. Tests only.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Create places an order and, in the same transaction, resolves stockout
// alerts of its products since a restock is now on the way.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Order, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.CreatedBy == "" {
		in.CreatedBy = appctx.GetUserID(ctx)
	}

	for _, it := range in.Items {
		if _, err := s.products.GetByID(ctx, it.ProductID); err != nil {
			return nil, err
		}
	}

	// Numbers are taken outside the business transaction; a rolled back
	// order leaves a gap, never a duplicate.
	number, err := s.numbers.Next(ctx, NumberPrefix)
	if err != nil {
		return nil, fmt.Errorf("generate order number: %w", err)
	}

	now := s.now()
	order := &Order{
		ID:           id.New(),
		Number:       number,
		SupplierID:   in.SupplierID,
		Status:       StatusOrdered,
		ExpectedDate: in.ExpectedDate,
		Notes:        in.Notes,
		CreatedBy:    in.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, it := range in.Items {
		order.Items = append(order.Items, Item{
			ID:              id.New(),
			OrderID:         order.ID,
			ProductID:       it.ProductID,
			QuantityOrdered: it.Quantity,
			UnitCost:        it.UnitCost,
		})
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, order); err != nil {
			return fmt.Errorf("create purchase order: %w", err)
		}
		if _, err := s.alerts.ResolveForReorder(ctx, order.ProductIDs(), order.Number); err != nil {
			return fmt.Errorf("resolve alerts for reorder: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "purchase order created",
		"order_id", order.ID,
		"number", order.Number,
		"items", len(order.Items),
	)
	return order, nil
}

// Get returns an order with its items.
func (s *Service) Get(ctx context.Context, orderID id.ID) (*Order, error) {
	return s.repo.Get(ctx, orderID)
}

// List returns orders without items.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, int64, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, filter)
}

// Receive books received quantities against an order. Every line is
// validated first, then applied in order within one transaction. Lines asking
// for more than is outstanding are clamped; fully received lines are skipped.
// After commit each touched product is re-evaluated for alerts.
func (s *Service) Receive(ctx context.Context, orderID id.ID, lines []ReceiveLine, userID string) (*ReceiptSummary, error) {
	if len(lines) == 0 {
		return nil, apperror.NewValidation("receipt needs at least one line")
	}
	for i, l := range lines {
		if id.IsNil(l.ItemID) {
			return nil, apperror.NewValidation("item_id is required").WithDetail("line", i)
		}
		if l.Quantity < 0 {
			return nil, apperror.NewInvalidQuantity(l.Quantity).WithDetail("line", i)
		}
	}
	if userID == "" {
		userID = appctx.GetUserID(ctx)
	}

	var summary *ReceiptSummary
	touched := make(map[id.ID]struct{})

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		order, err := s.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		items := make(map[id.ID]*Item, len(order.Items))
		for i := range order.Items {
			items[order.Items[i].ID] = &order.Items[i]
		}
		for _, l := range lines {
			if _, ok := items[l.ItemID]; !ok {
				return apperror.NewLineItemNotFound(order.ID, l.ItemID)
			}
		}

		summary = &ReceiptSummary{
			OrderID:        order.ID,
			OrderNumber:    order.Number,
			PreviousStatus: order.Status,
		}

		// Product rows are locked in product order; results keep request order.
		results := make([]LineResult, len(lines))
		for _, i := range productOrder(lines, items) {
			l := lines[i]
			item := items[l.ItemID]
			lr := LineResult{ItemID: item.ID, ProductID: item.ProductID, Requested: l.Quantity}

			toReceive := min(item.Remaining(), l.Quantity)
			if toReceive <= 0 {
				lr.Skipped = true
				results[i] = lr
				continue
			}

			item.QuantityReceived += toReceive
			if err := s.repo.UpdateItemReceived(ctx, item.ID, item.QuantityReceived); err != nil {
				return fmt.Errorf("update item %s: %w", item.ID, err)
			}

			cost := item.UnitCost
			supplier := order.SupplierID
			res, err := s.stock.ApplyMovement(ctx, ledger.MovementInput{
				ProductID:  item.ProductID,
				Type:       ledger.MovementReceipt,
				Quantity:   toReceive,
				CostPrice:  &cost,
				SupplierID: &supplier,
				UserID:     userID,
				Notes:      "purchase order " + order.Number,
			})
			if err != nil {
				return fmt.Errorf("receive item %s: %w", item.ID, err)
			}

			lr.Accepted = toReceive
			lr.MovementID = &res.Movement.ID
			summary.TotalAccepted += toReceive
			results[i] = lr
			touched[item.ProductID] = struct{}{}
		}
		summary.Lines = results

		status := DeriveStatus(order.Items)
		summary.Status = status
		if summary.TotalAccepted == 0 && status == order.Status {
			return nil
		}

		now := s.now()
		receivedAt := order.ReceivedAt
		if status == StatusReceived && receivedAt == nil {
			receivedAt = &now
		}
		if err := s.repo.UpdateStatus(ctx, order.ID, status, receivedAt, now); err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "purchase order received",
		"order_id", summary.OrderID,
		"number", summary.OrderNumber,
		"accepted", summary.TotalAccepted,
		"status", summary.Status,
	)

	s.reevaluate(ctx, touched)
	return summary, nil
}

// productOrder returns line indexes sorted by product ID. Lines of the same
// product keep their request order, so clamping is unaffected.
func productOrder(lines []ReceiveLine, items map[id.ID]*Item) []int {
	idx := make([]int, len(lines))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return id.Less(items[lines[idx[a]].ItemID].ProductID, items[lines[idx[b]].ItemID].ProductID)
	})
	return idx
}

// reevaluate runs alert reconciliation for received products. Failures are
// logged; the receipt is already committed.
func (s *Service) reevaluate(ctx context.Context, touched map[id.ID]struct{}) {
	ids := make([]id.ID, 0, len(touched))
	for pid := range touched {
		ids = append(ids, pid)
	}
	sort.Slice(ids, func(i, j int) bool { return id.Less(ids[i], ids[j]) })

	for _, pid := range ids {
		if _, err := s.alerts.EvaluateAndReconcile(ctx, pid); err != nil {
			logger.Warn(ctx, "post-receipt alert evaluation failed", "product_id", pid, "error", err)
		}
	}
}
