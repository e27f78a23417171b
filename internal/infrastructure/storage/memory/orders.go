package memory

import (
	"context"
	"sort"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/purchasing"
)

var _ purchasing.Repository = (*OrderRepo)(nil)

// OrderRepo implements purchasing.Repository.
type OrderRepo struct {
	s *Store
}

// Create implements purchasing.Repository.
func (r *OrderRepo) Create(_ context.Context, o *purchasing.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("Create"); err != nil {
		return err
	}
	for _, existing := range r.s.data.orders {
		if existing.Number == o.Number {
			return apperror.NewConflict("purchase order number already used").WithDetail("number", o.Number)
		}
	}
	stored := *o
	stored.Items = append([]purchasing.Item(nil), o.Items...)
	r.s.data.orders[o.ID] = stored
	return nil
}

// Get implements purchasing.Repository.
func (r *OrderRepo) Get(_ context.Context, orderID id.ID) (*purchasing.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.get(orderID)
}

// GetForUpdate implements purchasing.Repository.
func (r *OrderRepo) GetForUpdate(ctx context.Context, orderID id.ID) (*purchasing.Order, error) {
	if !inTx(ctx) {
		return nil, ErrNoTransaction
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.get(orderID)
}

func (r *OrderRepo) get(orderID id.ID) (*purchasing.Order, error) {
	o, ok := r.s.data.orders[orderID]
	if !ok {
		return nil, apperror.NewNotFound("purchase order", orderID)
	}
	o.Items = append([]purchasing.Item(nil), o.Items...)
	return &o, nil
}

// UpdateItemReceived implements purchasing.Repository.
func (r *OrderRepo) UpdateItemReceived(_ context.Context, itemID id.ID, received int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("UpdateItemReceived"); err != nil {
		return err
	}
	for oid, o := range r.s.data.orders {
		for i := range o.Items {
			if o.Items[i].ID == itemID {
				o.Items[i].QuantityReceived = received
				r.s.data.orders[oid] = o
				return nil
			}
		}
	}
	return apperror.NewNotFound("purchase order item", itemID)
}

// UpdateStatus implements purchasing.Repository.
func (r *OrderRepo) UpdateStatus(_ context.Context, orderID id.ID, status purchasing.Status, receivedAt *time.Time, updatedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.data.orders[orderID]
	if !ok {
		return apperror.NewNotFound("purchase order", orderID)
	}
	o.Status = status
	o.ReceivedAt = receivedAt
	o.UpdatedAt = updatedAt
	r.s.data.orders[orderID] = o
	return nil
}

// List implements purchasing.Repository.
func (r *OrderRepo) List(_ context.Context, f purchasing.ListFilter) ([]purchasing.Order, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var matched []purchasing.Order
	for _, o := range r.s.data.orders {
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		if f.SupplierID != nil && o.SupplierID != *f.SupplierID {
			continue
		}
		o.Items = nil
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return page(matched, f.Offset, f.Limit), int64(len(matched)), nil
}
