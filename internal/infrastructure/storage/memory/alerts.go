package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/alerts"
)

var _ alerts.Repository = (*AlertRepo)(nil)

// AlertRepo implements alerts.Repository with the same one-active-per-type
// rule the Postgres partial unique index enforces.
type AlertRepo struct {
	s *Store
}

// activeIndex returns the index of the active alert or -1. Caller holds the lock.
func (r *AlertRepo) activeIndex(productID id.ID, t alerts.Type) int {
	for i, a := range r.s.data.alerts {
		if a.ProductID == productID && a.Type == t && !a.IsResolved {
			return i
		}
	}
	return -1
}

// EnsureActive implements alerts.Repository.
func (r *AlertRepo) EnsureActive(_ context.Context, a *alerts.Alert) (*alerts.Alert, alerts.Outcome, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("EnsureActive"); err != nil {
		return nil, alerts.OutcomeUnchanged, err
	}
	if i := r.activeIndex(a.ProductID, a.Type); i >= 0 {
		existing := r.s.data.alerts[i]
		return &existing, alerts.OutcomeUnchanged, nil
	}
	stored := *a
	r.s.data.alerts = append(r.s.data.alerts, stored)
	return &stored, alerts.OutcomeCreated, nil
}

// UpsertActive implements alerts.Repository.
func (r *AlertRepo) UpsertActive(_ context.Context, a *alerts.Alert) (*alerts.Alert, alerts.Outcome, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("UpsertActive"); err != nil {
		return nil, alerts.OutcomeUnchanged, err
	}
	if i := r.activeIndex(a.ProductID, a.Type); i >= 0 {
		existing := &r.s.data.alerts[i]
		if existing.Message == a.Message {
			out := *existing
			return &out, alerts.OutcomeUnchanged, nil
		}
		existing.Message = a.Message
		existing.UpdatedAt = a.UpdatedAt
		out := *existing
		return &out, alerts.OutcomeUpdated, nil
	}
	stored := *a
	r.s.data.alerts = append(r.s.data.alerts, stored)
	return &stored, alerts.OutcomeCreated, nil
}

// ResolveActive implements alerts.Repository.
func (r *AlertRepo) ResolveActive(_ context.Context, productID id.ID, types []alerts.Type, note string, at time.Time) ([]alerts.Alert, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("ResolveActive"); err != nil {
		return nil, err
	}
	var resolved []alerts.Alert
	for i := range r.s.data.alerts {
		a := &r.s.data.alerts[i]
		if a.ProductID != productID || a.IsResolved || !slices.Contains(types, a.Type) {
			continue
		}
		ts := at
		a.IsResolved = true
		a.ResolutionNote = note
		a.ResolvedAt = &ts
		a.UpdatedAt = at
		resolved = append(resolved, *a)
	}
	return resolved, nil
}

// GetByID implements alerts.Repository.
func (r *AlertRepo) GetByID(_ context.Context, alertID id.ID) (*alerts.Alert, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, a := range r.s.data.alerts {
		if a.ID == alertID {
			return &a, nil
		}
	}
	return nil, apperror.NewNotFound("alert", alertID)
}

// List implements alerts.Repository.
func (r *AlertRepo) List(_ context.Context, f alerts.Filter) ([]alerts.Alert, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []alerts.Alert
	for _, a := range r.s.data.alerts {
		if f.ProductID != nil && a.ProductID != *f.ProductID {
			continue
		}
		if len(f.Types) > 0 && !slices.Contains(f.Types, a.Type) {
			continue
		}
		if f.Active != nil && a.IsResolved == *f.Active {
			continue
		}
		if f.Unread != nil && a.IsRead == *f.Unread {
			continue
		}
		matched = append(matched, a)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return page(matched, f.Offset, f.Limit), int64(len(matched)), nil
}

// MarkRead implements alerts.Repository.
func (r *AlertRepo) MarkRead(_ context.Context, alertID id.ID, at time.Time) (*alerts.Alert, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.data.alerts {
		a := &r.s.data.alerts[i]
		if a.ID == alertID {
			if !a.IsRead {
				a.IsRead = true
				a.UpdatedAt = at
			}
			out := *a
			return &out, nil
		}
	}
	return nil, apperror.NewNotFound("alert", alertID)
}
