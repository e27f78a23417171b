// Package memory is an in-process implementation of the ledger, purchasing,
// alert and forecast ports. Transactions are serialized and rolled back by
// snapshot, which gives the same observable guarantees as row locks on a
// single product. It is a test double for domain and HTTP tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/alerts"
	"stockledger/internal/domain/forecast"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/product"
	"stockledger/internal/domain/purchasing"
)

// ErrNoTransaction is returned by locking reads outside a transaction.
var ErrNoTransaction = errors.New("memory: locking read requires a transaction")

type state struct {
	products  map[id.ID]product.Product
	movements []ledger.Movement
	orders    map[id.ID]purchasing.Order
	alerts    []alerts.Alert
	forecasts map[id.ID]forecast.Run
	sequences map[string]int64
}

func (s *state) clone() *state {
	c := &state{
		products:  make(map[id.ID]product.Product, len(s.products)),
		movements: append([]ledger.Movement(nil), s.movements...),
		orders:    make(map[id.ID]purchasing.Order, len(s.orders)),
		alerts:    append([]alerts.Alert(nil), s.alerts...),
		forecasts: make(map[id.ID]forecast.Run, len(s.forecasts)),
		sequences: make(map[string]int64, len(s.sequences)),
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.orders {
		v.Items = append([]purchasing.Item(nil), v.Items...)
		c.orders[k] = v
	}
	for k, v := range s.forecasts {
		c.forecasts[k] = v
	}
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	return c
}

// Store holds all data. Use the accessor methods to get port implementations.
type Store struct {
	mu     sync.RWMutex
	data   *state
	faults map[string]*injectedFault
}

type injectedFault struct {
	skip int
	err  error
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		data: &state{
			products:  make(map[id.ID]product.Product),
			orders:    make(map[id.ID]purchasing.Order),
			forecasts: make(map[id.ID]forecast.Run),
			sequences: make(map[string]int64),
		},
		faults: make(map[string]*injectedFault),
	}
}

// InjectFault makes the next call of the named operation fail with err.
// Operation names are the repository method names, e.g. "InsertMovement".
func (s *Store) InjectFault(op string, err error) {
	s.InjectFaultAfter(op, 0, err)
}

// InjectFaultAfter lets skip calls of op succeed and fails the next one.
func (s *Store) InjectFaultAfter(op string, skip int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = &injectedFault{skip: skip, err: err}
}

// fault consumes an injected fault. Caller holds s.mu.
func (s *Store) fault(op string) error {
	f, ok := s.faults[op]
	if !ok {
		return nil
	}
	if f.skip > 0 {
		f.skip--
		return nil
	}
	delete(s.faults, op)
	return fmt.Errorf("%s: %w", op, f.err)
}

func (s *Store) snapshot() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.clone()
}

func (s *Store) restore(st *state) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = st
}

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(p product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.products[p.ID] = p
}

// PutForecast stores a run as the latest for its product.
func (s *Store) PutForecast(run forecast.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.forecasts[run.ProductID] = run
}

// DeleteForecast removes the product's forecast.
func (s *Store) DeleteForecast(productID id.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.forecasts, productID)
}

// PutAlert inserts an alert as is, bypassing dedup. Tests use it to seed state.
func (s *Store) PutAlert(a alerts.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.alerts = append(s.data.alerts, a)
}

// Product returns a copy of the stored product.
func (s *Store) Product(productID id.ID) (product.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data.products[productID]
	return p, ok
}

// Movements returns all movements of a product in insertion order.
func (s *Store) Movements(productID id.ID) []ledger.Movement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.Movement
	for _, m := range s.data.movements {
		if m.ProductID == productID {
			out = append(out, m)
		}
	}
	return out
}

// Alerts returns all alerts of a product, resolved ones included.
func (s *Store) Alerts(productID id.ID) []alerts.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []alerts.Alert
	for _, a := range s.data.alerts {
		if a.ProductID == productID {
			out = append(out, a)
		}
	}
	return out
}

// ActiveAlerts returns unresolved alerts of a product with the given type.
func (s *Store) ActiveAlerts(productID id.ID, t alerts.Type) []alerts.Alert {
	var out []alerts.Alert
	for _, a := range s.Alerts(productID) {
		if a.Type == t && !a.IsResolved {
			out = append(out, a)
		}
	}
	return out
}

// Order returns a copy of a stored order.
func (s *Store) Order(orderID id.ID) (purchasing.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.data.orders[orderID]
	if ok {
		o.Items = append([]purchasing.Item(nil), o.Items...)
	}
	return o, ok
}

// Products returns the product.Reader implementation.
func (s *Store) Products() *ProductRepo { return &ProductRepo{s: s} }

// Ledger returns the ledger.Repository implementation.
func (s *Store) Ledger() *LedgerRepo { return &LedgerRepo{s: s} }

// AlertRepo returns the alerts.Repository implementation.
func (s *Store) AlertRepo() *AlertRepo { return &AlertRepo{s: s} }

// Orders returns the purchasing.Repository implementation.
func (s *Store) Orders() *OrderRepo { return &OrderRepo{s: s} }

// Forecasts returns the forecast.Provider implementation.
func (s *Store) Forecasts() *ForecastProvider { return &ForecastProvider{s: s} }

// Numbers returns a purchasing.NumberGenerator backed by in-memory sequences.
func (s *Store) Numbers() *Sequence { return &Sequence{s: s} }

// inTx reports whether ctx carries a memory transaction.
func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*txState)
	return ok
}
