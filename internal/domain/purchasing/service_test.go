package purchasing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/alerts"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/product"
	"stockledger/internal/domain/purchasing"
	"stockledger/internal/infrastructure/storage/memory"
)

type fixture struct {
	store    *memory.Store
	svc      *purchasing.Service
	supplier id.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	txm := memory.NewTxManager(store)

	alertSvc := alerts.NewService(store.AlertRepo(), store.Products(), store.Forecasts(), txm)
	ledgerSvc := ledger.NewService(store.Ledger(), txm)
	ledgerSvc.AddObserver(alertSvc)

	return &fixture{
		store:    store,
		svc:      purchasing.NewService(store.Orders(), store.Products(), ledgerSvc, alertSvc, store.Numbers(), txm),
		supplier: id.New(),
	}
}

func (f *fixture) product(name string, stock, threshold int64) product.Product {
	p := product.Product{
		ID:                id.New(),
		SKU:               name,
		Name:              name,
		CurrentStock:      stock,
		CostPrice:         types.MustMoney("10"),
		LowStockThreshold: threshold,
	}
	f.store.PutProduct(p)
	return p
}

func (f *fixture) order(t *testing.T, items ...purchasing.CreateItemInput) *purchasing.Order {
	t.Helper()
	o, err := f.svc.Create(context.Background(), purchasing.CreateInput{SupplierID: f.supplier, Items: items})
	require.NoError(t, err)
	return o
}

func line(productID id.ID, qty int64, cost string) purchasing.CreateItemInput {
	return purchasing.CreateItemInput{ProductID: productID, Quantity: qty, UnitCost: types.MustMoney(cost)}
}

func activeAlert(productID id.ID, t alerts.Type) alerts.Alert {
	return *alerts.NewActive(productID, t, alerts.Message{Text: "seeded", RiskScore: 60}, time.Now())
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	p := f.product("A", 2, 5)

	o := f.order(t, line(p.ID, 10, "4.5"))

	assert.Regexp(t, `^PO-\d{4}-00001$`, o.Number)
	assert.Equal(t, purchasing.StatusOrdered, o.Status)
	assert.Equal(t, "system", o.CreatedBy)
	require.Len(t, o.Items, 1)

	second := f.order(t, line(p.ID, 1, "4.5"))
	assert.Regexp(t, `^PO-\d{4}-00002$`, second.Number)

	stored, err := f.svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stored.Items[0].QuantityOrdered)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	p := f.product("A", 0, 0)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, purchasing.CreateInput{Items: []purchasing.CreateItemInput{line(p.ID, 1, "1")}})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = f.svc.Create(ctx, purchasing.CreateInput{SupplierID: f.supplier})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = f.svc.Create(ctx, purchasing.CreateInput{SupplierID: f.supplier, Items: []purchasing.CreateItemInput{line(p.ID, 0, "1")}})
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidQuantity))

	_, err = f.svc.Create(ctx, purchasing.CreateInput{SupplierID: f.supplier, Items: []purchasing.CreateItemInput{line(p.ID, 1, "-1")}})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = f.svc.Create(ctx, purchasing.CreateInput{SupplierID: f.supplier, Items: []purchasing.CreateItemInput{line(id.New(), 1, "1")}})
	assert.True(t, apperror.IsNotFound(err))
}

func TestCreate_ResolvesStockoutAlerts(t *testing.T) {
	f := newFixture(t)
	p := f.product("A", 0, 5)
	other := f.product("B", 0, 5)
	f.store.PutAlert(activeAlert(p.ID, alerts.TypeOutOfStock))
	f.store.PutAlert(activeAlert(p.ID, alerts.TypeOverstock))
	f.store.PutAlert(activeAlert(other.ID, alerts.TypeLowStock))

	o := f.order(t, line(p.ID, 10, "1"))

	assert.Empty(t, f.store.ActiveAlerts(p.ID, alerts.TypeOutOfStock))
	assert.Len(t, f.store.ActiveAlerts(p.ID, alerts.TypeOverstock), 1, "overstock is not touched by a reorder")
	assert.Len(t, f.store.ActiveAlerts(other.ID, alerts.TypeLowStock), 1)

	for _, a := range f.store.Alerts(p.ID) {
		if a.Type == alerts.TypeOutOfStock {
			assert.Equal(t, "reorder placed: "+o.Number, a.ResolutionNote)
		}
	}
}

func TestCreate_AlertFailureRollsBackOrder(t *testing.T) {
	f := newFixture(t)
	p := f.product("A", 0, 5)
	f.store.InjectFault("ResolveActive", errors.New("boom"))

	_, err := f.svc.Create(context.Background(), purchasing.CreateInput{
		SupplierID: f.supplier,
		Items:      []purchasing.CreateItemInput{line(p.ID, 1, "1")},
	})
	require.Error(t, err)

	orders, total, err := f.svc.List(context.Background(), purchasing.ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, orders)
}

func TestReceive_PartialThenFull(t *testing.T) {
	f := newFixture(t)
	p := f.product("A", 0, 0)
	o := f.order(t, line(p.ID, 5, "2"))
	item := o.Items[0].ID
	ctx := context.Background()

	sum, err := f.svc.Receive(ctx, o.ID, []purchasing.ReceiveLine{{ItemID: item, Quantity: 3}}, "clerk")
	require.NoError(t, err)
	assert.Equal(t, purchasing.StatusOrdered, sum.PreviousStatus)
	assert.Equal(t, purchasing.StatusPartiallyReceived, sum.Status)
	assert.Equal(t, int64(3), sum.TotalAccepted)

	sum, err = f.svc.Receive(ctx, o.ID, []purchasing.ReceiveLine{{ItemID: item, Quantity: 10}}, "clerk")
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.TotalAccepted, "clamped to the outstanding quantity")
	assert.Equal(t, int64(10), sum.Lines[0].Requested)
	assert.Equal(t, purchasing.StatusReceived, sum.Status)

	stored, _ := f.store.Order(o.ID)
	assert.Equal(t, int64(5), stored.Items[0].QuantityReceived)
	assert.NotNil(t, stored.ReceivedAt)

	prod, _ := f.store.Product(p.ID)
	assert.Equal(t, int64(5), prod.CurrentStock)

	movements := f.store.Movements(p.ID)
	require.Len(t, movements, 2)
	assert.Equal(t, ledger.MovementReceipt, movements[1].Type)
	assert.Equal(t, "clerk", movements[1].UserID)
	require.NotNil(t, movements[1].SupplierID)
	assert.Equal(t, f.supplier, *movements[1].SupplierID)
	assert.Equal(t, "purchase order "+o.Number, movements[1].Notes)

	sum, err = f.svc.Receive(ctx, o.ID, []purchasing.ReceiveLine{{ItemID: item, Quantity: 1}}, "clerk")
	require.NoError(t, err)
	assert.True(t, sum.Lines[0].Skipped)
	assert.Zero(t, sum.TotalAccepted)
	assert.Len(t, f.store.Movements(p.ID), 2)
}

func TestReceive_ZeroQuantityLineIsSkipped(t *testing.T) {
	f := newFixture(t)
	p := f.product("A", 0, 0)
	o := f.order(t, line(p.ID, 5, "2"))

	sum, err := f.svc.Receive(context.Background(), o.ID, []purchasing.ReceiveLine{{ItemID: o.Items[0].ID, Quantity: 0}}, "")
	require.NoError(t, err)
	assert.True(t, sum.Lines[0].Skipped)
	assert.Equal(t, purchasing.StatusOrdered, sum.Status)
}

func TestReceive_UnknownItemAbortsWholeReceipt(t *testing.T) {
	f := newFixture(t)
	p := f.product("A", 0, 0)
	o := f.order(t, line(p.ID, 5, "2"))

	_, err := f.svc.Receive(context.Background(), o.ID, []purchasing.ReceiveLine{
		{ItemID: o.Items[0].ID, Quantity: 2},
		{ItemID: id.New(), Quantity: 1},
	}, "")
	assert.True(t, apperror.HasCode(err, apperror.CodeLineItemNotFound))

	prod, _ := f.store.Product(p.ID)
	assert.Zero(t, prod.CurrentStock)
	assert.Empty(t, f.store.Movements(p.ID))
}

func TestReceive_IsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	a := f.product("A", 0, 0)
	b := f.product("B", 0, 0)
	o := f.order(t, line(a.ID, 5, "2"), line(b.ID, 5, "3"))
	f.store.InjectFaultAfter("InsertMovement", 1, errors.New("connection reset"))

	_, err := f.svc.Receive(context.Background(), o.ID, []purchasing.ReceiveLine{
		{ItemID: o.Items[0].ID, Quantity: 5},
		{ItemID: o.Items[1].ID, Quantity: 5},
	}, "")
	require.Error(t, err)

	stored, _ := f.store.Order(o.ID)
	assert.Equal(t, purchasing.StatusOrdered, stored.Status)
	for _, it := range stored.Items {
		assert.Zero(t, it.QuantityReceived)
	}
	pa, _ := f.store.Product(a.ID)
	assert.Zero(t, pa.CurrentStock, "first line must roll back too")
	assert.Empty(t, f.store.Movements(a.ID))
}

func TestReceive_InputErrors(t *testing.T) {
	f := newFixture(t)
	p := f.product("A", 0, 0)
	o := f.order(t, line(p.ID, 5, "2"))
	ctx := context.Background()

	_, err := f.svc.Receive(ctx, o.ID, nil, "")
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = f.svc.Receive(ctx, o.ID, []purchasing.ReceiveLine{{ItemID: o.Items[0].ID, Quantity: -1}}, "")
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidQuantity))

	_, err = f.svc.Receive(ctx, id.New(), []purchasing.ReceiveLine{{ItemID: o.Items[0].ID, Quantity: 1}}, "")
	assert.True(t, apperror.IsNotFound(err))
}

func TestReceive_ReplenishmentResolvesStockoutAlerts(t *testing.T) {
	f := newFixture(t)
	p := f.product("A", 2, 5)
	o := f.order(t, line(p.ID, 10, "2"))
	f.store.PutAlert(activeAlert(p.ID, alerts.TypeLowStock))

	_, err := f.svc.Receive(context.Background(), o.ID, []purchasing.ReceiveLine{{ItemID: o.Items[0].ID, Quantity: 10}}, "")
	require.NoError(t, err)

	assert.Empty(t, f.store.ActiveAlerts(p.ID, alerts.TypeLowStock))
	all := f.store.Alerts(p.ID)
	require.Len(t, all, 1)
	assert.Equal(t, "stock replenished to 12", all[0].ResolutionNote)
}

func TestReceive_SmallReceiptKeepsAlert(t *testing.T) {
	f := newFixture(t)
	p := f.product("A", 2, 5)
	o := f.order(t, line(p.ID, 10, "2"))
	f.store.PutAlert(activeAlert(p.ID, alerts.TypeLowStock))

	_, err := f.svc.Receive(context.Background(), o.ID, []purchasing.ReceiveLine{{ItemID: o.Items[0].ID, Quantity: 3}}, "")
	require.NoError(t, err)

	assert.Len(t, f.store.ActiveAlerts(p.ID, alerts.TypeLowStock), 1, "stock 5 is not above threshold 5")
}

func TestList(t *testing.T) {
	f := newFixture(t)
	p := f.product("A", 0, 0)
	first := f.order(t, line(p.ID, 1, "1"))
	f.order(t, line(p.ID, 1, "1"))
	_, err := f.svc.Receive(context.Background(), first.ID, []purchasing.ReceiveLine{{ItemID: first.Items[0].ID, Quantity: 1}}, "")
	require.NoError(t, err)

	received := purchasing.StatusReceived
	orders, total, err := f.svc.List(context.Background(), purchasing.ListFilter{Status: &received})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, orders, 1)
	assert.Equal(t, first.ID, orders[0].ID)
	assert.Nil(t, orders[0].Items)
}

type receiptRecorder struct {
	next     purchasing.StockReceiver
	products []id.ID
}

func (r *receiptRecorder) ApplyMovement(ctx context.Context, in ledger.MovementInput) (*ledger.MovementResult, error) {
	r.products = append(r.products, in.ProductID)
	return r.next.ApplyMovement(ctx, in)
}

func TestReceive_AppliesLinesInProductOrder(t *testing.T) {
	store := memory.NewStore()
	txm := memory.NewTxManager(store)
	alertSvc := alerts.NewService(store.AlertRepo(), store.Products(), store.Forecasts(), txm)
	rec := &receiptRecorder{next: ledger.NewService(store.Ledger(), txm)}
	f := &fixture{
		store:    store,
		svc:      purchasing.NewService(store.Orders(), store.Products(), rec, alertSvc, store.Numbers(), txm),
		supplier: id.New(),
	}
	a, b := f.product("A", 0, 0), f.product("B", 0, 0)
	if id.Less(b.ID, a.ID) {
		a, b = b, a
	}
	ctx := context.Background()

	first := f.order(t, line(a.ID, 5, "1"), line(b.ID, 5, "1"))
	second := f.order(t, line(b.ID, 5, "1"), line(a.ID, 5, "1"))

	_, err := f.svc.Receive(ctx, first.ID, []purchasing.ReceiveLine{
		{ItemID: first.Items[1].ID, Quantity: 2},
		{ItemID: first.Items[0].ID, Quantity: 3},
	}, "clerk")
	require.NoError(t, err)

	sum, err := f.svc.Receive(ctx, second.ID, []purchasing.ReceiveLine{
		{ItemID: second.Items[0].ID, Quantity: 4},
		{ItemID: second.Items[1].ID, Quantity: 1},
	}, "clerk")
	require.NoError(t, err)

	assert.Equal(t, []id.ID{a.ID, b.ID, a.ID, b.ID}, rec.products)

	// Summary lines stay in request order.
	require.Len(t, sum.Lines, 2)
	assert.Equal(t, b.ID, sum.Lines[0].ProductID)
	assert.Equal(t, int64(4), sum.Lines[0].Accepted)
	assert.Equal(t, a.ID, sum.Lines[1].ProductID)
	assert.Equal(t, int64(1), sum.Lines[1].Accepted)

	pa, _ := store.Product(a.ID)
	pb, _ := store.Product(b.ID)
	assert.Equal(t, int64(4), pa.CurrentStock)
	assert.Equal(t, int64(6), pb.CurrentStock)
}
