package postgres_test

import (
	"context"
	"os"
	"sync"
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
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/alert_repo"
	"stockledger/internal/infrastructure/storage/postgres/forecast_repo"
	"stockledger/internal/infrastructure/storage/postgres/ledger_repo"
	"stockledger/internal/infrastructure/storage/postgres/purchase_repo"
	"stockledger/pkg/numerator"
)

type stack struct {
	txm       *postgres.TxManager
	products  *ledger_repo.ProductRepo
	ledger    *ledger.Service
	alerts    *alerts.Service
	purchases *purchasing.Service
}

// newStack connects to STOCKLEDGER_TEST_DATABASE_URL; the test is skipped without it.
func newStack(t *testing.T) *stack {
	t.Helper()
	dsn := os.Getenv("STOCKLEDGER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("STOCKLEDGER_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dsn))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	txm := postgres.NewTxManager(pool, 10*time.Second)
	require.NoError(t, postgres.Migrate(ctx, txm))

	products := ledger_repo.NewProductRepo(txm)
	publisher := postgres.NewOutboxPublisher(txm)
	ledgerSvc := ledger.NewService(ledger_repo.NewLedgerRepo(txm, products), txm, ledger.WithPublisher(publisher))
	alertSvc := alerts.NewService(alert_repo.NewAlertRepo(txm), products, forecast_repo.NewForecastRepo(txm), txm,
		alerts.WithPublisher(publisher))
	ledgerSvc.AddObserver(alertSvc)
	purchaseSvc := purchasing.NewService(purchase_repo.NewOrderRepo(txm), products, ledgerSvc, alertSvc,
		numerator.New(pool, nil), txm)

	return &stack{txm: txm, products: products, ledger: ledgerSvc, alerts: alertSvc, purchases: purchaseSvc}
}

func (s *stack) product(t *testing.T, stock int64) product.Product {
	t.Helper()
	now := time.Now().UTC()
	p := product.Product{
		ID:                id.New(),
		SKU:               "IT-" + id.New().String()[:8],
		Name:              "Integration widget",
		CurrentStock:      0,
		CostPrice:         types.MustMoney("10"),
		LowStockThreshold: 5,
		ReorderPoint:      10,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, s.products.Upsert(context.Background(), &p))
	if stock > 0 {
		_, err := s.ledger.ApplyMovement(context.Background(), ledger.MovementInput{
			ProductID: p.ID,
			Type:      ledger.MovementAdjustmentIn,
			Quantity:  stock,
		})
		require.NoError(t, err)
	}
	return p
}

func TestIntegration_ConcurrentSalesSerialize(t *testing.T) {
	s := newStack(t)
	p := s.product(t, 10)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.ledger.ApplyMovement(context.Background(), ledger.MovementInput{
				ProductID: p.ID, Type: ledger.MovementSale, Quantity: 6,
			})
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
			assert.True(t, apperror.IsInsufficientStock(err), "got %v", err)
		}
	}
	assert.Equal(t, 1, failures)

	report, err := s.ledger.VerifyConservation(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, report.Balanced)
	assert.Equal(t, int64(4), report.CurrentStock)
}

func TestIntegration_ReceiptResolvesAlertAndDedup(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	p := s.product(t, 2)

	res, err := s.alerts.RunDailySweep(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Created, 1)
	again, err := s.alerts.RunDailySweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Created)

	order, err := s.purchases.Create(ctx, purchasing.CreateInput{
		SupplierID: id.New(),
		Items:      []purchasing.CreateItemInput{{ProductID: p.ID, Quantity: 10, UnitCost: types.MustMoney("12")}},
	})
	require.NoError(t, err)

	active := true
	list, _, err := s.alerts.List(ctx, alerts.Filter{ProductID: &p.ID, Active: &active})
	require.NoError(t, err)
	assert.Empty(t, list, "reorder resolves stockout alerts")

	sum, err := s.purchases.Receive(ctx, order.ID, []purchasing.ReceiveLine{{ItemID: order.Items[0].ID, Quantity: 10}}, "it")
	require.NoError(t, err)
	assert.Equal(t, purchasing.StatusReceived, sum.Status)

	got, err := s.products.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), got.CurrentStock)
	assert.True(t, types.MustMoney("11.6667").Equal(got.CostPrice), "got %s", got.CostPrice)
}
