package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/product"
	"stockledger/internal/infrastructure/storage/memory"
)

type fixture struct {
	store    *memory.Store
	listener *SaleListener
}

func newFixture(reader MessageReader) *fixture {
	store := memory.NewStore()
	txm := memory.NewTxManager(store)
	svc := ledger.NewService(store.Ledger(), txm)
	l := NewSaleListener(reader, svc, txm)
	l.backoff = time.Millisecond
	return &fixture{store: store, listener: l}
}

func (f *fixture) product(stock int64) id.ID {
	p := product.Product{ID: id.New(), SKU: "SKU", Name: "Widget", CurrentStock: stock, CostPrice: types.MustMoney("1")}
	f.store.PutProduct(p)
	return p.ID
}

func (f *fixture) stock(t *testing.T, productID id.ID) int64 {
	t.Helper()
	p, ok := f.store.Product(productID)
	require.True(t, ok)
	return p.CurrentStock
}

func orderMessage(t *testing.T, lines ...OrderLine) kafka.Message {
	t.Helper()
	body, err := json.Marshal(OrderEvent{OrderID: "ORD-1", Lines: lines})
	require.NoError(t, err)
	return kafka.Message{Topic: "orders.created", Value: body}
}

func TestHandle_BooksSales(t *testing.T) {
	f := newFixture(nil)
	a, b := f.product(10), f.product(5)

	err := f.listener.Handle(context.Background(), orderMessage(t,
		OrderLine{ProductID: a, Quantity: 3},
		OrderLine{ProductID: b, Quantity: 5},
	))
	require.NoError(t, err)

	assert.Equal(t, int64(7), f.stock(t, a))
	assert.Equal(t, int64(0), f.stock(t, b))

	movements := f.store.Movements(a)
	require.Len(t, movements, 1)
	assert.Equal(t, ledger.MovementSale, movements[0].Type)
	assert.Equal(t, int64(-3), movements[0].Quantity)
	assert.Equal(t, SaleUser, movements[0].UserID)
	assert.Equal(t, "order ORD-1", movements[0].Notes)
}

func TestHandle_SkipsRejectedLines(t *testing.T) {
	f := newFixture(nil)
	a, b := f.product(2), f.product(4)

	err := f.listener.Handle(context.Background(), orderMessage(t,
		OrderLine{ProductID: a, Quantity: 3},
		OrderLine{ProductID: id.New(), Quantity: 1},
		OrderLine{ProductID: b, Quantity: 0},
		OrderLine{ProductID: b, Quantity: 4},
	))
	require.NoError(t, err)

	assert.Equal(t, int64(2), f.stock(t, a), "insufficient stock line is skipped")
	assert.Equal(t, int64(0), f.stock(t, b))
	assert.Len(t, f.store.Movements(b), 1)
}

func TestHandle_InfrastructureFailureRollsBackOrder(t *testing.T) {
	f := newFixture(nil)
	a, b := f.product(10), f.product(10)
	f.store.InjectFaultAfter("InsertMovement", 1, errors.New("disk full"))

	err := f.listener.Handle(context.Background(), orderMessage(t,
		OrderLine{ProductID: a, Quantity: 1},
		OrderLine{ProductID: b, Quantity: 1},
	))
	require.ErrorContains(t, err, "disk full")

	assert.Equal(t, int64(10), f.stock(t, a))
	assert.Equal(t, int64(10), f.stock(t, b))
	assert.Empty(t, f.store.Movements(a))
}

func TestHandle_MalformedMessageIsAcknowledged(t *testing.T) {
	f := newFixture(nil)
	assert.NoError(t, f.listener.Handle(context.Background(), kafka.Message{Value: []byte("{")}))
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	closed    bool
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	r.cancel()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func TestRun_RetriesUntilHandledThenCommits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{cancel: cancel}
	f := newFixture(reader)
	a := f.product(10)
	f.store.InjectFault("InsertMovement", errors.New("connection reset"))

	msg := orderMessage(t, OrderLine{ProductID: a, Quantity: 4})
	msg.Offset = 7
	reader.queue = []kafka.Message{msg}

	require.NoError(t, f.listener.Run(ctx))

	assert.True(t, reader.closed)
	require.Len(t, reader.committed, 1)
	assert.Equal(t, int64(7), reader.committed[0].Offset)
	assert.Equal(t, int64(6), f.stock(t, a))
}

type orderRecorder struct {
	next     SaleApplier
	products []id.ID
}

func (r *orderRecorder) ApplyMovement(ctx context.Context, in ledger.MovementInput) (*ledger.MovementResult, error) {
	r.products = append(r.products, in.ProductID)
	return r.next.ApplyMovement(ctx, in)
}

func TestHandle_AppliesLinesInProductOrder(t *testing.T) {
	f := newFixture(nil)
	a, b := f.product(10), f.product(10)
	if id.Less(b, a) {
		a, b = b, a
	}
	rec := &orderRecorder{next: f.listener.ledger}
	f.listener.ledger = rec

	require.NoError(t, f.listener.Handle(context.Background(), orderMessage(t,
		OrderLine{ProductID: b, Quantity: 1},
		OrderLine{ProductID: a, Quantity: 2},
	)))
	require.NoError(t, f.listener.Handle(context.Background(), orderMessage(t,
		OrderLine{ProductID: a, Quantity: 1},
		OrderLine{ProductID: b, Quantity: 2},
	)))

	assert.Equal(t, []id.ID{a, b, a, b}, rec.products)
	assert.Equal(t, int64(7), f.stock(t, a))
	assert.Equal(t, int64(7), f.stock(t, b))
}
