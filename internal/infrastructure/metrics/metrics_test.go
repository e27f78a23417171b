package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/infrastructure/storage/postgres"
)

func TestDomainCounters(t *testing.T) {
	m := New()

	m.MovementApplied("SALE")
	m.MovementApplied("SALE")
	m.MovementRejected("SALE", "INSUFFICIENT_STOCK")
	m.AlertTransition("LOW_STOCK", "created")
	m.OutboxDelivered(3)
	m.OutboxDelivered(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.movementsApplied.WithLabelValues("SALE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.movementsRejected.WithLabelValues("SALE", "INSUFFICIENT_STOCK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alertTransitions.WithLabelValues("LOW_STOCK", "created")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.outboxDelivered))
}

func TestObserveSweep(t *testing.T) {
	m := New()
	m.ObserveSweep("risk_pass", 2*time.Second, 0)
	m.ObserveSweep("risk_pass", time.Second, 2)

	assert.Equal(t, 1, testutil.CollectAndCount(m.sweepDuration))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sweepFailures.WithLabelValues("risk_pass")))
}

type fakePool struct{ stats postgres.PoolStats }

func (p fakePool) Stats() postgres.PoolStats { return p.stats }

func TestHandlerExposesPoolAndHTTPMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	m.RegisterPool(fakePool{stats: postgres.PoolStats{TotalConns: 4, AcquiredConns: 1, IdleConns: 3, MaxConns: 25}})

	router := gin.New()
	router.Use(m.Middleware())
	router.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/42", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "stockledger_db_pool_max_conns 25")
	assert.Contains(t, body, `stockledger_http_requests_total{method="GET",route="/items/:id",status="204"} 1`)
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
