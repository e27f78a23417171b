package alert_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/alerts"
)

func TestInsertStatements(t *testing.T) {
	repo := NewAlertRepo(nil)
	a := alerts.NewActive(id.New(), alerts.TypeLowStock, alerts.Message{Text: "low", RiskScore: 60}, time.Now())

	sql, args, err := repo.insert(a, activeConflict+" DO NOTHING").ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "INSERT INTO alerts (id,product_id,type,message,is_resolved,is_read,resolution_note,created_at,updated_at,resolved_at)")
	assert.Contains(t, sql, "ON CONFLICT (product_id, type) WHERE NOT is_resolved DO NOTHING")
	assert.Contains(t, sql, "(xmax = 0) AS inserted")
	assert.Len(t, args, len(alertColumns))
	assert.Equal(t, a.Message, args[3])
}
