package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/domain/forecast"
	"stockledger/internal/domain/product"
)

func flatForecast(n int, predicted, lower, upper float64) []forecast.Point {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pts := make([]forecast.Point, n)
	for i := range pts {
		pts[i] = forecast.Point{
			Period:    start.AddDate(0, 0, i),
			Predicted: predicted,
			Lower95:   lower,
			Upper95:   upper,
		}
	}
	return pts
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		score float64
		want  Level
	}{
		{100, LevelHigh},
		{80, LevelHigh},
		{79.99, LevelMedium},
		{50, LevelMedium},
		{49.99, LevelLow},
		{0, LevelLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFor(tt.score), "score %v", tt.score)
	}
}

func TestStockout(t *testing.T) {
	tests := []struct {
		name      string
		stock     int64
		points    []forecast.Point
		wantScore float64
		wantLevel Level
		wantDays  *int
	}{
		{
			name:      "out of stock",
			stock:     0,
			points:    flatForecast(5, 1, 1, 2),
			wantScore: 100,
			wantLevel: LevelHigh,
			wantDays:  intPtr(1),
		},
		{
			name:      "runs out on day 3",
			stock:     9,
			points:    flatForecast(10, 4, 3, 5),
			wantScore: 90,
			wantLevel: LevelHigh,
			wantDays:  intPtr(3),
		},
		{
			name:      "runs out on day 7",
			stock:     14,
			points:    flatForecast(10, 3, 2, 4),
			wantScore: 60,
			wantLevel: LevelMedium,
			wantDays:  intPtr(7),
		},
		{
			name:      "demand pressure capped at 50",
			stock:     100,
			points:    flatForecast(30, 10, 1, 12),
			wantScore: 50,
			wantLevel: LevelMedium,
			wantDays:  nil,
		},
		{
			name:      "light demand",
			stock:     99,
			points:    flatForecast(10, 2, 1, 3),
			wantScore: 10, // 20/100*50
			wantLevel: LevelLow,
			wantDays:  nil,
		},
		{
			name:      "negative lower bounds ignored",
			stock:     5,
			points:    flatForecast(10, 1, -3, 2),
			wantScore: 50, // 10/6*50 capped
			wantLevel: LevelMedium,
			wantDays:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Stockout(tt.stock, tt.points)
			assert.InDelta(t, tt.wantScore, got.Score, 0.01)
			assert.Equal(t, tt.wantLevel, got.Level)
			assert.Equal(t, tt.wantDays, got.DaysToStockout)
			assert.NotEmpty(t, got.Reason)
		})
	}
}

func TestStockout_DayFoundBeyondSoonWindowUsesDemandPressure(t *testing.T) {
	got := Stockout(20, flatForecast(14, 1, 2, 3))
	require.NotNil(t, got.DaysToStockout)
	assert.Equal(t, 10, *got.DaysToStockout)
	assert.InDelta(t, 14.0/21.0*50, got.Score, 0.01)
	assert.Equal(t, LevelLow, got.Level)
}

func TestOverstock(t *testing.T) {
	tests := []struct {
		name         string
		stock        int64
		limit        int64
		reorderPoint int64
		points       []forecast.Point
		want         float64
	}{
		{"over limit with weak demand", 500, 300, 50, flatForecast(10, 5, 2, 10), 70},
		{"over limit but strong demand", 500, 300, 50, flatForecast(10, 30, 20, 40), 30},
		{"no limit configured", 500, 0, 50, flatForecast(10, 1, 0, 1), 30},
		{"above reorder point", 60, 300, 50, flatForecast(10, 5, 2, 10), 30},
		{"balanced", 40, 300, 50, flatForecast(10, 5, 2, 10), 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Overstock(tt.stock, tt.limit, tt.reorderPoint, tt.points)
			assert.Equal(t, tt.want, got.Score)
			assert.Equal(t, LevelFor(tt.want), got.Level)
		})
	}
}

func TestExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time { v := now.Add(d); return &v }

	tests := []struct {
		name     string
		expiry   *time.Time
		want     float64
		wantDays *int
	}{
		{"no expiry", nil, 0, nil},
		{"expired yesterday", at(-24 * time.Hour), 100, intPtr(-1)},
		{"expires now", at(0), 100, intPtr(0)},
		{"one hour left rounds up", at(time.Hour), 90, intPtr(1)},
		{"seven days", at(7 * 24 * time.Hour), 90, intPtr(7)},
		{"seven days and a minute", at(7*24*time.Hour + time.Minute), 60, intPtr(8)},
		{"thirty days", at(30 * 24 * time.Hour), 60, intPtr(30)},
		{"far away", at(90 * 24 * time.Hour), 20, intPtr(90)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Expiry(tt.expiry, now)
			assert.Equal(t, tt.want, got.Score)
			assert.Equal(t, tt.wantDays, got.DaysLeft)
		})
	}
}

func TestEvaluate(t *testing.T) {
	now := time.Now()
	p := product.Product{CurrentStock: 0, ReorderPoint: 10, OverStockLimit: 100}

	ev := Evaluate(p, flatForecast(3, 1, 1, 1), now)

	assert.Equal(t, LevelHigh, ev.Stockout.Level)
	assert.Equal(t, LevelLow, ev.Overstock.Level)
	assert.Equal(t, 0.0, ev.Expiry.Score)
}

func intPtr(v int) *int { return &v }
