package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"stockledger/internal/core/types"
)

func TestWeightedAverageCost(t *testing.T) {
	m := types.MustMoney
	tests := []struct {
		name   string
		oldQty int64
		old    string
		inQty  int64
		in     string
		want   string
	}{
		{"equal halves", 10, "100", 10, "140", "120"},
		{"empty stock takes incoming cost", 0, "55", 5, "8.5", "8.5"},
		{"rounds to four places", 3, "1", 4, "2", "1.5714"},
		{"free goods dilute cost", 10, "10", 10, "0", "5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeightedAverageCost(tt.oldQty, m(tt.old), tt.inQty, m(tt.in))
			assert.True(t, m(tt.want).Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}
