package purchasing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveStatus(t *testing.T) {
	item := func(ordered, received int64) Item {
		return Item{QuantityOrdered: ordered, QuantityReceived: received}
	}
	tests := []struct {
		name  string
		items []Item
		want  Status
	}{
		{"nothing received", []Item{item(5, 0), item(3, 0)}, StatusOrdered},
		{"one line partly", []Item{item(5, 2), item(3, 0)}, StatusPartiallyReceived},
		{"one line complete", []Item{item(5, 5), item(3, 0)}, StatusPartiallyReceived},
		{"all complete", []Item{item(5, 5), item(3, 3)}, StatusReceived},
		{"no items", nil, StatusOrdered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(tt.items))
		})
	}
}

func TestItemRemaining(t *testing.T) {
	assert.Equal(t, int64(2), Item{QuantityOrdered: 5, QuantityReceived: 3}.Remaining())
	assert.Zero(t, Item{QuantityOrdered: 5, QuantityReceived: 7}.Remaining())
}

func TestOrderProductIDsDeduplicates(t *testing.T) {
	o := Order{Items: []Item{{ProductID: [16]byte{1}}, {ProductID: [16]byte{2}}, {ProductID: [16]byte{1}}}}
	assert.Len(t, o.ProductIDs(), 2)
}
