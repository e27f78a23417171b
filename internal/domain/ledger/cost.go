package ledger

import (
	"github.com/shopspring/decimal"

	"stockledger/internal/core/types"
)

// WeightedAverageCost blends the current unit cost with an incoming receipt.
// oldQty must be the stock before the receipt is applied.
func WeightedAverageCost(oldQty int64, oldCost types.Money, inQty int64, inCost types.Money) types.Money {
	total := oldQty + inQty
	if total == 0 {
		return types.RoundCost(inCost)
	}
	oldValue := oldCost.Mul(decimal.NewFromInt(oldQty))
	inValue := inCost.Mul(decimal.NewFromInt(inQty))
	return types.RoundCost(oldValue.Add(inValue).Div(decimal.NewFromInt(total)))
}
