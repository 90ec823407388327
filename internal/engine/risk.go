package engine

import (
	"github.com/shopspring/decimal"
)

// RiskManager enforces pre-trade capital rules: a position is never bought
// for more cash than the account holds.
type RiskManager struct{}

// NewRiskManager creates a RiskManager.
func NewRiskManager() *RiskManager {
	return &RiskManager{}
}

// FitSize shrinks size to the largest quantity in [1, size] whose cost at
// price fits in balance. It returns 0 when size is below 1 or when a single
// unit is already unaffordable.
func (rm *RiskManager) FitSize(size int64, price float64, balance decimal.Decimal) int64 {
	if size < 1 {
		return 0
	}
	if !notional(size, price).GreaterThan(balance) {
		return size
	}
	if price <= 0 {
		return size
	}

	// Jump close to the answer, then settle it with exact decimal comparisons
	// so the result is the one a unit-by-unit decrement would reach.
	px := decimal.NewFromFloat(price)
	n := balance.Div(px).Floor().IntPart()
	if n > size {
		n = size
	}
	if n < 1 {
		n = 1
	}
	for n > 1 && notional(n, price).GreaterThan(balance) {
		n--
	}
	for n < size && !notional(n+1, price).GreaterThan(balance) {
		n++
	}
	if notional(n, price).GreaterThan(balance) {
		return 0
	}
	return n
}
