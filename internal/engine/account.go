package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"turtle/internal/domain"
)

// BalancePoint is the cash balance at the end of one simulated date.
type BalancePoint struct {
	Date    time.Time
	Balance decimal.Decimal
}

// Account is the cash ledger shared by every instrument of a portfolio.
type Account struct {
	initial decimal.Decimal
	balance decimal.Decimal
	history []BalancePoint
}

// NewAccount creates an Account seeded with initial.
func NewAccount(initial decimal.Decimal) *Account {
	return &Account{initial: initial, balance: initial}
}

// Initial returns the starting balance.
func (a *Account) Initial() decimal.Decimal { return a.initial }

// Balance returns the current balance.
func (a *Account) Balance() decimal.Decimal { return a.balance }

// Gain returns the balance change since the account was opened.
func (a *Account) Gain() decimal.Decimal { return a.balance.Sub(a.initial) }

// Debit removes amount from the balance.
func (a *Account) Debit(amount decimal.Decimal) { a.balance = a.balance.Sub(amount) }

// Credit adds amount to the balance.
func (a *Account) Credit(amount decimal.Decimal) { a.balance = a.balance.Add(amount) }

// Record appends the current balance for date to the history.
func (a *Account) Record(date time.Time) {
	a.history = append(a.history, BalancePoint{Date: domain.Day(date), Balance: a.balance})
}

// History returns a copy of the balance history in date order.
func (a *Account) History() []BalancePoint {
	out := make([]BalancePoint, len(a.history))
	copy(out, a.history)
	return out
}

// notional is size units at price.
func notional(size int64, price float64) decimal.Decimal {
	return decimal.NewFromInt(size).Mul(decimal.NewFromFloat(price))
}
