// Package pipeline flattens raw expense documents into partitioned fact rows
// and merges them into the fact store.
package pipeline

import (
	"github.com/shopspring/decimal"
)

// Missing optional references and dates map to 0 rather than failing the
// record; 0 never collides with a real source ID.
const NullKey int64 = 0

// ExpenseFact is one row of the fact_expenses table: one row per expense,
// keyed by the source system's expense ID.
type ExpenseFact struct {
	ExpenseKey     int64
	ExpenseAmount  decimal.Decimal
	Cancelled      bool
	ExpenseDateKey int64 // int YYYYMMDD
	PaymentDateKey int64
	DueDateKey     int64
	CreatedDateKey int64 // derived in the target timezone
	CreatedTimeKey int64 // int HHMM, target timezone
	ExpenseNote    string
	ReceiptNumber  string
	UseInCashCount bool

	CashRegisterKey  int64
	PaymentMethodKey int64
	ProviderKey      int64
	ReceiptTypeKey   int64
	EmployeeKey      int64
}

// ExpenseOrderFact is one row of the fact_expense_orders table: one row per
// line item, keyed by the source line-item ID and pointing back at its
// parent expense. Product and ingredient attributes are denormalized for
// analytic convenience.
type ExpenseOrderFact struct {
	ExpenseOrderKey int64
	ExpenseKey      int64 // FK to ExpenseFact.ExpenseKey
	Cancelled       bool
	ItemDetail      string
	ItemPrice       decimal.Decimal
	ItemQuantity    decimal.Decimal

	ProductKey     int64
	ProductName    string
	ProductCost    decimal.Decimal
	ProductUnit    string
	IngredientKey  int64
	IngredientName string
	IngredientCost decimal.Decimal
	IngredientUnit string
}
