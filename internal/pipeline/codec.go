package pipeline

import "fmt"

// Table names double as directory names in the fact store layout.
const (
	TableExpenses      = "fact_expenses"
	TableExpenseOrders = "fact_expense_orders"
)

// Codec serializes fact tables to partition files. The pipeline went through
// a CSV era and a Parquet era; both formats stay supported behind this
// interface so the merge logic exists exactly once.
type Codec interface {
	// Ext returns the file extension without the dot, e.g. "csv".
	Ext() string

	WriteExpenses(path string, rows []ExpenseFact) error
	ReadExpenses(path string) ([]ExpenseFact, error)

	WriteOrders(path string, rows []ExpenseOrderFact) error
	ReadOrders(path string) ([]ExpenseOrderFact, error)
}

// NewCodec returns the codec for a format name ("csv" or "parquet").
func NewCodec(format string) (Codec, error) {
	switch format {
	case "csv":
		return &CSVCodec{}, nil
	case "parquet":
		return &ParquetCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown table format %q", format)
	}
}
