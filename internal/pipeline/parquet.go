package pipeline

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"
)

// ParquetCodec reads and writes fact tables as Parquet. Monetary values are
// stored as float64, matching what the pandas-era pipeline produced via
// pyarrow.
type ParquetCodec struct{}

type parquetExpense struct {
	ExpenseKey       int64   `parquet:"expense_key"`
	ExpenseAmount    float64 `parquet:"expense_amount"`
	Cancelled        bool    `parquet:"cancelled"`
	ExpenseDateKey   int64   `parquet:"expense_date_key"`
	PaymentDateKey   int64   `parquet:"payment_date_key"`
	DueDateKey       int64   `parquet:"due_date_key"`
	CreatedDateKey   int64   `parquet:"created_date_key"`
	CreatedTimeKey   int64   `parquet:"created_time_key"`
	ExpenseNote      string  `parquet:"expense_note"`
	ReceiptNumber    string  `parquet:"receipt_number"`
	UseInCashCount   bool    `parquet:"use_in_cash_count"`
	CashRegisterKey  int64   `parquet:"cash_register_key"`
	PaymentMethodKey int64   `parquet:"payment_method_key"`
	ProviderKey      int64   `parquet:"provider_key"`
	ReceiptTypeKey   int64   `parquet:"receipt_type_key"`
	EmployeeKey      int64   `parquet:"employee_key"`
}

type parquetOrder struct {
	ExpenseOrderKey int64   `parquet:"expense_order_key"`
	ExpenseKey      int64   `parquet:"expense_key"`
	Cancelled       bool    `parquet:"cancelled"`
	ItemDetail      string  `parquet:"item_detail"`
	ItemPrice       float64 `parquet:"item_price"`
	ItemQuantity    float64 `parquet:"item_quantity"`
	ProductKey      int64   `parquet:"product_key"`
	ProductName     string  `parquet:"product_name"`
	ProductCost     float64 `parquet:"product_cost"`
	ProductUnit     string  `parquet:"product_unit"`
	IngredientKey   int64   `parquet:"ingredient_key"`
	IngredientName  string  `parquet:"ingredient_name"`
	IngredientCost  float64 `parquet:"ingredient_cost"`
	IngredientUnit  string  `parquet:"ingredient_unit"`
}

func (c *ParquetCodec) Ext() string { return "parquet" }

func (c *ParquetCodec) WriteExpenses(path string, rows []ExpenseFact) error {
	out := make([]parquetExpense, 0, len(rows))
	for _, r := range rows {
		out = append(out, parquetExpense{
			ExpenseKey:       r.ExpenseKey,
			ExpenseAmount:    r.ExpenseAmount.InexactFloat64(),
			Cancelled:        r.Cancelled,
			ExpenseDateKey:   r.ExpenseDateKey,
			PaymentDateKey:   r.PaymentDateKey,
			DueDateKey:       r.DueDateKey,
			CreatedDateKey:   r.CreatedDateKey,
			CreatedTimeKey:   r.CreatedTimeKey,
			ExpenseNote:      r.ExpenseNote,
			ReceiptNumber:    r.ReceiptNumber,
			UseInCashCount:   r.UseInCashCount,
			CashRegisterKey:  r.CashRegisterKey,
			PaymentMethodKey: r.PaymentMethodKey,
			ProviderKey:      r.ProviderKey,
			ReceiptTypeKey:   r.ReceiptTypeKey,
			EmployeeKey:      r.EmployeeKey,
		})
	}
	return writeParquet(path, out)
}

func (c *ParquetCodec) ReadExpenses(path string) ([]ExpenseFact, error) {
	raw, err := parquet.ReadFile[parquetExpense](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %q: %w", path, err)
	}

	rows := make([]ExpenseFact, 0, len(raw))
	for _, r := range raw {
		rows = append(rows, ExpenseFact{
			ExpenseKey:       r.ExpenseKey,
			ExpenseAmount:    decimal.NewFromFloat(r.ExpenseAmount),
			Cancelled:        r.Cancelled,
			ExpenseDateKey:   r.ExpenseDateKey,
			PaymentDateKey:   r.PaymentDateKey,
			DueDateKey:       r.DueDateKey,
			CreatedDateKey:   r.CreatedDateKey,
			CreatedTimeKey:   r.CreatedTimeKey,
			ExpenseNote:      r.ExpenseNote,
			ReceiptNumber:    r.ReceiptNumber,
			UseInCashCount:   r.UseInCashCount,
			CashRegisterKey:  r.CashRegisterKey,
			PaymentMethodKey: r.PaymentMethodKey,
			ProviderKey:      r.ProviderKey,
			ReceiptTypeKey:   r.ReceiptTypeKey,
			EmployeeKey:      r.EmployeeKey,
		})
	}
	return rows, nil
}

func (c *ParquetCodec) WriteOrders(path string, rows []ExpenseOrderFact) error {
	out := make([]parquetOrder, 0, len(rows))
	for _, r := range rows {
		out = append(out, parquetOrder{
			ExpenseOrderKey: r.ExpenseOrderKey,
			ExpenseKey:      r.ExpenseKey,
			Cancelled:       r.Cancelled,
			ItemDetail:      r.ItemDetail,
			ItemPrice:       r.ItemPrice.InexactFloat64(),
			ItemQuantity:    r.ItemQuantity.InexactFloat64(),
			ProductKey:      r.ProductKey,
			ProductName:     r.ProductName,
			ProductCost:     r.ProductCost.InexactFloat64(),
			ProductUnit:     r.ProductUnit,
			IngredientKey:   r.IngredientKey,
			IngredientName:  r.IngredientName,
			IngredientCost:  r.IngredientCost.InexactFloat64(),
			IngredientUnit:  r.IngredientUnit,
		})
	}
	return writeParquet(path, out)
}

func (c *ParquetCodec) ReadOrders(path string) ([]ExpenseOrderFact, error) {
	raw, err := parquet.ReadFile[parquetOrder](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %q: %w", path, err)
	}

	rows := make([]ExpenseOrderFact, 0, len(raw))
	for _, r := range raw {
		rows = append(rows, ExpenseOrderFact{
			ExpenseOrderKey: r.ExpenseOrderKey,
			ExpenseKey:      r.ExpenseKey,
			Cancelled:       r.Cancelled,
			ItemDetail:      r.ItemDetail,
			ItemPrice:       decimal.NewFromFloat(r.ItemPrice),
			ItemQuantity:    decimal.NewFromFloat(r.ItemQuantity),
			ProductKey:      r.ProductKey,
			ProductName:     r.ProductName,
			ProductCost:     decimal.NewFromFloat(r.ProductCost),
			ProductUnit:     r.ProductUnit,
			IngredientKey:   r.IngredientKey,
			IngredientName:  r.IngredientName,
			IngredientCost:  decimal.NewFromFloat(r.IngredientCost),
			IngredientUnit:  r.IngredientUnit,
		})
	}
	return rows, nil
}

func writeParquet[T any](path string, rows []T) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %q: %w", path, err)
	}

	w := parquet.NewGenericWriter[T](f)
	if _, err := w.Write(rows); err != nil {
		f.Close()
		return fmt.Errorf("write parquet %q: %w", path, err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalize parquet %q: %w", path, err)
	}
	return f.Close()
}
