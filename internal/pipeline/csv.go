package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
)

// CSVCodec reads and writes fact tables as UTF-8 CSV with a header row.
type CSVCodec struct{}

var expenseColumns = []string{
	"expense_key", "expense_amount", "cancelled", "expense_date_key",
	"payment_date_key", "due_date_key", "created_date_key", "created_time_key",
	"expense_note", "receipt_number", "use_in_cash_count",
	"cash_register_key", "payment_method_key", "provider_key",
	"receipt_type_key", "employee_key",
}

var orderColumns = []string{
	"expense_order_key", "expense_key", "cancelled", "item_detail",
	"item_price", "item_quantity", "product_key", "product_name",
	"product_cost", "product_unit", "ingredient_key", "ingredient_name",
	"ingredient_cost", "ingredient_unit",
}

func (c *CSVCodec) Ext() string { return "csv" }

func (c *CSVCodec) WriteExpenses(path string, rows []ExpenseFact) error {
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, []string{
			formatInt(r.ExpenseKey),
			r.ExpenseAmount.String(),
			formatBool(r.Cancelled),
			formatInt(r.ExpenseDateKey),
			formatInt(r.PaymentDateKey),
			formatInt(r.DueDateKey),
			formatInt(r.CreatedDateKey),
			formatInt(r.CreatedTimeKey),
			r.ExpenseNote,
			r.ReceiptNumber,
			formatBool(r.UseInCashCount),
			formatInt(r.CashRegisterKey),
			formatInt(r.PaymentMethodKey),
			formatInt(r.ProviderKey),
			formatInt(r.ReceiptTypeKey),
			formatInt(r.EmployeeKey),
		})
	}
	return writeCSV(path, expenseColumns, records)
}

func (c *CSVCodec) ReadExpenses(path string) ([]ExpenseFact, error) {
	records, err := readCSV(path, expenseColumns)
	if err != nil {
		return nil, err
	}

	rows := make([]ExpenseFact, 0, len(records))
	for i, rec := range records {
		amount, err := decimal.NewFromString(rec[1])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: expense_amount %q: %w", path, i+1, rec[1], err)
		}
		rows = append(rows, ExpenseFact{
			ExpenseKey:       parseInt(rec[0]),
			ExpenseAmount:    amount,
			Cancelled:        rec[2] == "true",
			ExpenseDateKey:   parseInt(rec[3]),
			PaymentDateKey:   parseInt(rec[4]),
			DueDateKey:       parseInt(rec[5]),
			CreatedDateKey:   parseInt(rec[6]),
			CreatedTimeKey:   parseInt(rec[7]),
			ExpenseNote:      rec[8],
			ReceiptNumber:    rec[9],
			UseInCashCount:   rec[10] == "true",
			CashRegisterKey:  parseInt(rec[11]),
			PaymentMethodKey: parseInt(rec[12]),
			ProviderKey:      parseInt(rec[13]),
			ReceiptTypeKey:   parseInt(rec[14]),
			EmployeeKey:      parseInt(rec[15]),
		})
	}
	return rows, nil
}

func (c *CSVCodec) WriteOrders(path string, rows []ExpenseOrderFact) error {
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, []string{
			formatInt(r.ExpenseOrderKey),
			formatInt(r.ExpenseKey),
			formatBool(r.Cancelled),
			r.ItemDetail,
			r.ItemPrice.String(),
			r.ItemQuantity.String(),
			formatInt(r.ProductKey),
			r.ProductName,
			r.ProductCost.String(),
			r.ProductUnit,
			formatInt(r.IngredientKey),
			r.IngredientName,
			r.IngredientCost.String(),
			r.IngredientUnit,
		})
	}
	return writeCSV(path, orderColumns, records)
}

func (c *CSVCodec) ReadOrders(path string) ([]ExpenseOrderFact, error) {
	records, err := readCSV(path, orderColumns)
	if err != nil {
		return nil, err
	}

	rows := make([]ExpenseOrderFact, 0, len(records))
	for i, rec := range records {
		price, err := decimal.NewFromString(rec[4])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: item_price %q: %w", path, i+1, rec[4], err)
		}
		qty, err := decimal.NewFromString(rec[5])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: item_quantity %q: %w", path, i+1, rec[5], err)
		}
		prodCost, err := decimal.NewFromString(rec[8])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: product_cost %q: %w", path, i+1, rec[8], err)
		}
		ingCost, err := decimal.NewFromString(rec[12])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: ingredient_cost %q: %w", path, i+1, rec[12], err)
		}
		rows = append(rows, ExpenseOrderFact{
			ExpenseOrderKey: parseInt(rec[0]),
			ExpenseKey:      parseInt(rec[1]),
			Cancelled:       rec[2] == "true",
			ItemDetail:      rec[3],
			ItemPrice:       price,
			ItemQuantity:    qty,
			ProductKey:      parseInt(rec[6]),
			ProductName:     rec[7],
			ProductCost:     prodCost,
			ProductUnit:     rec[9],
			IngredientKey:   parseInt(rec[10]),
			IngredientName:  rec[11],
			IngredientCost:  ingCost,
			IngredientUnit:  rec[13],
		})
	}
	return rows, nil
}

func writeCSV(path string, header []string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write header to %q: %w", path, err)
	}
	if err := w.WriteAll(records); err != nil {
		f.Close()
		return fmt.Errorf("write rows to %q: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush %q: %w", path, err)
	}
	return f.Close()
}

func readCSV(path string, wantHeader []string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(wantHeader)

	all, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("read %q: missing header row", path)
	}
	for i, col := range all[0] {
		if col != wantHeader[i] {
			return nil, fmt.Errorf("read %q: header column %d is %q, want %q", path, i, col, wantHeader[i])
		}
	}
	return all[1:], nil
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func formatBool(v bool) string {
	return strconv.FormatBool(v)
}

func parseInt(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
