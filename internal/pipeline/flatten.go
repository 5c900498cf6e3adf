package pipeline

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fudodata/expense-pipeline/internal/fudo"
)

// Flatten converts one raw expense document into a parent fact row and its
// line-item rows. It is a pure function: identical input yields identical
// output. Mandatory fields are the expense ID and the amount; everything
// else degrades to null sentinels.
func Flatten(doc *fudo.Document, loc *time.Location) (*ExpenseFact, []ExpenseOrderFact, error) {
	id, err := strconv.ParseInt(doc.Data.ID, 10, 64)
	if err != nil {
		return nil, nil, &MalformedRecordError{ID: doc.Data.ID, Field: "id", Reason: "not an integer"}
	}

	attrs := doc.Data.Attributes

	amount, ok := decimalAttr(attrs, "amount")
	if !ok {
		return nil, nil, &MalformedRecordError{ID: doc.Data.ID, Field: "amount", Reason: "missing or not a number"}
	}

	createdDateKey, createdTimeKey := timestampKeys(stringAttr(attrs, "createdAt"), loc)

	fact := &ExpenseFact{
		ExpenseKey:     id,
		ExpenseAmount:  amount,
		Cancelled:      boolAttr(attrs, "canceled"),
		ExpenseDateKey: dateKey(stringAttr(attrs, "date")),
		PaymentDateKey: dateKey(stringAttr(attrs, "paymentDate")),
		DueDateKey:     dateKey(stringAttr(attrs, "dueDate")),
		CreatedDateKey: createdDateKey,
		CreatedTimeKey: createdTimeKey,
		ExpenseNote:    stringAttr(attrs, "description"),
		ReceiptNumber:  stringAttr(attrs, "receiptNumber"),
		UseInCashCount: boolAttr(attrs, "useInCashCount"),

		CashRegisterKey:  refKey(doc.Data.Relationship("cashRegister")),
		PaymentMethodKey: refKey(doc.Data.Relationship("paymentMethod")),
		ProviderKey:      refKey(doc.Data.Relationship("provider")),
		ReceiptTypeKey:   refKey(doc.Data.Relationship("receiptType")),
		EmployeeKey:      refKey(doc.Data.Relationship("user")),
	}

	included := indexIncluded(doc.Included)

	var orders []ExpenseOrderFact
	for _, ref := range doc.Data.Relationship("expenseItems").Many {
		item, ok := included[includedKey("ExpenseItem", ref.ID)]
		if !ok {
			// Reference without an included resource: nothing to flatten.
			continue
		}

		order := ExpenseOrderFact{
			ExpenseOrderKey: parseKey(ref.ID),
			ExpenseKey:      id,
			Cancelled:       boolAttr(item.Attributes, "canceled"),
			ItemDetail:      stringAttr(item.Attributes, "detail"),
		}
		if price, ok := decimalAttr(item.Attributes, "price"); ok {
			order.ItemPrice = price
		}
		if qty, ok := decimalAttr(item.Attributes, "quantity"); ok {
			order.ItemQuantity = qty
		}

		if prod := item.Relationship("product"); prod.One != nil {
			order.ProductKey = parseKey(prod.One.ID)
			if res, ok := included[includedKey("Product", prod.One.ID)]; ok {
				order.ProductName = stringAttr(res.Attributes, "name")
				order.ProductUnit = stringAttr(res.Attributes, "unit")
				if cost, ok := decimalAttr(res.Attributes, "cost"); ok {
					order.ProductCost = cost
				}
			}
		}
		if ing := item.Relationship("ingredient"); ing.One != nil {
			order.IngredientKey = parseKey(ing.One.ID)
			if res, ok := included[includedKey("Ingredient", ing.One.ID)]; ok {
				order.IngredientName = stringAttr(res.Attributes, "name")
				order.IngredientUnit = stringAttr(res.Attributes, "unit")
				if cost, ok := decimalAttr(res.Attributes, "cost"); ok {
					order.IngredientCost = cost
				}
			}
		}

		orders = append(orders, order)
	}

	return fact, orders, nil
}

func indexIncluded(included []fudo.Resource) map[string]fudo.Resource {
	idx := make(map[string]fudo.Resource, len(included))
	for _, res := range included {
		idx[includedKey(res.Type, res.ID)] = res
	}
	return idx
}

func includedKey(resType, id string) string {
	return fmt.Sprintf("%s_%s", resType, id)
}

// refKey extracts the numeric foreign key from a to-one relationship.
func refKey(rel fudo.RelationshipData) int64 {
	if rel.One == nil {
		return NullKey
	}
	return parseKey(rel.One.ID)
}

func parseKey(id string) int64 {
	key, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return NullKey
	}
	return key
}

func stringAttr(attrs map[string]any, key string) string {
	s, _ := attrs[key].(string)
	return s
}

func boolAttr(attrs map[string]any, key string) bool {
	b, _ := attrs[key].(bool)
	return b
}

func decimalAttr(attrs map[string]any, key string) (decimal.Decimal, bool) {
	switch v := attrs[key].(type) {
	case float64:
		return decimal.NewFromFloat(v), true
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	default:
		return decimal.Decimal{}, false
	}
}

// dateKey converts a YYYY-MM-DD attribute into an int YYYYMMDD key.
// Missing or unparseable dates map to the null sentinel.
func dateKey(dateStr string) int64 {
	if dateStr == "" {
		return NullKey
	}
	d, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		// Some endpoints serve full timestamps in date positions.
		d, err = time.Parse(time.RFC3339, dateStr)
		if err != nil {
			return NullKey
		}
	}
	return int64(d.Year())*10000 + int64(d.Month())*100 + int64(d.Day())
}

// timestampKeys derives the date key and HHMM time key from an RFC3339
// timestamp, converted to the target timezone first. Timestamps without a
// zone are treated as UTC.
func timestampKeys(ts string, loc *time.Location) (int64, int64) {
	if ts == "" {
		return NullKey, NullKey
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		t, err = time.ParseInLocation("2006-01-02T15:04:05", ts, time.UTC)
		if err != nil {
			return NullKey, NullKey
		}
	}
	t = t.In(loc)
	dk := int64(t.Year())*10000 + int64(t.Month())*100 + int64(t.Day())
	tk := int64(t.Hour())*100 + int64(t.Minute())
	return dk, tk
}
