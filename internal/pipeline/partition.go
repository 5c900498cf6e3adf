package pipeline

import "fmt"

// PartitionField selects which date governs partition placement. The source
// system's own documentation flip-flopped between expense date and creation
// date across pipeline versions; creation date is the default.
type PartitionField string

const (
	PartitionByCreated PartitionField = "created"
	PartitionByExpense PartitionField = "expense"
)

// ParsePartitionField validates a partition field name.
func ParsePartitionField(s string) (PartitionField, error) {
	switch PartitionField(s) {
	case PartitionByCreated, PartitionByExpense:
		return PartitionField(s), nil
	default:
		return "", fmt.Errorf("invalid partition field %q: want %q or %q", s, PartitionByCreated, PartitionByExpense)
	}
}

// PartitionKey derives the YYYY-MM-DD partition string for a fact row.
// Line items always share their parent's partition. A row whose governing
// date is missing cannot be placed and is rejected.
func PartitionKey(fact *ExpenseFact, field PartitionField) (string, error) {
	key := fact.CreatedDateKey
	if field == PartitionByExpense {
		key = fact.ExpenseDateKey
	}
	if key == NullKey {
		return "", &MalformedRecordError{
			ID:     fmt.Sprint(fact.ExpenseKey),
			Field:  string(field) + " date",
			Reason: "missing, cannot derive partition",
		}
	}
	return fmt.Sprintf("%04d-%02d-%02d", key/10000, (key/100)%100, key%100), nil
}
