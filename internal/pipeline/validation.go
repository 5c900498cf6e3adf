package pipeline

import "fmt"

// ValidateBatch checks referential integrity of a flattened batch: every
// line item must point at a parent expense present in the same batch.
func ValidateBatch(facts []ExpenseFact, orders []ExpenseOrderFact) error {
	parents := make(map[int64]bool, len(facts))
	for _, f := range facts {
		parents[f.ExpenseKey] = true
	}
	for _, o := range orders {
		if !parents[o.ExpenseKey] {
			return fmt.Errorf("expense order %d references expense %d not in batch", o.ExpenseOrderKey, o.ExpenseKey)
		}
	}
	return nil
}
