package pipeline

import "fmt"

// MalformedRecordError reports a raw document that failed flatten-time
// validation on a mandatory field. The record is rejected and the batch
// continues.
type MalformedRecordError struct {
	ID     string // source resource ID as it appeared in the document
	Field  string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed expense %q: field %s: %s", e.ID, e.Field, e.Reason)
}
