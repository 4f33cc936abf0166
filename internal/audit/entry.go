// Package audit records every attempted mutation and its outcome in an
// append-only trail. Entries are write-once: nothing in this package
// reads them back except chain recovery on open.
package audit

import "time"

// Status is the recorded outcome of an execution attempt.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// Entry is one immutable audit record.
type Entry struct {
	Operation string    `json:"operation"`
	Resource  string    `json:"resource"`
	Actor     string    `json:"actor_username"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"ts"`
}
