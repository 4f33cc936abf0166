package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// Recorder appends entries to a durable audit trail. Entries from the
// same actor become visible to readers in write order.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// StoreRecorder writes entries through the store's log_operation
// function, which appends to the audit_log table. The table itself is
// admin-only by policy.
type StoreRecorder struct {
	db *sql.DB
}

// NewStoreRecorder returns a recorder backed by the given store handle.
func NewStoreRecorder(db *sql.DB) *StoreRecorder {
	return &StoreRecorder{db: db}
}

// Record appends one entry. The timestamp is assigned by the store.
func (r *StoreRecorder) Record(ctx context.Context, e Entry) error {
	_, err := r.db.ExecContext(ctx,
		"SELECT log_operation($1, $2, $3, $4)",
		e.Operation, e.Resource, e.Actor, string(e.Status))
	if err != nil {
		return fmt.Errorf("audit: record: %w", err)
	}
	return nil
}

// Memory keeps entries in order in process memory. Used by tests and
// by the serve path before a store handle exists.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemory returns an empty in-memory recorder.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

// Entries returns a copy of everything recorded so far, in order.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Fanout records to every recorder, returning the first error after
// attempting all of them. A file mirror failing must not stop the
// store write and vice versa.
type Fanout []Recorder

func (f Fanout) Record(ctx context.Context, e Entry) error {
	var first error
	for _, r := range f {
		if err := r.Record(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
