package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func entry(op string, status Status) Entry {
	return Entry{
		Operation: op,
		Resource:  "query",
		Actor:     "faculty1",
		Status:    status,
		Timestamp: time.Date(2024, 11, 3, 12, 0, 0, 0, time.UTC),
	}
}

func TestFileRecorderChains(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	r, err := OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := r.Record(context.Background(), entry("INSERT", StatusSuccess)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := r.Record(context.Background(), entry("DELETE", StatusFailure)); err != nil {
		t.Fatalf("record: %v", err)
	}
	r.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f.Close()

	var lines [][]byte
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		lines = append(lines, line)
	}
	if len(lines) != 2 {
		t.Fatalf("want 2 lines, got %d", len(lines))
	}

	var first, second chainedEntry
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatalf("unmarshal first: %v", err)
	}
	if err := json.Unmarshal(lines[1], &second); err != nil {
		t.Fatalf("unmarshal second: %v", err)
	}
	if first.PrevHash != GenesisHash {
		t.Errorf("first prev_hash = %s", first.PrevHash)
	}
	if second.PrevHash != HashLine(lines[0]) {
		t.Errorf("second prev_hash does not chain to first line")
	}
	if second.Status != string(StatusFailure) {
		t.Errorf("status = %s", second.Status)
	}
}

func TestFileRecorderRecoversChainTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	r, err := OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := r.Record(context.Background(), entry("UPDATE", StatusSuccess)); err != nil {
		t.Fatalf("record: %v", err)
	}
	r.Close()

	// Reopen and append; the new line must chain to the existing tail.
	r2, err := OpenFile(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := r2.Record(context.Background(), entry("INSERT", StatusSuccess)); err != nil {
		t.Fatalf("record after reopen: %v", err)
	}
	r2.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := splitLines(data)
	if len(lines) != 2 {
		t.Fatalf("want 2 lines, got %d", len(lines))
	}
	var second chainedEntry
	if err := json.Unmarshal(lines[1], &second); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if second.PrevHash != HashLine(lines[0]) {
		t.Error("reopened recorder did not recover the chain tail")
	}
}

func TestMemoryPreservesOrder(t *testing.T) {
	m := NewMemory()
	ops := []string{"INSERT", "UPDATE", "DELETE"}
	for _, op := range ops {
		if err := m.Record(context.Background(), entry(op, StatusSuccess)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	got := m.Entries()
	if len(got) != len(ops) {
		t.Fatalf("want %d entries, got %d", len(ops), len(got))
	}
	for i, op := range ops {
		if got[i].Operation != op {
			t.Errorf("entry %d = %s, want %s", i, got[i].Operation, op)
		}
	}
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
