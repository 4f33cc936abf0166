package audit

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// GenesisHash is the prev_hash for the first entry in a new audit file.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// chainedEntry is the JSONL line shape. Fixed field order guarantees
// deterministic marshaling for reproducible hashing.
type chainedEntry struct {
	Timestamp string `json:"ts"`
	Operation string `json:"operation"`
	Resource  string `json:"resource"`
	Actor     string `json:"actor_username"`
	Status    string `json:"status"`
	PrevHash  string `json:"prev_hash"`
}

// FileRecorder is an append-only JSONL audit trail with SHA-256 hash
// chaining: each line's prev_hash is the hash of the previous line,
// making tampering evident. It mirrors the store-backed trail for
// deployments that want an off-database copy.
type FileRecorder struct {
	file     *os.File
	prevHash string
	mu       sync.Mutex
}

// OpenFile opens (or creates) an audit file for appending, recovering
// the chain tail from the last existing line.
func OpenFile(path string) (*FileRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}

	prevHash := GenesisHash
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("audit: read existing file: %w", err)
		}
		scanner := bufio.NewScanner(f)
		var lastLine []byte
		for scanner.Scan() {
			lastLine = append(lastLine[:0], scanner.Bytes()...)
		}
		f.Close()
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("audit: scan existing file: %w", err)
		}
		if len(lastLine) > 0 {
			prevHash = HashLine(lastLine)
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}
	return &FileRecorder{file: file, prevHash: prevHash}, nil
}

// Record appends one chained line and syncs it to disk.
func (r *FileRecorder) Record(_ context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	line, err := json.Marshal(chainedEntry{
		Timestamp: ts.UTC().Format("2006-01-02T15:04:05.000Z"),
		Operation: e.Operation,
		Resource:  e.Resource,
		Actor:     e.Actor,
		Status:    string(e.Status),
		PrevHash:  r.prevHash,
	})
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	if _, err := r.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: write entry: %w", err)
	}
	if err := r.file.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}
	r.prevHash = HashLine(line)
	return nil
}

// Close flushes and closes the underlying file.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}

// HashLine returns "sha256:<hex>" of the given bytes.
func HashLine(line []byte) string {
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}
