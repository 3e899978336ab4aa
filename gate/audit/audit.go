// Package audit persists an append-only trail of gate activity: sensor
// events, state transitions, challenge outcomes and the wipe
// authorization itself. The trail is an investigative record for the
// post-incident (or post-false-alarm) review; it never gates escalation.
package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Detail is the structured payload of a record, CBOR-encoded into the
// row's blob column.
type Detail struct {
	Event       string  `cbor:"event,omitempty"`
	StateBefore string  `cbor:"state_before,omitempty"`
	StateAfter  string  `cbor:"state_after,omitempty"`
	Reason      string  `cbor:"reason,omitempty"`
	Result      string  `cbor:"result,omitempty"`
	Lux         float64 `cbor:"lux,omitempty"`
	Confidence  uint8   `cbor:"confidence,omitempty"`
}

// Record is one trail entry.
type Record struct {
	ID        string
	Kind      string
	Detail    Detail
	CreatedAt int64
}

// Trail is a sqlite-backed append-only log. A single gate instance is an
// operational invariant; busy_timeout makes a misconfigured second
// instance fail loudly instead of corrupting the trail.
type Trail struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the trail database at path. The file
// and its directory are owner-only.
func Open(path string) (*Trail, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL", // the trail must survive the wipe race
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS records (
		record_id  TEXT PRIMARY KEY,
		kind       TEXT NOT NULL,
		detail     BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_kind ON records(kind, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_records_time ON records(created_at DESC);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create audit schema: %w", err)
	}

	if err := os.Chmod(path, 0o600); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to restrict audit db permissions: %w", err)
	}

	return &Trail{db: db}, nil
}

// Append adds one record. There is no update or delete path: the trail
// only grows.
func (t *Trail) Append(kind string, d Detail) error {
	payload, err := cbor.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode audit detail: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	_, err = t.db.Exec(`
		INSERT INTO records (record_id, kind, detail, created_at)
		VALUES (?, ?, ?, ?)
	`, uuid.NewString(), kind, payload, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}

	return nil
}

// Recent returns up to limit records, newest first.
func (t *Trail) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rows, err := t.db.Query(`
		SELECT record_id, kind, detail, created_at
		FROM records
		ORDER BY created_at DESC, record_id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var payload []byte
		if err := rows.Scan(&rec.ID, &rec.Kind, &payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		if err := cbor.Unmarshal(payload, &rec.Detail); err != nil {
			return nil, fmt.Errorf("failed to decode audit detail: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit records: %w", err)
	}

	return records, nil
}

// CountByKind returns how many records of a kind exist.
func (t *Trail) CountByKind(kind string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var count int
	err := t.db.QueryRow(`SELECT COUNT(*) FROM records WHERE kind = ?`, kind).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit records: %w", err)
	}
	return count, nil
}

// Close closes the database.
func (t *Trail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.db.Close()
}
