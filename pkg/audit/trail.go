// Package audit keeps a tamper-evident trail of guard decisions and
// executed sanitization steps. Entries are hash-chained; any edit to a
// past entry breaks verification of everything after it.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/securewipe/securewipe/pkg/canonicalize"
)

// Clock supplies timestamps; tests freeze it.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Entry is one tamper-evident trail record.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Operator  string    `json:"operator"`
	Action    string    `json:"action"`
	Device    string    `json:"device"`
	Details   string    `json:"details,omitempty"`

	// PreviousHash links this entry to the preceding one.
	PreviousHash string `json:"previous_hash"`
	// Hash is the SHA-256 digest of this entry including PreviousHash.
	Hash string `json:"hash"`
}

// Trail is an append-only, hash-chained sequence of entries. Safe for
// concurrent use.
type Trail struct {
	mu      sync.Mutex
	entries []Entry
	clock   Clock
	seq     int
}

// NewTrail creates an empty trail. A nil clock means wall time.
func NewTrail(clock Clock) *Trail {
	if clock == nil {
		clock = wallClock{}
	}
	return &Trail{clock: clock}
}

// Append links a new entry onto the chain and returns it.
func (t *Trail) Append(operator, action, device, details string) (*Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prevHash := ""
	if len(t.entries) > 0 {
		prevHash = t.entries[len(t.entries)-1].Hash
	}

	t.seq++
	now := t.clock.Now()
	entry := Entry{
		ID:           fmt.Sprintf("evt_%06d", t.seq),
		Timestamp:    now.UTC(),
		Operator:     operator,
		Action:       action,
		Device:       device,
		Details:      details,
		PreviousHash: prevHash,
	}

	hash, err := computeEntryHash(&entry)
	if err != nil {
		return nil, err
	}
	entry.Hash = hash

	t.entries = append(t.entries, entry)
	return &entry, nil
}

// Entries returns a copy of the trail.
func (t *Trail) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// VerifyChain re-derives every hash and link. Returns the index of the
// first broken entry on failure.
func (t *Trail) VerifyChain() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return verifyEntries(t.entries)
}

func verifyEntries(entries []Entry) (bool, error) {
	for i, entry := range entries {
		if i == 0 {
			if entry.PreviousHash != "" {
				return false, fmt.Errorf("genesis entry has non-empty previous hash")
			}
		} else if entry.PreviousHash != entries[i-1].Hash {
			return false, fmt.Errorf("chain broken at index %d: previous hash mismatch", i)
		}

		computed, err := computeEntryHash(&entry)
		if err != nil {
			return false, fmt.Errorf("recompute hash at index %d: %w", i, err)
		}
		if computed != entry.Hash {
			return false, fmt.Errorf("integrity failure at index %d", i)
		}
	}
	return true, nil
}

// Export writes the trail as a JSON array; Load reads one back and
// verifies it before returning.
func (t *Trail) Export(path string) error {
	raw, err := json.MarshalIndent(t.Entries(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal audit trail: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write audit trail: %w", err)
	}
	return nil
}

// Load reads an exported trail and refuses one whose chain is broken.
func Load(path string) ([]Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audit trail %s: %w", path, err)
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse audit trail %s: %w", path, err)
	}
	if ok, err := verifyEntries(entries); !ok {
		return nil, fmt.Errorf("audit trail %s failed verification: %w", path, err)
	}
	return entries, nil
}

func computeEntryHash(e *Entry) (string, error) {
	data := map[string]interface{}{
		"id":            e.ID,
		"timestamp":     e.Timestamp.Format(time.RFC3339Nano),
		"operator":      e.Operator,
		"action":        e.Action,
		"device":        e.Device,
		"details":       e.Details,
		"previous_hash": e.PreviousHash,
	}
	canonical, err := canonicalize.JCS(data)
	if err != nil {
		return "", err
	}
	return canonicalize.HashBytes(canonical), nil
}
