// Package journal implements the hash-chained, append-only event log that
// makes ledger state durable.
//
// The chain begins with a well-known genesis entry whose Hash equals
// GenesisHash (64 hex zeros). Every later entry stores the hash of its
// predecessor and the SHA-256 of its payload, so Verify detects any rewrite.
// Replaying entries 1..Len-1 in order rebuilds every ledger.
//
// Implementations:
//   - MemoryJournal: in-process, for tests and throwaway deployments.
//   - PostgresJournal: durable, shared across processes.
//   - PebbleJournal: durable, embedded.
package journal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// GenesisHash is the hash of entry 0 and the anchor of the chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// KindGenesis labels entry 0.
const KindGenesis = "genesis"

var (
	ErrEntryNotFound = errors.New("journal: entry not found")
	ErrChainBroken   = errors.New("journal: hash chain broken")
)

// Entry is one journaled event.
type Entry struct {
	Index     int             `json:"index"`
	Timestamp time.Time       `json:"timestamp"`
	LedgerID  string          `json:"ledger_id"`
	Kind      string          `json:"kind"`
	Block     uint64          `json:"block"`
	Data      json.RawMessage `json:"data"`
	DataHash  string          `json:"data_hash"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

// Journal is the append-only log of committed events.
type Journal interface {
	// Append chains a new entry holding the JSON encoding of payload.
	Append(ctx context.Context, ledgerID, kind string, block uint64, payload any) (*Entry, error)

	// Get returns the entry at the given zero-based index.
	Get(ctx context.Context, index int) (*Entry, error)

	// Len returns the number of entries, genesis included.
	Len(ctx context.Context) (int, error)

	// Range returns up to limit entries starting at index from. A non-positive
	// limit returns everything after from.
	Range(ctx context.Context, from, limit int) ([]*Entry, error)

	// Verify walks the whole chain and checks every link and payload hash.
	Verify(ctx context.Context) error

	// Root returns the hash of the chain tip.
	Root(ctx context.Context) (string, error)
}

func genesisEntry(now time.Time) *Entry {
	return &Entry{
		Index:     0,
		Timestamp: now,
		Kind:      KindGenesis,
		Data:      json.RawMessage("null"),
		DataHash:  GenesisHash,
		PrevHash:  GenesisHash,
		Hash:      GenesisHash,
	}
}

// newEntry builds the successor of prev. The timestamp is truncated to
// microseconds, the precision Postgres stores, so hashes survive a round trip.
func newEntry(prev *Entry, now time.Time, ledgerID, kind string, block uint64, payload any) (*Entry, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	e := &Entry{
		Index:     prev.Index + 1,
		Timestamp: now.UTC().Truncate(time.Microsecond),
		LedgerID:  ledgerID,
		Kind:      kind,
		Block:     block,
		Data:      data,
		DataHash:  sha256Sum(data),
		PrevHash:  prev.Hash,
	}
	e.Hash = hashEntry(e)
	return e, nil
}

// hashEntry computes the SHA-256 over an entry's fields. Never called on the
// genesis entry.
func hashEntry(e *Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%d|%s|%s",
		e.Index, e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.LedgerID, e.Kind, e.Block, e.DataHash, e.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

func sha256Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// verifier checks entries one at a time in index order.
type verifier struct {
	prev *Entry
}

func (v *verifier) check(curr *Entry) error {
	if v.prev == nil {
		if curr.Index != 0 || curr.Hash != GenesisHash {
			return fmt.Errorf("%w: genesis entry has wrong hash %q", ErrChainBroken, curr.Hash)
		}
		v.prev = curr
		return nil
	}
	if curr.Index != v.prev.Index+1 {
		return fmt.Errorf("%w: index %d follows %d", ErrChainBroken, curr.Index, v.prev.Index)
	}
	if curr.PrevHash != v.prev.Hash {
		return fmt.Errorf("%w: at index %d", ErrChainBroken, curr.Index)
	}
	if curr.DataHash != sha256Sum(curr.Data) {
		return fmt.Errorf("%w: entry %d payload does not match its hash", ErrChainBroken, curr.Index)
	}
	if curr.Hash != hashEntry(curr) {
		return fmt.Errorf("%w: entry %d has invalid hash", ErrChainBroken, curr.Index)
	}
	v.prev = curr
	return nil
}
