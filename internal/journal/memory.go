package journal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryJournal is an in-memory, thread-safe Journal.
type MemoryJournal struct {
	mu      sync.RWMutex
	entries []*Entry
	now     func() time.Time
}

// NewMemory creates a MemoryJournal holding only the genesis entry.
func NewMemory() *MemoryJournal {
	return &MemoryJournal{
		entries: []*Entry{genesisEntry(time.Now().UTC())},
		now:     time.Now,
	}
}

func (j *MemoryJournal) Append(_ context.Context, ledgerID, kind string, block uint64, payload any) (*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	e, err := newEntry(j.entries[len(j.entries)-1], j.now(), ledgerID, kind, block, payload)
	if err != nil {
		return nil, err
	}
	j.entries = append(j.entries, e)
	return e, nil
}

func (j *MemoryJournal) Get(_ context.Context, index int) (*Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if index < 0 || index >= len(j.entries) {
		return nil, fmt.Errorf("%w: index %d", ErrEntryNotFound, index)
	}
	return j.entries[index], nil
}

func (j *MemoryJournal) Len(_ context.Context) (int, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries), nil
}

func (j *MemoryJournal) Range(_ context.Context, from, limit int) ([]*Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if from < 0 {
		from = 0
	}
	if from >= len(j.entries) {
		return nil, nil
	}
	end := len(j.entries)
	if limit > 0 && from+limit < end {
		end = from + limit
	}
	out := make([]*Entry, end-from)
	copy(out, j.entries[from:end])
	return out, nil
}

func (j *MemoryJournal) Verify(_ context.Context) error {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var v verifier
	for _, e := range j.entries {
		if err := v.check(e); err != nil {
			return err
		}
	}
	return nil
}

func (j *MemoryJournal) Root(_ context.Context) (string, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.entries[len(j.entries)-1].Hash, nil
}
