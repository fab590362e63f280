package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"
)

// Keys are "j/" followed by the index as 20 zero-padded decimal digits, so
// lexical key order equals append order.
const (
	keyPrefix = "j/"
	keyDigits = 20
)

func entryKey(index int) []byte {
	return fmt.Appendf(nil, "%s%0*d", keyPrefix, keyDigits, index)
}

func parseEntryKey(key []byte) (int, error) {
	if len(key) != len(keyPrefix)+keyDigits || string(key[:len(keyPrefix)]) != keyPrefix {
		return 0, fmt.Errorf("journal: malformed key %q", key)
	}
	return strconv.Atoi(string(key[len(keyPrefix):]))
}

// keyUpperBound is the first key past every journal key ("/" + 1 == "0").
var keyUpperBound = []byte("j0")

// PebbleJournal stores the journal in an embedded pebble database.
type PebbleJournal struct {
	db     *pebble.DB
	logger *zap.Logger

	mu   sync.Mutex
	tail *Entry
}

// OpenPebble opens (or creates) a pebble journal at dir. opts may be nil.
func OpenPebble(dir string, opts *pebble.Options, logger *zap.Logger) (*PebbleJournal, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble journal: %w", err)
	}

	j := &PebbleJournal{db: db, logger: logger}
	if err := j.loadTail(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *PebbleJournal) loadTail() error {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: keyUpperBound,
	})
	if err != nil {
		return fmt.Errorf("open iterator: %w", err)
	}
	defer iter.Close()

	if !iter.Last() {
		genesis := genesisEntry(time.Now().UTC())
		if err := j.put(genesis); err != nil {
			return fmt.Errorf("write genesis: %w", err)
		}
		j.tail = genesis
		return nil
	}

	e, err := decodeEntry(iter.Value())
	if err != nil {
		return err
	}
	j.tail = e
	return nil
}

func (j *PebbleJournal) put(e *Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	return j.db.Set(entryKey(e.Index), raw, pebble.Sync)
}

func decodeEntry(raw []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode journal entry: %w", err)
	}
	return &e, nil
}

// Close flushes and closes the database.
func (j *PebbleJournal) Close() error {
	return j.db.Close()
}

func (j *PebbleJournal) Append(_ context.Context, ledgerID, kind string, block uint64, payload any) (*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	e, err := newEntry(j.tail, time.Now(), ledgerID, kind, block, payload)
	if err != nil {
		return nil, err
	}
	if err := j.put(e); err != nil {
		return nil, fmt.Errorf("write journal entry: %w", err)
	}
	j.tail = e

	j.logger.Debug("journal entry appended",
		zap.Int("idx", e.Index),
		zap.String("kind", e.Kind),
		zap.String("ledger_id", e.LedgerID),
	)
	return e, nil
}

func (j *PebbleJournal) Get(_ context.Context, index int) (*Entry, error) {
	if index < 0 {
		return nil, fmt.Errorf("%w: index %d", ErrEntryNotFound, index)
	}
	raw, closer, err := j.db.Get(entryKey(index))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%w: index %d", ErrEntryNotFound, index)
	}
	if err != nil {
		return nil, fmt.Errorf("get journal entry %d: %w", index, err)
	}
	defer closer.Close()
	return decodeEntry(raw)
}

func (j *PebbleJournal) Len(_ context.Context) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.tail.Index + 1, nil
}

func (j *PebbleJournal) Range(_ context.Context, from, limit int) ([]*Entry, error) {
	var out []*Entry
	err := j.scan(max(from, 0), func(e *Entry) bool {
		out = append(out, e)
		return limit <= 0 || len(out) < limit
	})
	return out, err
}

func (j *PebbleJournal) Verify(_ context.Context) error {
	var (
		v      verifier
		broken error
	)
	err := j.scan(0, func(e *Entry) bool {
		broken = v.check(e)
		return broken == nil
	})
	if err != nil {
		return err
	}
	return broken
}

func (j *PebbleJournal) Root(_ context.Context) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.tail.Hash, nil
}

// scan visits entries from index from in order until fn returns false.
func (j *PebbleJournal) scan(from int, fn func(*Entry) bool) error {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: entryKey(from),
		UpperBound: keyUpperBound,
	})
	if err != nil {
		return fmt.Errorf("open iterator: %w", err)
	}
	defer iter.Close()

	for valid := iter.First(); valid; valid = iter.Next() {
		idx, err := parseEntryKey(iter.Key())
		if err != nil {
			return err
		}
		e, err := decodeEntry(iter.Value())
		if err != nil {
			return err
		}
		if e.Index != idx {
			return fmt.Errorf("%w: entry stored under key %d claims index %d", ErrChainBroken, idx, e.Index)
		}
		if !fn(e) {
			break
		}
	}
	return iter.Error()
}
