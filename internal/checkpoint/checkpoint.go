// Package checkpoint implements the append-only, block-indexed value history
// that backs every balance and the total supply of a ledger.
//
// A Sequence records (block, value) pairs in non-decreasing block order with at
// most one entry per block. Reading the sequence at block b yields the value of
// the latest entry whose block is <= b. Reads of the current value take a fast
// path; historical reads binary-search the entries.
package checkpoint

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
)

// ErrOutOfOrder is returned by Append when the block is lower than the block of
// the last recorded entry.
var ErrOutOfOrder = errors.New("checkpoint: block precedes last recorded block")

// Checkpoint marks that a value became Value as of Block.
type Checkpoint struct {
	Block uint64   `json:"block"`
	Value *big.Int `json:"value"`
}

// Sequence is the history of one key. The zero value is an empty sequence.
// A Sequence is not safe for concurrent mutation; the owning ledger serialises
// writers.
type Sequence struct {
	entries []Checkpoint
}

// Len returns the number of recorded checkpoints.
func (s *Sequence) Len() int { return len(s.entries) }

// Append records value at block. A second write within the same block replaces
// the last entry's value instead of adding a duplicate block.
func (s *Sequence) Append(block uint64, value *big.Int) error {
	if value == nil || value.Sign() < 0 {
		return fmt.Errorf("checkpoint: invalid value %v", value)
	}
	v := new(big.Int).Set(value)

	n := len(s.entries)
	if n > 0 {
		last := s.entries[n-1].Block
		switch {
		case block == last:
			s.entries[n-1].Value = v
			return nil
		case block < last:
			return fmt.Errorf("%w: %d < %d", ErrOutOfOrder, block, last)
		}
	}
	s.entries = append(s.entries, Checkpoint{Block: block, Value: v})
	return nil
}

// At returns the value in effect at block. ok is false when nothing had been
// recorded at or before block, which callers must keep distinct from a
// recorded zero.
func (s *Sequence) At(block uint64) (value *big.Int, ok bool) {
	n := len(s.entries)
	if n == 0 || block < s.entries[0].Block {
		return nil, false
	}

	if last := s.entries[n-1]; block >= last.Block {
		return new(big.Int).Set(last.Value), true
	}

	// First index whose block is beyond the query; the entry before it is the
	// latest one at or before block. Index 0 is excluded by the guard above.
	i := sort.Search(n, func(i int) bool { return s.entries[i].Block > block })
	return new(big.Int).Set(s.entries[i-1].Value), true
}

// Latest returns the most recent value.
func (s *Sequence) Latest() (*big.Int, bool) {
	n := len(s.entries)
	if n == 0 {
		return nil, false
	}
	return new(big.Int).Set(s.entries[n-1].Value), true
}

// First returns the block of the earliest entry.
func (s *Sequence) First() (uint64, bool) {
	if len(s.entries) == 0 {
		return 0, false
	}
	return s.entries[0].Block, true
}

// LastBlock returns the block of the most recent entry.
func (s *Sequence) LastBlock() (uint64, bool) {
	n := len(s.entries)
	if n == 0 {
		return 0, false
	}
	return s.entries[n-1].Block, true
}

// Entries returns a copy of the recorded checkpoints in block order.
func (s *Sequence) Entries() []Checkpoint {
	out := make([]Checkpoint, len(s.entries))
	for i, e := range s.entries {
		out[i] = Checkpoint{Block: e.Block, Value: new(big.Int).Set(e.Value)}
	}
	return out
}
