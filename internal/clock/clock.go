// Package clock supplies the monotonically non-decreasing block counter that
// indexes ledger history.
package clock

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
)

// ErrBackwards is returned when a caller tries to move a clock to a lower block.
var ErrBackwards = errors.New("clock: block counter cannot go backwards")

// Clock reports the current block.
type Clock interface {
	Current() uint64
}

// Resumable is implemented by clocks that can be fast-forwarded after the
// journal has been replayed, so new writes never land behind restored history.
type Resumable interface {
	AdvanceTo(block uint64)
}

// Manual is a clock moved explicitly by its owner. It is used by tests and by
// batch tooling that imports history block by block.
type Manual struct {
	mu    sync.Mutex
	block uint64
}

// NewManual returns a Manual clock positioned at start.
func NewManual(start uint64) *Manual {
	return &Manual{block: start}
}

func (m *Manual) Current() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.block
}

// Set moves the clock to block.
func (m *Manual) Set(block uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if block < m.block {
		return fmt.Errorf("%w: %d < %d", ErrBackwards, block, m.block)
	}
	m.block = block
	return nil
}

// Advance moves the clock forward by n blocks and returns the new block.
func (m *Manual) Advance(n uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.block += n
	return m.block
}

// AdvanceTo moves the clock to block if it is ahead of the current one.
func (m *Manual) AdvanceTo(block uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if block > m.block {
		m.block = block
	}
}

// Wall uses unix seconds as the block counter.
type Wall struct {
	clock clockwork.Clock
}

// NewWall returns a wall clock. A nil clock uses the real time source.
func NewWall(c clockwork.Clock) *Wall {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	return &Wall{clock: c}
}

func (w *Wall) Current() uint64 {
	secs := w.clock.Now().Unix()
	if secs < 0 {
		return 0
	}
	return uint64(secs)
}
