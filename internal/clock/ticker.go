package clock

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Ticker derives the block counter from elapsed time: one block per interval
// since genesis. The counter is computed from the time source on every read, so
// it needs no background goroutine to stay correct; Run only reports ticks.
type Ticker struct {
	clock    clockwork.Clock
	genesis  time.Time
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	offset uint64
	onTick func(block uint64)
}

// NewTicker creates a ticker whose block 0 starts now. A nil clock uses the
// real time source; a non-positive interval defaults to one second.
func NewTicker(c clockwork.Clock, interval time.Duration, logger *zap.Logger) *Ticker {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ticker{
		clock:    c,
		genesis:  c.Now(),
		interval: interval,
		logger:   logger,
	}
}

// SetOnTick registers a callback invoked by Run on every tick.
// Pass nil to disable.
func (t *Ticker) SetOnTick(fn func(block uint64)) {
	t.mu.Lock()
	t.onTick = fn
	t.mu.Unlock()
}

func (t *Ticker) Current() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentLocked()
}

func (t *Ticker) currentLocked() uint64 {
	elapsed := t.clock.Since(t.genesis)
	if elapsed < 0 {
		elapsed = 0
	}
	return t.offset + uint64(elapsed/t.interval)
}

// AdvanceTo shifts the counter so that it reads at least block.
func (t *Ticker) AdvanceTo(block uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur := t.currentLocked(); block > cur {
		t.offset += block - cur
	}
}

// Interval returns the block duration.
func (t *Ticker) Interval() time.Duration { return t.interval }

// Run reports each tick until ctx is cancelled.
func (t *Ticker) Run(ctx context.Context) error {
	tk := t.clock.NewTicker(t.interval)
	defer tk.Stop()

	t.logger.Info("block ticker started",
		zap.Duration("interval", t.interval),
		zap.Uint64("block", t.Current()),
	)
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("block ticker stopped", zap.Uint64("block", t.Current()))
			return nil
		case <-tk.Chan():
			block := t.Current()
			t.logger.Debug("block tick", zap.Uint64("block", block))
			t.mu.Lock()
			fn := t.onTick
			t.mu.Unlock()
			if fn != nil {
				fn(block)
			}
		}
	}
}
