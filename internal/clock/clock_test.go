package clock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/jmerrifield20/forkledger/internal/clock"
)

func TestManual_setAndAdvance(t *testing.T) {
	m := clock.NewManual(5)
	if got := m.Current(); got != 5 {
		t.Fatalf("Current: got %d, want 5", got)
	}
	if got := m.Advance(3); got != 8 {
		t.Errorf("Advance: got %d, want 8", got)
	}
	if err := m.Set(8); err != nil {
		t.Errorf("Set to the same block: %v", err)
	}
	if err := m.Set(7); !errors.Is(err, clock.ErrBackwards) {
		t.Errorf("expected ErrBackwards, got %v", err)
	}
	if got := m.Current(); got != 8 {
		t.Errorf("rejected Set moved the clock to %d", got)
	}
}

func TestManual_advanceToNeverRewinds(t *testing.T) {
	m := clock.NewManual(10)
	m.AdvanceTo(4)
	if got := m.Current(); got != 10 {
		t.Errorf("AdvanceTo lower block: got %d, want 10", got)
	}
	m.AdvanceTo(12)
	if got := m.Current(); got != 12 {
		t.Errorf("AdvanceTo: got %d, want 12", got)
	}
}

func TestWall_unixSeconds(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	fc := clockwork.NewFakeClockAt(start)
	w := clock.NewWall(fc)

	if got, want := w.Current(), uint64(start.Unix()); got != want {
		t.Fatalf("Current: got %d, want %d", got, want)
	}
	fc.Advance(90 * time.Second)
	if got, want := w.Current(), uint64(start.Unix())+90; got != want {
		t.Errorf("after advance: got %d, want %d", got, want)
	}
}

func TestTicker_countsIntervals(t *testing.T) {
	fc := clockwork.NewFakeClock()
	tk := clock.NewTicker(fc, 2*time.Second, zap.NewNop())

	if got := tk.Current(); got != 0 {
		t.Fatalf("genesis block: got %d, want 0", got)
	}
	fc.Advance(time.Second)
	if got := tk.Current(); got != 0 {
		t.Errorf("mid-interval: got %d, want 0", got)
	}
	fc.Advance(5 * time.Second)
	if got := tk.Current(); got != 3 {
		t.Errorf("after 6s at 2s/block: got %d, want 3", got)
	}
}

func TestTicker_advanceToResumesPastRestoredHistory(t *testing.T) {
	fc := clockwork.NewFakeClock()
	tk := clock.NewTicker(fc, time.Second, zap.NewNop())

	tk.AdvanceTo(100)
	if got := tk.Current(); got != 100 {
		t.Fatalf("AdvanceTo: got %d, want 100", got)
	}
	fc.Advance(3 * time.Second)
	if got := tk.Current(); got != 103 {
		t.Errorf("after advance: got %d, want 103", got)
	}
	tk.AdvanceTo(50)
	if got := tk.Current(); got != 103 {
		t.Errorf("AdvanceTo a lower block rewound the ticker to %d", got)
	}
}

func TestTicker_runInvokesCallback(t *testing.T) {
	fc := clockwork.NewFakeClock()
	tk := clock.NewTicker(fc, time.Second, zap.NewNop())

	ticks := make(chan uint64, 4)
	tk.SetOnTick(func(b uint64) { ticks <- b })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tk.Run(ctx) }()

	fc.BlockUntil(1)
	fc.Advance(time.Second)

	select {
	case b := <-ticks:
		if b != 1 {
			t.Errorf("tick reported block %d, want 1", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no tick received")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}
