package token_test

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jmerrifield20/forkledger/internal/clock"
	"github.com/jmerrifield20/forkledger/internal/token"
	"github.com/jmerrifield20/forkledger/pkg/address"
)

var (
	ctrl  = address.FromBytes([]byte{0xc0})
	alice = address.FromBytes([]byte{0x01})
	bob   = address.FromBytes([]byte{0x02})
	carol = address.FromBytes([]byte{0x03})
)

func n(v int64) *big.Int { return big.NewInt(v) }

// recorder is an Emitter that keeps every event and can be told to fail.
type recorder struct {
	mu     sync.Mutex
	events []token.Event
	fail   error
}

func (r *recorder) Emit(_ context.Context, ev token.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) all() []token.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]token.Event(nil), r.events...)
}

type fixture struct {
	clock *clock.Manual
	reg   *token.Registry
	rec   *recorder
	root  *token.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock: clock.NewManual(1),
		rec:   &recorder{},
	}
	f.reg = token.NewRegistry(f.clock, zap.NewNop())
	f.reg.SetEmitter(f.rec)

	root, err := f.reg.CreateRoot(context.Background(), ctrl, token.RootSpec{
		Info:             token.Info{Name: "MiniMe Test Token", Symbol: "MMT", Decimals: 18},
		TransfersEnabled: true,
	})
	require.NoError(t, err)
	f.root = root
	return f
}

// tick advances the clock by one block and returns the new block.
func (f *fixture) tick() uint64 { return f.clock.Advance(1) }

func requireAmount(t *testing.T, want int64, got *big.Int, label string) {
	t.Helper()
	require.Equal(t, big.NewInt(want).String(), got.String(), label)
}
