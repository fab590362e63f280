package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/jmerrifield20/forkledger/internal/clock"
	"github.com/jmerrifield20/forkledger/internal/journal"
	"github.com/jmerrifield20/forkledger/internal/registry/service"
	"github.com/jmerrifield20/forkledger/internal/token"
	"github.com/jmerrifield20/forkledger/pkg/address"
)

var (
	ctrl  = address.FromBytes([]byte{0xc0})
	alice = address.FromBytes([]byte{0x01})
	bob   = address.FromBytes([]byte{0x02})
)

// ── Stubs ───────────────────────────────────────────────────────────────────

type stubDispatcher struct {
	mu     sync.Mutex
	types  []string
	events []service.EventNotification
}

func (d *stubDispatcher) Dispatch(_ context.Context, eventType string, payload any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.types = append(d.types, eventType)
	d.events = append(d.events, payload.(service.EventNotification))
}

// failingJournal refuses appends once armed.
type failingJournal struct {
	journal.Journal
	armed bool
}

func (f *failingJournal) Append(ctx context.Context, ledgerID, kind string, block uint64, payload any) (*journal.Entry, error) {
	if f.armed {
		return nil, errors.New("disk full")
	}
	return f.Journal.Append(ctx, ledgerID, kind, block, payload)
}

func newService(t *testing.T, j journal.Journal) (*service.LedgerService, *clock.Manual) {
	t.Helper()
	c := clock.NewManual(1)
	return service.NewLedgerService(token.NewRegistry(c, zap.NewNop()), j, zap.NewNop()), c
}

func mustAmount(t *testing.T, want int64, got *big.Int, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("got %s, want %d", got, want)
	}
}

// ── Tests ───────────────────────────────────────────────────────────────────

func TestLedgerService_journalsAndDispatches(t *testing.T) {
	ctx := context.Background()
	j := journal.NewMemory()
	svc, c := newService(t, j)

	d := &stubDispatcher{}
	svc.SetDispatcher(d)
	var ops []string
	svc.SetMetricsRecorder(func(op, outcome string) { ops = append(ops, op+":"+outcome) })
	appends := 0
	svc.SetJournalRecorder(func() { appends++ })

	root, err := svc.CreateRoot(ctx, ctrl, token.RootSpec{Info: token.Info{Name: "Test", Symbol: "TST"}, TransfersEnabled: true})
	if err != nil {
		t.Fatalf("CreateRoot: %v", err)
	}
	c.Advance(1)
	if _, err := svc.Mint(ctx, root.ID(), ctrl, alice, big.NewInt(10)); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := svc.Transfer(ctx, root.ID(), alice, bob, big.NewInt(20)); !errors.Is(err, token.ErrInsufficientBalance) {
		t.Fatalf("Transfer: expected ErrInsufficientBalance, got %v", err)
	}

	n, _ := j.Len(ctx)
	if n != 3 || appends != 2 {
		t.Fatalf("journal: got %d entries and %d appends, want 3 and 2", n, appends)
	}
	mint, _ := j.Get(ctx, 2)
	if mint.Kind != "mint" || mint.LedgerID != root.ID() || mint.Block != 2 {
		t.Errorf("unexpected mint entry %+v", mint)
	}

	if len(d.types) != 2 || d.types[1] != "mint" {
		t.Fatalf("dispatched types: %v", d.types)
	}
	if d.events[1].JournalIndex != 2 || d.events[1].JournalHash != mint.Hash {
		t.Errorf("notification does not reference the journal entry: %+v", d.events[1])
	}

	want := []string{"create:ok", "mint:ok", "transfer:insufficient_balance"}
	if len(ops) != len(want) {
		t.Fatalf("ops: got %v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("ops[%d]: got %q, want %q", i, ops[i], want[i])
		}
	}
}

func TestLedgerService_journalFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	fj := &failingJournal{Journal: journal.NewMemory()}
	svc, _ := newService(t, fj)

	root, err := svc.CreateRoot(ctx, ctrl, token.RootSpec{TransfersEnabled: true})
	if err != nil {
		t.Fatal(err)
	}
	fj.armed = true

	if _, err := svc.Mint(ctx, root.ID(), ctrl, alice, big.NewInt(5)); err == nil {
		t.Fatal("expected mint to fail when the journal refuses the event")
	}
	bal, err := svc.BalanceOf(root.ID(), alice, nil)
	mustAmount(t, 0, bal, err)
	supply, err := svc.TotalSupply(root.ID(), nil)
	mustAmount(t, 0, supply, err)
}

func TestLedgerService_restoreRebuildsState(t *testing.T) {
	ctx := context.Background()
	j := journal.NewMemory()
	svc, c := newService(t, j)

	root, _ := svc.CreateRoot(ctx, ctrl, token.RootSpec{TransfersEnabled: true})
	c.Advance(1)
	svc.Mint(ctx, root.ID(), ctrl, alice, big.NewInt(10))
	c.Advance(1)
	svc.Approve(ctx, root.ID(), alice, bob, big.NewInt(4))
	svc.TransferFrom(ctx, root.ID(), bob, alice, bob, big.NewInt(3))
	c.Advance(1)
	clone, err := svc.Clone(ctx, root.ID(), ctrl, token.CloneSpec{ForkBlock: 3, TransfersEnabled: true})
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	c.Advance(1)
	svc.Burn(ctx, clone.ID(), ctrl, alice, big.NewInt(2))

	// Rebuild from the same journal on a clock that starts behind.
	restored, c2 := newService(t, j)
	last, err := restored.Restore(ctx)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if last != 5 || c2.Current() != 5 {
		t.Fatalf("last block %d, clock %d; want 5 and 5", last, c2.Current())
	}

	if got := len(restored.List()); got != 2 {
		t.Fatalf("restored %d ledgers, want 2", got)
	}
	for _, tc := range []struct {
		ledger string
		holder address.Address
		block  *uint64
		want   int64
	}{
		{root.ID(), alice, nil, 7},
		{root.ID(), bob, nil, 3},
		{clone.ID(), alice, nil, 5},
		{clone.ID(), bob, nil, 3},
	} {
		bal, err := restored.BalanceOf(tc.ledger, tc.holder, tc.block)
		mustAmount(t, tc.want, bal, err)
	}
	blk := uint64(2)
	bal, err := restored.BalanceOf(clone.ID(), alice, &blk)
	mustAmount(t, 10, bal, err)
	left, err := restored.Allowance(root.ID(), alice, bob)
	mustAmount(t, 1, left, err)

	children, err := restored.Children(root.ID())
	if err != nil || len(children) != 1 || children[0].ID() != clone.ID() {
		t.Fatalf("Children: %v %v", children, err)
	}

	// The restored service keeps appending to the same chain.
	if _, err := restored.Mint(ctx, root.ID(), ctrl, bob, big.NewInt(1)); err != nil {
		t.Fatalf("Mint after restore: %v", err)
	}
	if err := j.Verify(ctx); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestLedgerService_restoreRejectsUndecodableEntry(t *testing.T) {
	ctx := context.Background()
	j := journal.NewMemory()
	if _, err := j.Append(ctx, "x", "mint", 1, json.RawMessage(`{"kind":"mint","amount":"oops"}`)); err != nil {
		t.Fatal(err)
	}
	svc, _ := newService(t, j)
	if _, err := svc.Restore(ctx); err == nil {
		t.Fatal("expected restore to fail")
	}
}

func TestLedgerService_unknownLedger(t *testing.T) {
	svc, _ := newService(t, journal.NewMemory())
	if _, err := svc.Mint(context.Background(), "missing", ctrl, alice, big.NewInt(1)); !errors.Is(err, token.ErrLedgerNotFound) {
		t.Errorf("Mint: expected ErrLedgerNotFound, got %v", err)
	}
	if _, err := svc.BalanceOf("missing", alice, nil); !errors.Is(err, token.ErrLedgerNotFound) {
		t.Errorf("BalanceOf: expected ErrLedgerNotFound, got %v", err)
	}
	if _, err := svc.Children("missing"); !errors.Is(err, token.ErrLedgerNotFound) {
		t.Errorf("Children: expected ErrLedgerNotFound, got %v", err)
	}
}
