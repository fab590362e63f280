package token_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jmerrifield20/forkledger/internal/token"
	"github.com/jmerrifield20/forkledger/pkg/address"
)

type stubHook struct {
	onTransfer func(ctx context.Context, from, to address.Address, amount *big.Int) (token.Decision, error)
	onApprove  func(ctx context.Context, owner, spender address.Address, amount *big.Int) (token.Decision, error)
	calls      int
}

func (h *stubHook) OnTransfer(ctx context.Context, _ string, from, to address.Address, amount *big.Int) (token.Decision, error) {
	h.calls++
	if h.onTransfer == nil {
		return token.NotImplemented, nil
	}
	return h.onTransfer(ctx, from, to, amount)
}

func (h *stubHook) OnApprove(ctx context.Context, _ string, owner, spender address.Address, amount *big.Int) (token.Decision, error) {
	h.calls++
	if h.onApprove == nil {
		return token.NotImplemented, nil
	}
	return h.onApprove(ctx, owner, spender, amount)
}

type stubDirectory map[address.Address]token.Hook

func (d stubDirectory) Lookup(a address.Address) (token.Hook, bool) {
	h, ok := d[a]
	return h, ok
}

func hookedFixture(t *testing.T, h *stubHook) *fixture {
	t.Helper()
	f := newFixture(t)
	f.reg.SetHooks(stubDirectory{ctrl: h})
	f.tick()
	_, err := f.root.Mint(context.Background(), ctrl, alice, n(10))
	require.NoError(t, err)
	return f
}

func TestHook_decisions(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		decision token.Decision
		err      error
		wantErr  error
		wantBob  int64
	}{
		{name: "approved", decision: token.Approved, wantBob: 3},
		{name: "not implemented", decision: token.NotImplemented, wantBob: 3},
		{name: "rejected", decision: token.Rejected, wantErr: token.ErrControllerRejected},
		{name: "hook error is permissive", decision: token.Rejected, err: errors.New("controller offline"), wantBob: 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := &stubHook{
				onTransfer: func(context.Context, address.Address, address.Address, *big.Int) (token.Decision, error) {
					return tc.decision, tc.err
				},
			}
			f := hookedFixture(t, h)

			_, err := f.root.Transfer(ctx, alice, bob, n(3))
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, 1, h.calls)
			requireAmount(t, tc.wantBob, f.root.BalanceOf(bob), "bob")
		})
	}
}

func TestHook_rejectedApproval(t *testing.T) {
	ctx := context.Background()
	h := &stubHook{
		onApprove: func(_ context.Context, _, spender address.Address, _ *big.Int) (token.Decision, error) {
			if spender == carol {
				return token.Rejected, nil
			}
			return token.Approved, nil
		},
	}
	f := hookedFixture(t, h)

	_, err := f.root.Approve(ctx, alice, carol, n(1))
	require.ErrorIs(t, err, token.ErrControllerRejected)
	requireAmount(t, 0, f.root.Allowance(alice, carol), "carol")

	_, err = f.root.Approve(ctx, alice, bob, n(1))
	require.NoError(t, err)
	requireAmount(t, 1, f.root.Allowance(alice, bob), "bob")
}

func TestHook_zeroAmountStillConsulted(t *testing.T) {
	h := &stubHook{}
	f := hookedFixture(t, h)

	_, err := f.root.Transfer(context.Background(), alice, bob, n(0))
	require.NoError(t, err)
	require.Equal(t, 1, h.calls)
}

func TestHook_reentrantCallsSeeCommittedState(t *testing.T) {
	ctx := context.Background()
	h := &stubHook{}
	f := hookedFixture(t, h)

	// While the outer transfer is pending, the controller drains alice.
	drained := false
	h.onTransfer = func(ctx context.Context, from, _ address.Address, _ *big.Int) (token.Decision, error) {
		if drained {
			return token.Approved, nil
		}
		drained = true
		if _, err := f.root.Burn(ctx, ctrl, from, f.root.BalanceOf(from)); err != nil {
			return token.NotImplemented, err
		}
		return token.Approved, nil
	}

	_, err := f.root.Transfer(ctx, alice, bob, n(5))
	require.ErrorIs(t, err, token.ErrInsufficientBalance)
	requireAmount(t, 0, f.root.BalanceOf(alice), "alice drained by the hook")
	requireAmount(t, 0, f.root.BalanceOf(bob), "bob")
	requireAmount(t, 0, f.root.TotalSupply(), "supply")
}

func TestHook_controllerChangedDuringHook(t *testing.T) {
	ctx := context.Background()
	h := &stubHook{}
	f := hookedFixture(t, h)

	h.onTransfer = func(ctx context.Context, _, _ address.Address, _ *big.Int) (token.Decision, error) {
		if _, err := f.root.SetController(ctx, ctrl, carol); err != nil {
			return token.NotImplemented, err
		}
		return token.Approved, nil
	}

	_, err := f.root.Transfer(ctx, alice, bob, n(1))
	require.ErrorIs(t, err, token.ErrControllerRejected)
	require.Equal(t, carol, f.root.Controller())
	requireAmount(t, 10, f.root.BalanceOf(alice), "alice")
}

func TestHook_notConsultedWithoutController(t *testing.T) {
	ctx := context.Background()
	h := &stubHook{
		onTransfer: func(context.Context, address.Address, address.Address, *big.Int) (token.Decision, error) {
			return token.Rejected, nil
		},
	}
	f := hookedFixture(t, h)
	_, err := f.root.SetController(ctx, ctrl, address.Zero)
	require.NoError(t, err)

	_, err = f.root.Transfer(ctx, alice, bob, n(1))
	require.NoError(t, err)
	require.Zero(t, h.calls)
}
