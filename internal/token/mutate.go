package token

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/jmerrifield20/forkledger/pkg/address"
)

// Transfer moves amount from caller to to.
func (l *Ledger) Transfer(ctx context.Context, caller, to address.Address, amount *big.Int) (Event, error) {
	return l.transfer(ctx, caller, caller, to, amount, false)
}

// TransferFrom moves amount from owner to to on behalf of caller, consuming
// the allowance owner granted caller.
func (l *Ledger) TransferFrom(ctx context.Context, caller, owner, to address.Address, amount *big.Int) (Event, error) {
	return l.transfer(ctx, caller, owner, to, amount, true)
}

func (l *Ledger) transfer(ctx context.Context, caller, from, to address.Address, amount *big.Int, viaAllowance bool) (Event, error) {
	if err := validAmount(amount); err != nil {
		return Event{}, err
	}
	amount = new(big.Int).Set(amount)

	check := func(block uint64) (address.Address, error) {
		if err := l.writableLocked(block); err != nil {
			return address.Zero, err
		}
		if !l.transfersEnabled && !l.isController(caller) {
			return address.Zero, ErrTransfersDisabled
		}
		if viaAllowance {
			if allowed := l.allowances[allowanceKey{from, caller}]; allowed == nil || allowed.Cmp(amount) < 0 {
				return address.Zero, fmt.Errorf("%w: spender %s may move %s of %s",
					ErrInsufficientAllowance, caller, orZero(allowed), from)
			}
		}
		if bal := l.balanceLocked(from, block); bal.Cmp(amount) < 0 {
			return address.Zero, fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from, bal, amount)
		}
		return l.controller, nil
	}

	l.mu.RLock()
	ctrl, err := check(l.reg.clock.Current())
	l.mu.RUnlock()
	if err != nil {
		return Event{}, err
	}

	err = l.consult(ctx, ctrl, "transfer", func(h Hook) (Decision, error) {
		return h.OnTransfer(ctx, l.id, from, to, new(big.Int).Set(amount))
	})
	if err != nil {
		return Event{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	block := l.reg.clock.Current()
	again, err := check(block)
	if err != nil {
		return Event{}, err
	}
	if again != ctrl {
		return Event{}, fmt.Errorf("%w: controller changed while the hook was pending", ErrControllerRejected)
	}

	ev := Event{
		Kind:     KindTransfer,
		LedgerID: l.id,
		Block:    block,
		Caller:   caller,
		From:     from,
		To:       to,
		Amount:   amount,
	}
	if viaAllowance {
		ev.Spender = caller
		ev.Delegated = true
	}
	return ev, l.commitLocked(ctx, ev)
}

// Approve sets the allowance caller grants spender, replacing any previous
// value.
func (l *Ledger) Approve(ctx context.Context, caller, spender address.Address, amount *big.Int) (Event, error) {
	if err := validAmount(amount); err != nil {
		return Event{}, err
	}
	amount = new(big.Int).Set(amount)

	check := func(block uint64) (address.Address, error) {
		if block < l.head {
			return address.Zero, fmt.Errorf("%w: block %d < %d", ErrStaleBlock, block, l.head)
		}
		if !l.transfersEnabled && !l.isController(caller) {
			return address.Zero, ErrTransfersDisabled
		}
		return l.controller, nil
	}

	l.mu.RLock()
	ctrl, err := check(l.reg.clock.Current())
	l.mu.RUnlock()
	if err != nil {
		return Event{}, err
	}

	err = l.consult(ctx, ctrl, "approve", func(h Hook) (Decision, error) {
		return h.OnApprove(ctx, l.id, caller, spender, new(big.Int).Set(amount))
	})
	if err != nil {
		return Event{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	block := l.reg.clock.Current()
	again, err := check(block)
	if err != nil {
		return Event{}, err
	}
	if again != ctrl {
		return Event{}, fmt.Errorf("%w: controller changed while the hook was pending", ErrControllerRejected)
	}

	ev := Event{
		Kind:     KindApproval,
		LedgerID: l.id,
		Block:    block,
		Caller:   caller,
		From:     caller,
		Spender:  spender,
		Amount:   amount,
	}
	return ev, l.commitLocked(ctx, ev)
}

// Mint creates amount new tokens for to. Controller only.
func (l *Ledger) Mint(ctx context.Context, caller, to address.Address, amount *big.Int) (Event, error) {
	if err := validAmount(amount); err != nil {
		return Event{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isController(caller) {
		return Event{}, ErrUnauthorized
	}
	block := l.reg.clock.Current()
	if err := l.writableLocked(block); err != nil {
		return Event{}, err
	}

	ev := Event{
		Kind:     KindMint,
		LedgerID: l.id,
		Block:    block,
		Caller:   caller,
		To:       to,
		Amount:   new(big.Int).Set(amount),
	}
	return ev, l.commitLocked(ctx, ev)
}

// Burn destroys amount tokens held by from. Controller only.
func (l *Ledger) Burn(ctx context.Context, caller, from address.Address, amount *big.Int) (Event, error) {
	if err := validAmount(amount); err != nil {
		return Event{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isController(caller) {
		return Event{}, ErrUnauthorized
	}
	block := l.reg.clock.Current()
	if err := l.writableLocked(block); err != nil {
		return Event{}, err
	}
	if bal := l.balanceLocked(from, block); bal.Cmp(amount) < 0 {
		return Event{}, fmt.Errorf("%w: %s holds %s, burning %s", ErrInsufficientBalance, from, bal, amount)
	}

	ev := Event{
		Kind:     KindBurn,
		LedgerID: l.id,
		Block:    block,
		Caller:   caller,
		From:     from,
		Amount:   new(big.Int).Set(amount),
	}
	return ev, l.commitLocked(ctx, ev)
}

// SetController hands control to next. The zero address disables every
// controller-only operation.
func (l *Ledger) SetController(ctx context.Context, caller, next address.Address) (Event, error) {
	return l.admin(ctx, caller, Event{Kind: KindControllerChanged, Controller: next})
}

// EnableTransfers pauses or resumes transfers and approvals for everyone but
// the controller.
func (l *Ledger) EnableTransfers(ctx context.Context, caller address.Address, enabled bool) (Event, error) {
	return l.admin(ctx, caller, Event{Kind: KindTransfersToggled, Enabled: enabled})
}

// EnableCloning allows or forbids creating clones of this ledger.
func (l *Ledger) EnableCloning(ctx context.Context, caller address.Address, enabled bool) (Event, error) {
	return l.admin(ctx, caller, Event{Kind: KindCloningToggled, Enabled: enabled})
}

func (l *Ledger) admin(ctx context.Context, caller address.Address, ev Event) (Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isController(caller) {
		return Event{}, ErrUnauthorized
	}
	ev.LedgerID = l.id
	ev.Block = max(l.reg.clock.Current(), l.head)
	ev.Caller = caller
	return ev, l.commitLocked(ctx, ev)
}

// writableLocked reports whether balances or supply may change at block.
func (l *Ledger) writableLocked(block uint64) error {
	if l.parent != nil && block <= l.forkBlock {
		return fmt.Errorf("%w: block %d, fork block %d", ErrCloneNotActive, block, l.forkBlock)
	}
	if block < l.head {
		return fmt.Errorf("%w: block %d < %d", ErrStaleBlock, block, l.head)
	}
	return nil
}

// consult asks the controller's hook, if it has one. It must be called without
// holding l.mu so the hook may call back into the ledger.
func (l *Ledger) consult(ctx context.Context, ctrl address.Address, op string, ask func(Hook) (Decision, error)) error {
	if ctrl.IsZero() || l.reg.hooks == nil {
		return nil
	}
	h, ok := l.reg.hooks.Lookup(ctrl)
	if !ok {
		return nil
	}

	d, err := ask(h)
	if err != nil {
		l.reg.logger.Warn("controller hook failed, proceeding",
			zap.String("ledger_id", l.id),
			zap.String("op", op),
			zap.Stringer("controller", ctrl),
			zap.Error(err),
		)
		return nil
	}
	if d == Rejected {
		return fmt.Errorf("%w: %s by %s", ErrControllerRejected, op, ctrl)
	}
	return nil
}

func (l *Ledger) commitLocked(ctx context.Context, ev Event) error {
	if err := l.reg.emit(ctx, ev); err != nil {
		return err
	}
	if err := l.applyLocked(ev); err != nil {
		// The event is already recorded; replay will hit the same error.
		l.reg.logger.Error("apply emitted event",
			zap.String("ledger_id", l.id),
			zap.String("kind", string(ev.Kind)),
			zap.Uint64("block", ev.Block),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
