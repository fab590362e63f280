package token

import (
	"fmt"
	"math/big"

	"github.com/jmerrifield20/forkledger/internal/checkpoint"
	"github.com/jmerrifield20/forkledger/pkg/address"
)

// applyLocked folds ev into the ledger state. It performs no authorization;
// live calls validate before emitting and replayed events were validated when
// they were first committed. All new values are computed before any sequence is
// touched, so a failing event leaves the ledger unchanged.
func (l *Ledger) applyLocked(ev Event) error {
	switch ev.Kind {
	case KindTransfer:
		if err := l.checkCheckpointWriteLocked(ev); err != nil {
			return err
		}
		var (
			key  allowanceKey
			left *big.Int
		)
		if ev.Delegated {
			key = allowanceKey{ev.From, ev.Spender}
			left = new(big.Int).Sub(orZero(l.allowances[key]), ev.Amount)
			if left.Sign() < 0 {
				return fmt.Errorf("%w: replaying transfer at block %d", ErrInsufficientAllowance, ev.Block)
			}
		}
		from := new(big.Int).Sub(l.balanceLocked(ev.From, ev.Block), ev.Amount)
		if from.Sign() < 0 {
			return fmt.Errorf("%w: replaying transfer at block %d", ErrInsufficientBalance, ev.Block)
		}
		if left != nil {
			l.setAllowanceLocked(key, left)
		}
		// Self and zero-amount transfers are observable events only.
		if ev.Amount.Sign() == 0 || ev.From == ev.To {
			break
		}
		to := new(big.Int).Add(l.balanceLocked(ev.To, ev.Block), ev.Amount)
		l.appendLocked(l.holderSeq(ev.From), ev.Block, from)
		l.appendLocked(l.holderSeq(ev.To), ev.Block, to)

	case KindApproval:
		if ev.Amount == nil || ev.Amount.Sign() < 0 {
			return ErrInvalidAmount
		}
		l.setAllowanceLocked(allowanceKey{ev.From, ev.Spender}, new(big.Int).Set(ev.Amount))

	case KindMint:
		if err := l.checkCheckpointWriteLocked(ev); err != nil {
			return err
		}
		if ev.Amount.Sign() == 0 {
			break
		}
		supply := new(big.Int).Add(l.supplyLocked(ev.Block), ev.Amount)
		to := new(big.Int).Add(l.balanceLocked(ev.To, ev.Block), ev.Amount)
		l.appendLocked(&l.supply, ev.Block, supply)
		l.appendLocked(l.holderSeq(ev.To), ev.Block, to)

	case KindBurn:
		if err := l.checkCheckpointWriteLocked(ev); err != nil {
			return err
		}
		if ev.Amount.Sign() == 0 {
			break
		}
		supply := new(big.Int).Sub(l.supplyLocked(ev.Block), ev.Amount)
		from := new(big.Int).Sub(l.balanceLocked(ev.From, ev.Block), ev.Amount)
		if supply.Sign() < 0 || from.Sign() < 0 {
			return fmt.Errorf("%w: replaying burn at block %d", ErrInsufficientBalance, ev.Block)
		}
		l.appendLocked(&l.supply, ev.Block, supply)
		l.appendLocked(l.holderSeq(ev.From), ev.Block, from)

	case KindControllerChanged:
		l.controller = ev.Controller

	case KindTransfersToggled:
		l.transfersEnabled = ev.Enabled

	case KindCloningToggled:
		l.cloningEnabled = ev.Enabled

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Kind)
	}

	l.head = max(l.head, ev.Block)
	return nil
}

func (l *Ledger) checkCheckpointWriteLocked(ev Event) error {
	if ev.Amount == nil || ev.Amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return l.writableLocked(ev.Block)
}

func (l *Ledger) holderSeq(holder address.Address) *checkpoint.Sequence {
	seq, ok := l.balances[holder]
	if !ok {
		seq = &checkpoint.Sequence{}
		l.balances[holder] = seq
	}
	return seq
}

// appendLocked cannot fail once writableLocked has accepted the block: every
// sequence's last entry is at or before l.head.
func (l *Ledger) appendLocked(seq *checkpoint.Sequence, block uint64, v *big.Int) {
	if err := seq.Append(block, v); err != nil {
		panic(fmt.Sprintf("token: ledger %s: %v", l.id, err))
	}
}

func (l *Ledger) setAllowanceLocked(key allowanceKey, v *big.Int) {
	if v.Sign() == 0 {
		delete(l.allowances, key)
		return
	}
	l.allowances[key] = v
}
