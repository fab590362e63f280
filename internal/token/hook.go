package token

import (
	"context"
	"math/big"

	"github.com/jmerrifield20/forkledger/pkg/address"
)

// Decision is a controller hook's answer.
type Decision int

const (
	// NotImplemented means the controller has no opinion; the call proceeds.
	NotImplemented Decision = iota
	Approved
	Rejected
)

func (d Decision) String() string {
	switch d {
	case Approved:
		return "approved"
	case Rejected:
		return "rejected"
	default:
		return "not_implemented"
	}
}

// Hook is the optional capability a controller address may implement. Only an
// explicit Rejected aborts the operation; an error is logged and treated as
// approval so an unreachable controller cannot freeze the ledger.
type Hook interface {
	OnTransfer(ctx context.Context, ledgerID string, from, to address.Address, amount *big.Int) (Decision, error)
	OnApprove(ctx context.Context, ledgerID string, owner, spender address.Address, amount *big.Int) (Decision, error)
}

// HookDirectory resolves a controller address to its hook, if any.
type HookDirectory interface {
	Lookup(controller address.Address) (Hook, bool)
}
