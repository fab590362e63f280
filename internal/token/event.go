package token

import (
	"context"
	"math/big"

	"github.com/jmerrifield20/forkledger/pkg/address"
)

// Kind names the logical change an Event records.
type Kind string

const (
	KindLedgerCreated     Kind = "ledger.created"
	KindCloneCreated      Kind = "clone.created"
	KindTransfer          Kind = "transfer"
	KindApproval          Kind = "approval"
	KindMint              Kind = "mint"
	KindBurn              Kind = "burn"
	KindControllerChanged Kind = "controller.changed"
	KindTransfersToggled  Kind = "transfers.toggled"
	KindCloningToggled    Kind = "cloning.toggled"
)

// Event is the single record of one committed mutation. Live calls and journal
// replay apply events through the same code path, so an Event carries every
// input the state change needs.
//
// Field use by kind:
//   - transfer: From, To, Amount; Delegated marks a transferFrom, whose
//     allowance (From, Spender) is consumed.
//   - approval: From is the owner, Spender the approved address.
//   - mint: To, Amount. burn: From, Amount.
//   - controller.changed: Controller.
//   - transfers.toggled, cloning.toggled: Enabled.
//   - ledger.created, clone.created: Info, Controller, Enabled (transfers),
//     plus ParentID and ForkBlock for clones.
type Event struct {
	Kind     Kind            `json:"kind"`
	LedgerID string          `json:"ledger_id"`
	Block    uint64          `json:"block"`
	Caller   address.Address `json:"caller"`

	From    address.Address `json:"from"`
	To      address.Address `json:"to"`
	Spender address.Address `json:"spender"`
	Amount  *big.Int        `json:"amount,omitempty"`

	Delegated bool `json:"delegated,omitempty"`

	Controller address.Address `json:"controller"`
	Enabled    bool            `json:"enabled,omitempty"`

	Info      *Info  `json:"info,omitempty"`
	ParentID  string `json:"parent_id,omitempty"`
	ForkBlock uint64 `json:"fork_block,omitempty"`
}

// Emitter receives every event before it is applied. A non-nil error aborts the
// mutation with no state change.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ctx context.Context, ev Event) error

func (f EmitterFunc) Emit(ctx context.Context, ev Event) error { return f(ctx, ev) }
