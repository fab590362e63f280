package token

import (
	"math/big"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jmerrifield20/forkledger/internal/checkpoint"
	"github.com/jmerrifield20/forkledger/pkg/address"
)

// Info is the descriptive metadata of a ledger.
type Info struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// Summary is a point-in-time view of a ledger's scalar state.
type Summary struct {
	ID               string          `json:"id"`
	Info             Info            `json:"info"`
	ParentID         string          `json:"parent_id,omitempty"`
	ForkBlock        uint64          `json:"fork_block"`
	CreatedBlock     uint64          `json:"created_block"`
	Controller       address.Address `json:"controller"`
	TransfersEnabled bool            `json:"transfers_enabled"`
	CloningEnabled   bool            `json:"cloning_enabled"`
	TotalSupply      *big.Int        `json:"total_supply"`
}

type allowanceKey struct {
	owner, spender address.Address
}

// lookupKey identifies a parent read. A zero holder with supply set addresses
// the supply sequence.
type lookupKey struct {
	supply bool
	holder address.Address
	block  uint64
}

// Ledger tracks the checkpointed balances and supply of one token. A clone
// keeps a read-only handle to its parent and answers reads it has no data for
// by asking the parent at min(block, ForkBlock).
//
// Writers are serialised by mu. Readers take the read lock; reads that fall
// through to the parent release this ledger's lock first.
type Ledger struct {
	id           string
	info         Info
	parent       *Ledger
	forkBlock    uint64
	createdBlock uint64
	reg          *Registry
	cache        *lru.Cache[lookupKey, *big.Int]

	mu               sync.RWMutex
	supply           checkpoint.Sequence
	balances         map[address.Address]*checkpoint.Sequence
	allowances       map[allowanceKey]*big.Int
	controller       address.Address
	transfersEnabled bool
	cloningEnabled   bool
	head             uint64
}

func newLedger(reg *Registry, ev Event, parent *Ledger) *Ledger {
	l := &Ledger{
		id:               ev.LedgerID,
		parent:           parent,
		forkBlock:        ev.ForkBlock,
		createdBlock:     ev.Block,
		reg:              reg,
		balances:         make(map[address.Address]*checkpoint.Sequence),
		allowances:       make(map[allowanceKey]*big.Int),
		controller:       ev.Controller,
		transfersEnabled: ev.Enabled,
		cloningEnabled:   true,
		head:             ev.Block,
	}
	if ev.Info != nil {
		l.info = *ev.Info
	}
	if parent != nil && reg.cacheSize > 0 {
		// lru.New only fails for a non-positive size.
		l.cache, _ = lru.New[lookupKey, *big.Int](reg.cacheSize)
	}
	return l
}

func (l *Ledger) ID() string { return l.id }

func (l *Ledger) Info() Info { return l.info }

func (l *Ledger) IsClone() bool { return l.parent != nil }

// ParentID returns the parent ledger's ID, or "" for a root ledger.
func (l *Ledger) ParentID() string {
	if l.parent == nil {
		return ""
	}
	return l.parent.id
}

func (l *Ledger) ForkBlock() uint64 { return l.forkBlock }

func (l *Ledger) CreatedBlock() uint64 { return l.createdBlock }

func (l *Ledger) Controller() address.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.controller
}

func (l *Ledger) TransfersEnabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.transfersEnabled
}

func (l *Ledger) CloningEnabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cloningEnabled
}

// Summary returns the ledger's metadata, flags and current supply.
func (l *Ledger) Summary() Summary {
	l.mu.RLock()
	s := Summary{
		ID:               l.id,
		Info:             l.info,
		ParentID:         l.ParentID(),
		ForkBlock:        l.forkBlock,
		CreatedBlock:     l.createdBlock,
		Controller:       l.controller,
		TransfersEnabled: l.transfersEnabled,
		CloningEnabled:   l.cloningEnabled,
	}
	l.mu.RUnlock()
	s.TotalSupply = l.TotalSupply()
	return s
}

// BalanceOf returns holder's balance at the current block.
func (l *Ledger) BalanceOf(holder address.Address) *big.Int {
	return l.BalanceOfAt(holder, l.reg.clock.Current())
}

// BalanceOfAt returns holder's balance as of block.
func (l *Ledger) BalanceOfAt(holder address.Address, block uint64) *big.Int {
	l.mu.RLock()
	v, ok := l.ownBalance(holder, block)
	l.mu.RUnlock()
	if ok {
		return v
	}
	return l.fromParent(lookupKey{holder: holder, block: block})
}

// TotalSupply returns the supply at the current block.
func (l *Ledger) TotalSupply() *big.Int {
	return l.TotalSupplyAt(l.reg.clock.Current())
}

// TotalSupplyAt returns the supply as of block.
func (l *Ledger) TotalSupplyAt(block uint64) *big.Int {
	l.mu.RLock()
	v, ok := l.supply.At(block)
	l.mu.RUnlock()
	if ok {
		return v
	}
	return l.fromParent(lookupKey{supply: true, block: block})
}

// Allowance returns the amount spender may still move out of owner's balance.
func (l *Ledger) Allowance(owner, spender address.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if v, ok := l.allowances[allowanceKey{owner, spender}]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (l *Ledger) ownBalance(holder address.Address, block uint64) (*big.Int, bool) {
	seq, ok := l.balances[holder]
	if !ok {
		return nil, false
	}
	return seq.At(block)
}

// fromParent resolves a read this ledger has no own data for. The block is
// clamped to the fork point so a clone never observes parent writes made after
// it forked. Answers strictly before the current block can no longer change and
// are cached.
func (l *Ledger) fromParent(key lookupKey) *big.Int {
	if l.parent == nil {
		return new(big.Int)
	}
	key.block = min(key.block, l.forkBlock)

	cacheable := l.cache != nil && key.block < l.reg.clock.Current()
	if cacheable {
		if v, ok := l.cache.Get(key); ok {
			return new(big.Int).Set(v)
		}
	}

	var v *big.Int
	if key.supply {
		v = l.parent.TotalSupplyAt(key.block)
	} else {
		v = l.parent.BalanceOfAt(key.holder, key.block)
	}

	if cacheable {
		l.cache.Add(key, new(big.Int).Set(v))
	}
	return v
}

// balanceLocked reads a balance while l.mu is held by the caller.
func (l *Ledger) balanceLocked(holder address.Address, block uint64) *big.Int {
	if v, ok := l.ownBalance(holder, block); ok {
		return v
	}
	return l.fromParent(lookupKey{holder: holder, block: block})
}

func (l *Ledger) supplyLocked(block uint64) *big.Int {
	if v, ok := l.supply.At(block); ok {
		return v
	}
	return l.fromParent(lookupKey{supply: true, block: block})
}

func (l *Ledger) isController(caller address.Address) bool {
	return !l.controller.IsZero() && caller == l.controller
}
