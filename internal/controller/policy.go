package controller

import (
	"context"
	"math/big"
	"sync"

	"github.com/jmerrifield20/forkledger/internal/token"
	"github.com/jmerrifield20/forkledger/pkg/address"
)

// Policy is an in-process controller that freezes blocked holders: it rejects
// any transfer or approval that touches a blocked address.
type Policy struct {
	mu      sync.RWMutex
	blocked map[address.Address]struct{}
}

func NewPolicy() *Policy {
	return &Policy{blocked: make(map[address.Address]struct{})}
}

func (p *Policy) Block(a address.Address) {
	p.mu.Lock()
	p.blocked[a] = struct{}{}
	p.mu.Unlock()
}

func (p *Policy) Unblock(a address.Address) {
	p.mu.Lock()
	delete(p.blocked, a)
	p.mu.Unlock()
}

func (p *Policy) IsBlocked(a address.Address) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.blocked[a]
	return ok
}

func (p *Policy) OnTransfer(_ context.Context, _ string, from, to address.Address, _ *big.Int) (token.Decision, error) {
	if p.IsBlocked(from) || p.IsBlocked(to) {
		return token.Rejected, nil
	}
	return token.Approved, nil
}

func (p *Policy) OnApprove(_ context.Context, _ string, owner, spender address.Address, _ *big.Int) (token.Decision, error) {
	if p.IsBlocked(owner) || p.IsBlocked(spender) {
		return token.Rejected, nil
	}
	return token.Approved, nil
}
