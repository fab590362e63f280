package token

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmerrifield20/forkledger/internal/clock"
	"github.com/jmerrifield20/forkledger/pkg/address"
)

// DefaultParentCacheSize bounds the per-clone cache of settled parent reads.
const DefaultParentCacheSize = 4096

// RootSpec describes a new root ledger.
type RootSpec struct {
	Info             Info
	Controller       address.Address // defaults to the caller
	TransfersEnabled bool
}

// CloneSpec describes a clone. ForkBlock 0 means the current block.
type CloneSpec struct {
	Info             Info
	ForkBlock        uint64
	Controller       address.Address // defaults to the caller
	TransfersEnabled bool
}

// Registry is the directory of every ledger sharing one clock, hook directory
// and event emitter.
type Registry struct {
	clock     clock.Clock
	logger    *zap.Logger
	hooks     HookDirectory
	emitter   Emitter
	cacheSize int
	newID     func() string

	mu      sync.RWMutex
	ledgers map[string]*Ledger
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry(c clock.Clock, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		clock:     c,
		logger:    logger,
		cacheSize: DefaultParentCacheSize,
		newID:     uuid.NewString,
		ledgers:   make(map[string]*Ledger),
	}
}

// SetHooks configures how controller hooks are resolved. Pass nil to run
// without controller approval.
func (r *Registry) SetHooks(h HookDirectory) { r.hooks = h }

// SetEmitter configures where committed events are recorded. Pass nil to
// disable.
func (r *Registry) SetEmitter(e Emitter) { r.emitter = e }

// SetParentCacheSize sets the per-clone parent read cache size for clones
// created afterwards. Zero disables caching.
func (r *Registry) SetParentCacheSize(n int) { r.cacheSize = n }

// SetIDGenerator overrides ledger ID generation.
func (r *Registry) SetIDGenerator(fn func() string) { r.newID = fn }

// Clock returns the registry's block source.
func (r *Registry) Clock() clock.Clock { return r.clock }

func (r *Registry) emit(ctx context.Context, ev Event) error {
	if r.emitter == nil {
		return nil
	}
	if err := r.emitter.Emit(ctx, ev); err != nil {
		return fmt.Errorf("emit %s: %w", ev.Kind, err)
	}
	return nil
}

// CreateRoot creates a ledger with no parent.
func (r *Registry) CreateRoot(ctx context.Context, caller address.Address, spec RootSpec) (*Ledger, error) {
	ctrl := spec.Controller
	if ctrl.IsZero() {
		ctrl = caller
	}
	info := spec.Info
	ev := Event{
		Kind:       KindLedgerCreated,
		LedgerID:   r.newID(),
		Block:      r.clock.Current(),
		Caller:     caller,
		Controller: ctrl,
		Enabled:    spec.TransfersEnabled,
		Info:       &info,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.emit(ctx, ev); err != nil {
		return nil, err
	}
	return r.createLocked(ev)
}

// Clone creates a ledger that inherits parentID's history up to spec.ForkBlock.
// Only the parent's controller may clone, and only while cloning is enabled.
func (r *Registry) Clone(ctx context.Context, parentID string, caller address.Address, spec CloneSpec) (*Ledger, error) {
	parent, err := r.Ledger(parentID)
	if err != nil {
		return nil, err
	}

	parent.mu.Lock()
	defer parent.mu.Unlock()

	if !parent.isController(caller) {
		return nil, ErrUnauthorized
	}
	if !parent.cloningEnabled {
		return nil, ErrCloningDisabled
	}
	current := r.clock.Current()
	fork := spec.ForkBlock
	if fork == 0 {
		fork = current
	}
	if fork > current {
		return nil, fmt.Errorf("%w: fork block %d, current block %d", ErrInvalidForkPoint, fork, current)
	}

	ctrl := spec.Controller
	if ctrl.IsZero() {
		ctrl = caller
	}
	info := spec.Info
	ev := Event{
		Kind:       KindCloneCreated,
		LedgerID:   r.newID(),
		Block:      current,
		Caller:     caller,
		Controller: ctrl,
		Enabled:    spec.TransfersEnabled,
		Info:       &info,
		ParentID:   parent.id,
		ForkBlock:  fork,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.emit(ctx, ev); err != nil {
		return nil, err
	}
	return r.createLocked(ev)
}

func (r *Registry) createLocked(ev Event) (*Ledger, error) {
	if _, ok := r.ledgers[ev.LedgerID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrLedgerExists, ev.LedgerID)
	}

	var parent *Ledger
	if ev.Kind == KindCloneCreated {
		p, ok := r.ledgers[ev.ParentID]
		if !ok {
			return nil, fmt.Errorf("%w: parent %s", ErrLedgerNotFound, ev.ParentID)
		}
		parent = p
	}

	l := newLedger(r, ev, parent)
	r.ledgers[l.id] = l
	r.order = append(r.order, l.id)

	r.logger.Info("ledger created",
		zap.String("ledger_id", l.id),
		zap.String("parent_id", ev.ParentID),
		zap.Uint64("fork_block", ev.ForkBlock),
		zap.Uint64("block", ev.Block),
	)
	return l, nil
}

// Ledger returns the ledger with the given ID.
func (r *Registry) Ledger(id string) (*Ledger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.ledgers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLedgerNotFound, id)
	}
	return l, nil
}

// List returns every ledger in creation order.
func (r *Registry) List() []*Ledger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Ledger, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.ledgers[id])
	}
	return out
}

// Children returns the clones whose parent is id, sorted by fork block.
func (r *Registry) Children(id string) []*Ledger {
	var out []*Ledger
	for _, l := range r.List() {
		if l.ParentID() == id {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].forkBlock < out[j].forkBlock })
	return out
}

// Replay applies a previously committed event without authorization, hooks or
// emission. Events must be replayed in the order they were emitted.
func (r *Registry) Replay(ev Event) error {
	switch ev.Kind {
	case KindLedgerCreated, KindCloneCreated:
		r.mu.Lock()
		defer r.mu.Unlock()
		_, err := r.createLocked(ev)
		return err
	}

	l, err := r.Ledger(ev.LedgerID)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.applyLocked(ev)
}
