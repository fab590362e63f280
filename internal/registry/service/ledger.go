package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/jmerrifield20/forkledger/internal/clock"
	"github.com/jmerrifield20/forkledger/internal/journal"
	"github.com/jmerrifield20/forkledger/internal/token"
	"github.com/jmerrifield20/forkledger/pkg/address"
)

// Dispatcher fans committed events out to subscribers. *webhooks.Service
// satisfies this interface.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventType string, payload any)
}

// OpRecorder is an optional callback for recording operation outcomes.
// outcome is token.Code of the operation's error.
type OpRecorder func(op, outcome string)

// EventNotification is the webhook payload for one committed event.
type EventNotification struct {
	JournalIndex int         `json:"journal_index"`
	JournalHash  string      `json:"journal_hash"`
	Event        token.Event `json:"event"`
}

// LedgerService ties the token registry to its journal and notification
// side effects. Every committed event is journaled before it is applied.
type LedgerService struct {
	reg        *token.Registry
	journal    journal.Journal
	dispatcher Dispatcher // nil = no webhooks
	onOp       OpRecorder // nil = no metrics
	onAppend   func()     // nil = no metrics
	logger     *zap.Logger
}

// NewLedgerService creates a LedgerService and installs it as reg's emitter.
func NewLedgerService(reg *token.Registry, j journal.Journal, logger *zap.Logger) *LedgerService {
	s := &LedgerService{
		reg:     reg,
		journal: j,
		logger:  logger,
	}
	reg.SetEmitter(token.EmitterFunc(s.emit))
	return s
}

// SetDispatcher configures webhook fan-out.
func (s *LedgerService) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

// SetMetricsRecorder configures the per-operation outcome callback.
func (s *LedgerService) SetMetricsRecorder(fn OpRecorder) {
	s.onOp = fn
}

// SetJournalRecorder configures a callback run after every journal append.
func (s *LedgerService) SetJournalRecorder(fn func()) {
	s.onAppend = fn
}

// Journal returns the underlying event journal.
func (s *LedgerService) Journal() journal.Journal { return s.journal }

// CurrentBlock returns the shared clock's block.
func (s *LedgerService) CurrentBlock() uint64 { return s.reg.Clock().Current() }

func (s *LedgerService) emit(ctx context.Context, ev token.Event) error {
	entry, err := s.journal.Append(ctx, ev.LedgerID, string(ev.Kind), ev.Block, ev)
	if err != nil {
		return fmt.Errorf("journal append: %w", err)
	}
	if s.onAppend != nil {
		s.onAppend()
	}
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, string(ev.Kind), EventNotification{
			JournalIndex: entry.Index,
			JournalHash:  entry.Hash,
			Event:        ev,
		})
	}
	return nil
}

// Restore verifies the journal and replays it into the registry. It returns
// the highest block found; a resumable clock is advanced to it so new writes
// never land before restored history.
func (s *LedgerService) Restore(ctx context.Context) (uint64, error) {
	if err := s.journal.Verify(ctx); err != nil {
		return 0, fmt.Errorf("verify journal: %w", err)
	}
	entries, err := s.journal.Range(ctx, 1, 0)
	if err != nil {
		return 0, fmt.Errorf("read journal: %w", err)
	}

	var last uint64
	for _, e := range entries {
		var ev token.Event
		if err := json.Unmarshal(e.Data, &ev); err != nil {
			return 0, fmt.Errorf("decode journal entry %d: %w", e.Index, err)
		}
		if err := s.reg.Replay(ev); err != nil {
			return 0, fmt.Errorf("replay journal entry %d: %w", e.Index, err)
		}
		last = max(last, ev.Block)
	}

	c := s.reg.Clock()
	if r, ok := c.(clock.Resumable); ok {
		r.AdvanceTo(last)
	}
	if cur := c.Current(); cur < last {
		s.logger.Warn("clock is behind restored history; writes will fail until it catches up",
			zap.Uint64("clock_block", cur),
			zap.Uint64("journal_block", last),
		)
	}

	s.logger.Info("journal restored",
		zap.Int("events", len(entries)),
		zap.Int("ledgers", len(s.reg.List())),
		zap.Uint64("last_block", last),
	)
	return last, nil
}

// ── Ledger lifecycle ────────────────────────────────────────────────────────

// CreateRoot creates a parentless ledger controlled by spec.Controller or,
// when zero, by caller.
func (s *LedgerService) CreateRoot(ctx context.Context, caller address.Address, spec token.RootSpec) (*token.Ledger, error) {
	l, err := s.reg.CreateRoot(ctx, caller, spec)
	s.record("create", "", err)
	return l, err
}

// Clone forks parentID at spec.ForkBlock (0 = now).
func (s *LedgerService) Clone(ctx context.Context, parentID string, caller address.Address, spec token.CloneSpec) (*token.Ledger, error) {
	l, err := s.reg.Clone(ctx, parentID, caller, spec)
	s.record("clone", parentID, err)
	return l, err
}

// Get returns a ledger by ID.
func (s *LedgerService) Get(id string) (*token.Ledger, error) {
	return s.reg.Ledger(id)
}

// List returns every ledger in creation order.
func (s *LedgerService) List() []*token.Ledger {
	return s.reg.List()
}

// Children returns the direct clones of id.
func (s *LedgerService) Children(id string) ([]*token.Ledger, error) {
	if _, err := s.reg.Ledger(id); err != nil {
		return nil, err
	}
	return s.reg.Children(id), nil
}

// ── Reads ───────────────────────────────────────────────────────────────────

// BalanceOf returns holder's balance. A nil block means the current block.
func (s *LedgerService) BalanceOf(id string, holder address.Address, block *uint64) (*big.Int, error) {
	l, err := s.reg.Ledger(id)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return l.BalanceOf(holder), nil
	}
	return l.BalanceOfAt(holder, *block), nil
}

// TotalSupply returns the supply. A nil block means the current block.
func (s *LedgerService) TotalSupply(id string, block *uint64) (*big.Int, error) {
	l, err := s.reg.Ledger(id)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return l.TotalSupply(), nil
	}
	return l.TotalSupplyAt(*block), nil
}

// Allowance returns what owner lets spender move.
func (s *LedgerService) Allowance(id string, owner, spender address.Address) (*big.Int, error) {
	l, err := s.reg.Ledger(id)
	if err != nil {
		return nil, err
	}
	return l.Allowance(owner, spender), nil
}

// ── Mutations ───────────────────────────────────────────────────────────────

func (s *LedgerService) Transfer(ctx context.Context, id string, caller, to address.Address, amount *big.Int) (token.Event, error) {
	return s.mutate("transfer", id, func(l *token.Ledger) (token.Event, error) {
		return l.Transfer(ctx, caller, to, amount)
	})
}

func (s *LedgerService) TransferFrom(ctx context.Context, id string, caller, owner, to address.Address, amount *big.Int) (token.Event, error) {
	return s.mutate("transfer_from", id, func(l *token.Ledger) (token.Event, error) {
		return l.TransferFrom(ctx, caller, owner, to, amount)
	})
}

func (s *LedgerService) Approve(ctx context.Context, id string, caller, spender address.Address, amount *big.Int) (token.Event, error) {
	return s.mutate("approve", id, func(l *token.Ledger) (token.Event, error) {
		return l.Approve(ctx, caller, spender, amount)
	})
}

func (s *LedgerService) Mint(ctx context.Context, id string, caller, to address.Address, amount *big.Int) (token.Event, error) {
	return s.mutate("mint", id, func(l *token.Ledger) (token.Event, error) {
		return l.Mint(ctx, caller, to, amount)
	})
}

func (s *LedgerService) Burn(ctx context.Context, id string, caller, from address.Address, amount *big.Int) (token.Event, error) {
	return s.mutate("burn", id, func(l *token.Ledger) (token.Event, error) {
		return l.Burn(ctx, caller, from, amount)
	})
}

func (s *LedgerService) SetController(ctx context.Context, id string, caller, next address.Address) (token.Event, error) {
	return s.mutate("set_controller", id, func(l *token.Ledger) (token.Event, error) {
		return l.SetController(ctx, caller, next)
	})
}

func (s *LedgerService) EnableTransfers(ctx context.Context, id string, caller address.Address, enabled bool) (token.Event, error) {
	return s.mutate("enable_transfers", id, func(l *token.Ledger) (token.Event, error) {
		return l.EnableTransfers(ctx, caller, enabled)
	})
}

func (s *LedgerService) EnableCloning(ctx context.Context, id string, caller address.Address, enabled bool) (token.Event, error) {
	return s.mutate("enable_cloning", id, func(l *token.Ledger) (token.Event, error) {
		return l.EnableCloning(ctx, caller, enabled)
	})
}

func (s *LedgerService) mutate(op, id string, fn func(*token.Ledger) (token.Event, error)) (token.Event, error) {
	l, err := s.reg.Ledger(id)
	if err != nil {
		s.record(op, id, err)
		return token.Event{}, err
	}
	ev, err := fn(l)
	s.record(op, id, err)
	return ev, err
}

func (s *LedgerService) record(op, ledgerID string, err error) {
	outcome := token.Code(err)
	if s.onOp != nil {
		s.onOp(op, outcome)
	}
	switch outcome {
	case "ok":
		s.logger.Debug("ledger operation", zap.String("op", op), zap.String("ledger_id", ledgerID))
	case "internal":
		s.logger.Error("ledger operation failed",
			zap.String("op", op), zap.String("ledger_id", ledgerID), zap.Error(err))
	default:
		s.logger.Info("ledger operation refused",
			zap.String("op", op), zap.String("ledger_id", ledgerID),
			zap.String("code", outcome), zap.Error(err))
	}
}
