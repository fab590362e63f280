package client

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jmerrifield20/forkledger/pkg/address"
)

const apiPrefix = "/api/v1"

// Ledger describes one root ledger or clone.
type Ledger struct {
	ID               string
	Name             string
	Symbol           string
	Decimals         uint8
	ParentID         string // empty for roots
	ForkBlock        uint64
	CreatedBlock     uint64
	Controller       address.Address
	TransfersEnabled bool
	CloningEnabled   bool
	TotalSupply      *big.Int
}

// IsClone reports whether the ledger was forked from a parent.
func (l *Ledger) IsClone() bool { return l.ParentID != "" }

// Event is a committed ledger state change.
type Event struct {
	Kind       string
	LedgerID   string
	Block      uint64
	Caller     address.Address
	From       address.Address
	To         address.Address
	Spender    address.Address
	Amount     *big.Int // nil for admin events
	Controller address.Address
	Enabled    *bool
}

// CreateLedgerRequest is the input to CreateLedger.
type CreateLedgerRequest struct {
	Name             string
	Symbol           string
	Decimals         uint8
	Controller       address.Address // zero: the caller
	TransfersEnabled bool
}

// CloneRequest is the input to Clone.
type CloneRequest struct {
	Name             string
	Symbol           string
	Decimals         uint8
	ForkBlock        uint64 // 0: the current block
	Controller       address.Address
	TransfersEnabled bool
}

// Token is a caller token issued by the server.
type Token struct {
	Token     string          `json:"token"`
	TokenType string          `json:"token_type"`
	ExpiresAt time.Time       `json:"expires_at"`
	Address   address.Address `json:"address"`
}

// ── Wire types ──────────────────────────────────────────────────────────────

type ledgerWire struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Symbol           string `json:"symbol"`
	Decimals         uint8  `json:"decimals"`
	ParentID         string `json:"parent_id"`
	ForkBlock        uint64 `json:"fork_block"`
	CreatedBlock     uint64 `json:"created_block"`
	Controller       string `json:"controller"`
	TransfersEnabled bool   `json:"transfers_enabled"`
	CloningEnabled   bool   `json:"cloning_enabled"`
	TotalSupply      string `json:"total_supply"`
}

func (w ledgerWire) decode() (*Ledger, error) {
	ctrl, err := optionalAddress(w.Controller)
	if err != nil {
		return nil, fmt.Errorf("ledger %s controller: %w", w.ID, err)
	}
	supply, err := parseAmount(w.TotalSupply)
	if err != nil {
		return nil, fmt.Errorf("ledger %s total supply: %w", w.ID, err)
	}
	return &Ledger{
		ID:               w.ID,
		Name:             w.Name,
		Symbol:           w.Symbol,
		Decimals:         w.Decimals,
		ParentID:         w.ParentID,
		ForkBlock:        w.ForkBlock,
		CreatedBlock:     w.CreatedBlock,
		Controller:       ctrl,
		TransfersEnabled: w.TransfersEnabled,
		CloningEnabled:   w.CloningEnabled,
		TotalSupply:      supply,
	}, nil
}

type eventWire struct {
	Kind       string `json:"kind"`
	LedgerID   string `json:"ledger_id"`
	Block      uint64 `json:"block"`
	Caller     string `json:"caller"`
	From       string `json:"from"`
	To         string `json:"to"`
	Spender    string `json:"spender"`
	Amount     string `json:"amount"`
	Controller string `json:"controller"`
	Enabled    *bool  `json:"enabled"`
}

func (w eventWire) decode() (*Event, error) {
	ev := &Event{Kind: w.Kind, LedgerID: w.LedgerID, Block: w.Block, Enabled: w.Enabled}
	for _, f := range []struct {
		raw string
		dst *address.Address
	}{
		{w.Caller, &ev.Caller},
		{w.From, &ev.From},
		{w.To, &ev.To},
		{w.Spender, &ev.Spender},
		{w.Controller, &ev.Controller},
	} {
		a, err := optionalAddress(f.raw)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", w.Kind, err)
		}
		*f.dst = a
	}
	if w.Amount != "" {
		amt, err := parseAmount(w.Amount)
		if err != nil {
			return nil, fmt.Errorf("event %s amount: %w", w.Kind, err)
		}
		ev.Amount = amt
	}
	return ev, nil
}

func optionalAddress(raw string) (address.Address, error) {
	if raw == "" {
		return address.Zero, nil
	}
	return address.Parse(raw)
}

func parseAmount(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return v, nil
}

func ledgerPath(id string, parts ...string) string {
	p := apiPrefix + "/ledgers/" + url.PathEscape(id)
	for _, s := range parts {
		p += "/" + s
	}
	return p
}

func blockQuery(block *uint64) string {
	if block == nil {
		return ""
	}
	return "?block=" + strconv.FormatUint(*block, 10)
}

func addrOrEmpty(a address.Address) string {
	if a.IsZero() {
		return ""
	}
	return a.String()
}

// ── Auth ────────────────────────────────────────────────────────────────────

// IssueToken asks the server for a caller token bound to addr. It requires
// WithAdminSecret.
func (c *Client) IssueToken(ctx context.Context, addr address.Address) (*Token, error) {
	if c.adminSecret == "" {
		return nil, fmt.Errorf("IssueToken requires an admin secret")
	}
	var tok Token
	h := http.Header{}
	h.Set(AdminSecretHeader, c.adminSecret)
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/auth/token", map[string]string{"address": addr.String()}, &tok, h); err != nil {
		return nil, err
	}
	return &tok, nil
}

// WhoAmI returns the address bound to the client's bearer token.
func (c *Client) WhoAmI(ctx context.Context) (address.Address, error) {
	var out struct {
		Address address.Address `json:"address"`
	}
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/auth/whoami", nil, &out, nil); err != nil {
		return address.Zero, err
	}
	return out.Address, nil
}

// AdminSecretHeader carries the operator secret on admin-only routes.
const AdminSecretHeader = "X-Admin-Secret"

// ── Ledgers ─────────────────────────────────────────────────────────────────

// CreateLedger creates a root ledger.
func (c *Client) CreateLedger(ctx context.Context, req CreateLedgerRequest) (*Ledger, error) {
	body := map[string]any{
		"name":              req.Name,
		"symbol":            req.Symbol,
		"decimals":          req.Decimals,
		"transfers_enabled": req.TransfersEnabled,
	}
	if !req.Controller.IsZero() {
		body["controller"] = req.Controller.String()
	}
	var w ledgerWire
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/ledgers", body, &w, nil); err != nil {
		return nil, err
	}
	return w.decode()
}

// Clone forks parentID. The caller must be the parent's controller.
func (c *Client) Clone(ctx context.Context, parentID string, req CloneRequest) (*Ledger, error) {
	body := map[string]any{
		"name":              req.Name,
		"symbol":            req.Symbol,
		"decimals":          req.Decimals,
		"fork_block":        req.ForkBlock,
		"transfers_enabled": req.TransfersEnabled,
	}
	if !req.Controller.IsZero() {
		body["controller"] = req.Controller.String()
	}
	var w ledgerWire
	if err := c.do(ctx, http.MethodPost, ledgerPath(parentID, "clones"), body, &w, nil); err != nil {
		return nil, err
	}
	return w.decode()
}

// ListLedgers returns every ledger in creation order.
func (c *Client) ListLedgers(ctx context.Context) ([]*Ledger, error) {
	var out struct {
		Ledgers []ledgerWire `json:"ledgers"`
	}
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/ledgers", nil, &out, nil); err != nil {
		return nil, err
	}
	return decodeLedgers(out.Ledgers)
}

// GetLedger returns one ledger.
func (c *Client) GetLedger(ctx context.Context, id string) (*Ledger, error) {
	var w ledgerWire
	if err := c.do(ctx, http.MethodGet, ledgerPath(id), nil, &w, nil); err != nil {
		return nil, err
	}
	return w.decode()
}

// ListClones returns the direct clones of id.
func (c *Client) ListClones(ctx context.Context, id string) ([]*Ledger, error) {
	var out struct {
		Clones []ledgerWire `json:"clones"`
	}
	if err := c.do(ctx, http.MethodGet, ledgerPath(id, "clones"), nil, &out, nil); err != nil {
		return nil, err
	}
	return decodeLedgers(out.Clones)
}

func decodeLedgers(ws []ledgerWire) ([]*Ledger, error) {
	out := make([]*Ledger, 0, len(ws))
	for _, w := range ws {
		l, err := w.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// ── Reads ───────────────────────────────────────────────────────────────────

// BalanceOf returns holder's current balance and the block it was read at.
func (c *Client) BalanceOf(ctx context.Context, id string, holder address.Address) (*big.Int, uint64, error) {
	return c.balance(ctx, id, holder, nil)
}

// BalanceOfAt returns holder's balance at block.
func (c *Client) BalanceOfAt(ctx context.Context, id string, holder address.Address, block uint64) (*big.Int, error) {
	v, _, err := c.balance(ctx, id, holder, &block)
	return v, err
}

func (c *Client) balance(ctx context.Context, id string, holder address.Address, block *uint64) (*big.Int, uint64, error) {
	var out struct {
		Block   uint64 `json:"block"`
		Balance string `json:"balance"`
	}
	path := ledgerPath(id, "balances", holder.String()) + blockQuery(block)
	if err := c.do(ctx, http.MethodGet, path, nil, &out, nil); err != nil {
		return nil, 0, err
	}
	v, err := parseAmount(out.Balance)
	return v, out.Block, err
}

// TotalSupply returns the current supply and the block it was read at.
func (c *Client) TotalSupply(ctx context.Context, id string) (*big.Int, uint64, error) {
	return c.supply(ctx, id, nil)
}

// TotalSupplyAt returns the supply at block.
func (c *Client) TotalSupplyAt(ctx context.Context, id string, block uint64) (*big.Int, error) {
	v, _, err := c.supply(ctx, id, &block)
	return v, err
}

func (c *Client) supply(ctx context.Context, id string, block *uint64) (*big.Int, uint64, error) {
	var out struct {
		Block       uint64 `json:"block"`
		TotalSupply string `json:"total_supply"`
	}
	if err := c.do(ctx, http.MethodGet, ledgerPath(id, "supply")+blockQuery(block), nil, &out, nil); err != nil {
		return nil, 0, err
	}
	v, err := parseAmount(out.TotalSupply)
	return v, out.Block, err
}

// Allowance returns what owner lets spender move.
func (c *Client) Allowance(ctx context.Context, id string, owner, spender address.Address) (*big.Int, error) {
	var out struct {
		Allowance string `json:"allowance"`
	}
	if err := c.do(ctx, http.MethodGet, ledgerPath(id, "allowances", owner.String(), spender.String()), nil, &out, nil); err != nil {
		return nil, err
	}
	return parseAmount(out.Allowance)
}

// CurrentBlock returns the server's current block.
func (c *Client) CurrentBlock(ctx context.Context) (uint64, error) {
	var out struct {
		Block uint64 `json:"block"`
	}
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/clock", nil, &out, nil); err != nil {
		return 0, err
	}
	return out.Block, nil
}

// ── Mutations ───────────────────────────────────────────────────────────────

func (c *Client) event(ctx context.Context, method, path string, body any) (*Event, error) {
	var w eventWire
	if err := c.do(ctx, method, path, body, &w, nil); err != nil {
		return nil, err
	}
	return w.decode()
}

// Transfer moves amount from the caller to to.
func (c *Client) Transfer(ctx context.Context, id string, to address.Address, amount *big.Int) (*Event, error) {
	return c.event(ctx, http.MethodPost, ledgerPath(id, "transfer"), map[string]string{
		"to": to.String(), "amount": amount.String(),
	})
}

// TransferFrom moves amount from from to to using the caller's allowance.
func (c *Client) TransferFrom(ctx context.Context, id string, from, to address.Address, amount *big.Int) (*Event, error) {
	return c.event(ctx, http.MethodPost, ledgerPath(id, "transfer-from"), map[string]string{
		"from": from.String(), "to": to.String(), "amount": amount.String(),
	})
}

// Approve sets spender's allowance over the caller's tokens.
func (c *Client) Approve(ctx context.Context, id string, spender address.Address, amount *big.Int) (*Event, error) {
	return c.event(ctx, http.MethodPost, ledgerPath(id, "approve"), map[string]string{
		"spender": spender.String(), "amount": amount.String(),
	})
}

// Mint creates amount tokens for to. Controller only.
func (c *Client) Mint(ctx context.Context, id string, to address.Address, amount *big.Int) (*Event, error) {
	return c.event(ctx, http.MethodPost, ledgerPath(id, "mint"), map[string]string{
		"to": to.String(), "amount": amount.String(),
	})
}

// Burn destroys amount tokens held by from. Controller only.
func (c *Client) Burn(ctx context.Context, id string, from address.Address, amount *big.Int) (*Event, error) {
	return c.event(ctx, http.MethodPost, ledgerPath(id, "burn"), map[string]string{
		"from": from.String(), "amount": amount.String(),
	})
}

// SetController hands the ledger to next. The zero address leaves it without
// a controller.
func (c *Client) SetController(ctx context.Context, id string, next address.Address) (*Event, error) {
	return c.event(ctx, http.MethodPut, ledgerPath(id, "controller"), map[string]string{
		"controller": next.String(),
	})
}

// EnableTransfers pauses or resumes holder transfers.
func (c *Client) EnableTransfers(ctx context.Context, id string, enabled bool) (*Event, error) {
	return c.event(ctx, http.MethodPut, ledgerPath(id, "transfers"), map[string]bool{"enabled": enabled})
}

// EnableCloning allows or forbids new clones of the ledger.
func (c *Client) EnableCloning(ctx context.Context, id string, enabled bool) (*Event, error) {
	return c.event(ctx, http.MethodPut, ledgerPath(id, "cloning"), map[string]bool{"enabled": enabled})
}

// ── Journal ─────────────────────────────────────────────────────────────────

// JournalEntry is one hash-chained journal record.
type JournalEntry struct {
	Index     int             `json:"index"`
	Timestamp time.Time       `json:"timestamp"`
	LedgerID  string          `json:"ledger_id"`
	Kind      string          `json:"kind"`
	Block     uint64          `json:"block"`
	Data      json.RawMessage `json:"data"`
	DataHash  string          `json:"data_hash"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

// JournalOverview is the chain length and its current root hash.
type JournalOverview struct {
	Entries int    `json:"entries"`
	Root    string `json:"root"`
}

// Journal returns the chain length and root hash.
func (c *Client) Journal(ctx context.Context) (*JournalOverview, error) {
	var out JournalOverview
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/journal", nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyJournal asks the server to walk the chain. A broken chain is reported
// as an error carrying the server's reason.
func (c *Client) VerifyJournal(ctx context.Context) error {
	var out struct {
		Valid bool   `json:"valid"`
		Error string `json:"error"`
	}
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/journal/verify", nil, &out, nil); err != nil {
		return err
	}
	if !out.Valid {
		return fmt.Errorf("journal integrity: %s", out.Error)
	}
	return nil
}

// JournalEntries returns up to limit entries starting at index from.
func (c *Client) JournalEntries(ctx context.Context, from, limit int) ([]*JournalEntry, error) {
	q := url.Values{}
	q.Set("from", strconv.Itoa(from))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Entries []*JournalEntry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/journal/entries?"+q.Encode(), nil, &out, nil); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// JournalEntry returns the entry at idx.
func (c *Client) JournalEntry(ctx context.Context, idx int) (*JournalEntry, error) {
	var out JournalEntry
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/journal/entries/"+strconv.Itoa(idx), nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}
