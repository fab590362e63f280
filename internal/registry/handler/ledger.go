package handler

import (
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/forkledger/internal/identity"
	"github.com/jmerrifield20/forkledger/internal/registry/service"
	"github.com/jmerrifield20/forkledger/internal/token"
	"github.com/jmerrifield20/forkledger/pkg/address"
)

// LedgerHandler serves the token ledger API. Reads are public; every write
// requires a caller token.
type LedgerHandler struct {
	svc    *service.LedgerService
	tokens *identity.TokenIssuer
	logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(svc *service.LedgerService, tokens *identity.TokenIssuer, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{svc: svc, tokens: tokens, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	auth := identity.RequireCaller(h.tokens)

	l := rg.Group("/ledgers")
	{
		l.GET("", h.ListLedgers)
		l.POST("", auth, h.CreateLedger)
		l.GET("/:id", h.GetLedger)
		l.GET("/:id/clones", h.ListClones)
		l.GET("/:id/balances/:address", h.BalanceOf)
		l.GET("/:id/supply", h.TotalSupply)
		l.GET("/:id/allowances/:owner/:spender", h.Allowance)

		l.POST("/:id/transfer", auth, h.Transfer)
		l.POST("/:id/transfer-from", auth, h.TransferFrom)
		l.POST("/:id/approve", auth, h.Approve)
		l.POST("/:id/mint", auth, h.Mint)
		l.POST("/:id/burn", auth, h.Burn)
		l.POST("/:id/clones", auth, h.CloneLedger)

		l.PUT("/:id/controller", auth, h.SetController)
		l.PUT("/:id/transfers", auth, h.EnableTransfers)
		l.PUT("/:id/cloning", auth, h.EnableCloning)
	}
}

// ─── Request / Response types ────────────────────────────────────────────────

type createLedgerRequest struct {
	Name             string `json:"name"     binding:"required"`
	Symbol           string `json:"symbol"   binding:"required"`
	Decimals         uint8  `json:"decimals"`
	Controller       string `json:"controller"`
	TransfersEnabled bool   `json:"transfers_enabled"`
}

type cloneLedgerRequest struct {
	Name             string `json:"name"     binding:"required"`
	Symbol           string `json:"symbol"   binding:"required"`
	Decimals         uint8  `json:"decimals"`
	ForkBlock        uint64 `json:"fork_block"`
	Controller       string `json:"controller"`
	TransfersEnabled bool   `json:"transfers_enabled"`
}

type transferRequest struct {
	To     string `json:"to"     binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

type transferFromRequest struct {
	From   string `json:"from"   binding:"required"`
	To     string `json:"to"     binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

type approveRequest struct {
	Spender string `json:"spender" binding:"required"`
	Amount  string `json:"amount"  binding:"required"`
}

type mintRequest struct {
	To     string `json:"to"     binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

type burnRequest struct {
	From   string `json:"from"   binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

type controllerRequest struct {
	Controller string `json:"controller" binding:"required"`
}

type toggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// LedgerResponse is the JSON view of a ledger. Amounts are base-10 strings.
type LedgerResponse struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Symbol           string `json:"symbol"`
	Decimals         uint8  `json:"decimals"`
	ParentID         string `json:"parent_id,omitempty"`
	ForkBlock        uint64 `json:"fork_block,omitempty"`
	CreatedBlock     uint64 `json:"created_block"`
	Controller       string `json:"controller"`
	TransfersEnabled bool   `json:"transfers_enabled"`
	CloningEnabled   bool   `json:"cloning_enabled"`
	TotalSupply      string `json:"total_supply"`
}

// EventResponse is the JSON view of a committed event.
type EventResponse struct {
	Kind       string `json:"kind"`
	LedgerID   string `json:"ledger_id"`
	Block      uint64 `json:"block"`
	Caller     string `json:"caller"`
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	Spender    string `json:"spender,omitempty"`
	Amount     string `json:"amount,omitempty"`
	Controller string `json:"controller,omitempty"`
	Enabled    *bool  `json:"enabled,omitempty"`
}

func toLedgerResponse(l *token.Ledger) LedgerResponse {
	s := l.Summary()
	return LedgerResponse{
		ID:               s.ID,
		Name:             s.Info.Name,
		Symbol:           s.Info.Symbol,
		Decimals:         s.Info.Decimals,
		ParentID:         s.ParentID,
		ForkBlock:        s.ForkBlock,
		CreatedBlock:     s.CreatedBlock,
		Controller:       s.Controller.String(),
		TransfersEnabled: s.TransfersEnabled,
		CloningEnabled:   s.CloningEnabled,
		TotalSupply:      s.TotalSupply.String(),
	}
}

func toEventResponse(ev token.Event) EventResponse {
	opt := func(a address.Address) string {
		if a.IsZero() {
			return ""
		}
		return a.String()
	}
	resp := EventResponse{
		Kind:     string(ev.Kind),
		LedgerID: ev.LedgerID,
		Block:    ev.Block,
		Caller:   ev.Caller.String(),
		From:     opt(ev.From),
		To:       opt(ev.To),
		Spender:  opt(ev.Spender),
	}
	if ev.Amount != nil {
		resp.Amount = ev.Amount.String()
	}
	switch ev.Kind {
	case token.KindControllerChanged:
		resp.Controller = ev.Controller.String()
	case token.KindTransfersToggled, token.KindCloningToggled:
		enabled := ev.Enabled
		resp.Enabled = &enabled
	}
	return resp
}

// ─── Parsing helpers ─────────────────────────────────────────────────────────

func parseAddress(field, raw string) (address.Address, error) {
	a, err := address.Parse(raw)
	if err != nil {
		return address.Zero, fmt.Errorf("%s: %w", field, err)
	}
	return a, nil
}

// parseOptionalAddress returns the zero address for empty input.
func parseOptionalAddress(field, raw string) (address.Address, error) {
	if raw == "" {
		return address.Zero, nil
	}
	return parseAddress(field, raw)
}

func parseAmount(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", token.ErrInvalidAmount, raw)
	}
	return v, nil
}

// blockParam returns the ?block= query value, defaulting to the current block.
func (h *LedgerHandler) blockParam(c *gin.Context) (uint64, bool) {
	raw := c.Query("block")
	if raw == "" {
		return h.svc.CurrentBlock(), true
	}
	b, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		badRequest(c, "block must be a non-negative integer")
		return 0, false
	}
	return b, true
}

func caller(c *gin.Context) address.Address {
	a, _ := identity.CallerFromCtx(c)
	return a
}

// ─── Queries ─────────────────────────────────────────────────────────────────

// ListLedgers handles GET /ledgers.
func (h *LedgerHandler) ListLedgers(c *gin.Context) {
	ledgers := h.svc.List()
	out := make([]LedgerResponse, 0, len(ledgers))
	for _, l := range ledgers {
		out = append(out, toLedgerResponse(l))
	}
	c.JSON(http.StatusOK, gin.H{"ledgers": out, "count": len(out)})
}

// GetLedger handles GET /ledgers/:id.
func (h *LedgerHandler) GetLedger(c *gin.Context) {
	l, err := h.svc.Get(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toLedgerResponse(l))
}

// ListClones handles GET /ledgers/:id/clones: direct clones ordered by fork block.
func (h *LedgerHandler) ListClones(c *gin.Context) {
	clones, err := h.svc.Children(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	out := make([]LedgerResponse, 0, len(clones))
	for _, l := range clones {
		out = append(out, toLedgerResponse(l))
	}
	c.JSON(http.StatusOK, gin.H{"clones": out, "count": len(out)})
}

// BalanceOf handles GET /ledgers/:id/balances/:address[?block=].
func (h *LedgerHandler) BalanceOf(c *gin.Context) {
	holder, err := parseAddress("address", c.Param("address"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	block, ok := h.blockParam(c)
	if !ok {
		return
	}
	bal, err := h.svc.BalanceOf(c.Param("id"), holder, &block)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ledger_id": c.Param("id"),
		"address":   holder.String(),
		"block":     block,
		"balance":   bal.String(),
	})
}

// TotalSupply handles GET /ledgers/:id/supply[?block=].
func (h *LedgerHandler) TotalSupply(c *gin.Context) {
	block, ok := h.blockParam(c)
	if !ok {
		return
	}
	supply, err := h.svc.TotalSupply(c.Param("id"), &block)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ledger_id":    c.Param("id"),
		"block":        block,
		"total_supply": supply.String(),
	})
}

// Allowance handles GET /ledgers/:id/allowances/:owner/:spender.
func (h *LedgerHandler) Allowance(c *gin.Context) {
	owner, err := parseAddress("owner", c.Param("owner"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	spender, err := parseAddress("spender", c.Param("spender"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	v, err := h.svc.Allowance(c.Param("id"), owner, spender)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ledger_id": c.Param("id"),
		"owner":     owner.String(),
		"spender":   spender.String(),
		"allowance": v.String(),
	})
}

// ─── Lifecycle ───────────────────────────────────────────────────────────────

// CreateLedger handles POST /ledgers.
func (h *LedgerHandler) CreateLedger(c *gin.Context) {
	var req createLedgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctrl, err := parseOptionalAddress("controller", req.Controller)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	l, err := h.svc.CreateRoot(c.Request.Context(), caller(c), token.RootSpec{
		Info:             token.Info{Name: req.Name, Symbol: req.Symbol, Decimals: req.Decimals},
		Controller:       ctrl,
		TransfersEnabled: req.TransfersEnabled,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, toLedgerResponse(l))
}

// CloneLedger handles POST /ledgers/:id/clones. fork_block 0 forks at the
// current block.
func (h *LedgerHandler) CloneLedger(c *gin.Context) {
	var req cloneLedgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctrl, err := parseOptionalAddress("controller", req.Controller)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	l, err := h.svc.Clone(c.Request.Context(), c.Param("id"), caller(c), token.CloneSpec{
		Info:             token.Info{Name: req.Name, Symbol: req.Symbol, Decimals: req.Decimals},
		ForkBlock:        req.ForkBlock,
		Controller:       ctrl,
		TransfersEnabled: req.TransfersEnabled,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, toLedgerResponse(l))
}

// ─── Mutations ───────────────────────────────────────────────────────────────

// Transfer handles POST /ledgers/:id/transfer.
func (h *LedgerHandler) Transfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.respondEvent(c)(h.svc.Transfer(c.Request.Context(), c.Param("id"), caller(c), to, amount))
}

// TransferFrom handles POST /ledgers/:id/transfer-from.
func (h *LedgerHandler) TransferFrom(c *gin.Context) {
	var req transferFromRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	from, err := parseAddress("from", req.From)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.respondEvent(c)(h.svc.TransferFrom(c.Request.Context(), c.Param("id"), caller(c), from, to, amount))
}

// Approve handles POST /ledgers/:id/approve.
func (h *LedgerHandler) Approve(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	spender, err := parseAddress("spender", req.Spender)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.respondEvent(c)(h.svc.Approve(c.Request.Context(), c.Param("id"), caller(c), spender, amount))
}

// Mint handles POST /ledgers/:id/mint.
func (h *LedgerHandler) Mint(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.respondEvent(c)(h.svc.Mint(c.Request.Context(), c.Param("id"), caller(c), to, amount))
}

// Burn handles POST /ledgers/:id/burn.
func (h *LedgerHandler) Burn(c *gin.Context) {
	var req burnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	from, err := parseAddress("from", req.From)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.respondEvent(c)(h.svc.Burn(c.Request.Context(), c.Param("id"), caller(c), from, amount))
}

// SetController handles PUT /ledgers/:id/controller. The zero address
// disables every controller-gated operation.
func (h *LedgerHandler) SetController(c *gin.Context) {
	var req controllerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	next, err := parseAddress("controller", req.Controller)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	h.respondEvent(c)(h.svc.SetController(c.Request.Context(), c.Param("id"), caller(c), next))
}

// EnableTransfers handles PUT /ledgers/:id/transfers.
func (h *LedgerHandler) EnableTransfers(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.respondEvent(c)(h.svc.EnableTransfers(c.Request.Context(), c.Param("id"), caller(c), *req.Enabled))
}

// EnableCloning handles PUT /ledgers/:id/cloning.
func (h *LedgerHandler) EnableCloning(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.respondEvent(c)(h.svc.EnableCloning(c.Request.Context(), c.Param("id"), caller(c), *req.Enabled))
}

func (h *LedgerHandler) respondEvent(c *gin.Context) func(token.Event, error) {
	return func(ev token.Event, err error) {
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, toEventResponse(ev))
	}
}
