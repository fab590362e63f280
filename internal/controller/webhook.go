package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/forkledger/internal/token"
	"github.com/jmerrifield20/forkledger/internal/webhooks"
	"github.com/jmerrifield20/forkledger/pkg/address"
)

// HookRequest is the body POSTed to a remote controller.
type HookRequest struct {
	Op       string          `json:"op"` // "transfer" or "approve"
	LedgerID string          `json:"ledger_id"`
	From     address.Address `json:"from"`
	To       address.Address `json:"to"`
	Amount   string          `json:"amount"`
}

// HookResponse is what a remote controller answers.
type HookResponse struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// WebhookHook asks a remote controller over HTTP. For approvals From is the
// owner and To the spender.
//
// Responses: 2xx with {"approved": bool} decides; 404 and 501 mean the
// controller does not implement the hook; anything else is an error, which the
// ledger treats as approval.
type WebhookHook struct {
	url        string
	secret     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewWebhookHook creates a hook that POSTs to url, signing bodies with secret.
func NewWebhookHook(url, secret string, logger *zap.Logger) *WebhookHook {
	return &WebhookHook{
		url:        url,
		secret:     secret,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     logger,
	}
}

// SetTimeout bounds each hook call.
func (h *WebhookHook) SetTimeout(d time.Duration) {
	h.httpClient.Timeout = d
}

func (h *WebhookHook) OnTransfer(ctx context.Context, ledgerID string, from, to address.Address, amount *big.Int) (token.Decision, error) {
	return h.ask(ctx, HookRequest{Op: "transfer", LedgerID: ledgerID, From: from, To: to, Amount: amount.String()})
}

func (h *WebhookHook) OnApprove(ctx context.Context, ledgerID string, owner, spender address.Address, amount *big.Int) (token.Decision, error) {
	return h.ask(ctx, HookRequest{Op: "approve", LedgerID: ledgerID, From: owner, To: spender, Amount: amount.String()})
}

func (h *WebhookHook) ask(ctx context.Context, hr HookRequest) (token.Decision, error) {
	body, err := json.Marshal(hr)
	if err != nil {
		return token.NotImplemented, fmt.Errorf("marshal hook request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return token.NotImplemented, fmt.Errorf("build hook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhooks.SignatureHeader, webhooks.Sign(body, h.secret))
	req.Header.Set(webhooks.EventHeader, "hook."+hr.Op)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return token.NotImplemented, fmt.Errorf("call controller: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusNotImplemented:
		return token.NotImplemented, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return token.NotImplemented, fmt.Errorf("controller returned HTTP %d", resp.StatusCode)
	}

	var out HookResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return token.NotImplemented, fmt.Errorf("decode controller response: %w", err)
	}
	if !out.Approved {
		h.logger.Info("controller rejected operation",
			zap.String("op", hr.Op),
			zap.String("ledger_id", hr.LedgerID),
			zap.String("reason", out.Reason),
		)
		return token.Rejected, nil
	}
	return token.Approved, nil
}
