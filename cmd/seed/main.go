// Command seed populates a running ledgerd with demo ledgers for development:
// a root token with a few holders, a clone forked from it and a paused
// ledger. Every run creates new ledgers; use the memory journal to start over.
//
// Usage:
//
//	LEDGERD_ADMIN_SECRET=... go run ./cmd/seed
//	go run ./cmd/seed -server http://localhost:8080 -admin-secret ...
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/forkledger/pkg/address"
	"github.com/jmerrifield20/forkledger/pkg/client"
)

type account struct {
	Name    string
	Address address.Address
}

var (
	treasury = account{"treasury", address.MustParse("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")}
	alice    = account{"alice", address.MustParse("0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359")}
	bob      = account{"bob", address.MustParse("0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB")}
	carol    = account{"carol", address.MustParse("0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb")}
)

func main() {
	server := flag.String("server", envOr("LEDGERD_URL", "http://localhost:8080"), "ledgerd base URL")
	secret := flag.String("admin-secret", os.Getenv("LEDGERD_ADMIN_SECRET"), "ledgerd admin secret")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync() //nolint:errcheck

	if err := run(context.Background(), *server, *secret, logger); err != nil {
		logger.Fatal("seed failed", zap.Error(err))
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func run(ctx context.Context, server, secret string, logger *zap.Logger) error {
	if secret == "" {
		return errors.New("admin secret is required")
	}
	admin, err := client.New(server, client.WithAdminSecret(secret))
	if err != nil {
		return err
	}

	clients := make(map[string]*client.Client)
	for _, a := range []account{treasury, alice, bob, carol} {
		tok, err := admin.IssueToken(ctx, a.Address)
		if err != nil {
			return fmt.Errorf("issue token for %s: %w", a.Name, err)
		}
		clients[a.Name] = client.MustNew(server, client.WithBearerToken(tok.Token))
	}
	t := clients[treasury.Name]

	// ── Root ledger ──────────────────────────────────────────────────────────
	root, err := t.CreateLedger(ctx, client.CreateLedgerRequest{
		Name: "Governance Token", Symbol: "GOV", Decimals: 18, TransfersEnabled: true,
	})
	if err != nil {
		return fmt.Errorf("create root: %w", err)
	}
	logger.Info("created ledger", zap.String("id", root.ID), zap.String("symbol", root.Symbol))

	if err := waitPast(ctx, t, root.CreatedBlock); err != nil {
		return err
	}
	grants := []struct {
		to     account
		amount int64
	}{
		{alice, 1_000_000},
		{bob, 250_000},
		{carol, 50_000},
	}
	for _, g := range grants {
		if _, err := t.Mint(ctx, root.ID, g.to.Address, big.NewInt(g.amount)); err != nil {
			return fmt.Errorf("mint to %s: %w", g.to.Name, err)
		}
		logger.Info("minted", zap.String("to", g.to.Name), zap.Int64("amount", g.amount))
	}
	if _, err := clients[alice.Name].Transfer(ctx, root.ID, bob.Address, big.NewInt(100_000)); err != nil {
		return fmt.Errorf("alice → bob: %w", err)
	}
	if _, err := clients[bob.Name].Approve(ctx, root.ID, carol.Address, big.NewInt(25_000)); err != nil {
		return fmt.Errorf("bob approves carol: %w", err)
	}

	// ── Clone ────────────────────────────────────────────────────────────────
	snapshot, err := t.CurrentBlock(ctx)
	if err != nil {
		return err
	}
	if err := waitPast(ctx, t, snapshot); err != nil {
		return err
	}
	clone, err := t.Clone(ctx, root.ID, client.CloneRequest{
		Name: "Governance Token v2", Symbol: "GOV2", Decimals: 18, ForkBlock: snapshot, TransfersEnabled: true,
	})
	if err != nil {
		return fmt.Errorf("clone root: %w", err)
	}
	logger.Info("cloned ledger", zap.String("id", clone.ID), zap.Uint64("fork_block", snapshot))

	// Diverge: history keeps moving on the root while the clone starts fresh.
	if _, err := clients[bob.Name].Transfer(ctx, root.ID, alice.Address, big.NewInt(5_000)); err != nil {
		return fmt.Errorf("bob → alice on root: %w", err)
	}
	if _, err := t.Burn(ctx, clone.ID, carol.Address, big.NewInt(50_000)); err != nil {
		return fmt.Errorf("burn on clone: %w", err)
	}

	// ── Paused ledger ────────────────────────────────────────────────────────
	paused, err := t.CreateLedger(ctx, client.CreateLedgerRequest{Name: "Locked Points", Symbol: "LOCK", Decimals: 0})
	if err != nil {
		return fmt.Errorf("create paused ledger: %w", err)
	}
	if err := waitPast(ctx, t, paused.CreatedBlock); err != nil {
		return err
	}
	if _, err := t.Mint(ctx, paused.ID, alice.Address, big.NewInt(10)); err != nil {
		return fmt.Errorf("mint locked points: %w", err)
	}
	if _, err := t.EnableCloning(ctx, paused.ID, false); err != nil {
		return fmt.Errorf("disable cloning: %w", err)
	}

	for _, id := range []string{root.ID, clone.ID, paused.ID} {
		supply, block, err := t.TotalSupply(ctx, id)
		if err != nil {
			return err
		}
		logger.Info("ledger ready", zap.String("id", id), zap.String("supply", supply.String()), zap.Uint64("block", block))
	}
	return nil
}

// waitPast blocks until the server's clock moves beyond block.
func waitPast(ctx context.Context, c *client.Client, block uint64) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	for {
		cur, err := c.CurrentBlock(ctx)
		if err != nil {
			return err
		}
		if cur > block {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("clock stuck at block %d: %w", cur, ctx.Err())
		case <-time.After(250 * time.Millisecond):
		}
	}
}
