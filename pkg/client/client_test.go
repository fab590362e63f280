package client_test

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/forkledger/internal/clock"
	"github.com/jmerrifield20/forkledger/internal/identity"
	"github.com/jmerrifield20/forkledger/internal/journal"
	"github.com/jmerrifield20/forkledger/internal/registry/handler"
	"github.com/jmerrifield20/forkledger/internal/registry/service"
	"github.com/jmerrifield20/forkledger/internal/token"
	"github.com/jmerrifield20/forkledger/pkg/address"
	"github.com/jmerrifield20/forkledger/pkg/client"
)

const adminSecret = "admin-secret"

var (
	ctrl  = address.FromBytes([]byte{0xc0})
	alice = address.FromBytes([]byte{0x01})
	bob   = address.FromBytes([]byte{0x02})
)

// ── Stub server ─────────────────────────────────────────────────────────────

func stubServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/ledgers/missing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"ledger not found","code":"ledger_not_found"}`))
	})
	mux.HandleFunc("/api/v1/ledgers/plain", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})
	mux.HandleFunc("/api/v1/auth/whoami", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"missing token","code":"unauthorized"}`))
			return
		}
		w.Write([]byte(`{"address":"` + alice.String() + `"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// ── Real server ─────────────────────────────────────────────────────────────

type fixture struct {
	url   string
	clock *clock.Manual
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	km := identity.NewKeyManager("")
	if err := km.LoadOrCreate(); err != nil {
		t.Fatal(err)
	}
	tokens := identity.NewTokenIssuer(km.Key(), "http://ledger.test", time.Hour)

	c := clock.NewManual(1)
	j := journal.NewMemory()
	svc := service.NewLedgerService(token.NewRegistry(c, zap.NewNop()), j, zap.NewNop())

	r := gin.New()
	v1 := r.Group("/api/v1")
	handler.NewLedgerHandler(svc, tokens, zap.NewNop()).Register(v1)
	handler.NewJournalHandler(j, zap.NewNop()).Register(v1)
	handler.NewAuthHandler(tokens, adminSecret, zap.NewNop()).Register(v1)
	handler.NewSystemHandler(svc, nil).Register(v1)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &fixture{url: srv.URL, clock: c}
}

func (f *fixture) clientFor(t *testing.T, addr address.Address) *client.Client {
	t.Helper()
	admin := client.MustNew(f.url, client.WithAdminSecret(adminSecret))
	tok, err := admin.IssueToken(context.Background(), addr)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if tok.Address != addr || tok.TokenType != "Bearer" {
		t.Fatalf("unexpected token %+v", tok)
	}
	return client.MustNew(f.url, client.WithBearerToken(tok.Token))
}

func wantAmount(t *testing.T, want int64, got *big.Int, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("got %s, want %d", got, want)
	}
}

// ── Tests ───────────────────────────────────────────────────────────────────

func TestNew_validation(t *testing.T) {
	if _, err := client.New("not a url"); err == nil {
		t.Error("expected error for URL without scheme")
	}
	if _, err := client.New("http://localhost", client.WithTimeout(0)); err == nil {
		t.Error("expected error for zero timeout")
	}
	if _, err := client.New("http://localhost", client.WithHTTPClient(nil)); err == nil {
		t.Error("expected error for nil http client")
	}
	if _, err := client.New("http://localhost:8080/", client.WithTimeout(time.Second)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAPIError_decodesCode(t *testing.T) {
	srv := stubServer(t)
	c := client.MustNew(srv.URL)

	_, err := c.GetLedger(context.Background(), "missing")
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T %v", err, err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "ledger_not_found" {
		t.Errorf("unexpected error %+v", apiErr)
	}
	if !client.IsCode(err, "ledger_not_found") || client.IsCode(err, "unauthorized") {
		t.Error("IsCode mismatch")
	}

	_, err = c.GetLedger(context.Background(), "plain")
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway || apiErr.Message != "upstream exploded" {
		t.Errorf("non-JSON body should become the message: %+v", apiErr)
	}
}

func TestBearerToken_sent(t *testing.T) {
	srv := stubServer(t)

	if _, err := client.MustNew(srv.URL).WhoAmI(context.Background()); !client.IsCode(err, "unauthorized") {
		t.Errorf("expected unauthorized without a token, got %v", err)
	}
	got, err := client.MustNew(srv.URL, client.WithBearerToken("tok-123")).WhoAmI(context.Background())
	if err != nil || got != alice {
		t.Errorf("WhoAmI: got %s, %v", got, err)
	}
}

func TestIssueToken_requiresAdminSecret(t *testing.T) {
	c := client.MustNew("http://localhost:1")
	if _, err := c.IssueToken(context.Background(), alice); err == nil {
		t.Error("expected error without admin secret")
	}
}

func TestTokenFile_roundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds", "token.json")
	tok := &client.Token{Token: "tok-123", TokenType: "Bearer", ExpiresAt: time.Now().Add(time.Hour), Address: alice}
	if err := client.SaveToken(path, tok); err != nil {
		t.Fatal(err)
	}
	loaded, err := client.LoadToken(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Token != tok.Token || loaded.Address != alice {
		t.Errorf("unexpected token %+v", loaded)
	}

	srv := stubServer(t)
	c, err := client.New(srv.URL, client.WithTokenFile(path))
	if err != nil {
		t.Fatal(err)
	}
	if got, err := c.WhoAmI(context.Background()); err != nil || got != alice {
		t.Errorf("WhoAmI via token file: %s, %v", got, err)
	}

	expired := filepath.Join(t.TempDir(), "old.json")
	client.SaveToken(expired, &client.Token{Token: "x", ExpiresAt: time.Now().Add(-time.Minute)})
	if _, err := client.LoadToken(expired); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestClient_endToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asCtrl := f.clientFor(t, ctrl)
	asAlice := f.clientFor(t, alice)
	asBob := f.clientFor(t, bob)

	root, err := asCtrl.CreateLedger(ctx, client.CreateLedgerRequest{Name: "Gold", Symbol: "GLD", Decimals: 2, TransfersEnabled: true})
	if err != nil {
		t.Fatalf("CreateLedger: %v", err)
	}
	if root.Controller != ctrl || root.IsClone() || root.TotalSupply.Sign() != 0 || !root.CloningEnabled {
		t.Fatalf("unexpected root %+v", root)
	}

	f.clock.Advance(1)
	ev, err := asCtrl.Mint(ctx, root.ID, alice, big.NewInt(100))
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if ev.Kind != "mint" || ev.Block != 2 || ev.To != alice || ev.Amount.Int64() != 100 {
		t.Errorf("unexpected mint event %+v", ev)
	}

	f.clock.Advance(1)
	if _, err := asAlice.Transfer(ctx, root.ID, bob, big.NewInt(40)); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	bal, block, err := asAlice.BalanceOf(ctx, root.ID, alice)
	wantAmount(t, 60, bal, err)
	if block != 3 {
		t.Errorf("read block: got %d, want 3", block)
	}
	bal, err = asAlice.BalanceOfAt(ctx, root.ID, alice, 2)
	wantAmount(t, 100, bal, err)
	supply, _, err := asBob.TotalSupply(ctx, root.ID)
	wantAmount(t, 100, supply, err)
	supply, err = asBob.TotalSupplyAt(ctx, root.ID, 1)
	wantAmount(t, 0, supply, err)

	if _, err := asBob.Transfer(ctx, root.ID, alice, big.NewInt(1000)); !client.IsCode(err, "insufficient_balance") {
		t.Errorf("expected insufficient_balance, got %v", err)
	}
	if _, err := asBob.Mint(ctx, root.ID, bob, big.NewInt(1)); !client.IsCode(err, "unauthorized") {
		t.Errorf("expected unauthorized, got %v", err)
	}

	if _, err := asAlice.Approve(ctx, root.ID, bob, big.NewInt(10)); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if _, err := asBob.TransferFrom(ctx, root.ID, alice, bob, big.NewInt(4)); err != nil {
		t.Fatalf("TransferFrom: %v", err)
	}
	left, err := asBob.Allowance(ctx, root.ID, alice, bob)
	wantAmount(t, 6, left, err)

	clone, err := asCtrl.Clone(ctx, root.ID, client.CloneRequest{Name: "Gold fork", Symbol: "GLDF", ForkBlock: 2, TransfersEnabled: true})
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if clone.ParentID != root.ID || clone.ForkBlock != 2 {
		t.Fatalf("unexpected clone %+v", clone)
	}
	bal, _, err = asAlice.BalanceOf(ctx, clone.ID, alice)
	wantAmount(t, 100, bal, err)

	clones, err := asAlice.ListClones(ctx, root.ID)
	if err != nil || len(clones) != 1 || clones[0].ID != clone.ID {
		t.Fatalf("ListClones: %v %v", clones, err)
	}
	all, err := asAlice.ListLedgers(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("ListLedgers: %d %v", len(all), err)
	}

	ev, err = asCtrl.EnableTransfers(ctx, root.ID, false)
	if err != nil || ev.Enabled == nil || *ev.Enabled {
		t.Fatalf("EnableTransfers: %+v %v", ev, err)
	}
	if _, err := asAlice.Transfer(ctx, root.ID, bob, big.NewInt(1)); !client.IsCode(err, "transfers_disabled") {
		t.Errorf("expected transfers_disabled, got %v", err)
	}
	ev, err = asCtrl.SetController(ctx, root.ID, bob)
	if err != nil || ev.Controller != bob {
		t.Fatalf("SetController: %+v %v", ev, err)
	}
	got, err := asCtrl.GetLedger(ctx, root.ID)
	if err != nil || got.Controller != bob || got.TransfersEnabled {
		t.Fatalf("GetLedger after admin changes: %+v %v", got, err)
	}

	now, err := asAlice.CurrentBlock(ctx)
	if err != nil || now != 3 {
		t.Errorf("CurrentBlock: %d %v", now, err)
	}

	overview, err := asAlice.Journal(ctx)
	if err != nil {
		t.Fatalf("Journal: %v", err)
	}
	if overview.Entries < 8 || len(overview.Root) != 64 {
		t.Errorf("unexpected overview %+v", overview)
	}
	if err := asAlice.VerifyJournal(ctx); err != nil {
		t.Errorf("VerifyJournal: %v", err)
	}
	entries, err := asAlice.JournalEntries(ctx, 1, 2)
	if err != nil || len(entries) != 2 || entries[0].Kind != "ledger.created" || entries[1].Kind != "mint" {
		t.Fatalf("JournalEntries: %+v %v", entries, err)
	}
	entry, err := asAlice.JournalEntry(ctx, 2)
	if err != nil || entry.Hash != entries[1].Hash {
		t.Errorf("JournalEntry: %+v %v", entry, err)
	}
	if _, err := asAlice.JournalEntry(ctx, 9999); !client.IsCode(err, "entry_not_found") {
		t.Errorf("expected entry_not_found, got %v", err)
	}
}
