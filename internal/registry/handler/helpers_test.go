package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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
)

const testAdminSecret = "admin-secret"

var (
	ctrl  = address.FromBytes([]byte{0xc0})
	alice = address.FromBytes([]byte{0x01})
	bob   = address.FromBytes([]byte{0x02})
)

type testAPI struct {
	router  *gin.Engine
	tokens  *identity.TokenIssuer
	clock   *clock.Manual
	journal *journal.MemoryJournal
	svc     *service.LedgerService
}

func newTestAPI(t *testing.T) *testAPI {
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
	handler.NewAuthHandler(tokens, testAdminSecret, zap.NewNop()).Register(v1)
	sys := handler.NewSystemHandler(svc, nil)
	sys.Register(v1)
	sys.RegisterProbes(r)

	return &testAPI{router: r, tokens: tokens, clock: c, journal: j, svc: svc}
}

// do sends a JSON request, authenticated as caller when non-nil.
func (a *testAPI) do(t *testing.T, method, path string, caller *address.Address, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != nil {
		tok, _, err := a.tokens.Issue(*caller)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) createLedger(t *testing.T, transfers bool) string {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/v1/ledgers", &ctrl, map[string]any{
		"name": "MiniMe Test Token", "symbol": "MMT", "decimals": 18, "transfers_enabled": transfers,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create ledger: %d %s", w.Code, w.Body.String())
	}
	var resp handler.LedgerResponse
	decode(t, w, &resp)
	return resp.ID
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

func ptr(a address.Address) *address.Address { return &a }
