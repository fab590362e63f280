package rpc_test

import (
	"context"
	"math/big"
	"net"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jmerrifield20/forkledger/internal/clock"
	"github.com/jmerrifield20/forkledger/internal/journal"
	"github.com/jmerrifield20/forkledger/internal/registry/service"
	"github.com/jmerrifield20/forkledger/internal/rpc"
	"github.com/jmerrifield20/forkledger/internal/token"
	"github.com/jmerrifield20/forkledger/pkg/address"
)

var (
	ctrl  = address.FromBytes([]byte{0xc0})
	alice = address.FromBytes([]byte{0x01})
)

// setup starts the query service on an in-memory listener with a ledger in
// which alice received 10 at block 2 and 5 more at block 4.
func setup(t *testing.T) (*grpc.ClientConn, string) {
	t.Helper()
	ctx := context.Background()

	c := clock.NewManual(1)
	svc := service.NewLedgerService(token.NewRegistry(c, zap.NewNop()), journal.NewMemory(), zap.NewNop())
	l, err := svc.CreateRoot(ctx, ctrl, token.RootSpec{TransfersEnabled: true})
	if err != nil {
		t.Fatal(err)
	}
	c.Advance(1)
	if _, err := svc.Mint(ctx, l.ID(), ctrl, alice, big.NewInt(10)); err != nil {
		t.Fatal(err)
	}
	c.Advance(2)
	if _, err := svc.Mint(ctx, l.ID(), ctrl, alice, big.NewInt(5)); err != nil {
		t.Fatal(err)
	}

	lis := bufconn.Listen(1 << 20)
	srv, _ := rpc.NewGRPCServer(svc, zap.NewNop())
	go srv.Serve(lis) //nolint:errcheck
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, l.ID()
}

func TestClient_historicalQueries(t *testing.T) {
	conn, id := setup(t)
	client := rpc.NewClient(conn)
	ctx := context.Background()

	cur, err := client.CurrentBlock(ctx)
	if err != nil || cur != 4 {
		t.Fatalf("CurrentBlock: %d %v", cur, err)
	}

	for _, tc := range []struct {
		block *uint64
		want  int64
		at    uint64
	}{
		{nil, 15, 4},
		{ptr(1), 0, 1},
		{ptr(3), 10, 3},
		{ptr(100), 15, 100},
	} {
		bal, at, err := client.BalanceOfAt(ctx, id, alice, tc.block)
		if err != nil {
			t.Fatalf("BalanceOfAt(%v): %v", tc.block, err)
		}
		if bal.Cmp(big.NewInt(tc.want)) != 0 || at != tc.at {
			t.Errorf("BalanceOfAt(%v): got %s at %d, want %d at %d", tc.block, bal, at, tc.want, tc.at)
		}
	}

	supply, at, err := client.TotalSupplyAt(ctx, id, ptr(2))
	if err != nil || supply.Int64() != 10 || at != 2 {
		t.Errorf("TotalSupplyAt(2): %v at %d, %v", supply, at, err)
	}
}

func TestServer_errors(t *testing.T) {
	conn, id := setup(t)
	client := rpc.NewClient(conn)
	ctx := context.Background()

	_, _, err := client.BalanceOfAt(ctx, "missing", alice, nil)
	if status.Code(err) != codes.NotFound {
		t.Errorf("unknown ledger: got %v", err)
	}

	for name, in := range map[string]map[string]any{
		"no ledger":      {"address": alice.String()},
		"bad address":    {"ledger_id": id, "address": "0xzz"},
		"negative block": {"ledger_id": id, "address": alice.String(), "block": -1},
		"fraction block": {"ledger_id": id, "address": alice.String(), "block": 1.5},
		"bool block":     {"ledger_id": id, "address": alice.String(), "block": true},
	} {
		req, err := structpb.NewStruct(in)
		if err != nil {
			t.Fatal(err)
		}
		err = conn.Invoke(ctx, "/"+rpc.ServiceName+"/BalanceOfAt", req, new(structpb.Struct))
		if status.Code(err) != codes.InvalidArgument {
			t.Errorf("%s: expected InvalidArgument, got %v", name, err)
		}
	}
}

func TestServer_health(t *testing.T) {
	conn, _ := setup(t)
	resp, err := grpc_health_v1.NewHealthClient(conn).Check(context.Background(),
		&grpc_health_v1.HealthCheckRequest{Service: rpc.ServiceName})
	if err != nil {
		t.Fatal(err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("status: %v", resp.GetStatus())
	}
}

func ptr(v uint64) *uint64 { return &v }
