package rpc

import (
	"context"
	"fmt"
	"math/big"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jmerrifield20/forkledger/pkg/address"
)

// Client calls the LedgerQuery service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// BalanceOfAt returns holder's balance and the block it was read at. A nil
// block reads at the server's current block.
func (c *Client) BalanceOfAt(ctx context.Context, ledgerID string, holder address.Address, block *uint64) (*big.Int, uint64, error) {
	out, err := c.call(ctx, "BalanceOfAt", request(map[string]string{
		"ledger_id": ledgerID,
		"address":   holder.String(),
	}, block))
	if err != nil {
		return nil, 0, err
	}
	bal, err := amountField(out, "balance")
	return bal, uint64(out.GetFields()["block"].GetNumberValue()), err
}

// TotalSupplyAt returns the supply and the block it was read at.
func (c *Client) TotalSupplyAt(ctx context.Context, ledgerID string, block *uint64) (*big.Int, uint64, error) {
	out, err := c.call(ctx, "TotalSupplyAt", request(map[string]string{"ledger_id": ledgerID}, block))
	if err != nil {
		return nil, 0, err
	}
	supply, err := amountField(out, "total_supply")
	return supply, uint64(out.GetFields()["block"].GetNumberValue()), err
}

// CurrentBlock returns the server's current block.
func (c *Client) CurrentBlock(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, "CurrentBlock", &structpb.Struct{})
	if err != nil {
		return 0, err
	}
	return uint64(out.GetFields()["block"].GetNumberValue()), nil
}

func (c *Client) call(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// request builds the request struct; blocks travel as decimal strings so
// values above 2^53 survive.
func request(fields map[string]string, block *uint64) *structpb.Struct {
	s := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(fields)+1)}
	for k, v := range fields {
		s.Fields[k] = structpb.NewStringValue(v)
	}
	if block != nil {
		s.Fields["block"] = structpb.NewStringValue(fmt.Sprint(*block))
	}
	return s
}

func amountField(out *structpb.Struct, name string) (*big.Int, error) {
	raw := out.GetFields()[name].GetStringValue()
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("rpc: malformed %s %q", name, raw)
	}
	return v, nil
}
