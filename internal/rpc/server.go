// Package rpc serves historical ledger queries over gRPC.
//
// Messages are google.protobuf.Struct values so the service needs no
// generated code:
//
//	BalanceOfAt   {ledger_id, address, block?} -> {ledger_id, address, block, balance}
//	TotalSupplyAt {ledger_id, block?}          -> {ledger_id, block, total_supply}
//	CurrentBlock  {}                           -> {block}
//
// block may be a number or a decimal string; it defaults to the current block.
// Amounts are decimal strings.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jmerrifield20/forkledger/internal/token"
	"github.com/jmerrifield20/forkledger/pkg/address"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "forkledger.v1.LedgerQuery"

// Querier answers historical reads. *service.LedgerService satisfies this.
type Querier interface {
	BalanceOf(id string, holder address.Address, block *uint64) (*big.Int, error)
	TotalSupply(id string, block *uint64) (*big.Int, error)
	CurrentBlock() uint64
}

// QueryServer is the server API of the LedgerQuery service.
type QueryServer interface {
	BalanceOfAt(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TotalSupplyAt(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CurrentBlock(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes LedgerQuery for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*QueryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "BalanceOfAt", Handler: unary("BalanceOfAt", QueryServer.BalanceOfAt)},
		{MethodName: "TotalSupplyAt", Handler: unary("TotalSupplyAt", QueryServer.TotalSupplyAt)},
		{MethodName: "CurrentBlock", Handler: unary("CurrentBlock", QueryServer.CurrentBlock)},
	},
	Streams: []grpc.StreamDesc{},
}

func unary(method string, call func(QueryServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(QueryServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(QueryServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Server implements QueryServer over a Querier.
type Server struct {
	q      Querier
	logger *zap.Logger
}

// NewServer creates a Server.
func NewServer(q Querier, logger *zap.Logger) *Server {
	return &Server{q: q, logger: logger}
}

// NewGRPCServer returns a grpc.Server with the query service, the standard
// health service and reflection registered.
func NewGRPCServer(q Querier, logger *zap.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(LoggingInterceptor(logger))}, opts...)
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&ServiceDesc, NewServer(q, logger))

	healthSvc := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, healthSvc)
	healthSvc.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	reflection.Register(srv)
	return srv, healthSvc
}

func (s *Server) BalanceOfAt(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ledgerID, err := stringField(in, "ledger_id")
	if err != nil {
		return nil, err
	}
	raw, err := stringField(in, "address")
	if err != nil {
		return nil, err
	}
	holder, err := address.Parse(raw)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	block, err := s.block(in)
	if err != nil {
		return nil, err
	}

	bal, err := s.q.BalanceOf(ledgerID, holder, &block)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"ledger_id": ledgerID,
		"address":   holder.String(),
		"block":     float64(block),
		"balance":   bal.String(),
	})
}

func (s *Server) TotalSupplyAt(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ledgerID, err := stringField(in, "ledger_id")
	if err != nil {
		return nil, err
	}
	block, err := s.block(in)
	if err != nil {
		return nil, err
	}

	supply, err := s.q.TotalSupply(ledgerID, &block)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"ledger_id":    ledgerID,
		"block":        float64(block),
		"total_supply": supply.String(),
	})
}

func (s *Server) CurrentBlock(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"block": float64(s.q.CurrentBlock())})
}

func stringField(in *structpb.Struct, name string) (string, error) {
	v := in.GetFields()[name].GetStringValue()
	if v == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	return v, nil
}

// block reads the optional block field, defaulting to the current block.
func (s *Server) block(in *structpb.Struct) (uint64, error) {
	v, ok := in.GetFields()["block"]
	if !ok {
		return s.q.CurrentBlock(), nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := k.NumberValue
		if n < 0 || n != math.Trunc(n) || n > 1<<53 {
			return 0, status.Errorf(codes.InvalidArgument, "block %v is not a non-negative integer", n)
		}
		return uint64(n), nil
	case *structpb.Value_StringValue:
		b, err := strconv.ParseUint(k.StringValue, 10, 64)
		if err != nil {
			return 0, status.Errorf(codes.InvalidArgument, "block %q is not a non-negative integer", k.StringValue)
		}
		return b, nil
	case *structpb.Value_NullValue:
		return s.q.CurrentBlock(), nil
	default:
		return 0, status.Error(codes.InvalidArgument, "block must be a number or a decimal string")
	}
}

// toStatus maps ledger errors to gRPC status codes.
func toStatus(err error) error {
	var c codes.Code
	switch {
	case errors.Is(err, token.ErrLedgerNotFound):
		c = codes.NotFound
	case errors.Is(err, token.ErrUnauthorized),
		errors.Is(err, token.ErrTransfersDisabled),
		errors.Is(err, token.ErrCloningDisabled):
		c = codes.PermissionDenied
	case errors.Is(err, token.ErrInvalidAmount),
		errors.Is(err, token.ErrInvalidForkPoint):
		c = codes.InvalidArgument
	case errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance),
		errors.Is(err, token.ErrCloneNotActive),
		errors.Is(err, token.ErrStaleBlock):
		c = codes.FailedPrecondition
	case errors.Is(err, token.ErrControllerRejected):
		c = codes.Aborted
	default:
		return status.Error(codes.Internal, fmt.Sprintf("internal error: %v", err))
	}
	return status.Error(c, err.Error())
}

// LoggingInterceptor returns a gRPC unary server interceptor that logs each call.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
		)
		return resp, err
	}
}
