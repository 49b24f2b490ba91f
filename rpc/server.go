package rpc

import (
	"context"
	"time"

	"github.com/TradeNexus/bitmex-websocket/domain"
	"github.com/TradeNexus/bitmex-websocket/usecase"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "bitmex.realtime.TableService"

// TableServiceServer serves the mirrored tables. Requests and responses are protobuf well
// known types so no generated code is needed on either side.
type TableServiceServer interface {
	// GetTable takes {"symbol", "table"} and returns the rows.
	GetTable(context.Context, *structpb.Struct) (*structpb.ListValue, error)
	ListTables(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error)
	// GetOrderBook takes {"symbol", "depth"}.
	GetOrderBook(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetState(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
}

var TableServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*TableServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetTable",
			Handler:    unaryHandler("GetTable", TableServiceServer.GetTable),
		},
		{
			MethodName: "ListTables",
			Handler:    unaryHandler("ListTables", TableServiceServer.ListTables),
		},
		{
			MethodName: "GetOrderBook",
			Handler:    unaryHandler("GetOrderBook", TableServiceServer.GetOrderBook),
		},
		{
			MethodName: "GetState",
			Handler:    unaryHandler("GetState", TableServiceServer.GetState),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bitmex/realtime/table_service.proto",
}

func unaryHandler[Req, Resp any](method string, call func(TableServiceServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TableServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + serviceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TableServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type Server struct {
	resolver          domain.StreamResolver
	orderbookSnapshot *usecase.OrderBookSnapshotUseCase
	validationService *ValidationService
	logger            *zap.Logger
}

func NewServer(resolver domain.StreamResolver, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		resolver:          resolver,
		orderbookSnapshot: usecase.NewOrderBookSnapshotUseCase(resolver, logger),
		validationService: NewValidationService(&ValidationServiceConfig{
			AvailableSymbols: resolver.Symbols(),
		}),
		logger: logger.Named("rpc"),
	}
}

func (s *Server) Register(registrar grpc.ServiceRegistrar) {
	registrar.RegisterService(&TableServiceDesc, s)
}

// LoggingInterceptor logs every unary call with its duration and status code.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
			zap.Stringer("code", status.Code(err)),
		}
		if err != nil && status.Code(err) == codes.Internal {
			logger.Error("rpc failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("rpc", fields...)
		}
		return resp, err
	}
}

// TableServiceClient calls a TableService.
type TableServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewTableServiceClient(cc grpc.ClientConnInterface) *TableServiceClient {
	return &TableServiceClient{cc: cc}
}

func (c *TableServiceClient) GetTable(ctx context.Context, symbol, table string, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	in, err := structpb.NewStruct(map[string]any{"symbol": symbol, "table": table})
	if err != nil {
		return nil, err
	}
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/GetTable", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TableServiceClient) ListTables(ctx context.Context, symbol string, opts ...grpc.CallOption) ([]string, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/ListTables", wrapperspb.String(symbol), out, opts...); err != nil {
		return nil, err
	}

	tables := make([]string, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		tables = append(tables, v.GetStringValue())
	}
	return tables, nil
}

func (c *TableServiceClient) GetOrderBook(ctx context.Context, symbol string, depth int, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"symbol": symbol, "depth": depth})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/GetOrderBook", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TableServiceClient) GetState(ctx context.Context, symbol string, opts ...grpc.CallOption) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/GetState", wrapperspb.String(symbol), out, opts...); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}
