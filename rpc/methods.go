package rpc

import (
	"context"
	"slices"

	"github.com/TradeNexus/bitmex-websocket/domain"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func (s *Server) GetTable(ctx context.Context, in *structpb.Struct) (*structpb.ListValue, error) {
	rows, err := s.table(stringField(in, "symbol"), stringField(in, "table"))
	if err != nil {
		return nil, toStatus(err)
	}

	values := make([]*structpb.Value, 0, len(rows))
	for _, row := range rows {
		v, err := structpb.NewStruct(row.Interface())
		if err != nil {
			return nil, status.Errorf(codes.Internal, "encode row: %v", err)
		}
		values = append(values, structpb.NewStructValue(v))
	}
	return &structpb.ListValue{Values: values}, nil
}

func (s *Server) ListTables(ctx context.Context, in *wrapperspb.StringValue) (*structpb.ListValue, error) {
	tables, err := s.tables(in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}

	values := make([]*structpb.Value, len(tables))
	for i, table := range tables {
		values[i] = structpb.NewStringValue(table)
	}
	return &structpb.ListValue{Values: values}, nil
}

func (s *Server) GetOrderBook(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	snapshot, err := s.orderBook(stringField(in, "symbol"), int(in.GetFields()["depth"].GetNumberValue()))
	if err != nil {
		return nil, toStatus(err)
	}

	out, err := structpb.NewStruct(map[string]any{
		"symbol":    snapshot.Symbol,
		"bids":      levels(snapshot.Bids),
		"asks":      levels(snapshot.Asks),
		"timestamp": snapshot.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode order book: %v", err)
	}
	return out, nil
}

func (s *Server) GetState(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	state, err := s.state(in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.String(state.String()), nil
}

func (s *Server) stream(symbol string) (domain.TableReader, error) {
	if err := s.validationService.ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	return s.resolver.Stream(symbol)
}

func (s *Server) table(symbol, table string) ([]*domain.Record, error) {
	if err := s.validationService.ValidateTable(table); err != nil {
		return nil, err
	}
	stream, err := s.stream(symbol)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(stream.Tables(), table) {
		return nil, domain.Newf(domain.ErrCodeTableNotFound, "table %s is not loaded for %s", table, symbol)
	}
	return stream.Table(table), nil
}

func (s *Server) tables(symbol string) ([]string, error) {
	stream, err := s.stream(symbol)
	if err != nil {
		return nil, err
	}
	return stream.Tables(), nil
}

func (s *Server) orderBook(symbol string, depth int) (*domain.OrderBookSnapshot, error) {
	if err := s.validationService.ValidateDepth(depth); err != nil {
		return nil, err
	}
	if err := s.validationService.ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	return s.orderbookSnapshot.GetOrderBookSnapshot(symbol, depth)
}

func (s *Server) state(symbol string) (domain.ConnectionState, error) {
	stream, err := s.stream(symbol)
	if err != nil {
		return "", err
	}
	return stream.State(), nil
}

func levels(depth []domain.PriceLevel) []any {
	out := make([]any, len(depth))
	for i, level := range depth {
		out[i] = map[string]any{
			"price": level.Price.String(),
			"size":  level.Size.String(),
		}
	}
	return out
}

func stringField(in *structpb.Struct, name string) string {
	return in.GetFields()[name].GetStringValue()
}

func toStatus(err error) error {
	code := codes.Internal
	switch domain.GetCode(err) {
	case domain.ErrCodeNotFound, domain.ErrCodeTableNotFound:
		code = codes.NotFound
	case domain.ErrCodeInvalidRequest:
		code = codes.InvalidArgument
	}
	return status.Error(code, err.Error())
}
