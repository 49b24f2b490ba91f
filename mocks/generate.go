package mocks

//go:generate mockgen -destination=./mock_transport.go -package=mocks github.com/TradeNexus/bitmex-websocket/domain Transport,Conn,Signer
//go:generate mockgen -destination=./mock_stream_resolver.go -package=mocks github.com/TradeNexus/bitmex-websocket/domain StreamResolver,TableReader
