package domain

// TableReader is the read side of one symbol's mirrored stream.
type TableReader interface {
	Symbol() string
	State() ConnectionState
	Table(name string) []*Record
	Tables() []string
}

// StreamResolver finds the stream of a symbol.
type StreamResolver interface {
	Stream(symbol string) (TableReader, error)
	Symbols() []string
}
