package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/TradeNexus/bitmex-websocket/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_UnmarshalKeepsFieldOrder(t *testing.T) {
	raw := `{"symbol":"XBTUSD","id":8799193300,"side":"Sell","size":4010,"price":8067,"flags":null,"nested":{"b":1,"a":[true,"x"]}}`

	rec := domain.NewRecord()
	require.NoError(t, json.Unmarshal([]byte(raw), rec))

	assert.Equal(t, []string{"symbol", "id", "side", "size", "price", "flags", "nested"}, rec.Keys(), "field order should follow the wire")

	id, ok := rec.Get("id")
	require.True(t, ok)
	n, ok := id.AsInt()
	assert.True(t, ok, "id should be an integer number")
	assert.Equal(t, int64(8799193300), n)

	flags, _ := rec.Get("flags")
	assert.True(t, flags.IsNull(), "flags should be null")

	nested, _ := rec.Get("nested")
	inner, ok := nested.AsRecord()
	require.True(t, ok, "nested should be a record")
	assert.Equal(t, []string{"b", "a"}, inner.Keys())

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out), "marshal should reproduce the record")
	assert.Equal(t, raw, string(out), "marshal should keep field order")
}

func TestRecord_NumbersAreExact(t *testing.T) {
	rec := domain.NewRecord()
	require.NoError(t, json.Unmarshal([]byte(`{"price":0.1,"size":1e3}`), rec))

	price, _ := rec.Get("price")
	d, ok := price.AsDecimal()
	require.True(t, ok)
	assert.True(t, d.Equal(decimal.RequireFromString("0.1")), "price should keep its decimal form")

	size, _ := rec.Get("size")
	n, ok := size.AsInt()
	assert.True(t, ok)
	assert.Equal(t, int64(1000), n)
}

func TestRecord_RejectsNonObject(t *testing.T) {
	rec := domain.NewRecord()
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), rec), "a list is not a record")
}

func TestRecord_Merge(t *testing.T) {
	rec := domain.NewRecord().
		With("id", domain.Int(1)).
		With("side", domain.String("Buy")).
		With("size", domain.Int(10))

	rec.Merge(domain.NewRecord().
		With("size", domain.Int(25)).
		With("price", domain.Float(100.5)))

	assert.Equal(t, []string{"id", "side", "size", "price"}, rec.Keys(), "new fields should be appended")

	size, _ := rec.Get("size")
	n, _ := size.AsInt()
	assert.Equal(t, int64(25), n, "present fields should be overwritten")

	side, _ := rec.Get("side")
	s, _ := side.AsString()
	assert.Equal(t, "Buy", s, "absent fields should be left untouched")
}

func TestRecord_CloneIsDeep(t *testing.T) {
	inner := domain.NewRecord().With("a", domain.Int(1))
	rec := domain.NewRecord().With("inner", domain.Nested(inner))

	clone := rec.Clone()
	inner.Set("a", domain.Int(2))

	v, _ := clone.Get("inner")
	cloned, _ := v.AsRecord()
	a, _ := cloned.Get("a")
	n, _ := a.AsInt()
	assert.Equal(t, int64(1), n, "clone should not share nested records")
	assert.False(t, rec.Equal(clone))
}

func TestValue_Equal(t *testing.T) {
	tests := []struct {
		name  string
		a, b  domain.Value
		equal bool
	}{
		{"SameString", domain.String("x"), domain.String("x"), true},
		{"StringVsNumber", domain.String("1"), domain.Int(1), false},
		{"NumbersNormalized", domain.Number(decimal.RequireFromString("1.50")), domain.Float(1.5), true},
		{"Nulls", domain.Null(), domain.Null(), true},
		{"Lists", domain.List(domain.Int(1), domain.Bool(true)), domain.List(domain.Int(1), domain.Bool(true)), true},
		{"ListLength", domain.List(domain.Int(1)), domain.List(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, tt.a.Equal(tt.b))
		})
	}
}
