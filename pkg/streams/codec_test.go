package streams

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFieldCodec_Encode(t *testing.T) {
	fields, err := JSONFieldCodec{}.Encode(Record{
		"name":  "alice",
		"raw":   []byte("bytes"),
		"count": 3,
		"tags":  []string{"x", "y"},
		"meta":  map[string]interface{}{"ok": true},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"count", "3",
		"meta", `{"ok":true}`,
		"name", "alice",
		"raw", "bytes",
		"tags", `["x","y"]`,
	}, fields)
}

func TestJSONFieldCodec_EncodeError(t *testing.T) {
	_, err := JSONFieldCodec{}.Encode(Record{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestJSONFieldCodec_Decode(t *testing.T) {
	record, err := JSONFieldCodec{}.Decode([]string{
		"name", "alice",
		"count", "3",
		"neg", "-1.5",
		"meta", `{"ok":true,"n":[1,2]}`,
		"flag", "false",
		"nothing", "null",
		"almost", "{not json",
		"word", "nope",
		"empty", "",
	})
	require.NoError(t, err)

	assert.Equal(t, Record{
		"name":    "alice",
		"count":   float64(3),
		"neg":     -1.5,
		"meta":    map[string]interface{}{"ok": true, "n": []interface{}{float64(1), float64(2)}},
		"flag":    false,
		"nothing": nil,
		"almost":  "{not json",
		"word":    "nope",
		"empty":   "",
	}, record)
}

func TestJSONFieldCodec_DecodeOddFields(t *testing.T) {
	_, err := JSONFieldCodec{}.Decode([]string{"a", "1", "b"})
	assert.ErrorIs(t, err, ErrMalformedEntry)
}

func TestJSONFieldCodec_RoundTripNested(t *testing.T) {
	codec := JSONFieldCodec{}
	in := Record{"order": map[string]interface{}{"id": "o-1", "items": []interface{}{"a", "b"}}}

	fields, err := codec.Encode(in)
	require.NoError(t, err)
	out, err := codec.Decode(fields)
	require.NoError(t, err)

	assert.Equal(t, in, out)
	assert.Equal(t, "v1", codec.Version())
}

func TestJSONFieldCodec_LargeIntegers(t *testing.T) {
	codec := JSONFieldCodec{}
	fields, err := codec.Encode(Record{
		"big":   int64(9007199254740993),
		"min":   int64(math.MinInt64),
		"exact": int64(1<<53 - 1),
		"huge":  uint64(math.MaxUint64),
		"sci":   1e20,
	})
	require.NoError(t, err)

	record, err := codec.Decode(fields)
	require.NoError(t, err)
	assert.Equal(t, Record{
		"big":   int64(9007199254740993),
		"min":   int64(math.MinInt64),
		"exact": float64(1<<53 - 1),
		"huge":  float64(math.MaxUint64),
		"sci":   1e20,
	}, record)
}
