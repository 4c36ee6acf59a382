package streams

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Record is the structured form of an entry's fields.
type Record map[string]interface{}

// FieldCodec converts records to and from the flat field/value pairs
// stored in an entry.
type FieldCodec interface {
	Version() string
	Encode(record Record) ([]string, error)
	Decode(fields []string) (Record, error)
}

// JSONFieldCodec writes strings and byte slices as they are and every
// other value as JSON. Fields are written in key order.
//
// On read, a value that parses as JSON and starts like a JSON object,
// array, number, boolean or null is decoded; anything else is returned as
// a string. A string such as "42" therefore reads back as float64(42).
// Numbers decode as float64, except a whole number too large for float64
// to hold exactly, which decodes as int64 when it fits. Numbers nested in
// objects and arrays are always float64.
type JSONFieldCodec struct{}

var _ FieldCodec = JSONFieldCodec{}

func (JSONFieldCodec) Version() string { return "v1" }

func (JSONFieldCodec) Encode(record Record) ([]string, error) {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		var value string
		switch v := record[k].(type) {
		case string:
			value = v
		case []byte:
			value = string(v)
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("streams: encode field %q: %w", k, err)
			}
			value = string(data)
		}
		fields = append(fields, k, value)
	}
	return fields, nil
}

func (JSONFieldCodec) Decode(fields []string) (Record, error) {
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("%w: odd field count %d", ErrMalformedEntry, len(fields))
	}

	record := make(Record, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		record[fields[i]] = decodeValue(fields[i+1])
	}
	return record, nil
}

func decodeValue(s string) interface{} {
	if s == "" {
		return s
	}
	switch c := s[0]; {
	case c == '{', c == '[', c == '-', c == 't', c == 'f', c == 'n', c >= '0' && c <= '9':
		if gjson.Valid(s) {
			r := gjson.Parse(s)
			if r.Type == gjson.Number && math.Abs(r.Num) >= maxExactFloat && !strings.ContainsAny(r.Raw, ".eE") {
				if n, err := strconv.ParseInt(r.Raw, 10, 64); err == nil {
					return n
				}
			}
			return r.Value()
		}
	}
	return s
}

// Integers below maxExactFloat in magnitude round-trip through float64.
const maxExactFloat = 1 << 53
