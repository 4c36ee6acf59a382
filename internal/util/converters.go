package util

import (
	"fmt"
	"strconv"
	"time"

	"github.com/genc-murat/crystalstream/internal/core/models"
)

func ParseInt(v models.Value) (int, error) {
	return strconv.Atoi(v.Bulk)
}

// ParseMillis parses a non-negative millisecond count such as a BLOCK or
// min-idle-time argument.
func ParseMillis(v models.Value) (time.Duration, error) {
	ms, err := strconv.ParseInt(v.Bulk, 10, 64)
	if err != nil || ms < 0 {
		return 0, fmt.Errorf("ERR timeout is not an integer or out of range")
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// ParseSeconds parses a BLPOP style timeout given in (fractional) seconds.
func ParseSeconds(v models.Value) (time.Duration, error) {
	secs, err := strconv.ParseFloat(v.Bulk, 64)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("ERR timeout is not a float or out of range")
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func ToValue(val interface{}) models.Value {
	switch v := val.(type) {
	case string:
		return models.Value{Type: "bulk", Bulk: v}
	case int:
		return models.Value{Type: "integer", Num: v}
	case int64:
		return models.Value{Type: "integer", Num: int(v)}
	case bool:
		if v {
			return models.Value{Type: "integer", Num: 1}
		}
		return models.Value{Type: "integer", Num: 0}
	case nil:
		return models.Value{Type: "null"}
	case error:
		return models.Value{Type: "error", Str: v.Error()}
	case []string:
		return models.BulkArray(v)
	case models.Value:
		return v
	default:
		return models.Value{Type: "error", Str: fmt.Sprintf("unknown type: %T", val)}
	}
}
