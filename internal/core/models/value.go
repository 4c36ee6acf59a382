package models

import "fmt"

// Value is a single RESP2 protocol value. Type is one of
// "string", "error", "integer", "bulk", "null", "nullarray" or "array".
type Value struct {
	Type  string
	Str   string
	Num   int
	Bulk  string
	Array []Value
}

func (v Value) String() string {
	switch v.Type {
	case "string":
		return fmt.Sprintf("String: %s", v.Str)
	case "error":
		return fmt.Sprintf("Error: %s", v.Str)
	case "integer":
		return fmt.Sprintf("Integer: %d", v.Num)
	case "bulk":
		return fmt.Sprintf("Bulk: %s", v.Bulk)
	case "null":
		return "Null"
	case "nullarray":
		return "NullArray"
	case "array":
		return fmt.Sprintf("Array: %v", v.Array)
	default:
		return fmt.Sprintf("Unknown Type: %s", v.Type)
	}
}

func (v Value) IsCommand(cmd string) bool {
	return v.Type == "array" && len(v.Array) > 0 && v.Array[0].Bulk == cmd
}

// IsError reports whether v is an error reply.
func (v Value) IsError() bool {
	return v.Type == "error"
}

// Constructors for the reply shapes handlers produce most often.

func OK() Value {
	return Value{Type: "string", Str: "OK"}
}

func Status(s string) Value {
	return Value{Type: "string", Str: s}
}

func Error(msg string) Value {
	return Value{Type: "error", Str: msg}
}

func Errorf(format string, args ...interface{}) Value {
	return Value{Type: "error", Str: fmt.Sprintf(format, args...)}
}

func Integer(n int) Value {
	return Value{Type: "integer", Num: n}
}

func Bulk(s string) Value {
	return Value{Type: "bulk", Bulk: s}
}

func Null() Value {
	return Value{Type: "null"}
}

func NullArray() Value {
	return Value{Type: "nullarray"}
}

func Array(values ...Value) Value {
	if values == nil {
		values = []Value{}
	}
	return Value{Type: "array", Array: values}
}

// BulkArray wraps each string as a bulk value.
func BulkArray(items []string) Value {
	arr := make([]Value, len(items))
	for i, s := range items {
		arr[i] = Bulk(s)
	}
	return Array(arr...)
}

// Command builds the request value a client would send for args.
func Command(args ...string) Value {
	return BulkArray(args)
}
