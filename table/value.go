package table

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind is the runtime shape of a table cell. JSON carries loosely
// typed values, so cells are tagged variants: the validator switches
// over Kind exhaustively instead of reflecting or panicking.
type Kind int

const (
	// KindNull marks an explicit JSON null or a key absent from a row.
	KindNull Kind = iota
	KindString
	KindInteger
	KindFloat
	KindBool
	// KindStructured marks a nested object or array kept opaque.
	KindStructured
)

// String returns a human-readable kind name for issue messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBool:
		return "boolean"
	case KindStructured:
		return "structured"
	default:
		return fmt.Sprintf("unknown kind %d", int(k))
	}
}

// Value is one table cell. The zero Value is null.
type Value struct {
	kind Kind

	str        string
	num        json.Number
	boolean    bool
	structured interface{}
}

// Null is the null cell value.
var Null = Value{}

func String(s string) Value { return Value{kind: KindString, str: s} }

func Bool(b bool) Value { return Value{kind: KindBool, boolean: b} }

func Integer(n int64) Value {
	return Value{kind: KindInteger, num: json.Number(strconv.FormatInt(n, 10))}
}

func Float(f float64) Value {
	return Value{kind: KindFloat, num: json.Number(strconv.FormatFloat(f, 'g', -1, 64))}
}

// Kind returns the runtime shape tag of the value.
func (v Value) Kind() Kind {
	return v.kind
}

// IsNull reports whether the cell holds no value.
func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// MarshalJSON reproduces the source JSON value.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindInteger, KindFloat:
		return []byte(v.num), nil
	case KindBool:
		return json.Marshal(v.boolean)
	case KindStructured:
		return json.Marshal(v.structured)
	default:
		return nil, fmt.Errorf("cannot marshal value of kind %s", v.kind)
	}
}

// valueOf converts a decoded JSON value into a tagged cell.
// Numbers must be json.Number, i.e. the document must have been
// decoded with Decode.
func valueOf(raw interface{}) Value {
	switch x := raw.(type) {
	case nil:
		return Null
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case json.Number:
		if _, err := x.Int64(); err == nil {
			return Value{kind: KindInteger, num: x}
		}
		return Value{kind: KindFloat, num: x}
	case map[string]interface{}, []interface{}:
		// Nested documents stay opaque; validation only ever checks
		// their presence.
		return Value{kind: KindStructured, structured: x}
	default:
		// Decode never produces other types; treat a stray one as
		// structured rather than dropping it.
		return Value{kind: KindStructured, structured: x}
	}
}
