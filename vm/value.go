package vm

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// Value is anything the machine can hold. Instructions operate on nil, bool,
// int64, string and *Object; any other Go value is opaque.
type Value = any

// Object is a mutable record, such as an event payload handed to dispatch
// routines. Fields default to nil.
type Object struct {
	Type string

	mu     sync.Mutex
	fields map[string]Value
}

// NewObject returns an empty object of type typ.
func NewObject(typ string) *Object {
	return &Object{Type: typ, fields: map[string]Value{}}
}

// Get returns the value of field name.
func (o *Object) Get(name string) Value {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fields[name]
}

// Set assigns field name.
func (o *Object) Set(name string, v Value) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fields[name] = v
}

func (o *Object) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	names := make([]string, 0, len(o.fields))
	for name := range o.fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString(o.Type)
	sb.WriteByte('{')
	for i, name := range names {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %s", name, Format(o.fields[name]))
	}
	sb.WriteByte('}')
	return sb.String()
}

// Format renders a value the way the assembler would write it.
func Format(v Value) string {
	switch v := v.(type) {
	case nil:
		return "nil"
	case string:
		return fmt.Sprintf("%q", v)
	default:
		return fmt.Sprint(v)
	}
}

// normalize converts Go integers to int64. Other values pass through
// untouched: the machine can move them around, store them and hand them to
// native routines, but no instruction operates on them.
func normalize(v Value) (Value, error) {
	switch v := v.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint:
		return unsigned(uint64(v))
	case uint64:
		return unsigned(v)
	}
	return v, nil
}

func unsigned(v uint64) (Value, error) {
	if v > math.MaxInt64 {
		return nil, fmt.Errorf("%w: %d overflows int", ErrType, v)
	}
	return int64(v), nil
}
