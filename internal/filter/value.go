package filter

import (
	"fmt"
	"regexp"
	"time"
)

// Kind is the type class of a Value.
type Kind int

// Value kinds.
const (
	KindAbsent Kind = iota
	KindInt
	KindString
	KindRegex
	KindBool
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindInt:
		return "integer"
	case KindString:
		return "string"
	case KindRegex:
		return "regex"
	case KindBool:
		return "boolean"
	case KindTime:
		return "timestamp"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Value is a typed operand of a filter expression.
// The zero Value is Absent.
type Value struct {
	kind Kind
	i    int64
	s    string
	b    bool
	t    time.Time
	re   *regexp.Regexp
}

// Absent marks an attribute that is not set on the current item.
var Absent = Value{}

// Int returns an integer value.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// String returns a string value.
func String(v string) Value { return Value{kind: KindString, s: v} }

// Bool returns a boolean value.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Time returns a timestamp value.
func Time(v time.Time) Value { return Value{kind: KindTime, t: v} }

// Optional returns Int(*v), or Absent when v is nil.
func Optional(v *int64) Value {
	if v == nil {
		return Absent
	}
	return Int(*v)
}

func regexValue(src string) (Value, error) {
	re, err := regexp.Compile(`^(?:` + src + `)$`)
	if err != nil {
		return Value{}, err
	}
	return Value{kind: KindRegex, s: src, re: re}, nil
}

// Kind returns the value's type class.
func (v Value) Kind() Kind { return v.kind }

// IsAbsent reports whether v is the Absent sentinel.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// AsInt returns the integer payload.
func (v Value) AsInt() int64 { return v.i }

// AsString returns the string payload (the pattern source for regex values).
func (v Value) AsString() string { return v.s }

// AsBool returns the boolean payload.
func (v Value) AsBool() bool { return v.b }

// AsTime returns the timestamp payload.
func (v Value) AsTime() time.Time { return v.t }

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindString:
		return fmt.Sprintf("%q", v.s)
	case KindRegex:
		return fmt.Sprintf("r%q", v.s)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindTime:
		return v.t.Format(timestampLayout)
	}
	return "absent"
}

// Record is the flat attribute set a filter is evaluated against.
type Record map[string]Value
