package filter

import (
	"errors"
	"fmt"
)

// Error classes reported by Compile and Eval. Use errors.Is to test them.
var (
	ErrSyntax         = errors.New("syntax error")
	ErrUndefinedName  = errors.New("undefined name")
	ErrTypeMismatch   = errors.New("type mismatch")
	ErrDivisionByZero = errors.New("division by zero")
)

// Error is a filter compile or evaluation error with a human-readable message.
type Error struct {
	Kind error
	Pos  int
	Msg  string
}

func (e *Error) Error() string {
	if e.Kind == ErrSyntax {
		return fmt.Sprintf("%v at position %d: %s", e.Kind, e.Pos+1, e.Msg)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }

func syntaxErr(pos int, format string, args ...any) error {
	return &Error{Kind: ErrSyntax, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func mismatch(op string, l, r Value) error {
	return &Error{
		Kind: ErrTypeMismatch,
		Msg:  fmt.Sprintf("unsupported operand types for %s: %s and %s", op, l.kind, r.kind),
	}
}
