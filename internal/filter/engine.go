// Package filter implements the download filter language: a small predicate
// grammar compiled once into an immutable expression tree and evaluated
// against the metadata of each message.
//
// Example filters:
//
//	media_file_size > 10MB && media_duration < 600
//	message_date >= 2024-01-01 00:00:00 and caption != r'.*#ad.*'
//	file_name == r'.*\.(mp4|mkv)'
package filter

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Expr is a compiled filter. It is immutable and safe for concurrent use.
type Expr struct {
	text string
	root node
}

// Compile parses a filter with timestamps interpreted in UTC.
func Compile(text string) (*Expr, error) {
	return CompileIn(text, time.UTC)
}

// CompileIn parses a filter with timestamp literals interpreted in loc.
func CompileIn(text string, loc *time.Location) (*Expr, error) {
	if loc == nil {
		loc = time.UTC
	}
	root, err := parse(text, loc)
	if err != nil {
		return nil, err
	}
	return &Expr{text: text, root: root}, nil
}

// Text returns the source the expression was compiled from.
func (e *Expr) Text() string { return e.text }

// String returns the normalized form of the expression.
func (e *Expr) String() string { return e.root.String() }

// Names returns the distinct identifiers referenced by the expression, sorted.
func (e *Expr) Names() []string {
	all := e.root.idents(nil)
	seen := make(map[string]bool, len(all))
	var out []string
	for _, n := range all {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// Eval evaluates the expression against rec.
func (e *Expr) Eval(rec Record) (Value, error) {
	return e.root.eval(rec)
}

// Match evaluates the expression as a predicate. An Absent result passes.
func (e *Expr) Match(rec Record) (bool, error) {
	v, err := e.root.eval(rec)
	if err != nil {
		return false, err
	}
	switch v.kind {
	case KindBool:
		return v.b, nil
	case KindAbsent:
		return true, nil
	}
	return false, &Error{Kind: ErrTypeMismatch, Msg: fmt.Sprintf("filter must evaluate to a boolean, got %s", v.kind)}
}

// Validate compiles text and evaluates it against SampleRecord so that
// undefined names and type mismatches surface before the filter is stored.
func Validate(text string, loc *time.Location) error {
	e, err := CompileIn(text, loc)
	if err != nil {
		return err
	}
	_, err = e.Match(SampleRecord())
	return err
}

// Cache memoizes compiled filters by source text.
type Cache struct {
	loc   *time.Location
	mu    sync.Mutex
	exprs map[string]*Expr
}

// NewCache returns a Cache that compiles timestamps in loc.
func NewCache(loc *time.Location) *Cache {
	if loc == nil {
		loc = time.UTC
	}
	return &Cache{loc: loc, exprs: make(map[string]*Expr)}
}

// Compile returns the cached expression for text, compiling it on first use.
// Failed compilations are not cached.
func (c *Cache) Compile(text string) (*Expr, error) {
	c.mu.Lock()
	e, ok := c.exprs[text]
	c.mu.Unlock()
	if ok {
		return e, nil
	}

	e, err := CompileIn(text, c.loc)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.exprs[text]; ok {
		return prev, nil
	}
	c.exprs[text] = e
	return e, nil
}
