package repoql

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the repository layer.
var (
	// ErrClosed is returned by every operation on a closed Repository.
	ErrClosed = errors.New("repoql: repository is closed")

	// ErrNodeNotFound is returned when a path has no stored node.
	ErrNodeNotFound = errors.New("repoql: node not found")
)

// MalformedValueError reports a payload that does not parse for its
// declared scalar type. It is only ever returned while a Value is built.
type MalformedValueError struct {
	Type ScalarType
	Text string
	Err  error // underlying parse failure, may be nil
}

func (e *MalformedValueError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("repoql: malformed %s value %q: %v", e.Type, e.Text, e.Err)
	}
	return fmt.Sprintf("repoql: malformed %s value %q", e.Type, e.Text)
}

func (e *MalformedValueError) Unwrap() error { return e.Err }

// PlanConstructionError reports an AST node built over an invalid
// structural relationship: an undeclared selector, statically
// incomparable literals, a node attached to two parents and so on.
type PlanConstructionError struct {
	Node string // variant being built, e.g. "Comparison"
	Msg  string
	Err  error
}

func (e *PlanConstructionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("repoql: cannot build %s: %s: %v", e.Node, e.Msg, e.Err)
	}
	return fmt.Sprintf("repoql: cannot build %s: %s", e.Node, e.Msg)
}

func (e *PlanConstructionError) Unwrap() error { return e.Err }

func planErr(node, format string, args ...any) error {
	return &PlanConstructionError{Node: node, Msg: fmt.Sprintf(format, args...)}
}

// UnboundVariableError is returned when evaluation meets a bind variable
// that the binding table does not define.
type UnboundVariableError struct {
	Name string
}

func (e *UnboundVariableError) Error() string {
	return fmt.Sprintf("repoql: unbound variable $%s", e.Name)
}

// ParseError reports malformed query text.
type ParseError struct {
	Pos int
	Msg string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("repoql: parse error at position %d: %s: %v", e.Pos, e.Msg, e.Err)
	}
	return fmt.Sprintf("repoql: parse error at position %d: %s", e.Pos, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }
