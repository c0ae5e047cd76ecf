package expr

import (
	"encoding/json"
	"fmt"
)

// ParseError reports a malformed expression document. Path locates the
// failing sub-expression ("left.inputs[2]"); it is empty for the root.
type ParseError struct {
	Path string
	Expr string
	Err  error
}

func (e *ParseError) Error() string {
	where := e.Path
	if where == "" {
		where = "expression"
	}
	if e.Expr == "" {
		return fmt.Sprintf("expr: %s: %v", where, e.Err)
	}
	return fmt.Sprintf("expr: %s: %v (in %s)", where, e.Err, e.Expr)
}

func (e *ParseError) Unwrap() error { return e.Err }

func errorf(path string, doc any, format string, args ...any) *ParseError {
	return &ParseError{Path: path, Expr: compact(doc), Err: fmt.Errorf(format, args...)}
}

// compact renders doc on one line for error messages.
func compact(doc any) string {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Sprintf("%v", doc)
	}
	return string(b)
}

func join(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}

func index(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}
