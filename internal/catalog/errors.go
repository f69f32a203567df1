package catalog

import "fmt"

// FormatError reports a catalog that cannot be opened or parsed.
type FormatError struct {
	Path string
	Line int // 0 when the problem is not tied to a line
	Msg  string
	Err  error
}

func (e *FormatError) Error() string {
	where := e.Path
	if where == "" {
		where = "<catalog>"
	}
	if e.Line > 0 {
		where = fmt.Sprintf("%s:%d", where, e.Line)
	}
	if e.Err != nil {
		return fmt.Sprintf("catalog format: %s: %s: %v", where, e.Msg, e.Err)
	}
	return fmt.Sprintf("catalog format: %s: %s", where, e.Msg)
}

func (e *FormatError) Unwrap() error { return e.Err }

// UnknownColumnError reports access to a column the catalog does not define,
// or two catalogs whose schemas disagree.
type UnknownColumnError struct {
	Column string
	Path   string
	Msg    string
}

func (e *UnknownColumnError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = "unknown column"
	}
	if e.Path != "" {
		return fmt.Sprintf("%s %q in %s", msg, e.Column, e.Path)
	}
	return fmt.Sprintf("%s %q", msg, e.Column)
}
