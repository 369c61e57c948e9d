package transform

import "fmt"

// ParseError reports a malformed or incomplete source record.
//
// A ParseError aborts only the file it came from; the orchestrator decides
// whether to halt the run. Line is 1-based for newline-delimited log files and
// 0 for single-object song files. Field names the missing or malformed field
// when known.
type ParseError struct {
	Line  int
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	switch {
	case e.Field != "" && e.Line > 0:
		return fmt.Sprintf("parse: line %d: field %q: %v", e.Line, e.Field, e.Err)
	case e.Field != "":
		return fmt.Sprintf("parse: field %q: %v", e.Field, e.Err)
	case e.Line > 0:
		return fmt.Sprintf("parse: line %d: %v", e.Line, e.Err)
	default:
		return fmt.Sprintf("parse: %v", e.Err)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }

// errMissing is the cause used for absent required fields.
var errMissing = fmt.Errorf("required field is missing or empty")
