package convert

import "fmt"

// IOError reports a failure to read, unwrap or write a file, as opposed to
// a malformed input (which surfaces as *cnf.FormatError).
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
