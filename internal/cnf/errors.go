package cnf

import (
	"errors"
	"fmt"
)

var (
	ErrTooSmall        = errors.New("file smaller than minimum CNF size")
	ErrBadMagic        = errors.New("magic string \"Associated\" not found at expected position")
	ErrTruncated       = errors.New("data extends past end of file")
	ErrSectionMismatch = errors.New("section identifier does not match section table entry")
	ErrSectionMissing  = errors.New("required section not present")
	ErrChannelCount    = errors.New("channel count is not a power of two")
	ErrMarkerRange     = errors.New("marker outside channel range")

	// ErrUndefinedRate is returned by Report.Rate when the live time is zero
	// or negative.
	ErrUndefinedRate = errors.New("count rate undefined: live time is zero")
)

// FormatError reports a structural problem with a CNF buffer. Op names the
// decoding step and Offset the byte position it was looking at, or -1 when
// the check is not tied to a single position.
type FormatError struct {
	Op     string
	Offset int64
	Err    error
}

func (e *FormatError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("cnf format error: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cnf format error: %s at offset 0x%X: %v", e.Op, e.Offset, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func formatErr(op string, offset int64, err error) error {
	return &FormatError{Op: op, Offset: offset, Err: err}
}
