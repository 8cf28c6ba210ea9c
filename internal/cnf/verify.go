package cnf

import "bytes"

const (
	MinFileSize = 0x1000

	magicOffset = 0x1E
)

var magic = []byte("Associated")

// Verify performs the cheap checks that must pass before any section offset
// is trusted: a minimum size and the magic string at 0x1E.
func Verify(buf []byte) error {
	if len(buf) < MinFileSize {
		return formatErr("verify size", int64(len(buf)), ErrTooSmall)
	}
	if !bytes.Equal(buf[magicOffset:magicOffset+len(magic)], magic) {
		return formatErr("verify magic", magicOffset, ErrBadMagic)
	}
	return nil
}
