package cnf

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	// Seconds between the format's epoch (1858-11-17, the Modified Julian
	// Date origin) and the Unix epoch.
	mjdUnixOffset = 3_506_716_800
	ticksPerSec   = 10_000_000
)

// The At decoders read a value at off. Callers check that the value's
// width fits in buf first; see need.

func Uint8At(buf []byte, off int64) uint8 {
	return buf[off]
}

func Uint16At(buf []byte, off int64) uint16 {
	return binary.LittleEndian.Uint16(buf[off : off+2])
}

func Uint32At(buf []byte, off int64) uint32 {
	return binary.LittleEndian.Uint32(buf[off : off+4])
}

func Uint64At(buf []byte, off int64) uint64 {
	return binary.LittleEndian.Uint64(buf[off : off+8])
}

// VendorFloatAt decodes the instrument's 32-bit float: two little-endian
// 16-bit words stored high word first, holding an IEEE-754 single that is
// four times the actual value.
func VendorFloatAt(buf []byte, off int64) float64 {
	hi := uint32(Uint16At(buf, off))
	lo := uint32(Uint16At(buf, off+2))
	return float64(math.Float32frombits(hi<<16|lo)) / 4
}

// DurationAt decodes a period stored as the one's complement of a count of
// 100 ns ticks and returns it in seconds.
func DurationAt(buf []byte, off int64) float64 {
	return float64(^Uint64At(buf, off)) * 1e-7
}

// DateTimeAt decodes an absolute time stored as 100 ns ticks since the MJD
// epoch, truncated to whole seconds.
func DateTimeAt(buf []byte, off int64) time.Time {
	secs := int64(Uint64At(buf, off)/ticksPerSec) - mjdUnixOffset
	return time.Unix(secs, 0).UTC()
}

// TrimUnit extracts the energy unit from a padded text field: leading
// non-letters are skipped and the following run of ASCII letters is
// returned. A NUL before the first letter ends the field.
func TrimUnit(field []byte) string {
	start := 0
	for start < len(field) && !isAlpha(field[start]) {
		if field[start] == 0 {
			return ""
		}
		start++
	}
	stop := start
	for stop < len(field) && isAlpha(field[stop]) {
		stop++
	}
	return string(field[start:stop])
}

func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// fixedString copies a fixed-width text field, cut at its first NUL.
func fixedString(buf []byte, off, width int64) string {
	field := buf[off : off+width]
	for i, b := range field {
		if b == 0 {
			return string(field[:i])
		}
	}
	return string(field)
}

// need reports whether n bytes starting at off lie inside buf.
func need(buf []byte, off, n int64) bool {
	return off >= 0 && n >= 0 && off+n <= int64(len(buf))
}
