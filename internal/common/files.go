package common

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// ReportExt is the extension of the text report written next to an input.
const ReportExt = ".txt"

type Hasher struct {
	h hash.Hash
}

func NewHasher() *Hasher {
	return &Hasher{h: sha256.New()}
}

func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

func (h *Hasher) Sum() string {
	return hex.EncodeToString(h.h.Sum(nil))
}

// Sha256Hex returns the hex SHA-256 of data.
func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func Sha256OfFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := NewHasher()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return h.Sum(), n, nil
}

// Compression identifies how an input file is wrapped.
type Compression string

const (
	CompressionNone Compression = ""
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// CompressionOf infers the wrapper from the file extension.
func CompressionOf(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		return CompressionGzip
	case ".zst", ".zstd":
		return CompressionZstd
	case ".lz4":
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// DefaultMaxDecompressed caps the unwrapped size of a compressed input
// when the caller sets no limit.
const DefaultMaxDecompressed int64 = 256 << 20

var ErrDecompressedTooLarge = errors.New("decompressed input exceeds limit")

// ReadInput reads the whole file at path into memory, transparently
// removing a gzip, zstd or lz4 wrapper recognized by extension.
func ReadInput(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decompress(raw, CompressionOf(path), DefaultMaxDecompressed)
}

// Decompress removes the given wrapper from raw. At most limit bytes are
// produced; a larger stream fails with ErrDecompressedTooLarge. A limit
// <= 0 means DefaultMaxDecompressed.
func Decompress(raw []byte, c Compression, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxDecompressed
	}
	switch c {
	case CompressionNone:
		return raw, nil
	case CompressionGzip:
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		return readLimited(zr, "gzip", limit)
	case CompressionZstd:
		dec, err := zstd.NewReader(bytes.NewReader(raw), zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer dec.Close()
		return readLimited(dec, "zstd", limit)
	case CompressionLZ4:
		return readLimited(lz4.NewReader(bytes.NewReader(raw)), "lz4", limit)
	default:
		return nil, fmt.Errorf("unsupported compression %q", c)
	}
}

func readLimited(r io.Reader, name string, limit int64) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if int64(len(out)) > limit {
		return nil, fmt.Errorf("%s: %w (%d bytes)", name, ErrDecompressedTooLarge, limit)
	}
	return out, nil
}

// TrimInputExt strips a compression extension and then the data
// extension from the base name of path.
func TrimInputExt(path string) string {
	if CompressionOf(path) != CompressionNone {
		path = strings.TrimSuffix(path, filepath.Ext(path))
	}
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// DefaultOutputPath derives the report path for an input: the input's
// extension (if any) is replaced by ext. Only the final path element is
// considered, so dots in directory names are left alone.
func DefaultOutputPath(input, ext string) string {
	return TrimInputExt(input) + ext
}

// WriteFileAtomic writes data to a temporary file in the destination
// directory and renames it into place.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, perm); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}
