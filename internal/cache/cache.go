// Package cache remembers finished conversions in a bbolt database so that
// a batch run can skip inputs whose reports are already on disk.
package cache

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.etcd.io/bbolt"

	"example.com/cnfconv/internal/common"
)

const BucketName = "conversions"

var ErrNotFound = errors.New("cache entry not found")

// Entry describes the outputs produced for one input.
type Entry struct {
	Input       string    `json:"input"`
	InputSHA    string    `json:"inputSha256"`
	Outputs     []string  `json:"outputs"`
	Channels    int       `json:"channels"`
	TotalCounts uint64    `json:"totalCounts"`
	Created     time.Time `json:"created"`
}

// Fresh reports whether every output recorded in e still exists.
func (e Entry) Fresh() bool {
	if len(e.Outputs) == 0 {
		return false
	}
	for _, out := range e.Outputs {
		if _, err := os.Stat(out); err != nil {
			return false
		}
	}
	return true
}

// Fingerprint keys a conversion by input content and the options that
// shape its outputs.
func Fingerprint(raw []byte, signature string) uint64 {
	d := xxhash.New()
	_, _ = d.Write(raw)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(signature)
	return d.Sum64()
}

func keyBytes(key uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, key)
	return b
}

type Cache struct {
	db *bbolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketName))
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *Cache) Put(key uint64, e Entry) error {
	if e.Created.IsZero() {
		e.Created = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(BucketName)).Put(keyBytes(key), data)
	})
}

func (c *Cache) Get(key uint64) (Entry, error) {
	var e Entry
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(BucketName)).Get(keyBytes(key))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &e)
	})
	return e, err
}

// Lookup returns the entry for key only when its outputs are still present.
// Stale entries are removed.
func (c *Cache) Lookup(key uint64) (Entry, bool) {
	e, err := c.Get(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			common.Logf("cache: read %016x: %v", key, err)
		}
		return Entry{}, false
	}
	if !e.Fresh() {
		common.Debugf("cache: dropping stale entry for %s", e.Input)
		if err := c.Delete(key); err != nil {
			common.Logf("cache: delete %016x: %v", key, err)
		}
		return Entry{}, false
	}
	return e, true
}

func (c *Cache) Delete(key uint64) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(BucketName)).Delete(keyBytes(key))
	})
}

// Len returns the number of stored entries.
func (c *Cache) Len() (int, error) {
	n := 0
	err := c.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(BucketName)).Stats().KeyN
		return nil
	})
	return n, err
}
