// Package store provides the durable key-value surface the caches persist to.
// Values are opaque blobs; callers own the encoding.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Driver names accepted by Open.
const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Store loads and saves named blobs. A missing key is reported with ok=false
// and a nil error.
type Store interface {
	Load(key string) (blob []byte, ok bool, err error)
	Save(key string, blob []byte) error
	Close() error
}

// Open returns the store selected by driver rooted at dir. An empty dir or the
// memory driver yields a process-lifetime store with no persistence.
func Open(driver, dir string) (Store, error) {
	if driver == DriverMemory || dir == "" {
		return NewBoltStore("")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir %s: %w", dir, err)
	}

	switch driver {
	case "", DriverBolt:
		return NewBoltStore(filepath.Join(dir, "catalog.db"))
	case DriverSQLite:
		return NewSQLiteStore(filepath.Join(dir, "catalog.sqlite"))
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
