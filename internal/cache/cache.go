// Package cache persists scan results across aobgen runs so that unchanged
// images are not searched again.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/maxgio92/aobgen"
)

var bucketTables = []byte("tables")

// DB is an aobgen.Cache backed by a bbolt file.
type DB struct {
	db *bbolt.DB
}

var _ aobgen.Cache = (*DB)(nil)

// Open opens or creates the cache file at path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTables)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache %s: %w", path, err)
	}

	return &DB{db: db}, nil
}

// Lookup returns the table stored under key, or nil if there is none.
func (c *DB) Lookup(key string) (*aobgen.VersionTable, error) {
	var table *aobgen.VersionTable
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketTables).Get([]byte(key))
		if data == nil {
			return nil
		}
		table = new(aobgen.VersionTable)
		return json.Unmarshal(data, table)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read cached table %s: %w", key, err)
	}
	return table, nil
}

// Store saves table under key, replacing any previous value.
func (c *DB) Store(key string, table aobgen.VersionTable) error {
	data, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("failed to encode table: %w", err)
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTables).Put([]byte(key), data)
	})
}

// Len returns the number of cached tables.
func (c *DB) Len() (int, error) {
	var n int
	err := c.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketTables).Stats().KeyN
		return nil
	})
	return n, err
}

// Clear drops every cached table.
func (c *DB) Clear() error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketTables); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketTables)
		return err
	})
}

func (c *DB) Close() error {
	return c.db.Close()
}
