package modelmanager

import (
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// VerifyCacheEntry memoizes the result of hashing a file, keyed on the
// file's size and modification time so a changed file invalidates itself.
type VerifyCacheEntry struct {
	SizeBytes   int64  `json:"size_bytes"`
	ModTimeUnix int64  `json:"mod_time_unix"`
	SHA256      string `json:"sha256"`
}

// VerifyCache memoizes (size, modTime) -> sha256 for model files already
// hashed, so re-verifying an unchanged multi-gigabyte file at every daemon
// startup does not re-read it from disk.
type VerifyCache struct {
	db *badger.DB
}

// OpenVerifyCache opens (creating if absent) a Badger store at dir.
func OpenVerifyCache(dir string) (*VerifyCache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("modelmanager: open verify cache: %w", err)
	}
	return &VerifyCache{db: db}, nil
}

// Close releases the underlying Badger store.
func (c *VerifyCache) Close() error {
	return c.db.Close()
}

// Get returns the cached entry for name, if any.
func (c *VerifyCache) Get(name string) (VerifyCacheEntry, bool) {
	var entry VerifyCacheEntry
	var found bool

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(name))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &entry); err != nil {
				return err
			}
			found = true
			return nil
		})
	})
	if err != nil {
		return VerifyCacheEntry{}, false
	}
	return entry, found
}

// Put stores entry for name, overwriting any prior value.
func (c *VerifyCache) Put(name string, entry VerifyCacheEntry) error {
	val, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(name), val)
	})
}
