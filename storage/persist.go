package storage

import (
	"bytes"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
)

// PersistStore wraps LevelDB for raw key-value persistence. No chain
// logic lives here. Thread-safe: LevelDB handles its own
// synchronization.
type PersistStore struct {
	db *leveldb.DB
}

// NewPersistStore opens or creates a LevelDB database at the given
// path. An empty path uses in-memory storage.
func NewPersistStore(path string) (*PersistStore, error) {
	var db *leveldb.DB
	var err error

	if path == "" {
		memStorage := leveldbstorage.NewMemStorage()
		db, err = leveldb.Open(memStorage, nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}

	return &PersistStore{db: db}, nil
}

// NewMemoryPersistStore creates an in-memory PersistStore for testing.
func NewMemoryPersistStore() (*PersistStore, error) {
	return NewPersistStore("")
}

// Get retrieves a value by key. Returns (nil, false, nil) if not found.
func (ps *PersistStore) Get(key []byte) ([]byte, bool, error) {
	data, err := ps.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("Get %x: %w", key, err)
	}
	return data, true, nil
}

func (ps *PersistStore) Put(key []byte, value []byte) error {
	return ps.db.Put(key, value, nil)
}

func (ps *PersistStore) Delete(key []byte) error {
	return ps.db.Delete(key, nil)
}

// GetWithPrefix returns all key-value pairs with the given prefix,
// sorted by key order.
func (ps *PersistStore) GetWithPrefix(prefix []byte) ([][2][]byte, error) {
	iter := ps.db.NewIterator(nil, nil)
	defer iter.Release()

	var results [][2][]byte
	for ok := iter.Seek(prefix); ok; ok = iter.Next() {
		key := iter.Key()
		if !bytes.HasPrefix(key, prefix) {
			break
		}

		// Copy key and value to avoid iterator reuse issues
		keyCopy := make([]byte, len(key))
		copy(keyCopy, key)
		valueCopy := make([]byte, len(iter.Value()))
		copy(valueCopy, iter.Value())
		results = append(results, [2][]byte{keyCopy, valueCopy})
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("GetWithPrefix %x: %w", prefix, err)
	}
	return results, nil
}

func (ps *PersistStore) Close() error {
	return ps.db.Close()
}
