// Package kv is the durable key-value storage behind the connection store.
// Values are opaque serialized text; keys are case-sensitive.
package kv

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("kv: key not found")

// Store is a synchronous, non-transactional key-value store. Last writer
// wins.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Open returns the store for backend rooted at path. The memory backend
// ignores path and keeps everything in an in-memory Badger database that
// is gone once the store is closed.
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStore(path), nil
	case BackendBadger:
		b, err := OpenBadger(path)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendMemory:
		b, err := OpenBadgerInMemory()
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", backend)
	}
}
