// Package storage provides database abstractions.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("key not found")
	// ErrConflict is returned when a transaction lost a race with a
	// concurrent commit. The whole transaction may be re-run.
	ErrConflict = errors.New("transaction conflict")
	// ErrReadOnly is returned by writes inside a View transaction.
	ErrReadOnly = errors.New("read-only transaction")
)

// Reader is the read half of DB and Txn.
type Reader interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix.
	// The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
}

// Txn is a unit of reads and buffered writes that commits atomically.
type Txn interface {
	Reader
	Put(key, value []byte) error
	Delete(key []byte) error
}

// DB is the interface for key-value storage.
type DB interface {
	Reader
	Put(key, value []byte) error
	Delete(key []byte) error
	Close() error
}

// Transactional runs functions inside atomic transactions.
//
// Update commits every write made through the Txn or none of them. If a
// concurrent commit touched anything fn read, Update returns ErrConflict
// and nothing is written. View never writes.
type Transactional interface {
	Update(ctx context.Context, fn func(txn Txn) error) error
	View(ctx context.Context, fn func(txn Txn) error) error
}

// Store is a DB that also supports transactions.
type Store interface {
	DB
	Transactional
}

// IsConflict reports whether err is (or wraps) ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// prefixEnd returns the smallest key greater than every key starting with
// prefix, or nil when no such key exists (prefix is empty or all 0xff).
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
