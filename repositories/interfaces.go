package repositories

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrMemoryNotFound is returned by Get when no value is stored under the key
var ErrMemoryNotFound = errors.New("memory key not found")

// UpdateFunc computes the next value of a key from its current value.
// found is false when the key has no stored value yet.
type UpdateFunc func(current json.RawMessage, found bool) (json.RawMessage, error)

// MemoryRepository is the shared key/value table behind the memory collaborator
type MemoryRepository interface {
	// Get retrieves the value stored under key or ErrMemoryNotFound
	Get(ctx context.Context, key string) (json.RawMessage, error)

	// Put stores value under key, replacing any previous value
	Put(ctx context.Context, key string, value json.RawMessage) error

	// Update runs a read-modify-write on key. Concurrent updates of the
	// same key are serialized so no update is lost.
	Update(ctx context.Context, key string, fn UpdateFunc) error

	// Keys lists the stored keys in ascending order
	Keys(ctx context.Context) ([]string, error)

	// Ping reports whether the backend is reachable
	Ping(ctx context.Context) error

	// Close releases the backend
	Close() error
}

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}
