package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mintresearch/agent-engine/repositories"
	"go.uber.org/zap"
)

var (
	_ repositories.MemoryRepository   = (*MemoryRepository)(nil)
	_ repositories.TransactionManager = (*TransactionManager)(nil)
)

// MemoryRepository implements repositories.MemoryRepository on the agent_memory table
type MemoryRepository struct {
	db     *DB
	txMgr  *TransactionManager
	logger *zap.Logger
}

// NewMemoryRepository creates a new memory repository
func NewMemoryRepository(db *DB, logger *zap.Logger) *MemoryRepository {
	return &MemoryRepository{
		db:     db,
		txMgr:  NewTransactionManager(db, logger),
		logger: logger,
	}
}

// Get retrieves the value stored under key
func (r *MemoryRepository) Get(ctx context.Context, key string) (json.RawMessage, error) {
	query := `
		SELECT data
		FROM agent_memory
		WHERE key = $1 AND data IS NOT NULL
	`

	var data []byte
	executor := GetExecutor(ctx, r.db)
	if err := executor.QueryRowContext(ctx, query, key).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrMemoryNotFound
		}
		return nil, fmt.Errorf("failed to get memory %s: %w", key, err)
	}

	return json.RawMessage(data), nil
}

// Put stores value under key
func (r *MemoryRepository) Put(ctx context.Context, key string, value json.RawMessage) error {
	query := `
		INSERT INTO agent_memory (key, data, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, key, []byte(value), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to put memory %s: %w", key, err)
	}

	r.logger.Debug("memory stored", zap.String("key", key))
	return nil
}

// Update runs fn under a row lock on key. A placeholder row is inserted first
// so that concurrent updates of a key that does not exist yet also serialize.
func (r *MemoryRepository) Update(ctx context.Context, key string, fn repositories.UpdateFunc) error {
	return r.txMgr.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) error {
		executor := GetExecutor(txCtx, r.db)

		if _, err := executor.ExecContext(txCtx, `
			INSERT INTO agent_memory (key, data, updated_at)
			VALUES ($1, NULL, $2)
			ON CONFLICT (key) DO NOTHING
		`, key, time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to reserve memory %s: %w", key, err)
		}

		var data []byte
		if err := executor.QueryRowContext(txCtx, `
			SELECT data
			FROM agent_memory
			WHERE key = $1
			FOR UPDATE
		`, key).Scan(&data); err != nil {
			return fmt.Errorf("failed to lock memory %s: %w", key, err)
		}

		next, err := fn(json.RawMessage(data), data != nil)
		if err != nil {
			return err
		}

		if _, err := executor.ExecContext(txCtx, `
			UPDATE agent_memory
			SET data = $2, updated_at = $3
			WHERE key = $1
		`, key, []byte(next), time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to update memory %s: %w", key, err)
		}

		r.logger.Debug("memory updated", zap.String("key", key))
		return nil
	})
}

// Keys lists the stored keys in ascending order
func (r *MemoryRepository) Keys(ctx context.Context) ([]string, error) {
	query := `
		SELECT key
		FROM agent_memory
		WHERE data IS NOT NULL
		ORDER BY key
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list memory keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan memory key: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memory keys: %w", err)
	}

	return keys, nil
}

// Ping reports whether the database is reachable
func (r *MemoryRepository) Ping(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// Close closes the underlying pool
func (r *MemoryRepository) Close() error {
	return r.db.Close()
}
