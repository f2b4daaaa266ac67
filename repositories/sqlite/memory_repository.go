package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mintresearch/agent-engine/repositories"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver
)

var _ repositories.MemoryRepository = (*MemoryRepository)(nil)

// MemoryRepository implements repositories.MemoryRepository on a local SQLite file
type MemoryRepository struct {
	db     *sql.DB
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewMemoryRepository opens (or creates) the database at path
func NewMemoryRepository(path string, logger *zap.Logger) (*MemoryRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	r := &MemoryRepository{
		db:     db,
		path:   path,
		logger: logger,
	}

	if err := r.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("sqlite memory store opened", zap.String("path", path))
	return r, nil
}

func (r *MemoryRepository) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS agent_memory (
		key TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`

	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// Get retrieves the value stored under key
func (r *MemoryRepository) Get(ctx context.Context, key string) (json.RawMessage, error) {
	data, found, err := r.load(ctx, r.db, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, repositories.ErrMemoryNotFound
	}
	return data, nil
}

// Put stores value under key
func (r *MemoryRepository) Put(ctx context.Context, key string, value json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.save(ctx, r.db, key, value)
}

// Update runs fn inside a transaction on the single connection
func (r *MemoryRepository) Update(ctx context.Context, key string, fn repositories.UpdateFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, found, err := r.load(ctx, tx, key)
	if err != nil {
		return err
	}

	next, err := fn(current, found)
	if err != nil {
		return err
	}

	if err := r.save(ctx, tx, key, next); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Debug("memory updated", zap.String("key", key))
	return nil
}

// Keys lists the stored keys in ascending order
func (r *MemoryRepository) Keys(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key FROM agent_memory ORDER BY key`)
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
	return keys, rows.Err()
}

// Ping reports whether the database file is usable
func (r *MemoryRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite health check failed: %w", err)
	}
	return nil
}

// Close closes the database
func (r *MemoryRepository) Close() error {
	return r.db.Close()
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (r *MemoryRepository) load(ctx context.Context, q queryer, key string) (json.RawMessage, bool, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT data FROM agent_memory WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get memory %s: %w", key, err)
	}
	return json.RawMessage(data), true, nil
}

func (r *MemoryRepository) save(ctx context.Context, q queryer, key string, value json.RawMessage) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO agent_memory (key, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`, key, string(value), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to put memory %s: %w", key, err)
	}
	return nil
}
