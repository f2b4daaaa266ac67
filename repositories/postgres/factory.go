package postgres

import (
	"context"

	"github.com/mintresearch/agent-engine/config"
	"go.uber.org/zap"
)

// RepositoryFactory owns the connection pool behind the postgres repositories
type RepositoryFactory struct {
	db     *DB
	logger *zap.Logger
}

// NewRepositoryFactory connects to the database and prepares the schema
func NewRepositoryFactory(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &RepositoryFactory{db: db, logger: logger}, nil
}

// NewMemoryRepository creates the memory repository on the shared pool
func (f *RepositoryFactory) NewMemoryRepository() *MemoryRepository {
	return NewMemoryRepository(f.db, f.logger)
}

// Close closes the database connection
func (f *RepositoryFactory) Close() error {
	return f.db.Close()
}
