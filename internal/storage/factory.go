package storage

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/arlofn/provider/internal/common/config"
)

// NewStore creates an entity store based on configuration.
func NewStore(logger *zap.Logger, cfg *config.StorageConfig) (Store, error) {
	logger.Info("Initializing entity store", zap.String("type", cfg.Type))
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(&cfg.Redis)
	case "sqlite":
		return NewSQLite(&cfg.Database)
	case "mysql":
		return NewMySQL(&cfg.Database)
	case "postgres":
		return NewPostgres(&cfg.Database)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
