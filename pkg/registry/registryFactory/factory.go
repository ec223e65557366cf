package registryFactory

import (
	"fmt"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/config"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/registry"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/registry/badger"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/registry/memory"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/registry/redis"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/registry/sql"
	"go.uber.org/zap"
)

// NewVerificationRegistry opens the backend selected by cfg.
func NewVerificationRegistry(cfg *config.RegistryConfig, logger *zap.Logger) (registry.IVerificationRegistry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid registry config: %w", err)
	}

	switch cfg.Type {
	case config.RegistryTypeMemory:
		logger.Sugar().Warnw("Using in-memory verification registry; replay state is lost on restart")
		return memory.NewMemoryRegistry(), nil
	case config.RegistryTypeBadger:
		return badger.NewBadgerRegistry(cfg.BadgerPath, logger)
	case config.RegistryTypeRedis:
		return redis.NewRedisRegistry(&redis.RedisConfig{
			Address:   cfg.RedisAddress,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisPrefix,
		}, logger)
	case config.RegistryTypeSQL:
		return sql.NewSQLRegistry(&sql.SQLConfig{
			Driver: string(cfg.SQLDriver),
			DSN:    cfg.SQLDSN,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported registry type: %s", cfg.Type)
	}
}
