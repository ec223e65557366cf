package registryFactory

import (
	"path/filepath"
	"testing"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/config"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/registry/badger"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/registry/memory"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/registry/redis"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/registry/sql"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func Test_NewVerificationRegistry(t *testing.T) {
	l := zap.NewNop()

	t.Run("Should open a memory registry", func(t *testing.T) {
		r, err := NewVerificationRegistry(&config.RegistryConfig{Type: config.RegistryTypeMemory}, l)
		require.NoError(t, err)
		defer func() { _ = r.Close() }()
		assert.IsType(t, &memory.MemoryRegistry{}, r)
	})

	t.Run("Should open a badger registry", func(t *testing.T) {
		r, err := NewVerificationRegistry(&config.RegistryConfig{Type: config.RegistryTypeBadger, BadgerPath: t.TempDir()}, l)
		require.NoError(t, err)
		defer func() { _ = r.Close() }()
		assert.IsType(t, &badger.BadgerRegistry{}, r)
	})

	t.Run("Should open a redis registry", func(t *testing.T) {
		mr := miniredis.RunT(t)
		r, err := NewVerificationRegistry(&config.RegistryConfig{Type: config.RegistryTypeRedis, RedisAddress: mr.Addr()}, l)
		require.NoError(t, err)
		defer func() { _ = r.Close() }()
		assert.IsType(t, &redis.RedisRegistry{}, r)
	})

	t.Run("Should open a sql registry", func(t *testing.T) {
		r, err := NewVerificationRegistry(&config.RegistryConfig{
			Type:      config.RegistryTypeSQL,
			SQLDriver: config.SQLDriverSqlite,
			SQLDSN:    filepath.Join(t.TempDir(), "r.db"),
		}, l)
		require.NoError(t, err)
		defer func() { _ = r.Close() }()
		assert.IsType(t, &sql.SQLRegistry{}, r)
	})

	t.Run("Should reject an invalid config", func(t *testing.T) {
		_, err := NewVerificationRegistry(&config.RegistryConfig{Type: "etcd"}, l)
		assert.Error(t, err)
	})
}
