package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/registry"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Key prefixes for namespacing in Redis
const (
	keyPrefixVerification = "sigkit:verification:"
	keyPrefixSignerIndex  = "sigkit:signer:"
	keySchemaVersion      = "sigkit:metadata:schema_version"
	currentSchemaVersion  = "v1"

	defaultTimeout = 5 * time.Second
)

// RedisRegistry is an IVerificationRegistry backed by Redis, suitable for sharing
// replay state between several service replicas.
type RedisRegistry struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

var _ registry.IVerificationRegistry = (*RedisRegistry)(nil)

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is prepended to every key, for sharing one database between deployments.
	KeyPrefix string
}

func NewRedisRegistry(cfg *RedisConfig, logger *zap.Logger) (*RedisRegistry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rr := &RedisRegistry{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rr.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis verification registry initialized",
		"address", cfg.Address,
		"db", cfg.DB,
		"key_prefix", cfg.KeyPrefix,
	)
	return rr, nil
}

func (r *RedisRegistry) prefixKey(key string) string {
	return r.keyPrefix + key
}

func (r *RedisRegistry) verificationKey(sigKey string) string {
	return r.prefixKey(keyPrefixVerification + sigKey)
}

func (r *RedisRegistry) signerIndexKey(signer string) string {
	return r.prefixKey(keyPrefixSignerIndex + strings.ToLower(signer))
}

func (r *RedisRegistry) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if errors.Is(err, redis.Nil) {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}
	return nil
}

func (r *RedisRegistry) RecordVerification(rec *registry.VerificationRecord) (bool, error) {
	key, prepared, err := registry.Prepare(rec)
	if err != nil {
		return false, err
	}
	data, err := registry.MarshalVerificationRecord(prepared)
	if err != nil {
		return false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false, registry.ErrRegistryClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	// SETNX decides the first sighting atomically across replicas.
	firstSeen, err := r.client.SetNX(ctx, r.verificationKey(key), data, 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record verification: %w", err)
	}
	if !firstSeen {
		return false, nil
	}
	if err := r.client.SAdd(ctx, r.signerIndexKey(prepared.Signer), key).Err(); err != nil {
		return true, fmt.Errorf("failed to index verification by signer: %w", err)
	}
	return true, nil
}

func (r *RedisRegistry) GetVerification(signatureHex string) (*registry.VerificationRecord, error) {
	key, err := registry.CanonicalSignatureKey(signatureHex)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, registry.ErrRegistryClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.verificationKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load verification: %w", err)
	}
	return registry.UnmarshalVerificationRecord(data)
}

func (r *RedisRegistry) ListVerificationsBySigner(signer string) ([]*registry.VerificationRecord, error) {
	normalized, err := registry.NormalizeSigner(signer)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, registry.ErrRegistryClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	indexKey := r.signerIndexKey(normalized)
	sigKeys, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list verification keys: %w", err)
	}
	recs := make([]*registry.VerificationRecord, 0, len(sigKeys))
	if len(sigKeys) == 0 {
		return recs, nil
	}

	keys := make([]string, len(sigKeys))
	for i, sigKey := range sigKeys {
		keys[i] = r.verificationKey(sigKey)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch verifications: %w", err)
	}

	for i, val := range values {
		if val == nil {
			// Index entry without a record; clean it up.
			r.client.SRem(ctx, indexKey, sigKeys[i])
			continue
		}
		data, ok := val.(string)
		if !ok {
			r.logger.Sugar().Warnw("Unexpected value type for VerificationRecord", "key", keys[i])
			continue
		}
		rec, err := registry.UnmarshalVerificationRecord([]byte(data))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal VerificationRecord, skipping",
				"key", keys[i], "error", err)
			continue
		}
		recs = append(recs, rec)
	}

	registry.SortByVerifiedAt(recs)
	return recs, nil
}

func (r *RedisRegistry) DeleteVerification(signatureHex string) error {
	key, err := registry.CanonicalSignatureKey(signatureHex)
	if err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return registry.ErrRegistryClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.verificationKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load verification: %w", err)
	}
	rec, err := registry.UnmarshalVerificationRecord(data)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.verificationKey(key))
	pipe.SRem(ctx, r.signerIndexKey(rec.Signer), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete verification: %w", err)
	}
	return nil
}

func (r *RedisRegistry) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return registry.ErrRegistryClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	_, err := r.client.Get(ctx, r.prefixKey(keySchemaVersion)).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis verification registry closed")
	return nil
}
