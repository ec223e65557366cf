package badger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/registry"
	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// Key prefixes for namespacing
const (
	keyPrefixVerification = "verification:"
	keyPrefixSigner       = "signer:"
	keySchemaVersion      = "metadata:schema_version"
	currentSchemaVersion  = "v1"

	maxConflictRetries = 5
)

// BadgerRegistry is a durable, disk-based IVerificationRegistry.
type BadgerRegistry struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

var _ registry.IVerificationRegistry = (*BadgerRegistry)(nil)

// NewBadgerRegistry opens a Badger database at dataPath with SyncWrites enabled.
// A background goroutine runs value log garbage collection.
func NewBadgerRegistry(dataPath string, logger *zap.Logger) (*BadgerRegistry, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = newBadgerLogger(logger)
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	br := &BadgerRegistry{
		db:     db,
		logger: logger,
	}

	if err := br.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	br.gcCancel = cancel
	br.gcWg.Add(1)
	go br.runGC(ctx)

	logger.Sugar().Infow("Badger verification registry initialized", "path", absPath)

	return br, nil
}

func (b *BadgerRegistry) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}
		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}
		return nil
	})
}

func (b *BadgerRegistry) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badgerdb.ErrNoRewrite) {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func verificationKey(sigKey string) []byte {
	return []byte(keyPrefixVerification + sigKey)
}

func signerKey(signer, sigKey string) []byte {
	return []byte(keyPrefixSigner + strings.ToLower(signer) + ":" + sigKey)
}

func (b *BadgerRegistry) RecordVerification(rec *registry.VerificationRecord) (bool, error) {
	key, prepared, err := registry.Prepare(rec)
	if err != nil {
		return false, err
	}
	data, err := registry.MarshalVerificationRecord(prepared)
	if err != nil {
		return false, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false, registry.ErrRegistryClosed
	}

	for attempt := 0; ; attempt++ {
		firstSeen := false
		err = b.db.Update(func(txn *badgerdb.Txn) error {
			_, err := txn.Get(verificationKey(key))
			if err == nil {
				return nil
			}
			if !errors.Is(err, badgerdb.ErrKeyNotFound) {
				return err
			}
			if err := txn.Set(verificationKey(key), data); err != nil {
				return err
			}
			if err := txn.Set(signerKey(prepared.Signer, key), nil); err != nil {
				return err
			}
			firstSeen = true
			return nil
		})
		// A concurrent writer committed the same key first; the retry observes it.
		if errors.Is(err, badgerdb.ErrConflict) && attempt < maxConflictRetries {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to record verification: %w", err)
		}
		return firstSeen, nil
	}
}

func (b *BadgerRegistry) GetVerification(signatureHex string) (*registry.VerificationRecord, error) {
	key, err := registry.CanonicalSignatureKey(signatureHex)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, registry.ErrRegistryClosed
	}

	var data []byte
	err = b.db.View(func(txn *badgerdb.Txn) error {
		var err error
		data, err = getValue(txn, verificationKey(key))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load verification: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	return registry.UnmarshalVerificationRecord(data)
}

// getValue returns a copy of the value at key, or nil when the key is absent.
func getValue(txn *badgerdb.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (b *BadgerRegistry) ListVerificationsBySigner(signer string) ([]*registry.VerificationRecord, error) {
	normalized, err := registry.NormalizeSigner(signer)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, registry.ErrRegistryClosed
	}

	prefix := []byte(keyPrefixSigner + strings.ToLower(normalized) + ":")
	recs := make([]*registry.VerificationRecord, 0)
	err = b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			sigKey := strings.TrimPrefix(string(it.Item().Key()), string(prefix))
			data, err := getValue(txn, verificationKey(sigKey))
			if err != nil {
				return err
			}
			if data == nil {
				continue
			}
			rec, err := registry.UnmarshalVerificationRecord(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal VerificationRecord, skipping",
					"key", sigKey, "error", err)
				continue
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list verifications: %w", err)
	}

	registry.SortByVerifiedAt(recs)
	return recs, nil
}

func (b *BadgerRegistry) DeleteVerification(signatureHex string) error {
	key, err := registry.CanonicalSignatureKey(signatureHex)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return registry.ErrRegistryClosed
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		data, err := getValue(txn, verificationKey(key))
		if err != nil || data == nil {
			return err
		}
		rec, err := registry.UnmarshalVerificationRecord(data)
		if err != nil {
			return err
		}
		if err := txn.Delete(signerKey(rec.Signer, key)); err != nil {
			return err
		}
		return txn.Delete(verificationKey(key))
	})
}

func (b *BadgerRegistry) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return registry.ErrRegistryClosed
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err != nil {
			return fmt.Errorf("schema version not readable: %w", err)
		}
		return nil
	})
}

func (b *BadgerRegistry) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.gcCancel()
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger verification registry closed")
	return nil
}
