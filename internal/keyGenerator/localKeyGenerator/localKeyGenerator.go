package localKeyGenerator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Layr-Labs/eigenx-sigkit/internal/keyGenerator"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/codec"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/signature"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/signer"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/signer/inMemorySigner"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type keyEntry struct {
	privateKeyHex string
	key           *keyGenerator.GeneratedKey
}

// LocalKeyGenerator creates keys in process memory.
type LocalKeyGenerator struct {
	logger   *zap.Logger
	keyStore map[string]*keyEntry // keyId -> keyEntry
	mu       sync.RWMutex
}

var _ keyGenerator.IKeyGenerator = (*LocalKeyGenerator)(nil)

func NewLocalKeyGenerator(logger *zap.Logger) *LocalKeyGenerator {
	return &LocalKeyGenerator{
		logger:   logger,
		keyStore: make(map[string]*keyEntry),
	}
}

func (l *LocalKeyGenerator) GenerateKey(ctx context.Context, keyName string, aliasName string) (*keyGenerator.GeneratedKey, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDSA key: %w", err)
	}

	keyId := fmt.Sprintf("local-key-%s", uuid.New().String())
	if err := l.LoadPrivateKeyFromHex(keyId, codec.BytesToHex(crypto.FromECDSA(privateKey)), keyName, aliasName); err != nil {
		return nil, err
	}
	return l.GetKey(ctx, keyId)
}

// LoadPrivateKeyFromHex stores an existing private key under keyId. The 0x prefix is optional.
func (l *LocalKeyGenerator) LoadPrivateKeyFromHex(keyId string, privateKeyHex string, keyName string, aliasName string) error {
	if !strings.HasPrefix(privateKeyHex, "0x") {
		privateKeyHex = "0x" + privateKeyHex
	}
	keyBytes, err := codec.HexToBytes(privateKeyHex)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}
	privateKey, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.keyStore[keyId]; exists {
		return fmt.Errorf("key with ID %s already exists", keyId)
	}
	key := &keyGenerator.GeneratedKey{
		KeyId:     keyId,
		Address:   signature.IdentityFromPublicKey(&privateKey.PublicKey),
		PublicKey: &privateKey.PublicKey,
	}
	l.keyStore[keyId] = &keyEntry{
		privateKeyHex: codec.BytesToHex(crypto.FromECDSA(privateKey)),
		key:           key,
	}

	l.logger.Info("Loaded local ECDSA key",
		zap.String("keyName", keyName),
		zap.String("aliasName", aliasName),
		zap.String("keyId", keyId),
		zap.String("address", key.Address.Hex()),
	)
	return nil
}

func (l *LocalKeyGenerator) GetKey(ctx context.Context, keyId string) (*keyGenerator.GeneratedKey, error) {
	entry, err := l.lookup(keyId)
	if err != nil {
		return nil, err
	}
	out := *entry.key
	return &out, nil
}

// PrivateKeyHex exports the private key of keyId.
func (l *LocalKeyGenerator) PrivateKeyHex(keyId string) (string, error) {
	entry, err := l.lookup(keyId)
	if err != nil {
		return "", err
	}
	return entry.privateKeyHex, nil
}

func (l *LocalKeyGenerator) Signer(ctx context.Context, keyId string) (signer.IDigestSigner, error) {
	entry, err := l.lookup(keyId)
	if err != nil {
		return nil, err
	}
	return inMemorySigner.NewInMemorySignerFromHex(entry.privateKeyHex, l.logger)
}

func (l *LocalKeyGenerator) lookup(keyId string) (*keyEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, exists := l.keyStore[keyId]
	if !exists {
		return nil, fmt.Errorf("key with ID %s not found", keyId)
	}
	return entry, nil
}
