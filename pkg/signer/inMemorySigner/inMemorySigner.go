package inMemorySigner

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/crypto-libs/pkg/ecdsa"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/codec"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/digest"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/hash"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/signature"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/signer"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// InMemorySigner signs with a secp256k1 key held in process memory.
type InMemorySigner struct {
	logger     *zap.Logger
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

var _ signer.IDigestSigner = (*InMemorySigner)(nil)

// NewInMemorySigner wraps privateKey. A nil logger is replaced by a no-op logger.
func NewInMemorySigner(privateKey *ecdsa.PrivateKey, logger *zap.Logger) (*InMemorySigner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	address, err := privateKey.DeriveAddress()
	if err != nil {
		return nil, fmt.Errorf("failed to derive address from private key: %w", err)
	}
	return &InMemorySigner{
		logger:     logger,
		privateKey: privateKey,
		address:    address,
	}, nil
}

// NewInMemorySignerFromHex loads a 32-byte private key given as hex, with or without 0x.
func NewInMemorySignerFromHex(privateKeyHex string, logger *zap.Logger) (*InMemorySigner, error) {
	if len(privateKeyHex) < 2 || privateKeyHex[:2] != "0x" {
		privateKeyHex = "0x" + privateKeyHex
	}
	keyBytes, err := codec.HexToBytes(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("error decoding private key: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(keyBytes))
	}
	key, err := ecdsa.NewPrivateKeyFromBytes(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("error loading private key: %w", err)
	}
	return NewInMemorySigner(key, logger)
}

// NewRandomInMemorySigner generates a fresh key. Intended for tests and demos.
func NewRandomInMemorySigner(logger *zap.Logger) (*InMemorySigner, error) {
	key, _, err := ecdsa.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDSA key: %w", err)
	}
	return NewInMemorySigner(key, logger)
}

func (s *InMemorySigner) Address() common.Address {
	return s.address
}

func (s *InMemorySigner) SignPersonalMessage(ctx context.Context, payload []byte) (*signature.Signature, error) {
	return signer.SignPersonalMessageWithDigest(ctx, s, payload)
}

func (s *InMemorySigner) SignTypedData(ctx context.Context, typedData *digest.TypedData) (*signature.Signature, error) {
	return signer.SignTypedDataWithDigest(ctx, s, typedData)
}

// SignDigest signs d and returns the signature with v set to 27 or 28.
func (s *InMemorySigner) SignDigest(ctx context.Context, d hash.Digest) (*signature.Signature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	packed, err := s.privateKey.SignAndPack([32]byte(d))
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}

	parsed, err := signature.Parse(packed)
	if err != nil {
		return nil, fmt.Errorf("private key produced an unparseable signature: %w", err)
	}
	normalized, err := parsed.Normalize()
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Signed digest",
		zap.String("address", s.address.Hex()),
		zap.String("digest", d.Hex()),
	)
	return normalized, nil
}
