package keyGenerator

import (
	"context"
	"crypto/ecdsa"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/codec"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// GeneratedKey describes a secp256k1 signing key. The private half is only
// reachable through the generator that created it.
type GeneratedKey struct {
	KeyId     string
	Address   common.Address
	PublicKey *ecdsa.PublicKey
}

// PublicKeyHex returns the uncompressed public key with its 0x04 prefix.
func (gk *GeneratedKey) PublicKeyHex() string {
	return codec.BytesToHex(crypto.FromECDSAPub(gk.PublicKey))
}

// PublicKeyHexUnprefixed returns the 64-byte public key without the 0x04 prefix,
// the form Web3Signer lists keys in.
func (gk *GeneratedKey) PublicKeyHexUnprefixed() string {
	return codec.BytesToHex(crypto.FromECDSAPub(gk.PublicKey)[1:])
}

type IKeyGenerator interface {
	GenerateKey(ctx context.Context, keyName string, aliasName string) (*GeneratedKey, error)
	GetKey(ctx context.Context, keyId string) (*GeneratedKey, error)
	// Signer returns a signer backed by the key.
	Signer(ctx context.Context, keyId string) (signer.IDigestSigner, error)
}
