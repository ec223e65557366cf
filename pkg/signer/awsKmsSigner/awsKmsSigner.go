package awsKmsSigner

import (
	"context"
	cryptoEcdsa "crypto/ecdsa"
	"encoding/asn1"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/digest"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/hash"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/signature"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/signer"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// KMSClient is the subset of the AWS KMS API used for signing.
type KMSClient interface {
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
}

// AWSKMSSigner signs digests with an ECC_SECG_P256K1 key held in AWS KMS. The private
// key never leaves KMS; KMS returns DER signatures without a recovery id, so the id is
// found by trial recovery against the key's public half.
type AWSKMSSigner struct {
	logger    *zap.Logger
	kmsClient KMSClient
	keyId     string
	publicKey *cryptoEcdsa.PublicKey
	address   common.Address
}

var _ signer.IDigestSigner = (*AWSKMSSigner)(nil)

func NewAWSKMSSigner(ctx context.Context, awsCfg aws.Config, keyId string, logger *zap.Logger) (*AWSKMSSigner, error) {
	return NewAWSKMSSignerWithClient(ctx, kms.NewFromConfig(awsCfg), keyId, logger)
}

func NewAWSKMSSignerWithClient(ctx context.Context, kmsClient KMSClient, keyId string, logger *zap.Logger) (*AWSKMSSigner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	kmsPubKey, err := kmsClient.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(keyId)})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get public key for key %s", keyId)
	}

	pubKey, err := ParsePublicKeyDER(kmsPubKey.PublicKey)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse public key for key %s", keyId)
	}

	address := signature.IdentityFromPublicKey(pubKey)
	logger.Sugar().Infow("Loaded AWS KMS signing key",
		"keyId", keyId,
		"address", address.Hex(),
	)

	return &AWSKMSSigner{
		logger:    logger,
		kmsClient: kmsClient,
		keyId:     keyId,
		publicKey: pubKey,
		address:   address,
	}, nil
}

func (a *AWSKMSSigner) Address() common.Address {
	return a.address
}

func (a *AWSKMSSigner) KeyId() string {
	return a.keyId
}

func (a *AWSKMSSigner) SignPersonalMessage(ctx context.Context, payload []byte) (*signature.Signature, error) {
	return signer.SignPersonalMessageWithDigest(ctx, a, payload)
}

func (a *AWSKMSSigner) SignTypedData(ctx context.Context, typedData *digest.TypedData) (*signature.Signature, error) {
	return signer.SignTypedDataWithDigest(ctx, a, typedData)
}

// SignDigest asks KMS to sign d, normalises s to the lower half of the curve order and
// attaches the recovery id that recovers the KMS public key.
func (a *AWSKMSSigner) SignDigest(ctx context.Context, d hash.Digest) (*signature.Signature, error) {
	signOutput, err := a.kmsClient.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(a.keyId),
		Message:          d.Bytes(),
		SigningAlgorithm: types.SigningAlgorithmSpecEcdsaSha256,
		MessageType:      types.MessageTypeDigest,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to sign digest with key %s", a.keyId)
	}

	var sigAsn1 asn1EcSig
	if _, err := asn1.Unmarshal(signOutput.Signature, &sigAsn1); err != nil {
		return nil, errors.Wrapf(err, "failed to parse DER signature from key %s", a.keyId)
	}

	r := new(big.Int).SetBytes(sigAsn1.R.Bytes)
	s := new(big.Int).SetBytes(sigAsn1.S.Bytes)

	// KMS does not enforce low-S.
	if s.Cmp(secp256k1HalfN) > 0 {
		s = new(big.Int).Sub(secp256k1N, s)
	}

	for recoveryId := byte(0); recoveryId < 2; recoveryId++ {
		candidate, err := signature.FromValues(r, s, signature.LegacyVOffset+recoveryId)
		if err != nil {
			return nil, errors.Wrapf(err, "KMS returned an out of range signature for key %s", a.keyId)
		}
		recovered, err := signature.RecoverPublicKey(d, candidate)
		if err != nil {
			a.logger.Debug("Recovery failed",
				zap.Uint8("recoveryId", recoveryId),
				zap.Error(err),
			)
			continue
		}
		if recovered.X.Cmp(a.publicKey.X) == 0 && recovered.Y.Cmp(a.publicKey.Y) == 0 {
			return candidate, nil
		}
	}
	return nil, fmt.Errorf("could not determine recovery id for signature from key %s", a.keyId)
}

// ParsePublicKeyDER parses the DER-encoded SubjectPublicKeyInfo returned by KMS GetPublicKey.
func ParsePublicKeyDER(derBytes []byte) (*cryptoEcdsa.PublicKey, error) {
	var asn1pubk asn1EcPublicKey
	if _, err := asn1.Unmarshal(derBytes, &asn1pubk); err != nil {
		return nil, fmt.Errorf("failed to parse ASN.1 public key: %w", err)
	}
	return crypto.UnmarshalPubkey(asn1pubk.PublicKey.Bytes)
}

var (
	secp256k1N, _  = new(big.Int).SetString("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141", 16)
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

type asn1EcSig struct {
	R asn1.RawValue
	S asn1.RawValue
}

type asn1EcPublicKey struct {
	EcPublicKeyInfo asn1EcPublicKeyInfo
	PublicKey       asn1.BitString
}

type asn1EcPublicKeyInfo struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.ObjectIdentifier
}
