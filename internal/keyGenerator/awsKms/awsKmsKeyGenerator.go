package awsKms

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/eigenx-sigkit/internal/keyGenerator"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/signature"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/signer"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/signer/awsKmsSigner"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// KMSClient is the subset of the AWS KMS API used to provision and use signing keys.
type KMSClient interface {
	awsKmsSigner.KMSClient
	CreateKey(ctx context.Context, params *kms.CreateKeyInput, optFns ...func(*kms.Options)) (*kms.CreateKeyOutput, error)
	CreateAlias(ctx context.Context, params *kms.CreateAliasInput, optFns ...func(*kms.Options)) (*kms.CreateAliasOutput, error)
}

type AWSKMSKeyGenerator struct {
	logger      *zap.Logger
	kmsClient   KMSClient
	awsRegion   string
	environment string
}

var _ keyGenerator.IKeyGenerator = (*AWSKMSKeyGenerator)(nil)

// NewAWSKMSKeyGenerator creates keys in the region of awsCfg. environment is recorded
// as a tag on every key, typically the chain name.
func NewAWSKMSKeyGenerator(awsCfg aws.Config, environment string, logger *zap.Logger) *AWSKMSKeyGenerator {
	return NewAWSKMSKeyGeneratorWithClient(kms.NewFromConfig(awsCfg), awsCfg.Region, environment, logger)
}

func NewAWSKMSKeyGeneratorWithClient(client KMSClient, awsRegion string, environment string, logger *zap.Logger) *AWSKMSKeyGenerator {
	return &AWSKMSKeyGenerator{
		logger:      logger,
		kmsClient:   client,
		awsRegion:   awsRegion,
		environment: environment,
	}
}

func (a *AWSKMSKeyGenerator) GenerateKey(ctx context.Context, keyName string, aliasName string) (*keyGenerator.GeneratedKey, error) {
	keyRes, err := a.createSigningKey(ctx, keyName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create ECDSA key %s in region %s", keyName, a.awsRegion)
	}
	keyId := aws.ToString(keyRes.KeyMetadata.KeyId)

	if aliasName != "" {
		if err := a.createKeyAlias(ctx, keyId, aliasName); err != nil {
			return nil, errors.Wrapf(err, "failed to create alias %s for key %s in region %s", aliasName, keyId, a.awsRegion)
		}
	}

	return a.GetKey(ctx, keyId)
}

func (a *AWSKMSKeyGenerator) GetKey(ctx context.Context, keyId string) (*keyGenerator.GeneratedKey, error) {
	kmsPubKey, err := a.kmsClient.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(keyId)})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get public key for key %s in region %s", keyId, a.awsRegion)
	}
	if kmsPubKey.KeySpec != "" && kmsPubKey.KeySpec != types.KeySpecEccSecgP256k1 {
		return nil, fmt.Errorf("key %s has spec %s, expected %s", keyId, kmsPubKey.KeySpec, types.KeySpecEccSecgP256k1)
	}

	pubKey, err := awsKmsSigner.ParsePublicKeyDER(kmsPubKey.PublicKey)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse public key for key %s in region %s", keyId, a.awsRegion)
	}

	return &keyGenerator.GeneratedKey{
		KeyId:     keyId,
		Address:   signature.IdentityFromPublicKey(pubKey),
		PublicKey: pubKey,
	}, nil
}

func (a *AWSKMSKeyGenerator) Signer(ctx context.Context, keyId string) (signer.IDigestSigner, error) {
	return awsKmsSigner.NewAWSKMSSignerWithClient(ctx, a.kmsClient, keyId, a.logger)
}

// createSigningKey creates an ECC_SECG_P256K1 sign/verify key, the curve Ethereum signatures use.
func (a *AWSKMSKeyGenerator) createSigningKey(ctx context.Context, keyName string) (*kms.CreateKeyOutput, error) {
	input := &kms.CreateKeyInput{
		KeyUsage:    types.KeyUsageTypeSignVerify,
		KeySpec:     types.KeySpecEccSecgP256k1,
		Description: aws.String(fmt.Sprintf("ECDSA key for Ethereum message signing - %s", keyName)),
		Tags: []types.Tag{
			{TagKey: aws.String("Name"), TagValue: aws.String(keyName)},
			{TagKey: aws.String("Environment"), TagValue: aws.String(a.environment)},
			{TagKey: aws.String("Purpose"), TagValue: aws.String("message-signing")},
			{TagKey: aws.String("KeyType"), TagValue: aws.String("ECDSA")},
			{TagKey: aws.String("Curve"), TagValue: aws.String("secp256k1")},
		},
	}

	result, err := a.kmsClient.CreateKey(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create KMS key: %w", err)
	}
	if result.KeyMetadata == nil || result.KeyMetadata.KeyId == nil {
		return nil, fmt.Errorf("KMS returned no key id")
	}
	return result, nil
}

func (a *AWSKMSKeyGenerator) createKeyAlias(ctx context.Context, keyId, aliasName string) error {
	_, err := a.kmsClient.CreateAlias(ctx, &kms.CreateAliasInput{
		AliasName:   aws.String(fmt.Sprintf("alias/%s", aliasName)),
		TargetKeyId: aws.String(keyId),
	})
	if err != nil {
		return fmt.Errorf("failed to create key alias: %w", err)
	}

	a.logger.Sugar().Infow("Created key alias", "alias", "alias/"+aliasName, "key_id", keyId)
	return nil
}
