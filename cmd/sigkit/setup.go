package main

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/eigenx-sigkit/internal/aws"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/clients/web3signer"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/config"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/logger"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/signer"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/signer/awsKmsSigner"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/signer/inMemorySigner"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/signer/web3Signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// loadEnvFile loads --env-file into the process environment before flags read it.
func loadEnvFile(c *cli.Context) error {
	path := c.String("env-file")
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// loadConfig layers the config file, the environment and command flags, in that order.
func loadConfig(c *cli.Context) (*config.SigkitConfig, error) {
	cfg := config.NewDefaultSigkitConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.LoadConfigFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnvironment(); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if c.IsSet("debug") {
		cfg.Debug = c.Bool("debug")
	}
	if c.IsSet("signer") {
		cfg.Signer.Type = config.SignerType(c.String("signer"))
	}
	if c.IsSet("private-key") {
		cfg.Signer.Local = &config.LocalSignerConfig{PrivateKey: c.String("private-key")}
	}
	if c.IsSet("kms-key-id") || c.IsSet("aws-region") || c.IsSet("aws-profile") {
		if cfg.Signer.AWSKMS == nil {
			cfg.Signer.AWSKMS = &config.AWSKMSSignerConfig{}
		}
		if c.IsSet("kms-key-id") {
			cfg.Signer.AWSKMS.KeyId = c.String("kms-key-id")
		}
		if c.IsSet("aws-region") {
			cfg.Signer.AWSKMS.Region = c.String("aws-region")
		}
		if c.IsSet("aws-profile") {
			cfg.Signer.AWSKMS.Profile = c.String("aws-profile")
		}
	}
	if c.IsSet("web3signer-url") || c.IsSet("from-address") {
		if cfg.Signer.Remote == nil {
			cfg.Signer.Remote = &config.RemoteSignerConfig{}
		}
		if c.IsSet("web3signer-url") {
			cfg.Signer.Remote.Url = c.String("web3signer-url")
		}
		if c.IsSet("from-address") {
			cfg.Signer.Remote.FromAddress = c.String("from-address")
		}
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	if c.IsSet("registry") {
		cfg.Registry.Type = config.RegistryType(c.String("registry"))
	}

	return cfg, nil
}

func newLogger(cfg *config.SigkitConfig) (*zap.Logger, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return l, nil
}

// buildSigner constructs the configured signer and wraps it so every signature is
// checked against the signer's address. Returns nil when no signer is configured.
func buildSigner(ctx context.Context, cfg *config.SignerConfig, l *zap.Logger) (signer.ISigner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid signer configuration: %w", err)
	}

	var s signer.ISigner
	switch cfg.Type {
	case config.SignerTypeNone:
		return nil, nil
	case config.SignerTypeLocal:
		local, err := inMemorySigner.NewInMemorySignerFromHex(cfg.Local.PrivateKey, l)
		if err != nil {
			return nil, fmt.Errorf("failed to load local signer: %w", err)
		}
		s = local
	case config.SignerTypeAWSKMS:
		awsCfg, err := aws.LoadAWSConfig(ctx, cfg.AWSKMS.Region, cfg.AWSKMS.Profile)
		if err != nil {
			return nil, err
		}
		if arn, err := aws.GetCallerIdentity(ctx, awsCfg); err != nil {
			l.Sugar().Warnw("Could not determine AWS caller identity", "error", err)
		} else {
			l.Sugar().Infow("Signing through AWS KMS", "caller_arn", arn, "key_id", cfg.AWSKMS.KeyId)
		}
		kmsSigner, err := awsKmsSigner.NewAWSKMSSigner(ctx, awsCfg, cfg.AWSKMS.KeyId, l)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS KMS signer: %w", err)
		}
		s = kmsSigner
	case config.SignerTypeWeb3Signer:
		client, err := web3signer.NewWeb3SignerClientFromRemoteSignerConfig(cfg.Remote, l)
		if err != nil {
			return nil, fmt.Errorf("failed to create web3signer client: %w", err)
		}
		if err := client.Upcheck(ctx); err != nil {
			return nil, fmt.Errorf("web3signer is not reachable: %w", err)
		}
		if cfg.Remote.FromAddress != "" {
			s = web3Signer.NewWeb3Signer(client, common.HexToAddress(cfg.Remote.FromAddress), l)
		} else if s, err = web3Signer.NewWeb3SignerForFirstAccount(ctx, client, l); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported signer type: %s", cfg.Type)
	}

	l.Sugar().Debugw("Signer ready", "type", cfg.Type, "address", s.Address().Hex())
	return signer.NewCheckedSigner(s, l), nil
}
