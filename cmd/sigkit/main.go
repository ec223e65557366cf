package main

import (
	"fmt"
	"log"
	"os"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/config"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func messageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "message",
			Aliases: []string{"m"},
			Usage:   "Message as UTF-8 text",
		},
		&cli.StringFlag{
			Name:  "message-hex",
			Usage: "Message as 0x-prefixed hex bytes",
		},
	}
}

func typedDataFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "file",
		Aliases:  []string{"f"},
		Usage:    "Path to an eth_signTypedData_v4 JSON document",
		Required: true,
	}
}

func signatureFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "signature",
		Aliases:  []string{"sig"},
		Usage:    "65-byte signature as hex (r || s || v)",
		Required: true,
	}
}

func addressFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "address",
		Aliases:  []string{"a"},
		Usage:    "Expected signer address",
		Required: true,
	}
}

func registryFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "registry",
		Usage:   fmt.Sprintf("Replay registry backend: %s, %s, %s or %s", config.RegistryTypeMemory, config.RegistryTypeBadger, config.RegistryTypeRedis, config.RegistryTypeSQL),
		EnvVars: []string{config.EnvSigkitRegistry},
	}
}

func signerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "signer",
			Usage:   "Signer backend: local, aws-kms or web3signer",
			EnvVars: []string{config.EnvSigkitSigner},
		},
		&cli.StringFlag{
			Name:    "private-key",
			Usage:   "Private key (hex) for the local signer",
			EnvVars: []string{config.EnvPrivateKey},
		},
		&cli.StringFlag{
			Name:    "kms-key-id",
			Usage:   "AWS KMS key id or ARN for the aws-kms signer",
			EnvVars: []string{config.EnvSigkitKMSKeyID},
		},
		&cli.StringFlag{
			Name:    "aws-region",
			Usage:   "AWS region for the aws-kms signer",
			EnvVars: []string{config.EnvSigkitAWSRegion},
		},
		&cli.StringFlag{
			Name:    "aws-profile",
			Usage:   "AWS shared config profile",
			EnvVars: []string{config.EnvSigkitAWSProfile},
		},
		&cli.StringFlag{
			Name:    "web3signer-url",
			Usage:   "Web3Signer base URL",
			EnvVars: []string{config.EnvSigkitW3SURL},
		},
		&cli.StringFlag{
			Name:    "from-address",
			Usage:   "Web3Signer account to sign as (default: first account)",
			EnvVars: []string{config.EnvSigkitW3SAddress},
		},
	}
}

func withFlags(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "sigkit",
		Usage: "Ethereum message digests, signing and signature recovery",
		Description: `Builds the digests that Ethereum wallets sign and recovers signers from signatures.

This tool can:
- Encode text and hex, and hash data with keccak256
- Build EIP-191 personal message, validator and EIP-712 typed data digests
- Sign with a local key, AWS KMS or a Web3Signer
- Recover and verify signers, and commit to a batch of digests with a merkle root
- Serve all of the above over HTTP with replay detection`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Enable debug logging",
				EnvVars: []string{config.EnvSigkitDebug},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Path to a .env file loaded before reading the environment",
			},
		},
		Before: loadEnvFile,
		Commands: []*cli.Command{
			{
				Name:      "hex",
				Usage:     "Convert text to hex, or hex back to text",
				ArgsUsage: "<input>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "decode",
						Usage: "Decode hex input to UTF-8 text",
					},
				},
				Action: hexCommand,
			},
			{
				Name:      "hash",
				Usage:     "Keccak256 of text or hex data",
				ArgsUsage: "<input>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "hex",
						Usage: "Treat the input as hex bytes",
					},
					&cli.BoolFlag{
						Name:  "abi",
						Usage: "ABI-encode text as a dynamic string before hashing",
					},
					&cli.BoolFlag{
						Name:  "packed",
						Usage: "Hash the packed UTF-8 bytes of text (default)",
					},
				},
				Action: hashCommand,
			},
			{
				Name:  "digest",
				Usage: "Build the digest a wallet signs",
				Subcommands: []*cli.Command{
					{
						Name:   "personal",
						Usage:  "EIP-191 personal message digest",
						Flags:  messageFlags(),
						Action: digestPersonalCommand,
					},
					{
						Name:   "typed",
						Usage:  "EIP-712 typed data digest",
						Flags:  []cli.Flag{typedDataFlag()},
						Action: digestTypedCommand,
					},
					{
						Name:  "validator",
						Usage: "EIP-191 version 0x00 digest bound to a validator contract",
						Flags: withFlags(messageFlags(), []cli.Flag{
							&cli.StringFlag{
								Name:     "validator",
								Usage:    "Validator contract address",
								Required: true,
							},
						}),
						Action: digestValidatorCommand,
					},
				},
			},
			{
				Name:  "sign",
				Usage: "Sign a message with the configured signer",
				Subcommands: []*cli.Command{
					{
						Name:   "personal",
						Usage:  "Sign an EIP-191 personal message",
						Flags:  withFlags(messageFlags(), signerFlags()),
						Action: signPersonalCommand,
					},
					{
						Name:   "typed",
						Usage:  "Sign EIP-712 typed data",
						Flags:  withFlags([]cli.Flag{typedDataFlag()}, signerFlags()),
						Action: signTypedCommand,
					},
				},
			},
			{
				Name:  "recover",
				Usage: "Recover the signer of a digest",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "digest",
						Aliases:  []string{"d"},
						Usage:    "32-byte digest as hex",
						Required: true,
					},
					signatureFlag(),
				},
				Action: recoverCommand,
			},
			{
				Name:  "verify",
				Usage: "Check that a signature was made by an address",
				Subcommands: []*cli.Command{
					{
						Name:   "personal",
						Usage:  "Verify a personal message signature",
						Flags:  withFlags(messageFlags(), []cli.Flag{signatureFlag(), addressFlag()}),
						Action: verifyPersonalCommand,
					},
					{
						Name:   "typed",
						Usage:  "Verify a typed data signature",
						Flags:  []cli.Flag{typedDataFlag(), signatureFlag(), addressFlag()},
						Action: verifyTypedCommand,
					},
				},
			},
			{
				Name:  "batch-root",
				Usage: "Merkle root over a batch of digests",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "digest",
						Aliases: []string{"d"},
						Usage:   "Digest to include (repeatable)",
					},
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "File with one hex digest per line",
					},
					&cli.StringFlag{
						Name:  "prove",
						Usage: "Print an inclusion proof for this digest",
					},
				},
				Action: batchRootCommand,
			},
			{
				Name:  "keygen",
				Usage: "Create a secp256k1 signing key",
				Subcommands: []*cli.Command{
					{
						Name:   "local",
						Usage:  "Generate a key in memory and print it",
						Action: keygenLocalCommand,
					},
					{
						Name:  "aws-kms",
						Usage: "Create an ECC_SECG_P256K1 key in AWS KMS",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "name",
								Usage:    "Key name tag",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "alias",
								Usage: "Alias to create for the key (without the alias/ prefix)",
							},
							&cli.StringFlag{
								Name:    "chain",
								Usage:   "Chain recorded in the Environment tag: " + config.GetSupportedChainIDsString() + ", or any chain id",
								EnvVars: []string{config.EnvSigkitChainID},
							},
							&cli.StringFlag{
								Name:    "aws-region",
								Usage:   "AWS region",
								EnvVars: []string{config.EnvSigkitAWSRegion},
							},
							&cli.StringFlag{
								Name:    "aws-profile",
								Usage:   "AWS shared config profile",
								EnvVars: []string{config.EnvSigkitAWSProfile},
							},
						},
						Action: keygenAWSKMSCommand,
					},
				},
			},
			{
				Name:  "serve",
				Usage: "Run the HTTP verification service",
				Flags: withFlags(signerFlags(), []cli.Flag{
					&cli.IntFlag{
						Name:    "port",
						Aliases: []string{"p"},
						Usage:   "HTTP server port",
						EnvVars: []string{config.EnvSigkitPort},
					},
					registryFlag(),
				}),
				Action: serveCommand,
			},
			{
				Name:  "registry",
				Usage: "Inspect the replay registry of a persistent backend",
				Subcommands: []*cli.Command{
					{
						Name:  "list",
						Usage: "List the verifications recorded for a signer",
						Flags: []cli.Flag{
							registryFlag(),
							&cli.StringFlag{
								Name:     "signer",
								Usage:    "Signer address",
								Required: true,
							},
						},
						Action: registryListCommand,
					},
					{
						Name:      "show",
						Usage:     "Show the verification recorded for a signature",
						ArgsUsage: "<signature>",
						Flags:     []cli.Flag{registryFlag()},
						Action:    registryShowCommand,
					},
					{
						Name:      "forget",
						Usage:     "Remove the verification recorded for a signature so it is no longer a replay",
						ArgsUsage: "<signature>",
						Flags:     []cli.Flag{registryFlag()},
						Action:    registryForgetCommand,
					},
				},
			},
		},
	}
}
