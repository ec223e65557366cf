package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Layr-Labs/eigenx-sigkit/internal/aws"
	"github.com/Layr-Labs/eigenx-sigkit/internal/keyGenerator"
	"github.com/Layr-Labs/eigenx-sigkit/internal/keyGenerator/awsKms"
	"github.com/Layr-Labs/eigenx-sigkit/internal/keyGenerator/localKeyGenerator"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/codec"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/config"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/digest"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/hash"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/merkle"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/registry"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/registry/registryFactory"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/server"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/signature"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func singleArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one argument, got %d", c.NArg())
	}
	return c.Args().First(), nil
}

// readMessage returns the payload given by --message or --message-hex.
func readMessage(c *cli.Context) ([]byte, error) {
	hasText, hasHex := c.IsSet("message"), c.IsSet("message-hex")
	switch {
	case hasText && hasHex:
		return nil, fmt.Errorf("--message and --message-hex are mutually exclusive")
	case hasText:
		return codec.TextToBytes(c.String("message"))
	case hasHex:
		return codec.HexToBytes(c.String("message-hex"))
	default:
		return nil, fmt.Errorf("one of --message or --message-hex is required")
	}
}

func readTypedData(path string) (*digest.TypedData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read typed data file: %w", err)
	}
	return digest.ParseTypedDataJSON(data)
}

func hexCommand(c *cli.Context) error {
	input, err := singleArg(c)
	if err != nil {
		return err
	}

	if c.Bool("decode") {
		b, err := codec.HexToBytes(input)
		if err != nil {
			return err
		}
		text, err := codec.BytesToText(b)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, text)
		return nil
	}

	b, err := codec.TextToBytes(input)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, codec.BytesToHex(b))
	return nil
}

func hashCommand(c *cli.Context) error {
	input, err := singleArg(c)
	if err != nil {
		return err
	}
	if c.Bool("abi") && c.Bool("packed") {
		return fmt.Errorf("--abi and --packed are mutually exclusive")
	}

	var data []byte
	switch {
	case c.Bool("hex"):
		if c.Bool("abi") {
			return fmt.Errorf("--abi applies to text input only")
		}
		data, err = codec.HexToBytes(input)
	case c.Bool("abi"):
		data, err = codec.AbiEncodeString(input)
	default:
		data, err = codec.PackedEncodeString(input)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, hash.Keccak256(data).Hex())
	return nil
}

func digestPersonalCommand(c *cli.Context) error {
	payload, err := readMessage(c)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "📝 Personal message (%d bytes)\n", len(payload))
	fmt.Fprintf(c.App.Writer, "  Preimage: %s\n", codec.BytesToHex(digest.PersonalMessagePreimage(payload)))
	fmt.Fprintf(c.App.Writer, "✅ Digest: %s\n", digest.BuildPersonalMessageDigest(payload).Hex())
	return nil
}

func digestTypedCommand(c *cli.Context) error {
	td, err := readTypedData(c.String("file"))
	if err != nil {
		return err
	}
	d, err := td.Digest()
	if err != nil {
		return fmt.Errorf("failed to build typed data digest: %w", err)
	}
	domainSeparator, err := td.DomainSeparator()
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "📝 Typed data: %s\n", td.PrimaryType)
	if chainId, ok := td.Domain.ChainIdUint64(); ok {
		fmt.Fprintf(c.App.Writer, "  Chain: %s\n", config.LabelForChainId(chainId))
	}
	fmt.Fprintf(c.App.Writer, "  Domain separator: %s\n", domainSeparator.Hex())
	if td.PrimaryType != digest.DomainTypeName {
		encodedType, err := td.EncodedType()
		if err != nil {
			return err
		}
		structHash, err := td.StructHash()
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "  Encoded type: %s\n", encodedType)
		fmt.Fprintf(c.App.Writer, "  Struct hash: %s\n", structHash.Hex())
	}
	fmt.Fprintf(c.App.Writer, "✅ Digest: %s\n", d.Hex())
	return nil
}

func digestValidatorCommand(c *cli.Context) error {
	validator := c.String("validator")
	if !common.IsHexAddress(validator) {
		return fmt.Errorf("invalid validator address %q", validator)
	}
	payload, err := readMessage(c)
	if err != nil {
		return err
	}

	d := digest.BuildValidatorDigest(common.HexToAddress(validator), payload)
	fmt.Fprintf(c.App.Writer, "📝 Validator: %s\n", common.HexToAddress(validator).Hex())
	fmt.Fprintf(c.App.Writer, "✅ Digest: %s\n", d.Hex())
	return nil
}

func signPersonalCommand(c *cli.Context) error {
	payload, err := readMessage(c)
	if err != nil {
		return err
	}
	return signWith(c, func(ctx context.Context, s signer.ISigner) (*signature.Signature, hash.Digest, error) {
		sig, err := s.SignPersonalMessage(ctx, payload)
		return sig, digest.BuildPersonalMessageDigest(payload), err
	})
}

func signTypedCommand(c *cli.Context) error {
	td, err := readTypedData(c.String("file"))
	if err != nil {
		return err
	}
	d, err := td.Digest()
	if err != nil {
		return fmt.Errorf("failed to build typed data digest: %w", err)
	}
	return signWith(c, func(ctx context.Context, s signer.ISigner) (*signature.Signature, hash.Digest, error) {
		sig, err := s.SignTypedData(ctx, td)
		return sig, d, err
	})
}

func signWith(c *cli.Context, sign func(context.Context, signer.ISigner) (*signature.Signature, hash.Digest, error)) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Signer.Type == config.SignerTypeNone {
		return fmt.Errorf("no signer configured, use --signer local|aws-kms|web3signer")
	}
	l, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	s, err := buildSigner(c.Context, &cfg.Signer, l)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "🔏 Signing as %s (%s)\n", s.Address().Hex(), cfg.Signer.Type)
	sig, d, err := sign(c.Context, s)
	if err != nil {
		return fmt.Errorf("failed to sign: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "  Digest: %s\n", d.Hex())
	fmt.Fprintf(c.App.Writer, "✅ Signature: %s\n", sig.Hex())
	return nil
}

func recoverCommand(c *cli.Context) error {
	d, err := hash.DigestFromHex(c.String("digest"))
	if err != nil {
		return err
	}
	sig, err := signature.ParseHex(c.String("signature"))
	if err != nil {
		return err
	}

	pub, err := signature.RecoverPublicKey(d, sig)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "🔑 Public key: %s\n", codec.BytesToHex(crypto.FromECDSAPub(pub)))
	if !sig.IsLowS() {
		fmt.Fprintln(c.App.Writer, "⚠️  Signature has a high s value")
	}
	fmt.Fprintf(c.App.Writer, "✅ Signer: %s\n", signature.IdentityFromPublicKey(pub).Hex())
	return nil
}

func verifyPersonalCommand(c *cli.Context) error {
	payload, err := readMessage(c)
	if err != nil {
		return err
	}
	return verify(c, digest.BuildPersonalMessageDigest(payload))
}

func verifyTypedCommand(c *cli.Context) error {
	td, err := readTypedData(c.String("file"))
	if err != nil {
		return err
	}
	d, err := td.Digest()
	if err != nil {
		return fmt.Errorf("failed to build typed data digest: %w", err)
	}
	return verify(c, d)
}

func verify(c *cli.Context, d hash.Digest) error {
	sig, err := signature.ParseHex(c.String("signature"))
	if err != nil {
		return err
	}
	expected := c.String("address")

	ok, err := signature.VerifyDigest(d, sig, expected)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "  Digest: %s\n", d.Hex())
	if !ok {
		recovered, _ := signature.RecoverIdentity(d, sig)
		return fmt.Errorf("❌ signature was made by %s, not %s", recovered.Hex(), expected)
	}
	fmt.Fprintf(c.App.Writer, "✅ Signature is valid for %s\n", common.HexToAddress(expected).Hex())
	return nil
}

// readDigestList parses one hex digest per line. Blank lines and # comments are skipped.
func readDigestList(data []byte) ([]hash.Digest, error) {
	var out []hash.Digest
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		d, err := hash.DigestFromHex(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, d)
	}
	return out, scanner.Err()
}

func batchRootCommand(c *cli.Context) error {
	var digests []hash.Digest
	for _, s := range c.StringSlice("digest") {
		d, err := hash.DigestFromHex(s)
		if err != nil {
			return err
		}
		digests = append(digests, d)
	}
	if path := c.String("file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read digest file: %w", err)
		}
		fromFile, err := readDigestList(data)
		if err != nil {
			return err
		}
		digests = append(digests, fromFile...)
	}

	tree, err := merkle.BuildDigestTree(digests)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "🌳 %d distinct digests\n", len(tree.Leaves))
	fmt.Fprintf(c.App.Writer, "✅ Root: %s\n", tree.Root.Hex())

	if target := c.String("prove"); target != "" {
		d, err := hash.DigestFromHex(target)
		if err != nil {
			return err
		}
		proof, err := tree.GenerateProof(d)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(proof, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Proof:\n%s\n", out)
	}
	return nil
}

func printKey(c *cli.Context, key *keyGenerator.GeneratedKey) {
	fmt.Fprintf(c.App.Writer, "  Key id: %s\n", key.KeyId)
	fmt.Fprintf(c.App.Writer, "  Public key: %s\n", key.PublicKeyHex())
	fmt.Fprintf(c.App.Writer, "  Web3Signer public key: %s\n", key.PublicKeyHexUnprefixed())
	fmt.Fprintf(c.App.Writer, "✅ Address: %s\n", key.Address.Hex())
}

func keygenLocalCommand(c *cli.Context) error {
	gen := localKeyGenerator.NewLocalKeyGenerator(zap.NewNop())
	key, err := gen.GenerateKey(c.Context, "local", "")
	if err != nil {
		return err
	}
	privateKeyHex, err := gen.PrivateKeyHex(key.KeyId)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, "🔑 Generated local key")
	fmt.Fprintf(c.App.Writer, "  Private key: %s\n", privateKeyHex)
	printKey(c, key)
	return nil
}

// chainEnvironment is the Environment tag value for keys created for chainId.
func chainEnvironment(chainId config.ChainId) string {
	if name, ok := config.ChainIdToName[chainId]; ok {
		return string(name)
	}
	return fmt.Sprintf("chain-%d", chainId)
}

func keygenAWSKMSCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	l, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	region := c.String("aws-region")
	if region == "" {
		return fmt.Errorf("--aws-region is required")
	}
	chainId := cfg.ChainID
	if c.IsSet("chain") {
		if chainId, err = config.ParseChainId(c.String("chain")); err != nil {
			return err
		}
	}
	awsCfg, err := aws.LoadAWSConfig(c.Context, region, c.String("aws-profile"))
	if err != nil {
		return err
	}
	if arn, err := aws.GetCallerIdentity(c.Context, awsCfg); err == nil {
		l.Sugar().Infow("Creating key as", "caller_arn", arn)
	}

	gen := awsKms.NewAWSKMSKeyGenerator(awsCfg, chainEnvironment(chainId), l)
	key, err := gen.GenerateKey(c.Context, c.String("name"), c.String("alias"))
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "🔑 Created AWS KMS key in %s\n", region)
	printKey(c, key)
	return nil
}

func serveCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	l, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	l.Sugar().Infow("Using chain", "chain", config.LabelForChainId(uint64(cfg.ChainID)))

	reg, err := registryFactory.NewVerificationRegistry(&cfg.Registry, l)
	if err != nil {
		return fmt.Errorf("failed to open verification registry: %w", err)
	}
	defer func() {
		if err := reg.Close(); err != nil {
			l.Sugar().Warnw("Failed to close verification registry", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := buildSigner(ctx, &cfg.Signer, l)
	if err != nil {
		return err
	}

	srv, err := server.NewServer(&cfg.Server, reg, s, l)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	l.Sugar().Infow("Sigkit server running",
		"port", cfg.Server.Port,
		"registry", cfg.Registry.Type,
		"signer", cfg.Signer.Type,
	)

	<-ctx.Done()
	l.Sugar().Info("Shutting down")
	return srv.Stop()
}

// withRegistry opens the configured registry for the duration of fn.
func withRegistry(c *cli.Context, fn func(reg registry.IVerificationRegistry) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Registry.Type == config.RegistryTypeMemory {
		return fmt.Errorf("the %s registry does not outlive the server, choose a persistent backend with --registry", config.RegistryTypeMemory)
	}
	l, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	reg, err := registryFactory.NewVerificationRegistry(&cfg.Registry, l)
	if err != nil {
		return fmt.Errorf("failed to open verification registry: %w", err)
	}
	defer func() {
		if err := reg.Close(); err != nil {
			l.Sugar().Warnw("Failed to close verification registry", "error", err)
		}
	}()
	return fn(reg)
}

func printRecord(c *cli.Context, rec *registry.VerificationRecord) {
	fmt.Fprintf(c.App.Writer, "  %s\n", rec.Signature)
	fmt.Fprintf(c.App.Writer, "    Scheme: %s\n", rec.Scheme)
	fmt.Fprintf(c.App.Writer, "    Digest: %s\n", rec.Digest)
	fmt.Fprintf(c.App.Writer, "    Signer: %s\n", rec.Signer)
	fmt.Fprintf(c.App.Writer, "    Verified at: %s\n", time.Unix(rec.VerifiedAt, 0).UTC().Format(time.RFC3339))
}

func registryListCommand(c *cli.Context) error {
	signerAddress, err := registry.NormalizeSigner(c.String("signer"))
	if err != nil {
		return err
	}
	return withRegistry(c, func(reg registry.IVerificationRegistry) error {
		records, err := reg.ListVerificationsBySigner(signerAddress)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "📋 %d verifications by %s\n", len(records), signerAddress)
		for _, rec := range records {
			printRecord(c, rec)
		}
		return nil
	})
}

func registryShowCommand(c *cli.Context) error {
	sigHex, err := singleArg(c)
	if err != nil {
		return err
	}
	if _, err := signature.ParseHex(sigHex); err != nil {
		return err
	}
	return withRegistry(c, func(reg registry.IVerificationRegistry) error {
		rec, err := reg.GetVerification(sigHex)
		if err != nil {
			return err
		}
		if rec == nil {
			fmt.Fprintln(c.App.Writer, "❌ No verification recorded for this signature")
			return nil
		}
		fmt.Fprintln(c.App.Writer, "✅ Recorded verification")
		printRecord(c, rec)
		return nil
	})
}

func registryForgetCommand(c *cli.Context) error {
	sigHex, err := singleArg(c)
	if err != nil {
		return err
	}
	key, err := registry.CanonicalSignatureKey(sigHex)
	if err != nil {
		return err
	}
	return withRegistry(c, func(reg registry.IVerificationRegistry) error {
		if err := reg.DeleteVerification(sigHex); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "🗑️  Forgot %s\n", key)
		return nil
	})
}
