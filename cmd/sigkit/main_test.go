package main

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/config"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/digest"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/hash"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/registry"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/registry/badger"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/signature"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Well-known development key (do not use in production).
const (
	testPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress    = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

const mailJSON = `{
  "types": {
    "EIP712Domain": [
      {"name": "name", "type": "string"},
      {"name": "version", "type": "string"},
      {"name": "chainId", "type": "uint256"},
      {"name": "verifyingContract", "type": "address"}
    ],
    "Person": [
      {"name": "name", "type": "string"},
      {"name": "wallet", "type": "address"}
    ],
    "Mail": [
      {"name": "from", "type": "Person"},
      {"name": "to", "type": "Person"},
      {"name": "contents", "type": "string"}
    ]
  },
  "primaryType": "Mail",
  "domain": {
    "name": "Ether Mail",
    "version": "1",
    "chainId": "1",
    "verifyingContract": "0xCcCCccccCCCCcCCCCCCcCcCccCcCCCcCcccccccC"
  },
  "message": {
    "from": {"name": "Cow", "wallet": "0xCD2a3d9F938E13CD947Ec05AbC7FE734Df8DD826"},
    "to": {"name": "Bob", "wallet": "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB"},
    "contents": "Hello, Bob!"
  }
}`

const (
	mailDigest    = "0xbe609aee343fb3c4b28e1df9e632fca64fcfaede20f02e86244efddf30957bd2"
	mailSignature = "0x4355c47d63924e8a72e509b65029052eb6c299d53a04e167c5775fd466751c9d" +
		"07299936d304c153f6443dfa05f40ff007d72911b6f72307f996231605b915621c"
	mailSigner = "0xCD2a3d9F938E13CD947Ec05AbC7FE734Df8DD826"

	helloWorldDigest = "0xa1de988600a42c4b4ab089b619297c17d53cffae5d5120d82d8a92d0bb3b78f2"
)

var signatureLine = regexp.MustCompile(`Signature: (0x[0-9a-f]{130})`)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"sigkit"}, args...))
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func Test_HexCommand(t *testing.T) {
	out, err := run(t, "hex", "Hello World")
	require.NoError(t, err)
	assert.Equal(t, "0x48656c6c6f20576f726c64\n", out)

	out, err = run(t, "hex", "--decode", "0x48656c6c6f20576f726c64")
	require.NoError(t, err)
	assert.Equal(t, "Hello World\n", out)

	_, err = run(t, "hex", "--decode", "0x123")
	assert.Error(t, err)

	_, err = run(t, "hex")
	assert.Error(t, err)
}

func Test_HashCommand(t *testing.T) {
	out, err := run(t, "hash", "Hello World")
	require.NoError(t, err)
	assert.Equal(t, "0x592fa743889fc7f92ac2a37bb1f5ba1daf2a5c84741ca0e0061d243a2e6707ba\n", out)

	out, err = run(t, "hash", "--hex", "0x")
	require.NoError(t, err)
	assert.Equal(t, "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470\n", out)

	packed, err := run(t, "hash", "--packed", "abc")
	require.NoError(t, err)
	abi, err := run(t, "hash", "--abi", "abc")
	require.NoError(t, err)
	assert.NotEqual(t, packed, abi)

	_, err = run(t, "hash", "--abi", "--packed", "abc")
	assert.Error(t, err)
}

func Test_DigestCommands(t *testing.T) {
	t.Run("personal", func(t *testing.T) {
		out, err := run(t, "digest", "personal", "--message", "Hello World")
		require.NoError(t, err)
		assert.Contains(t, out, helloWorldDigest)

		out, err = run(t, "digest", "personal", "--message-hex", "0x48656c6c6f20576f726c64")
		require.NoError(t, err)
		assert.Contains(t, out, helloWorldDigest)

		_, err = run(t, "digest", "personal")
		assert.Error(t, err)
	})

	t.Run("typed", func(t *testing.T) {
		out, err := run(t, "digest", "typed", "--file", writeFile(t, "mail.json", mailJSON))
		require.NoError(t, err)
		assert.Contains(t, out, "Digest: "+mailDigest)
		assert.Contains(t, out, "Mail(Person from,Person to,string contents)Person(string name,address wallet)")
		assert.Contains(t, out, "Chain: 1 (")
	})

	t.Run("validator", func(t *testing.T) {
		out, err := run(t, "digest", "validator", "--validator", mailSigner, "--message", "hi")
		require.NoError(t, err)
		assert.Contains(t, out, "Digest: 0x")

		_, err = run(t, "digest", "validator", "--validator", "0x1234", "--message", "hi")
		assert.Error(t, err)
	})
}

func Test_SignAndVerify(t *testing.T) {
	out, err := run(t, "sign", "personal", "--signer", "local", "--private-key", testPrivateKey, "--message", "Hello World")
	require.NoError(t, err)
	assert.Contains(t, out, "Signing as "+testAddress)
	assert.Contains(t, out, helloWorldDigest)

	match := signatureLine.FindStringSubmatch(out)
	require.Len(t, match, 2, out)
	sig, err := signature.ParseHex(match[1])
	require.NoError(t, err)
	assert.True(t, sig.IsLowS())

	out, err = run(t, "verify", "personal", "--message", "Hello World", "--signature", match[1], "--address", testAddress)
	require.NoError(t, err)
	assert.Contains(t, out, "Signature is valid")

	_, err = run(t, "verify", "personal", "--message", "Hello World!", "--signature", match[1], "--address", testAddress)
	assert.Error(t, err)
}

func Test_SignTyped(t *testing.T) {
	path := writeFile(t, "mail.json", mailJSON)
	out, err := run(t, "sign", "typed", "--signer", "local", "--private-key", testPrivateKey, "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, mailDigest)

	match := signatureLine.FindStringSubmatch(out)
	require.Len(t, match, 2, out)
	_, err = run(t, "verify", "typed", "--file", path, "--signature", match[1], "--address", testAddress)
	require.NoError(t, err)
}

func Test_SignRequiresSigner(t *testing.T) {
	t.Setenv(config.EnvSigkitSigner, "")
	_, err := run(t, "sign", "personal", "--message", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no signer configured")

	_, err = run(t, "sign", "personal", "--signer", "local", "--private-key", "0x1234", "--message", "hi")
	assert.Error(t, err)
}

func Test_EnvFile(t *testing.T) {
	t.Cleanup(func() {
		_ = os.Unsetenv(config.EnvPrivateKey)
		_ = os.Unsetenv(config.EnvSigkitSigner)
	})
	envFile := writeFile(t, ".env", "PRIVATE_KEY="+testPrivateKey+"\nSIGKIT_SIGNER=local\n")

	out, err := run(t, "--env-file", envFile, "sign", "personal", "--message", "Hello World")
	require.NoError(t, err)
	assert.Contains(t, out, "Signing as "+testAddress)
}

func Test_VerifyTyped(t *testing.T) {
	path := writeFile(t, "mail.json", mailJSON)
	out, err := run(t, "verify", "typed", "--file", path, "--signature", mailSignature, "--address", mailSigner)
	require.NoError(t, err)
	assert.Contains(t, out, mailDigest)

	_, err = run(t, "verify", "typed", "--file", path, "--signature", mailSignature, "--address", testAddress)
	require.Error(t, err)
	assert.Contains(t, err.Error(), mailSigner)
}

func Test_RecoverCommand(t *testing.T) {
	out, err := run(t, "recover", "--digest", mailDigest, "--signature", mailSignature)
	require.NoError(t, err)
	assert.Contains(t, out, "Signer: "+mailSigner)
	assert.Contains(t, out, "Public key: 0x04")

	_, err = run(t, "recover", "--digest", "0x12", "--signature", mailSignature)
	assert.Error(t, err)
}

func Test_BatchRootCommand(t *testing.T) {
	a := hash.Keccak256([]byte("a")).Hex()
	b := hash.Keccak256([]byte("b")).Hex()
	c := hash.Keccak256([]byte("c")).Hex()

	fromFlags, err := run(t, "batch-root", "-d", a, "-d", b, "-d", c)
	require.NoError(t, err)
	assert.Contains(t, fromFlags, "3 distinct digests")

	file := writeFile(t, "digests.txt", "# batch\n"+c+"\n\n"+a+"\n"+b+"\n"+a+"\n")
	fromFile, err := run(t, "batch-root", "--file", file, "--prove", b)
	require.NoError(t, err)
	assert.Contains(t, fromFile, "3 distinct digests")
	assert.Contains(t, fromFile, "Proof:")

	root := regexp.MustCompile(`Root: (0x[0-9a-f]{64})`)
	assert.Equal(t, root.FindString(fromFlags), root.FindString(fromFile))

	_, err = run(t, "batch-root")
	assert.Error(t, err)

	_, err = run(t, "batch-root", "-d", a, "--prove", b)
	assert.Error(t, err)
}

func Test_ReadDigestList(t *testing.T) {
	_, err := readDigestList([]byte("0x1234\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")

	digests, err := readDigestList([]byte("\n# nothing\n"))
	require.NoError(t, err)
	assert.Empty(t, digests)
}

func Test_KeygenLocal(t *testing.T) {
	out, err := run(t, "keygen", "local")
	require.NoError(t, err)

	privateKey := regexp.MustCompile(`Private key: (0x[0-9a-f]{64})`).FindStringSubmatch(out)
	address := regexp.MustCompile(`Address: (0x[0-9a-fA-F]{40})`).FindStringSubmatch(out)
	require.Len(t, privateKey, 2, out)
	require.Len(t, address, 2, out)

	signed, err := run(t, "sign", "personal", "--signer", "local", "--private-key", privateKey[1], "--message", "hi")
	require.NoError(t, err)
	assert.Contains(t, signed, "Signing as "+address[1])
}

func Test_ChainEnvironment(t *testing.T) {
	assert.Equal(t, "sepolia", chainEnvironment(config.ChainId_EthereumSepolia))
	assert.Equal(t, "chain-8453", chainEnvironment(config.ChainId(8453)))

	_, err := run(t, "keygen", "aws-kms", "--name", "k", "--aws-region", "us-east-1", "--chain", "goerli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown chain")
}

func Test_RegistryCommands(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.EnvSigkitBadgerPath, dir)

	key, err := crypto.HexToECDSA(testPrivateKey[2:])
	require.NoError(t, err)
	d := digest.BuildPersonalMessageDigest([]byte("Hello World"))
	raw, err := crypto.Sign(d.Bytes(), key)
	require.NoError(t, err)
	sig, err := signature.Parse(raw)
	require.NoError(t, err)

	reg, err := badger.NewBadgerRegistry(dir, zap.NewNop())
	require.NoError(t, err)
	rec, err := registry.NewVerificationRecord(registry.SchemePersonal, d, sig, common.HexToAddress(testAddress))
	require.NoError(t, err)
	_, err = reg.RecordVerification(rec)
	require.NoError(t, err)
	require.NoError(t, reg.Close())

	t.Run("Should list the records of a signer", func(t *testing.T) {
		out, err := run(t, "registry", "list", "--registry", "badger", "--signer", testAddress)
		require.NoError(t, err)
		assert.Contains(t, out, "1 verifications by "+testAddress)
		assert.Contains(t, out, "Digest: "+d.Hex())
	})

	t.Run("Should show a record", func(t *testing.T) {
		out, err := run(t, "registry", "show", "--registry", "badger", sig.Hex())
		require.NoError(t, err)
		assert.Contains(t, out, "Recorded verification")
		assert.Contains(t, out, "Scheme: personal")
	})

	t.Run("Should forget a record", func(t *testing.T) {
		out, err := run(t, "registry", "forget", "--registry", "badger", sig.Hex())
		require.NoError(t, err)
		assert.Contains(t, out, "Forgot")

		out, err = run(t, "registry", "show", "--registry", "badger", sig.Hex())
		require.NoError(t, err)
		assert.Contains(t, out, "No verification recorded")
	})

	t.Run("Should refuse the memory backend", func(t *testing.T) {
		_, err := run(t, "registry", "list", "--registry", "memory", "--signer", testAddress)
		assert.Error(t, err)
	})

	t.Run("Should reject malformed input", func(t *testing.T) {
		_, err := run(t, "registry", "show", "--registry", "badger", "0x1234")
		assert.ErrorIs(t, err, signature.ErrMalformedSignature)
		_, err = run(t, "registry", "list", "--registry", "badger", "--signer", "0x12")
		assert.Error(t, err)
	})
}
