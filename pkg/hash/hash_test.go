package hash

import (
	"encoding/json"
	"testing"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/codec"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"
)

const helloWorldKeccak = "0x592fa743889fc7f92ac2a37bb1f5ba1daf2a5c84741ca0e0061d243a2e6707ba"

func Test_Keccak256(t *testing.T) {
	t.Run("Should match the published Hello World vector", func(t *testing.T) {
		b, err := codec.TextToBytes("Hello World")
		require.NoError(t, err)
		assert.Equal(t, helloWorldKeccak, Keccak256(b).Hex())
	})

	t.Run("Should match the empty input vector", func(t *testing.T) {
		assert.Equal(t, "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", Keccak256().Hex())
		assert.Equal(t, Keccak256(), Keccak256([]byte{}))
	})

	t.Run("Should be deterministic", func(t *testing.T) {
		data := []byte("determinism")
		assert.Equal(t, Keccak256(data), Keccak256(data))
	})

	t.Run("Should hash the concatenation of parts", func(t *testing.T) {
		assert.Equal(t, Keccak256([]byte("Hello World")), Keccak256([]byte("Hello"), []byte(" "), []byte("World")))
	})

	t.Run("Should agree with go-ethereum", func(t *testing.T) {
		for _, in := range []string{"", "a", "Hello World", "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"} {
			assert.Equal(t, crypto.Keccak256([]byte(in)), Keccak256([]byte(in)).Bytes())
		}
	})

	t.Run("Should differ from standardized SHA3-256", func(t *testing.T) {
		b := []byte("Hello World")
		nist := sha3.Sum256(b)
		assert.NotEqual(t, nist[:], Keccak256(b).Bytes())
	})
}

func Test_Keccak256Text(t *testing.T) {
	t.Run("Should hash the utf-8 bytes", func(t *testing.T) {
		d, err := Keccak256Text("Hello World")
		require.NoError(t, err)
		assert.Equal(t, helloWorldKeccak, d.Hex())
	})

	t.Run("Should match hashing the packed encoding", func(t *testing.T) {
		packed, err := codec.PackedEncodeString("Hello World")
		require.NoError(t, err)
		d, err := Keccak256Text("Hello World")
		require.NoError(t, err)
		assert.Equal(t, Keccak256(packed), d)
	})

	t.Run("Should differ from hashing the abi encoding", func(t *testing.T) {
		encoded, err := codec.AbiEncodeString("Hello World")
		require.NoError(t, err)
		assert.NotEqual(t, helloWorldKeccak, Keccak256(encoded).Hex())
	})

	t.Run("Should surface encoding errors", func(t *testing.T) {
		_, err := Keccak256Text("\xc3\x28")
		assert.ErrorIs(t, err, codec.ErrEncoding)
	})
}

func Test_Digest(t *testing.T) {
	t.Run("Should parse from hex", func(t *testing.T) {
		d, err := DigestFromHex(helloWorldKeccak)
		require.NoError(t, err)
		assert.Equal(t, helloWorldKeccak, d.String())
	})

	t.Run("Should reject wrong length", func(t *testing.T) {
		_, err := DigestFromBytes(make([]byte, 31))
		assert.Error(t, err)
		_, err = DigestFromHex("0x1234")
		assert.Error(t, err)
	})

	t.Run("Should reject malformed hex", func(t *testing.T) {
		_, err := DigestFromHex("0xzz")
		assert.ErrorIs(t, err, codec.ErrMalformedHex)
	})

	t.Run("Should return a copy from Bytes", func(t *testing.T) {
		d := Keccak256([]byte("x"))
		b := d.Bytes()
		b[0] ^= 0xff
		assert.NotEqual(t, b[0], d[0])
	})

	t.Run("Should marshal to json as hex", func(t *testing.T) {
		d := Keccak256([]byte("Hello World"))
		out, err := json.Marshal(struct {
			Digest Digest `json:"digest"`
		}{d})
		require.NoError(t, err)
		assert.JSONEq(t, `{"digest":"`+helloWorldKeccak+`"}`, string(out))

		var back struct {
			Digest Digest `json:"digest"`
		}
		require.NoError(t, json.Unmarshal(out, &back))
		assert.Equal(t, d, back.Digest)
	})

	t.Run("Should order bytewise", func(t *testing.T) {
		a := Digest{0x01}
		b := Digest{0x02}
		assert.Equal(t, -1, a.Compare(b))
		assert.Equal(t, 0, a.Compare(a))
		assert.True(t, Digest{}.IsZero())
	})
}
