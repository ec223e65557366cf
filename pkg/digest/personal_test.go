package digest

import (
	"testing"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/codec"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/hash"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_PersonalMessage(t *testing.T) {
	t.Run("Should match the published Hello World vector", func(t *testing.T) {
		d, err := BuildPersonalMessageDigestFromText("Hello World")
		require.NoError(t, err)
		assert.Equal(t, "0xa1de988600a42c4b4ab089b619297c17d53cffae5d5120d82d8a92d0bb3b78f2", d.Hex())
	})

	t.Run("Should differ from the bare hash", func(t *testing.T) {
		for _, msg := range []string{"Hello World", "a", "0x1234"} {
			d, err := BuildPersonalMessageDigestFromText(msg)
			require.NoError(t, err)
			assert.NotEqual(t, hash.Keccak256([]byte(msg)), d)
		}
	})

	t.Run("Should embed the decimal byte length", func(t *testing.T) {
		payload := []byte("héllo")
		preimage := PersonalMessagePreimage(payload)
		assert.Equal(t, "\x19Ethereum Signed Message:\n6héllo", string(preimage))
		assert.Equal(t, EnvelopeMarker, preimage[0])
		assert.Equal(t, VersionPersonal, preimage[1])
	})

	t.Run("Should accept an empty payload with length 0", func(t *testing.T) {
		preimage := PersonalMessagePreimage(nil)
		assert.Equal(t, "\x19Ethereum Signed Message:\n0", string(preimage))
		d := BuildPersonalMessageDigest([]byte{})
		assert.Equal(t, hash.Keccak256([]byte("\x19Ethereum Signed Message:\n0")), d)
	})

	t.Run("Should use multi-digit lengths without padding", func(t *testing.T) {
		payload := make([]byte, 120)
		preimage := PersonalMessagePreimage(payload)
		assert.Equal(t, PersonalMessagePrefix+"120", string(preimage[:len(PersonalMessagePrefix)+3]))
	})

	t.Run("Should agree with go-ethereum TextHash", func(t *testing.T) {
		inputs := [][]byte{{}, []byte("Hello World"), {0x00, 0xff, 0x19}, make([]byte, 1000)}
		for _, in := range inputs {
			assert.Equal(t, accounts.TextHash(in), BuildPersonalMessageDigest(in).Bytes())
		}
	})

	t.Run("Should treat text and bytes identically", func(t *testing.T) {
		b, err := codec.TextToBytes("Hello Ethers")
		require.NoError(t, err)
		fromText, err := BuildPersonalMessageDigestFromText("Hello Ethers")
		require.NoError(t, err)
		assert.Equal(t, BuildPersonalMessageDigest(b), fromText)
	})

	t.Run("Should reject invalid text", func(t *testing.T) {
		_, err := BuildPersonalMessageDigestFromText("\xff\xfe")
		assert.ErrorIs(t, err, codec.ErrEncoding)
	})
}

func Test_ValidatorDigest(t *testing.T) {
	t.Run("Should prefix the validator address", func(t *testing.T) {
		validator := common.HexToAddress("0xCcCCccccCCCCcCCCCCCcCcCccCcCCCcCcccccccC")
		payload := []byte("payload")

		expected := hash.Keccak256(append(append([]byte{0x19, 0x00}, validator.Bytes()...), payload...))
		assert.Equal(t, expected, BuildValidatorDigest(validator, payload))
	})

	t.Run("Should bind the validator", func(t *testing.T) {
		a := BuildValidatorDigest(common.HexToAddress("0x01"), []byte("x"))
		b := BuildValidatorDigest(common.HexToAddress("0x02"), []byte("x"))
		assert.NotEqual(t, a, b)
	})
}
