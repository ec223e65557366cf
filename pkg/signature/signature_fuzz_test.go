package signature

import (
	"math/big"
	"testing"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/codec"
	"github.com/stretchr/testify/require"
)

func FuzzParseSerialize(f *testing.F) {
	f.Add(validCompact(27))
	f.Add(validCompact(0))
	f.Add(validCompact(38))
	f.Add(validCompact(29))
	f.Add(make([]byte, SignatureLength))
	f.Add([]byte{0x01, 0x02})
	f.Add(codec.MustHexToBytes("0x4355c47d63924e8a72e509b65029052eb6c299d53a04e167c5775fd466751c9d07299936d304c153f6443dfa05f40ff007d72911b6f72307f996231605b915621c"))

	f.Fuzz(func(t *testing.T, compact []byte) {
		sig, err := Parse(compact)
		if err != nil {
			require.ErrorIs(t, err, ErrMalformedSignature)
			return
		}
		require.Equal(t, compact, Serialize(sig))

		again, err := Parse(Serialize(sig))
		require.NoError(t, err)
		require.Equal(t, sig, again)
	})
}

func FuzzCanonical(f *testing.F) {
	f.Add(validCompact(27))
	f.Add(validCompact(1))
	high := validCompact(28)
	new(big.Int).Sub(secp256k1N, big.NewInt(2)).FillBytes(high[32:64])
	f.Add(high)

	f.Fuzz(func(t *testing.T, compact []byte) {
		sig, err := Parse(compact)
		if err != nil {
			return
		}
		canon, err := sig.Canonical()
		require.NoError(t, err)
		require.True(t, canon.IsLowS())
		require.Contains(t, []byte{27, 28}, canon.V)

		twin := *canon
		new(big.Int).Sub(secp256k1N, canon.SInt()).FillBytes(twin.S[:])
		twin.V = 2*LegacyVOffset + 1 - canon.V
		twinCanon, err := twin.Canonical()
		require.NoError(t, err)
		require.Equal(t, canon, twinCanon)

		idempotent, err := canon.Canonical()
		require.NoError(t, err)
		require.Equal(t, canon, idempotent)
	})
}
