package codec

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func FuzzHexRoundTrip(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0x00})
	f.Add([]byte("Hello World"))
	f.Add([]byte{0xde, 0xad, 0xbe, 0xef})

	f.Fuzz(func(t *testing.T, b []byte) {
		encoded := BytesToHex(b)
		require.True(t, strings.HasPrefix(encoded, "0x"))
		require.Len(t, encoded, 2+2*len(b))
		require.Equal(t, strings.ToLower(encoded), encoded)

		decoded, err := HexToBytes(encoded)
		require.NoError(t, err)
		require.Equal(t, b, decoded)
	})
}

func FuzzHexToBytes(f *testing.F) {
	f.Add("0x")
	f.Add("0x00ff")
	f.Add("0XABcd")
	f.Add("0x123")
	f.Add("abcd")
	f.Add("0xzz")

	f.Fuzz(func(t *testing.T, s string) {
		b, err := HexToBytes(s)
		if err != nil {
			require.ErrorIs(t, err, ErrMalformedHex)
			return
		}
		require.Equal(t, "0x"+strings.ToLower(s[2:]), BytesToHex(b))
	})
}

func FuzzTextToBytes(f *testing.F) {
	f.Add("")
	f.Add("Hello World")
	f.Add("héllo 🌍")
	f.Add("abc\xed\xa0\x80")
	f.Add("\xff")

	f.Fuzz(func(t *testing.T, s string) {
		b, err := TextToBytes(s)
		if !utf8.ValidString(s) {
			require.ErrorIs(t, err, ErrEncoding)
			return
		}
		require.NoError(t, err)
		require.Equal(t, []byte(s), b)

		decoded, err := HexToBytes(BytesToHex(b))
		require.NoError(t, err)
		require.Equal(t, b, decoded)

		text, err := BytesToText(decoded)
		require.NoError(t, err)
		require.Equal(t, s, text)
	})
}
