// Package codec converts between text, byte slices, and 0x-prefixed hex strings.
// Nothing in this package hashes or signs.
package codec

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	// ErrEncoding is returned when text cannot be represented as UTF-8.
	ErrEncoding = errors.New("invalid text encoding")

	// ErrMalformedHex is returned when a hex string is missing its 0x marker,
	// has an odd digit count or contains non-hex characters.
	ErrMalformedHex = errors.New("malformed hex string")
)

// TextToBytes returns the UTF-8 bytes of text.
func TextToBytes(text string) ([]byte, error) {
	if !utf8.ValidString(text) {
		idx := firstInvalidRune(text)
		return nil, fmt.Errorf("%w: invalid UTF-8 sequence at byte offset %d", ErrEncoding, idx)
	}
	return []byte(text), nil
}

// BytesToText is the inverse of TextToBytes.
func BytesToText(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: invalid UTF-8 sequence at byte offset %d", ErrEncoding, firstInvalidRune(string(b)))
	}
	return string(b), nil
}

// BytesToHex returns the lowercase 0x-prefixed hex form of b.
func BytesToHex(b []byte) string {
	return hexutil.Encode(b)
}

// HexToBytes decodes a 0x-prefixed hex string. "0x" decodes to an empty slice.
func HexToBytes(s string) ([]byte, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformedHex, truncate(s, 18), err)
	}
	return b, nil
}

// MustHexToBytes is HexToBytes for constants known at compile time. It panics on malformed input.
func MustHexToBytes(s string) []byte {
	b, err := HexToBytes(s)
	if err != nil {
		panic(err)
	}
	return b
}

func firstInvalidRune(s string) int {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return -1
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
