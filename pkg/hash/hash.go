// Package hash provides the legacy Keccak-256 construction used by Ethereum.
//
// This is NOT the NIST SHA3-256 function: the two differ in their padding byte and
// produce different digests for identical input.
package hash

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/codec"
	"golang.org/x/crypto/sha3"
)

// DigestLength is the size in bytes of a Keccak-256 output.
const DigestLength = 32

// Digest is a 32-byte hash output.
type Digest [DigestLength]byte

// Keccak256 hashes the concatenation of data.
func Keccak256(data ...[]byte) Digest {
	var d Digest
	h := sha3.NewLegacyKeccak256()
	for _, b := range data {
		h.Write(b)
	}
	h.Sum(d[:0])
	return d
}

// Keccak256Text routes text through the byte codec and hashes the UTF-8 bytes.
// It matches solidityPackedKeccak256(["string"], [text]).
func Keccak256Text(text string) (Digest, error) {
	b, err := codec.TextToBytes(text)
	if err != nil {
		return Digest{}, err
	}
	return Keccak256(b), nil
}

// DigestFromBytes copies b into a Digest. b must be exactly 32 bytes.
func DigestFromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != DigestLength {
		return d, fmt.Errorf("digest must be %d bytes, got %d", DigestLength, len(b))
	}
	copy(d[:], b)
	return d, nil
}

// DigestFromHex decodes a 0x-prefixed 32-byte hex string.
func DigestFromHex(s string) (Digest, error) {
	b, err := codec.HexToBytes(s)
	if err != nil {
		return Digest{}, err
	}
	return DigestFromBytes(b)
}

func (d Digest) Bytes() []byte {
	out := make([]byte, DigestLength)
	copy(out, d[:])
	return out
}

func (d Digest) Hex() string {
	return codec.BytesToHex(d[:])
}

func (d Digest) String() string {
	return d.Hex()
}

func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Compare orders digests bytewise.
func (d Digest) Compare(other Digest) int {
	return bytes.Compare(d[:], other[:])
}

func (d Digest) MarshalText() ([]byte, error) {
	out := make([]byte, 2+2*DigestLength)
	copy(out, "0x")
	hex.Encode(out[2:], d[:])
	return out, nil
}

func (d *Digest) UnmarshalText(input []byte) error {
	parsed, err := DigestFromHex(string(input))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
