// Package digest builds the exact bytes that get signed under the EIP-191 envelope:
// personal messages (version 0x45), intended-validator data (version 0x00) and
// EIP-712 typed structured data (version 0x01).
package digest

import (
	"strconv"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/codec"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/hash"
	"github.com/ethereum/go-ethereum/common"
)

const (
	// EnvelopeMarker is the first byte of every EIP-191 signed payload. It is not a valid
	// RLP prefix, so signed data can never be mistaken for a transaction.
	EnvelopeMarker byte = 0x19

	VersionValidator byte = 0x00
	VersionTypedData byte = 0x01
	VersionPersonal  byte = 0x45 // 'E'

	// PersonalMessagePrefix already contains the marker and version bytes.
	PersonalMessagePrefix = "\x19Ethereum Signed Message:\n"
)

// PersonalMessagePreimage returns prefix || decimal(len(payload)) || payload.
func PersonalMessagePreimage(payload []byte) []byte {
	length := strconv.Itoa(len(payload))
	out := make([]byte, 0, len(PersonalMessagePrefix)+len(length)+len(payload))
	out = append(out, PersonalMessagePrefix...)
	out = append(out, length...)
	out = append(out, payload...)
	return out
}

// BuildPersonalMessageDigest returns the digest signed by personal_sign / eth_sign.
func BuildPersonalMessageDigest(payload []byte) hash.Digest {
	return hash.Keccak256(PersonalMessagePreimage(payload))
}

// BuildPersonalMessageDigestFromText converts text to UTF-8 before building the digest.
func BuildPersonalMessageDigestFromText(text string) (hash.Digest, error) {
	b, err := codec.TextToBytes(text)
	if err != nil {
		return hash.Digest{}, err
	}
	return BuildPersonalMessageDigest(b), nil
}

// BuildValidatorDigest returns keccak256(0x19 || 0x00 || validator || payload), the
// version 0x00 "data with intended validator" scheme.
func BuildValidatorDigest(validator common.Address, payload []byte) hash.Digest {
	return hash.Keccak256([]byte{EnvelopeMarker, VersionValidator}, validator.Bytes(), payload)
}
