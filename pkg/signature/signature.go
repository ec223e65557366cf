// Package signature parses, serializes and recovers 65-byte secp256k1 signatures in
// the r || s || v layout used by Ethereum wallets.
package signature

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/codec"
)

const (
	// SignatureLength is the size of the compact r || s || v form.
	SignatureLength = 65

	// LegacyVOffset is added to the raw recovery id by wallets (27 or 28).
	LegacyVOffset = 27

	// eip155VOffset is the base of chain-qualified v values (chainId*2 + 35 + recid).
	eip155VOffset = 35
)

var (
	// ErrMalformedSignature is returned for structurally invalid signatures: the wrong
	// length, r or s outside [1, N-1], or an unrecognised v.
	ErrMalformedSignature = errors.New("malformed signature")

	// ErrInvalidSignature is returned when public key recovery fails.
	ErrInvalidSignature = errors.New("invalid signature")
)

var (
	// secp256k1N is the order of the secp256k1 group.
	secp256k1N, _  = new(big.Int).SetString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", 16)
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

// Signature holds the three signature components. V is kept exactly as received.
type Signature struct {
	R [32]byte
	S [32]byte
	V byte
}

// Parse splits a 65-byte compact signature and validates its components.
func Parse(compact []byte) (*Signature, error) {
	if len(compact) != SignatureLength {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedSignature, SignatureLength, len(compact))
	}
	sig := &Signature{V: compact[64]}
	copy(sig.R[:], compact[:32])
	copy(sig.S[:], compact[32:64])
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	return sig, nil
}

// ParseHex decodes a 0x-prefixed compact signature. Hex errors match both
// ErrMalformedSignature and codec.ErrMalformedHex.
func ParseHex(s string) (*Signature, error) {
	b, err := codec.HexToBytes(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSignature, err)
	}
	return Parse(b)
}

// FromValues builds a signature from big integer components.
func FromValues(r, s *big.Int, v byte) (*Signature, error) {
	if r == nil || s == nil || r.Sign() < 0 || s.Sign() < 0 || r.BitLen() > 256 || s.BitLen() > 256 {
		return nil, fmt.Errorf("%w: r and s must be 256-bit unsigned integers", ErrMalformedSignature)
	}
	sig := &Signature{V: v}
	r.FillBytes(sig.R[:])
	s.FillBytes(sig.S[:])
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	return sig, nil
}

// Serialize returns r || s || v.
func Serialize(sig *Signature) []byte {
	out := make([]byte, SignatureLength)
	copy(out[:32], sig.R[:])
	copy(out[32:64], sig.S[:])
	out[64] = sig.V
	return out
}

func (s *Signature) Bytes() []byte {
	return Serialize(s)
}

func (s *Signature) Hex() string {
	return codec.BytesToHex(s.Bytes())
}

func (s *Signature) String() string {
	return s.Hex()
}

func (s *Signature) RInt() *big.Int {
	return new(big.Int).SetBytes(s.R[:])
}

func (s *Signature) SInt() *big.Int {
	return new(big.Int).SetBytes(s.S[:])
}

// Validate checks 0 < r < N, 0 < s < N and that v encodes a recovery id.
func (s *Signature) Validate() error {
	r := s.RInt()
	if r.Sign() == 0 || r.Cmp(secp256k1N) >= 0 {
		return fmt.Errorf("%w: r is out of range", ErrMalformedSignature)
	}
	sv := s.SInt()
	if sv.Sign() == 0 || sv.Cmp(secp256k1N) >= 0 {
		return fmt.Errorf("%w: s is out of range", ErrMalformedSignature)
	}
	if _, ok := recoveryID(s.V); !ok {
		return fmt.Errorf("%w: unsupported v value %d", ErrMalformedSignature, s.V)
	}
	return nil
}

// RecoveryID returns the raw recovery id (0 or 1) encoded in V.
func (s *Signature) RecoveryID() (byte, error) {
	id, ok := recoveryID(s.V)
	if !ok {
		return 0, fmt.Errorf("%w: unsupported v value %d", ErrMalformedSignature, s.V)
	}
	return id, nil
}

// Normalize returns a copy with V set to 27 or 28.
func (s *Signature) Normalize() (*Signature, error) {
	id, err := s.RecoveryID()
	if err != nil {
		return nil, err
	}
	out := *s
	out.V = LegacyVOffset + id
	return &out, nil
}

// IsLowS reports whether s <= N/2, the form required by EIP-2.
func (s *Signature) IsLowS() bool {
	return s.SInt().Cmp(secp256k1HalfN) <= 0
}

// Canonical returns the low-S form with V set to 27 or 28. A signature and its malleated
// twin (N-s, flipped recovery id) have the same canonical form.
func (s *Signature) Canonical() (*Signature, error) {
	out, err := s.Normalize()
	if err != nil {
		return nil, err
	}
	if out.IsLowS() {
		return out, nil
	}
	lowS := new(big.Int).Sub(secp256k1N, out.SInt())
	lowS.FillBytes(out.S[:])
	out.V = 2*LegacyVOffset + 1 - out.V // 27 <-> 28
	return out, nil
}

func (s *Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Hex())
}

func (s *Signature) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseHex(str)
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}

func recoveryID(v byte) (byte, bool) {
	switch {
	case v == 0 || v == 1:
		return v, true
	case v == 27 || v == 28:
		return v - LegacyVOffset, true
	case v >= eip155VOffset:
		return (v - eip155VOffset) % 2, true
	}
	return 0, false
}
