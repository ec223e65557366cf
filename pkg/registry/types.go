package registry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/hash"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/signature"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ErrRegistryClosed is returned by every operation after Close.
var ErrRegistryClosed = errors.New("verification registry is closed")

type Scheme string

const (
	SchemePersonal Scheme = "personal"
	SchemeTyped    Scheme = "typed"
	SchemeDigest   Scheme = "digest"
)

// VerificationRecord is a successful verification of Signature over Digest by Signer.
type VerificationRecord struct {
	ID         string `json:"id"`
	Scheme     Scheme `json:"scheme"`
	Digest     string `json:"digest"`
	Signature  string `json:"signature"`
	Signer     string `json:"signer"`
	VerifiedAt int64  `json:"verifiedAt"`
}

// NewVerificationRecord builds a record with a fresh id, storing the canonical
// signature and the checksummed signer address.
func NewVerificationRecord(scheme Scheme, d hash.Digest, sig *signature.Signature, signer common.Address) (*VerificationRecord, error) {
	canonical, err := sig.Canonical()
	if err != nil {
		return nil, err
	}
	return &VerificationRecord{
		ID:         uuid.NewString(),
		Scheme:     scheme,
		Digest:     d.Hex(),
		Signature:  canonical.Hex(),
		Signer:     signer.Hex(),
		VerifiedAt: time.Now().Unix(),
	}, nil
}

// CanonicalSignatureKey returns the registry key of a hex signature: the lowercase hex
// of its low-S form with v in {27, 28}.
func CanonicalSignatureKey(signatureHex string) (string, error) {
	sig, err := signature.ParseHex(signatureHex)
	if err != nil {
		return "", err
	}
	canonical, err := sig.Canonical()
	if err != nil {
		return "", err
	}
	return strings.ToLower(canonical.Hex()), nil
}

// NormalizeSigner returns the checksummed form of a signer address.
func NormalizeSigner(signer string) (string, error) {
	if !common.IsHexAddress(signer) {
		return "", fmt.Errorf("invalid signer address: %q", signer)
	}
	return common.HexToAddress(signer).Hex(), nil
}

// Prepare validates rec and returns its registry key with a copy whose signature and
// signer are in canonical form. rec itself is not modified.
func Prepare(rec *VerificationRecord) (string, *VerificationRecord, error) {
	if rec == nil {
		return "", nil, fmt.Errorf("cannot record nil VerificationRecord")
	}
	key, err := CanonicalSignatureKey(rec.Signature)
	if err != nil {
		return "", nil, err
	}
	signer, err := NormalizeSigner(rec.Signer)
	if err != nil {
		return "", nil, err
	}
	out := *rec
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.VerifiedAt == 0 {
		out.VerifiedAt = time.Now().Unix()
	}
	out.Signature = key
	out.Signer = signer
	return key, &out, nil
}
