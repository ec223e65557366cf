package signature

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/hash"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// RecoverPublicKey recovers the secp256k1 public key that produced sig over digest.
func RecoverPublicKey(digest hash.Digest, sig *Signature) (*ecdsa.PublicKey, error) {
	if sig == nil {
		return nil, fmt.Errorf("%w: nil signature", ErrMalformedSignature)
	}
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	id, _ := sig.RecoveryID()

	raw := Serialize(sig)
	raw[64] = id
	if !crypto.ValidateSignatureValues(id, sig.RInt(), sig.SInt(), false) {
		return nil, fmt.Errorf("%w: signature values rejected", ErrInvalidSignature)
	}

	pub, err := crypto.SigToPub(digest[:], raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !crypto.S256().IsOnCurve(pub.X, pub.Y) {
		return nil, fmt.Errorf("%w: recovered point is not on the curve", ErrInvalidSignature)
	}
	return pub, nil
}

// RecoverIdentity returns the address of the key that produced sig over digest.
func RecoverIdentity(digest hash.Digest, sig *Signature) (common.Address, error) {
	pub, err := RecoverPublicKey(digest, sig)
	if err != nil {
		return common.Address{}, err
	}
	return IdentityFromPublicKey(pub), nil
}

// IdentityFromPublicKey returns the last 20 bytes of keccak256(X || Y).
func IdentityFromPublicKey(pub *ecdsa.PublicKey) common.Address {
	uncompressed := crypto.FromECDSAPub(pub)
	h := hash.Keccak256(uncompressed[1:])
	return common.BytesToAddress(h[12:])
}
