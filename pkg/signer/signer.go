package signer

import (
	"context"
	"errors"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/digest"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/hash"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/signature"
	"github.com/ethereum/go-ethereum/common"
)

// ErrSignerMismatch is returned when a signature does not recover to the signer's address.
var ErrSignerMismatch = errors.New("signature does not recover to signer address")

// ISigner is the signing capability supplied by a wallet, key management service or
// in-process key. Calls may block on user approval or a network round trip; they are
// never retried and a rejection is returned to the caller as-is.
type ISigner interface {
	// Address returns the identity the signer signs as.
	Address() common.Address

	// SignPersonalMessage signs payload under the EIP-191 personal message prefix.
	SignPersonalMessage(ctx context.Context, payload []byte) (*signature.Signature, error)

	// SignTypedData signs the EIP-712 digest of typedData.
	SignTypedData(ctx context.Context, typedData *digest.TypedData) (*signature.Signature, error)
}

// IDigestSigner is implemented by signers that can sign an arbitrary 32-byte digest.
// Remote wallets usually cannot.
type IDigestSigner interface {
	ISigner
	SignDigest(ctx context.Context, d hash.Digest) (*signature.Signature, error)
}

// SignPersonalMessageWithDigest builds the personal message digest and signs it with ds.
func SignPersonalMessageWithDigest(ctx context.Context, ds IDigestSigner, payload []byte) (*signature.Signature, error) {
	return ds.SignDigest(ctx, digest.BuildPersonalMessageDigest(payload))
}

// SignTypedDataWithDigest builds the EIP-712 digest and signs it with ds.
func SignTypedDataWithDigest(ctx context.Context, ds IDigestSigner, typedData *digest.TypedData) (*signature.Signature, error) {
	d, err := typedData.Digest()
	if err != nil {
		return nil, err
	}
	return ds.SignDigest(ctx, d)
}
