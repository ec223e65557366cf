package signer

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/digest"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/hash"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/signature"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// CheckedSigner recovers every signature produced by the wrapped signer and rejects it
// unless it recovers to the wrapped signer's address.
type CheckedSigner struct {
	inner  ISigner
	logger *zap.Logger
}

var _ ISigner = (*CheckedSigner)(nil)

func NewCheckedSigner(inner ISigner, logger *zap.Logger) *CheckedSigner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckedSigner{inner: inner, logger: logger}
}

func (c *CheckedSigner) Address() common.Address {
	return c.inner.Address()
}

func (c *CheckedSigner) SignPersonalMessage(ctx context.Context, payload []byte) (*signature.Signature, error) {
	sig, err := c.inner.SignPersonalMessage(ctx, payload)
	if err != nil {
		return nil, err
	}
	return c.check(digest.BuildPersonalMessageDigest(payload), sig)
}

func (c *CheckedSigner) SignTypedData(ctx context.Context, typedData *digest.TypedData) (*signature.Signature, error) {
	d, err := typedData.Digest()
	if err != nil {
		return nil, err
	}
	sig, err := c.inner.SignTypedData(ctx, typedData)
	if err != nil {
		return nil, err
	}
	return c.check(d, sig)
}

func (c *CheckedSigner) check(d hash.Digest, sig *signature.Signature) (*signature.Signature, error) {
	recovered, err := signature.RecoverIdentity(d, sig)
	if err != nil {
		return nil, fmt.Errorf("signer returned an unrecoverable signature: %w", err)
	}
	if recovered != c.inner.Address() {
		c.logger.Sugar().Warnw("Signature recovered to unexpected address",
			zap.String("expected", c.inner.Address().Hex()),
			zap.String("recovered", recovered.Hex()),
			zap.String("digest", d.Hex()),
		)
		return nil, fmt.Errorf("%w: expected %s, recovered %s", ErrSignerMismatch, c.inner.Address().Hex(), recovered.Hex())
	}
	return sig, nil
}
