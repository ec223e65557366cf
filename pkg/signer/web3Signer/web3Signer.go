package web3Signer

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/clients/web3signer"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/codec"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/digest"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/signature"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/signer"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Web3Signer delegates signing to a remote Web3Signer over JSON-RPC. The remote side
// builds the digests itself, so it cannot sign a bare digest.
type Web3Signer struct {
	client  web3signer.IWeb3Signer
	address common.Address
	logger  *zap.Logger
}

var _ signer.ISigner = (*Web3Signer)(nil)

func NewWeb3Signer(client web3signer.IWeb3Signer, address common.Address, logger *zap.Logger) *Web3Signer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Web3Signer{
		client:  client,
		address: address,
		logger:  logger,
	}
}

// NewWeb3SignerForFirstAccount asks the remote service for its accounts and signs as the first one.
func NewWeb3SignerForFirstAccount(ctx context.Context, client web3signer.IWeb3Signer, logger *zap.Logger) (*Web3Signer, error) {
	accounts, err := client.EthAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list web3signer accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("web3signer has no accounts")
	}
	if !common.IsHexAddress(accounts[0]) {
		return nil, fmt.Errorf("web3signer returned an invalid account %q", accounts[0])
	}
	return NewWeb3Signer(client, common.HexToAddress(accounts[0]), logger), nil
}

func (w *Web3Signer) Address() common.Address {
	return w.address
}

func (w *Web3Signer) SignPersonalMessage(ctx context.Context, payload []byte) (*signature.Signature, error) {
	w.logger.Sugar().Debugw("Requesting personal message signature",
		zap.String("address", w.address.Hex()),
		zap.Int("payloadLength", len(payload)),
	)
	sigHex, err := w.client.EthSign(ctx, w.address.Hex(), codec.BytesToHex(payload))
	if err != nil {
		return nil, err
	}
	return parseRemoteSignature(sigHex)
}

func (w *Web3Signer) SignTypedData(ctx context.Context, typedData *digest.TypedData) (*signature.Signature, error) {
	if err := typedData.Types.Validate(); err != nil {
		return nil, err
	}
	w.logger.Sugar().Debugw("Requesting typed data signature",
		zap.String("address", w.address.Hex()),
		zap.String("primaryType", typedData.PrimaryType),
	)
	sigHex, err := w.client.EthSignTypedData(ctx, w.address.Hex(), typedData.WithDomainType())
	if err != nil {
		return nil, err
	}
	return parseRemoteSignature(sigHex)
}

func parseRemoteSignature(sigHex string) (*signature.Signature, error) {
	sig, err := signature.ParseHex(sigHex)
	if err != nil {
		return nil, fmt.Errorf("web3signer returned a malformed signature: %w", err)
	}
	return sig.Normalize()
}
