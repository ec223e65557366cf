package web3signer

import (
	"context"
	"net/http"
)

// IWeb3Signer is the subset of the Web3Signer JSON-RPC surface used to
// produce personal-message and typed-data signatures.
type IWeb3Signer interface {
	SetHttpClient(client *http.Client)

	// EthAccounts calls eth_accounts.
	EthAccounts(ctx context.Context) ([]string, error)

	// EthSign calls eth_sign. The remote side applies the
	// "\x19Ethereum Signed Message:\n" envelope before hashing, so data is
	// the raw payload as 0x hex.
	EthSign(ctx context.Context, account string, data string) (string, error)

	// EthSignTypedData calls eth_signTypedData with a full EIP-712 document.
	EthSignTypedData(ctx context.Context, account string, typedData interface{}) (string, error)

	// ListPublicKeys is EthAccounts under the name the remote signer config uses.
	ListPublicKeys(ctx context.Context) ([]string, error)

	// Upcheck returns nil when GET /upcheck answers 200.
	Upcheck(ctx context.Context) error
}

var _ IWeb3Signer = (*Client)(nil)
