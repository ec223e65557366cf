package signature

import (
	"fmt"
	"strings"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/codec"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/digest"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/hash"
	"github.com/ethereum/go-ethereum/common"
)

// VerifyDigest reports whether sig over d was produced by expected. The comparison
// ignores case, so checksummed and lowercase addresses both match.
func VerifyDigest(d hash.Digest, sig *Signature, expected string) (bool, error) {
	if err := validateIdentity(expected); err != nil {
		return false, err
	}
	recovered, err := RecoverIdentity(d, sig)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(recovered.Hex(), expected), nil
}

// VerifyPersonalMessage rebuilds the personal message digest of payload and verifies sig.
func VerifyPersonalMessage(payload []byte, sig *Signature, expected string) (bool, error) {
	return VerifyDigest(digest.BuildPersonalMessageDigest(payload), sig, expected)
}

// VerifyPersonalMessageText is VerifyPersonalMessage for text payloads.
func VerifyPersonalMessageText(text string, sig *Signature, expected string) (bool, error) {
	d, err := digest.BuildPersonalMessageDigestFromText(text)
	if err != nil {
		return false, err
	}
	return VerifyDigest(d, sig, expected)
}

// VerifyTypedData rebuilds the EIP-712 digest of td and verifies sig.
func VerifyTypedData(td *digest.TypedData, sig *Signature, expected string) (bool, error) {
	d, err := td.Digest()
	if err != nil {
		return false, err
	}
	return VerifyDigest(d, sig, expected)
}

func validateIdentity(identity string) error {
	b, err := codec.HexToBytes(identity)
	if err != nil {
		return fmt.Errorf("invalid expected identity: %w", err)
	}
	if len(b) != common.AddressLength {
		return fmt.Errorf("%w: expected identity must be %d bytes, got %d", codec.ErrMalformedHex, common.AddressLength, len(b))
	}
	return nil
}
