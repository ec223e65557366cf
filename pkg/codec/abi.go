package codec

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// AbiEncodeString returns the ABI encoding of a single string argument:
// a 32-byte offset word, a 32-byte length word and the right-padded data.
// This is what Solidity's abi.encode(str) produces.
func AbiEncodeString(str string) ([]byte, error) {
	data, err := TextToBytes(str)
	if err != nil {
		return nil, err
	}
	stringType, err := abi.NewType("string", "", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build string abi type: %w", err)
	}
	arguments := abi.Arguments{{Type: stringType}}

	encoded, err := arguments.Pack(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to abi encode string: %w", err)
	}
	return encoded, nil
}

// PackedEncodeString returns the tightly packed encoding of a string, which is its
// raw UTF-8 bytes with no offset or length metadata (abi.encodePacked).
func PackedEncodeString(str string) ([]byte, error) {
	return TextToBytes(str)
}
