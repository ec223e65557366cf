package digest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
)

var (
	// ErrUnknownTypeReference is returned when a field's type is neither a primitive
	// nor a struct declared in the type set.
	ErrUnknownTypeReference = errors.New("unknown type reference")

	// ErrSchemaMismatch is returned when a value does not match its declared schema.
	ErrSchemaMismatch = errors.New("value does not match schema")
)

// DomainTypeName is the reserved struct name of the domain separator.
const DomainTypeName = "EIP712Domain"

// Type is a single field descriptor of a struct schema.
type Type struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Types maps a struct name to its ordered field descriptors.
type Types map[string][]Type

// TypedDataMessage is a struct value keyed by field name.
type TypedDataMessage = map[string]interface{}

// TypedDataDomain holds the optional domain separator fields. A field participates in
// the separator only when it is set: a non-empty string or a non-nil chain id.
type TypedDataDomain struct {
	Name              string                `json:"name,omitempty"`
	Version           string                `json:"version,omitempty"`
	ChainId           *math.HexOrDecimal256 `json:"chainId,omitempty"`
	VerifyingContract string                `json:"verifyingContract,omitempty"`
	Salt              string                `json:"salt,omitempty"`
}

// TypedData is the eth_signTypedData_v4 payload.
type TypedData struct {
	Types       Types            `json:"types"`
	PrimaryType string           `json:"primaryType"`
	Domain      TypedDataDomain  `json:"domain"`
	Message     TypedDataMessage `json:"message"`
}

// domainFields returns the canonical descriptor list for the fields set on d.
func (d *TypedDataDomain) domainFields() []Type {
	fields := make([]Type, 0, 5)
	if d.Name != "" {
		fields = append(fields, Type{Name: "name", Type: "string"})
	}
	if d.Version != "" {
		fields = append(fields, Type{Name: "version", Type: "string"})
	}
	if d.ChainId != nil {
		fields = append(fields, Type{Name: "chainId", Type: "uint256"})
	}
	if d.VerifyingContract != "" {
		fields = append(fields, Type{Name: "verifyingContract", Type: "address"})
	}
	if d.Salt != "" {
		fields = append(fields, Type{Name: "salt", Type: "bytes32"})
	}
	return fields
}

// Map returns the set domain fields as a struct value.
func (d *TypedDataDomain) Map() TypedDataMessage {
	m := TypedDataMessage{}
	if d.Name != "" {
		m["name"] = d.Name
	}
	if d.Version != "" {
		m["version"] = d.Version
	}
	if d.ChainId != nil {
		m["chainId"] = new(big.Int).Set((*big.Int)(d.ChainId))
	}
	if d.VerifyingContract != "" {
		m["verifyingContract"] = d.VerifyingContract
	}
	if d.Salt != "" {
		m["salt"] = d.Salt
	}
	return m
}

// ChainIdUint64 returns the chain id and whether it is set.
func (d *TypedDataDomain) ChainIdUint64() (uint64, bool) {
	if d.ChainId == nil {
		return 0, false
	}
	b := (*big.Int)(d.ChainId)
	if !b.IsUint64() {
		return 0, false
	}
	return b.Uint64(), true
}

// ParseTypedDataJSON decodes an eth_signTypedData_v4 JSON document. Numbers are kept as
// json.Number so integers wider than 53 bits survive decoding.
func ParseTypedDataJSON(data []byte) (*TypedData, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var td TypedData
	if err := dec.Decode(&td); err != nil {
		return nil, fmt.Errorf("failed to decode typed data: %w", err)
	}
	if td.PrimaryType == "" {
		return nil, fmt.Errorf("%w: primaryType is required", ErrSchemaMismatch)
	}
	if td.Types == nil {
		td.Types = Types{}
	}
	if td.Message == nil {
		td.Message = TypedDataMessage{}
	}
	return &td, nil
}

// WithDomainType returns a shallow copy of td whose type set declares EIP712Domain.
// Remote signers commonly require the declaration to be present.
func (td *TypedData) WithDomainType() *TypedData {
	if _, ok := td.Types[DomainTypeName]; ok {
		return td
	}
	types := make(Types, len(td.Types)+1)
	for name, fields := range td.Types {
		types[name] = fields
	}
	types[DomainTypeName] = td.Domain.domainFields()
	out := *td
	out.Types = types
	return &out
}
