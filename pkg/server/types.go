package server

import (
	"encoding/json"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/registry"
)

// MessageInput carries a personal message either as UTF-8 text or as hex bytes.
type MessageInput struct {
	Message    *string `json:"message,omitempty"`
	MessageHex string  `json:"messageHex,omitempty" validate:"required_without=Message,excluded_with=Message,omitempty,hex0x"`
}

type HashRequest struct {
	Data     string  `json:"data,omitempty" validate:"required_without=Text,excluded_with=Text,omitempty,hex0x"`
	Text     *string `json:"text,omitempty"`
	Encoding string  `json:"encoding,omitempty" validate:"omitempty,oneof=packed abi"`
}

type HashResponse struct {
	Digest string `json:"digest"`
}

type PersonalDigestRequest struct {
	MessageInput
}

type PersonalDigestResponse struct {
	Digest   string `json:"digest"`
	Preimage string `json:"preimage"`
}

type TypedDigestRequest struct {
	TypedData json.RawMessage `json:"typedData" validate:"required"`
}

type TypedDigestResponse struct {
	Digest          string `json:"digest"`
	DomainSeparator string `json:"domainSeparator"`
	StructHash      string `json:"structHash,omitempty"`
	EncodedType     string `json:"encodedType,omitempty"`
}

type RecoverRequest struct {
	Digest    string `json:"digest" validate:"required,hex0x"`
	Signature string `json:"signature" validate:"required,hex0x"`
}

type RecoverResponse struct {
	Address   string `json:"address"`
	PublicKey string `json:"publicKey"`
}

type VerifyPersonalRequest struct {
	MessageInput
	Signature string `json:"signature" validate:"required,hex0x"`
	Address   string `json:"address" validate:"required,eth_addr"`
}

type VerifyTypedRequest struct {
	TypedData json.RawMessage `json:"typedData" validate:"required"`
	Signature string          `json:"signature" validate:"required,hex0x"`
	Address   string          `json:"address" validate:"required,eth_addr"`
}

type VerifyResponse struct {
	Valid     bool   `json:"valid"`
	Recovered string `json:"recovered,omitempty"`
	Replayed  bool   `json:"replayed"`
	Digest    string `json:"digest"`
}

type SignPersonalRequest struct {
	MessageInput
}

type SignTypedRequest struct {
	TypedData json.RawMessage `json:"typedData" validate:"required"`
}

type SignResponse struct {
	Signature string `json:"signature"`
	Address   string `json:"address"`
	Digest    string `json:"digest"`
}

type AddressResponse struct {
	Address string `json:"address"`
}

// VerificationsQuery selects registry records by signer or by signature.
type VerificationsQuery struct {
	Signer    string `validate:"required_without=Signature,excluded_with=Signature,omitempty,eth_addr"`
	Signature string `validate:"required_without=Signer,excluded_with=Signer,omitempty,hex0x"`
}

type VerificationsResponse struct {
	Records []*registry.VerificationRecord `json:"records"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestId string `json:"requestId,omitempty"`
}
