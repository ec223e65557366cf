package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/codec"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/digest"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/hash"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/registry"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/signature"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-playground/validator/v10"
)

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Sugar().Warnw("Failed to encode response",
			"path", r.URL.Path,
			"request_id", requestIdFromContext(r.Context()),
			"error", err,
		)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.writeJSON(w, r, status, ErrorResponse{Error: msg, RequestId: requestIdFromContext(r.Context())})
}

// writeInputError answers a 400 for malformed input and a 500 for anything else.
func (s *Server) writeInputError(w http.ResponseWriter, r *http.Request, err error) {
	if isInputError(err) {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Sugar().Errorw("Request failed",
		"path", r.URL.Path,
		"request_id", requestIdFromContext(r.Context()),
		"error", err,
	)
	s.writeError(w, r, http.StatusInternalServerError, "internal error")
}

func isInputError(err error) bool {
	var validationErrs validator.ValidationErrors
	return errors.As(err, &validationErrs) ||
		errors.Is(err, errBadRequest) ||
		errors.Is(err, codec.ErrEncoding) ||
		errors.Is(err, codec.ErrMalformedHex) ||
		errors.Is(err, digest.ErrUnknownTypeReference) ||
		errors.Is(err, digest.ErrSchemaMismatch) ||
		errors.Is(err, signature.ErrMalformedSignature) ||
		errors.Is(err, signature.ErrInvalidSignature)
}

var errBadRequest = errors.New("bad request")

// decode reads a JSON body into req and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if r.Method != http.MethodPost {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("failed to parse request: %v", err))
		return false
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (m *MessageInput) payload() ([]byte, error) {
	if m.Message != nil {
		return codec.TextToBytes(*m.Message)
	}
	return codec.HexToBytes(m.MessageHex)
}

func parseTypedData(raw json.RawMessage) (*digest.TypedData, error) {
	td, err := digest.ParseTypedDataJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return td, nil
}

func (s *Server) handleHash(w http.ResponseWriter, r *http.Request) {
	var req HashRequest
	if !s.decode(w, r, &req) {
		return
	}

	var data []byte
	var err error
	switch {
	case req.Text == nil:
		data, err = codec.HexToBytes(req.Data)
	case req.Encoding == "abi":
		data, err = codec.AbiEncodeString(*req.Text)
	default:
		data, err = codec.PackedEncodeString(*req.Text)
	}
	if err != nil {
		s.writeInputError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, HashResponse{Digest: hash.Keccak256(data).Hex()})
}

func (s *Server) handlePersonalDigest(w http.ResponseWriter, r *http.Request) {
	var req PersonalDigestRequest
	if !s.decode(w, r, &req) {
		return
	}
	payload, err := req.payload()
	if err != nil {
		s.writeInputError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, PersonalDigestResponse{
		Digest:   digest.BuildPersonalMessageDigest(payload).Hex(),
		Preimage: codec.BytesToHex(digest.PersonalMessagePreimage(payload)),
	})
}

func (s *Server) handleTypedDigest(w http.ResponseWriter, r *http.Request) {
	var req TypedDigestRequest
	if !s.decode(w, r, &req) {
		return
	}
	td, err := parseTypedData(req.TypedData)
	if err != nil {
		s.writeInputError(w, r, err)
		return
	}

	d, err := td.Digest()
	if err != nil {
		s.writeInputError(w, r, err)
		return
	}
	domainSeparator, err := td.DomainSeparator()
	if err != nil {
		s.writeInputError(w, r, err)
		return
	}

	resp := TypedDigestResponse{
		Digest:          d.Hex(),
		DomainSeparator: domainSeparator.Hex(),
	}
	if td.PrimaryType != digest.DomainTypeName {
		structHash, err := td.StructHash()
		if err != nil {
			s.writeInputError(w, r, err)
			return
		}
		encodedType, err := td.EncodedType()
		if err != nil {
			s.writeInputError(w, r, err)
			return
		}
		resp.StructHash = structHash.Hex()
		resp.EncodedType = encodedType
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	var req RecoverRequest
	if !s.decode(w, r, &req) {
		return
	}
	d, err := hash.DigestFromHex(req.Digest)
	if err != nil {
		s.writeInputError(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	sig, err := signature.ParseHex(req.Signature)
	if err != nil {
		s.writeInputError(w, r, err)
		return
	}

	pub, err := signature.RecoverPublicKey(d, sig)
	if err != nil {
		s.writeInputError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, RecoverResponse{
		Address:   signature.IdentityFromPublicKey(pub).Hex(),
		PublicKey: codec.BytesToHex(crypto.FromECDSAPub(pub)),
	})
}

func (s *Server) handleVerifyPersonal(w http.ResponseWriter, r *http.Request) {
	var req VerifyPersonalRequest
	if !s.decode(w, r, &req) {
		return
	}
	payload, err := req.payload()
	if err != nil {
		s.writeInputError(w, r, err)
		return
	}
	s.verify(w, r, registry.SchemePersonal, digest.BuildPersonalMessageDigest(payload), req.Signature, req.Address)
}

func (s *Server) handleVerifyTyped(w http.ResponseWriter, r *http.Request) {
	var req VerifyTypedRequest
	if !s.decode(w, r, &req) {
		return
	}
	td, err := parseTypedData(req.TypedData)
	if err != nil {
		s.writeInputError(w, r, err)
		return
	}
	d, err := td.Digest()
	if err != nil {
		s.writeInputError(w, r, err)
		return
	}
	s.verify(w, r, registry.SchemeTyped, d, req.Signature, req.Address)
}

// verify recovers the signer of d and records a valid signature in the registry.
// A signature that recovers to no point is reported as invalid rather than malformed.
func (s *Server) verify(w http.ResponseWriter, r *http.Request, scheme registry.Scheme, d hash.Digest, sigHex, expected string) {
	sig, err := signature.ParseHex(sigHex)
	if err != nil {
		s.writeInputError(w, r, err)
		return
	}

	resp := VerifyResponse{Digest: d.Hex()}
	recovered, err := signature.RecoverIdentity(d, sig)
	if errors.Is(err, signature.ErrInvalidSignature) {
		s.metrics.Verifications.WithLabelValues(string(scheme), "invalid").Inc()
		s.writeJSON(w, r, http.StatusOK, resp)
		return
	}
	if err != nil {
		s.writeInputError(w, r, err)
		return
	}

	resp.Recovered = recovered.Hex()
	resp.Valid = strings.EqualFold(resp.Recovered, expected)
	if !resp.Valid {
		s.metrics.Verifications.WithLabelValues(string(scheme), "invalid").Inc()
		s.writeJSON(w, r, http.StatusOK, resp)
		return
	}

	rec, err := registry.NewVerificationRecord(scheme, d, sig, recovered)
	if err != nil {
		s.writeInputError(w, r, err)
		return
	}
	firstSeen, err := s.registry.RecordVerification(rec)
	if err != nil {
		s.logger.Sugar().Errorw("Failed to record verification",
			"request_id", requestIdFromContext(r.Context()),
			"signer", recovered.Hex(),
			"error", err,
		)
		s.writeError(w, r, http.StatusInternalServerError, "failed to record verification")
		return
	}
	resp.Replayed = !firstSeen

	outcome := "valid"
	if resp.Replayed {
		outcome = "replayed"
		s.logger.Sugar().Infow("Replayed signature presented",
			"request_id", requestIdFromContext(r.Context()),
			"signer", recovered.Hex(),
			"digest", d.Hex(),
		)
	}
	s.metrics.Verifications.WithLabelValues(string(scheme), outcome).Inc()
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleSignPersonal(w http.ResponseWriter, r *http.Request) {
	var req SignPersonalRequest
	if !s.decode(w, r, &req) {
		return
	}
	payload, err := req.payload()
	if err != nil {
		s.writeInputError(w, r, err)
		return
	}

	sig, err := s.signer.SignPersonalMessage(r.Context(), payload)
	s.respondSigned(w, r, registry.SchemePersonal, digest.BuildPersonalMessageDigest(payload), sig, err)
}

func (s *Server) handleSignTyped(w http.ResponseWriter, r *http.Request) {
	var req SignTypedRequest
	if !s.decode(w, r, &req) {
		return
	}
	td, err := parseTypedData(req.TypedData)
	if err != nil {
		s.writeInputError(w, r, err)
		return
	}
	d, err := td.Digest()
	if err != nil {
		s.writeInputError(w, r, err)
		return
	}

	sig, err := s.signer.SignTypedData(r.Context(), td)
	s.respondSigned(w, r, registry.SchemeTyped, d, sig, err)
}

func (s *Server) respondSigned(w http.ResponseWriter, r *http.Request, scheme registry.Scheme, d hash.Digest, sig *signature.Signature, err error) {
	if err != nil {
		s.metrics.Signatures.WithLabelValues(string(scheme), "failure").Inc()
		s.logger.Sugar().Warnw("Signer failed",
			"request_id", requestIdFromContext(r.Context()),
			"scheme", scheme,
			"error", err,
		)
		s.writeError(w, r, http.StatusBadGateway, fmt.Sprintf("signer failed: %v", err))
		return
	}
	s.metrics.Signatures.WithLabelValues(string(scheme), "success").Inc()
	s.writeJSON(w, r, http.StatusOK, SignResponse{
		Signature: sig.Hex(),
		Address:   s.signer.Address().Hex(),
		Digest:    d.Hex(),
	})
}

func (s *Server) handleAddress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, r, http.StatusOK, AddressResponse{Address: s.signer.Address().Hex()})
}

// handleVerifications reads the replay registry. A signature lookup answers with
// zero or one record.
func (s *Server) handleVerifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := VerificationsQuery{
		Signer:    r.URL.Query().Get("signer"),
		Signature: r.URL.Query().Get("signature"),
	}
	if err := s.validate.Struct(q); err != nil {
		s.writeInputError(w, r, err)
		return
	}

	records := []*registry.VerificationRecord{}
	if q.Signer != "" {
		found, err := s.registry.ListVerificationsBySigner(q.Signer)
		if err != nil {
			s.writeInputError(w, r, err)
			return
		}
		records = append(records, found...)
	} else {
		rec, err := s.registry.GetVerification(q.Signature)
		if err != nil {
			s.writeInputError(w, r, err)
			return
		}
		if rec != nil {
			records = append(records, rec)
		}
	}
	s.writeJSON(w, r, http.StatusOK, VerificationsResponse{Records: records})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.HealthCheck(); err != nil {
		s.writeJSON(w, r, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Error: err.Error()})
		return
	}
	s.writeJSON(w, r, http.StatusOK, HealthResponse{Status: "ok"})
}
