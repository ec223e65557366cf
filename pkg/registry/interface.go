package registry

// IVerificationRegistry records successful verifications so a signature can be
// recognised when it is presented again. Records are keyed by the canonical form of
// the signature, so a malleated copy of a recorded signature is a replay.
// All implementations must be thread-safe.
type IVerificationRegistry interface {
	// RecordVerification stores rec under its canonical signature. firstSeen is false
	// when a record for the same canonical signature already exists; the existing record
	// is left untouched in that case.
	RecordVerification(rec *VerificationRecord) (firstSeen bool, err error)

	// GetVerification returns the record for a signature in any accepted encoding.
	// Returns nil if no record exists, error only on storage failure.
	GetVerification(signatureHex string) (*VerificationRecord, error)

	// ListVerificationsBySigner returns the records of one signer sorted by VerifiedAt (ascending).
	// Returns an empty slice if none exist.
	ListVerificationsBySigner(signer string) ([]*VerificationRecord, error)

	// DeleteVerification removes a record. Idempotent.
	DeleteVerification(signatureHex string) error

	// HealthCheck verifies the backend is operational.
	HealthCheck() error

	// Close shuts down the registry. Idempotent.
	// After Close(), all other operations return ErrRegistryClosed.
	Close() error
}
