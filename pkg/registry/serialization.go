package registry

import (
	"encoding/json"
	"fmt"
	"sort"
)

// MarshalVerificationRecord serializes a VerificationRecord to JSON bytes.
func MarshalVerificationRecord(rec *VerificationRecord) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("cannot marshal nil VerificationRecord")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal VerificationRecord to JSON: %w", err)
	}
	return data, nil
}

// UnmarshalVerificationRecord deserializes a VerificationRecord from JSON bytes.
func UnmarshalVerificationRecord(data []byte) (*VerificationRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var rec VerificationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to VerificationRecord: %w", err)
	}
	return &rec, nil
}

// SortByVerifiedAt orders records by VerifiedAt, then by signature for a stable result.
func SortByVerifiedAt(recs []*VerificationRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].VerifiedAt != recs[j].VerifiedAt {
			return recs[i].VerifiedAt < recs[j].VerifiedAt
		}
		return recs[i].Signature < recs[j].Signature
	})
}
