package memory

import (
	"sync"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/registry"
)

// MemoryRegistry is an in-memory implementation of IVerificationRegistry.
//
// All data is lost when the process exits. Records are copied on the way in and out
// to prevent external mutation.
type MemoryRegistry struct {
	mu      sync.RWMutex
	records map[string]*registry.VerificationRecord
	closed  bool
}

var _ registry.IVerificationRegistry = (*MemoryRegistry)(nil)

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		records: make(map[string]*registry.VerificationRecord),
	}
}

func (m *MemoryRegistry) RecordVerification(rec *registry.VerificationRecord) (bool, error) {
	key, prepared, err := registry.Prepare(rec)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, registry.ErrRegistryClosed
	}
	if _, exists := m.records[key]; exists {
		return false, nil
	}
	m.records[key] = prepared
	return true, nil
}

func (m *MemoryRegistry) GetVerification(signatureHex string) (*registry.VerificationRecord, error) {
	key, err := registry.CanonicalSignatureKey(signatureHex)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, registry.ErrRegistryClosed
	}
	rec, exists := m.records[key]
	if !exists {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

func (m *MemoryRegistry) ListVerificationsBySigner(signer string) ([]*registry.VerificationRecord, error) {
	normalized, err := registry.NormalizeSigner(signer)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, registry.ErrRegistryClosed
	}
	recs := make([]*registry.VerificationRecord, 0)
	for _, rec := range m.records {
		if rec.Signer == normalized {
			out := *rec
			recs = append(recs, &out)
		}
	}
	registry.SortByVerifiedAt(recs)
	return recs, nil
}

func (m *MemoryRegistry) DeleteVerification(signatureHex string) error {
	key, err := registry.CanonicalSignatureKey(signatureHex)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return registry.ErrRegistryClosed
	}
	delete(m.records, key)
	return nil
}

func (m *MemoryRegistry) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return registry.ErrRegistryClosed
	}
	return nil
}

func (m *MemoryRegistry) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.records = nil
	return nil
}
