// Package registrytest holds the behaviour every IVerificationRegistry backend must share.
package registrytest

import (
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/hash"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/registry"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/signature"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secp256k1N, _ = new(big.Int).SetString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", 16)

// Signed is a verification fixture.
type Signed struct {
	Digest hash.Digest
	Sig    *signature.Signature
	Signer common.Address
}

// NewSigned signs keccak(message) with a fresh key.
func NewSigned(t *testing.T, message string) Signed {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return signWith(t, key.D.Bytes(), message)
}

func signWith(t *testing.T, keyBytes []byte, message string) Signed {
	t.Helper()
	key, err := crypto.ToECDSA(common.LeftPadBytes(keyBytes, 32))
	require.NoError(t, err)
	d := hash.Keccak256([]byte(message))
	raw, err := crypto.Sign(d[:], key)
	require.NoError(t, err)
	raw[64] += signature.LegacyVOffset
	sig, err := signature.Parse(raw)
	require.NoError(t, err)
	return Signed{Digest: d, Sig: sig, Signer: crypto.PubkeyToAddress(key.PublicKey)}
}

// Record builds a record for s with the given timestamp.
func (s Signed) Record(t *testing.T, verifiedAt int64) *registry.VerificationRecord {
	t.Helper()
	rec, err := registry.NewVerificationRecord(registry.SchemeDigest, s.Digest, s.Sig, s.Signer)
	require.NoError(t, err)
	rec.VerifiedAt = verifiedAt
	return rec
}

// Malleated returns the high-S twin of a signature with v in {27, 28}.
func Malleated(sig *signature.Signature) *signature.Signature {
	out := *sig
	new(big.Int).Sub(secp256k1N, sig.SInt()).FillBytes(out.S[:])
	out.V = 2*signature.LegacyVOffset + 1 - sig.V
	return &out
}

// Run exercises a registry backend. newRegistry must return an empty registry.
func Run(t *testing.T, newRegistry func(t *testing.T) registry.IVerificationRegistry) {
	t.Run("Should report first sighting and replay", func(t *testing.T) {
		r := newRegistry(t)
		defer func() { _ = r.Close() }()

		s := NewSigned(t, "hello")
		firstSeen, err := r.RecordVerification(s.Record(t, 100))
		require.NoError(t, err)
		assert.True(t, firstSeen)

		firstSeen, err = r.RecordVerification(s.Record(t, 200))
		require.NoError(t, err)
		assert.False(t, firstSeen)

		loaded, err := r.GetVerification(s.Sig.Hex())
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, int64(100), loaded.VerifiedAt, "replay must not overwrite the first record")
		assert.Equal(t, s.Signer.Hex(), loaded.Signer)
		assert.Equal(t, s.Digest.Hex(), loaded.Digest)
		assert.Equal(t, registry.SchemeDigest, loaded.Scheme)
		assert.NotEmpty(t, loaded.ID)
	})

	t.Run("Should treat a malleated signature as a replay", func(t *testing.T) {
		r := newRegistry(t)
		defer func() { _ = r.Close() }()

		s := NewSigned(t, "malleable")
		firstSeen, err := r.RecordVerification(s.Record(t, 1))
		require.NoError(t, err)
		require.True(t, firstSeen)

		twin := s
		twin.Sig = Malleated(s.Sig)
		require.False(t, twin.Sig.IsLowS())
		rec := &registry.VerificationRecord{
			Scheme:    registry.SchemeDigest,
			Digest:    s.Digest.Hex(),
			Signature: twin.Sig.Hex(),
			Signer:    strings.ToLower(s.Signer.Hex()),
		}
		firstSeen, err = r.RecordVerification(rec)
		require.NoError(t, err)
		assert.False(t, firstSeen)

		raw := *s.Sig
		raw.V -= signature.LegacyVOffset
		loaded, err := r.GetVerification(raw.Hex())
		require.NoError(t, err)
		require.NotNil(t, loaded)
		canonical, err := s.Sig.Canonical()
		require.NoError(t, err)
		assert.Equal(t, canonical.Hex(), loaded.Signature)
	})

	t.Run("Should leave the caller's record untouched", func(t *testing.T) {
		r := newRegistry(t)

		s := NewSigned(t, "caller owned")
		rec := &registry.VerificationRecord{
			Scheme:    registry.SchemeDigest,
			Digest:    s.Digest.Hex(),
			Signature: Malleated(s.Sig).Hex(),
			Signer:    strings.ToLower(s.Signer.Hex()),
		}
		original := *rec

		firstSeen, err := r.RecordVerification(rec)
		require.NoError(t, err)
		assert.True(t, firstSeen)
		assert.Equal(t, original, *rec)

		require.NoError(t, r.Close())
		_, err = r.RecordVerification(rec)
		assert.ErrorIs(t, err, registry.ErrRegistryClosed)
		assert.Equal(t, original, *rec)
	})

	t.Run("Should return nil for an unknown signature", func(t *testing.T) {
		r := newRegistry(t)
		defer func() { _ = r.Close() }()

		loaded, err := r.GetVerification(NewSigned(t, "unknown").Sig.Hex())
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("Should reject malformed input", func(t *testing.T) {
		r := newRegistry(t)
		defer func() { _ = r.Close() }()

		_, err := r.GetVerification("0x1234")
		assert.ErrorIs(t, err, signature.ErrMalformedSignature)

		s := NewSigned(t, "bad signer")
		rec := s.Record(t, 1)
		rec.Signer = "not-an-address"
		_, err = r.RecordVerification(rec)
		assert.Error(t, err)

		_, err = r.RecordVerification(nil)
		assert.Error(t, err)

		_, err = r.ListVerificationsBySigner("0x12")
		assert.Error(t, err)
	})

	t.Run("Should list records of one signer by time", func(t *testing.T) {
		r := newRegistry(t)
		defer func() { _ = r.Close() }()

		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		a1 := signWith(t, key.D.Bytes(), "one")
		a2 := signWith(t, key.D.Bytes(), "two")
		a3 := signWith(t, key.D.Bytes(), "three")
		other := NewSigned(t, "other")

		for _, rec := range []*registry.VerificationRecord{a2.Record(t, 20), other.Record(t, 15), a3.Record(t, 30), a1.Record(t, 10)} {
			_, err := r.RecordVerification(rec)
			require.NoError(t, err)
		}

		recs, err := r.ListVerificationsBySigner(strings.ToLower(a1.Signer.Hex()))
		require.NoError(t, err)
		require.Len(t, recs, 3)
		assert.Equal(t, int64(10), recs[0].VerifiedAt)
		assert.Equal(t, int64(20), recs[1].VerifiedAt)
		assert.Equal(t, int64(30), recs[2].VerifiedAt)

		none, err := r.ListVerificationsBySigner(common.HexToAddress("0x01").Hex())
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("Should delete records idempotently", func(t *testing.T) {
		r := newRegistry(t)
		defer func() { _ = r.Close() }()

		s := NewSigned(t, "delete me")
		_, err := r.RecordVerification(s.Record(t, 5))
		require.NoError(t, err)

		require.NoError(t, r.DeleteVerification(Malleated(s.Sig).Hex()))
		require.NoError(t, r.DeleteVerification(s.Sig.Hex()))

		loaded, err := r.GetVerification(s.Sig.Hex())
		require.NoError(t, err)
		assert.Nil(t, loaded)

		recs, err := r.ListVerificationsBySigner(s.Signer.Hex())
		require.NoError(t, err)
		assert.Empty(t, recs)

		firstSeen, err := r.RecordVerification(s.Record(t, 6))
		require.NoError(t, err)
		assert.True(t, firstSeen)
	})

	t.Run("Should report exactly one first sighting under concurrency", func(t *testing.T) {
		r := newRegistry(t)
		defer func() { _ = r.Close() }()

		s := NewSigned(t, "race")
		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			first int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				firstSeen, err := r.RecordVerification(s.Record(t, int64(i+1)))
				assert.NoError(t, err)
				if firstSeen {
					mu.Lock()
					first++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, first)
	})

	t.Run("Should fail every operation after close", func(t *testing.T) {
		r := newRegistry(t)
		require.NoError(t, r.HealthCheck())
		require.NoError(t, r.Close())
		require.NoError(t, r.Close())

		s := NewSigned(t, "closed")
		_, err := r.RecordVerification(s.Record(t, 1))
		assert.ErrorIs(t, err, registry.ErrRegistryClosed)
		_, err = r.GetVerification(s.Sig.Hex())
		assert.ErrorIs(t, err, registry.ErrRegistryClosed)
		_, err = r.ListVerificationsBySigner(s.Signer.Hex())
		assert.ErrorIs(t, err, registry.ErrRegistryClosed)
		assert.ErrorIs(t, r.DeleteVerification(s.Sig.Hex()), registry.ErrRegistryClosed)
		assert.ErrorIs(t, r.HealthCheck(), registry.ErrRegistryClosed)
	})
}
