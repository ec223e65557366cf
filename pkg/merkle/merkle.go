package merkle

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/hash"
)

var (
	ErrEmptyBatch   = errors.New("cannot build merkle tree from an empty batch")
	ErrLeafNotFound = errors.New("digest is not a leaf of the tree")
)

// BuildDigestTree commits to a batch of digests. The result is independent of the
// order of digests and of duplicates within it.
func BuildDigestTree(digests []hash.Digest) (*DigestTree, error) {
	if len(digests) == 0 {
		return nil, ErrEmptyBatch
	}

	leaves := SortDigests(digests)

	levels := [][]hash.Digest{leaves}
	currentLevel := leaves
	for len(currentLevel) > 1 {
		nextLevel := make([]hash.Digest, 0, (len(currentLevel)+1)/2)
		for i := 0; i < len(currentLevel); i += 2 {
			if i+1 == len(currentLevel) {
				nextLevel = append(nextLevel, currentLevel[i])
				continue
			}
			nextLevel = append(nextLevel, hashPair(currentLevel[i], currentLevel[i+1]))
		}
		levels = append(levels, nextLevel)
		currentLevel = nextLevel
	}

	return &DigestTree{
		Leaves: leaves,
		Root:   currentLevel[0],
		levels: levels,
	}, nil
}

// GenerateProof returns the inclusion proof of d.
func (dt *DigestTree) GenerateProof(d hash.Digest) (*DigestProof, error) {
	index := sort.Search(len(dt.Leaves), func(i int) bool {
		return dt.Leaves[i].Compare(d) >= 0
	})
	if index == len(dt.Leaves) || dt.Leaves[index] != d {
		return nil, fmt.Errorf("%w: %s", ErrLeafNotFound, d.Hex())
	}

	siblings := make([]hash.Digest, 0, len(dt.levels)-1)
	for level := 0; level < len(dt.levels)-1; level++ {
		currentLevel := dt.levels[level]
		siblingIndex := index ^ 1
		// A promoted node has no sibling at this level.
		if siblingIndex < len(currentLevel) {
			siblings = append(siblings, currentLevel[siblingIndex])
		}
		index /= 2
	}

	return &DigestProof{Leaf: d, Siblings: siblings}, nil
}

// VerifyProof reports whether proof folds up to root.
func VerifyProof(proof *DigestProof, root hash.Digest) bool {
	if proof == nil {
		return false
	}
	current := proof.Leaf
	for _, sibling := range proof.Siblings {
		current = hashPair(current, sibling)
	}
	return current == root
}

// SortDigests returns a sorted copy of digests with duplicates removed.
func SortDigests(digests []hash.Digest) []hash.Digest {
	sorted := make([]hash.Digest, len(digests))
	copy(sorted, digests)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Compare(sorted[j]) < 0
	})

	out := sorted[:0]
	for i, d := range sorted {
		if i == 0 || d != sorted[i-1] {
			out = append(out, d)
		}
	}
	return out
}

// hashPair computes keccak256(min || max).
func hashPair(a, b hash.Digest) hash.Digest {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return hash.Keccak256(a[:], b[:])
}
