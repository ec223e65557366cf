package merkle

import "github.com/Layr-Labs/eigenx-sigkit/pkg/hash"

// DigestTree is a binary merkle tree over a batch of digests. Leaves are sorted
// ascending and deduplicated; each parent is keccak256 of its two children in
// ascending order, and an unpaired node is promoted to the next level unchanged.
type DigestTree struct {
	// Leaves contains the sorted, distinct digests
	Leaves []hash.Digest

	// Root is the merkle root hash
	Root hash.Digest

	// levels[0] = leaves, levels[len-1] = root
	levels [][]hash.Digest
}

// DigestProof shows that Leaf is included under a root. Because pairs are hashed in
// sorted order, the proof carries no position bits.
type DigestProof struct {
	Leaf     hash.Digest   `json:"leaf"`
	Siblings []hash.Digest `json:"siblings"`
}
