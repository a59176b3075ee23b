// Package merkle implements the protocol's authenticated data structures:
// the append-only incremental tree (I-IMT) backing the commitment, object,
// ingress and exit registries, and the sorted indexed tree (S-IMT) backing
// the nullifier, callback and sanctions sets.
package merkle

import (
	"errors"

	"github.com/fluxe/core/internal/crypto"
	"github.com/fluxe/core/pkg/types"
)

// Tree errors
var (
	ErrTreeFull        = errors.New("merkle tree is full")
	ErrInvalidPosition = errors.New("invalid leaf position")
	ErrKeyExists       = errors.New("key already exists")
	ErrKeyNotFound     = errors.New("key not found")
	ErrNotInGap        = errors.New("target not in gap")
)

// DefaultTreeHeight matches the fixed height used by the circuits.
const DefaultTreeHeight = 16

// TreeParams fixes the height and the per-level empty-subtree hashes of a
// tree. empty[0] is the zero field element; empty[h] = H(empty[h-1],
// empty[h-1]).
type TreeParams struct {
	Height int

	empties []types.Field
}

// NewTreeParams precomputes the empty-subtree chain for the given height.
func NewTreeParams(height int) *TreeParams {
	empties := make([]types.Field, height+1)
	for h := 1; h <= height; h++ {
		empties[h] = crypto.Hash(empties[h-1], empties[h-1])
	}
	return &TreeParams{Height: height, empties: empties}
}

// HashPair hashes an ordered (left, right) node pair.
func (p *TreeParams) HashPair(left, right types.Field) types.Field {
	return crypto.Hash(left, right)
}

// EmptyAtLevel returns the hash of an all-empty subtree rooted at level h.
func (p *TreeParams) EmptyAtLevel(h int) types.Field {
	return p.empties[h]
}

// EmptyRoot returns the root of an empty tree.
func (p *TreeParams) EmptyRoot() types.Field {
	return p.empties[p.Height]
}

// MaxLeaves returns the leaf capacity.
func (p *TreeParams) MaxLeaves() uint64 {
	return uint64(1) << p.Height
}

// MerklePath proves membership of a leaf. Siblings run from the leaf level
// upward; the pairing order at level i follows bit i of LeafIndex
// (little-endian: bit 0 means the current node is the left child).
type MerklePath struct {
	LeafIndex uint64
	Siblings  []types.Field
	Leaf      types.Field
}

// ComputeRoot walks the path from the leaf upward.
func (mp *MerklePath) ComputeRoot(params *TreeParams) types.Field {
	current := mp.Leaf
	index := mp.LeafIndex
	for _, sibling := range mp.Siblings {
		if index&1 == 0 {
			current = params.HashPair(current, sibling)
		} else {
			current = params.HashPair(sibling, current)
		}
		index >>= 1
	}
	return current
}

// Verify reports whether the path recomputes the expected root.
func (mp *MerklePath) Verify(root types.Field, params *TreeParams) bool {
	computed := mp.ComputeRoot(params)
	return computed.Equal(&root)
}

// clonePath deep-copies a path.
func clonePath(mp *MerklePath) *MerklePath {
	siblings := make([]types.Field, len(mp.Siblings))
	copy(siblings, mp.Siblings)
	return &MerklePath{LeafIndex: mp.LeafIndex, Siblings: siblings, Leaf: mp.Leaf}
}

// AppendWitness carries the sibling set of an append position captured
// BEFORE the leaf is inserted. The same siblings prove both roots: with the
// empty leaf at the position they recompute the old root, with the appended
// leaf they recompute the new root.
type AppendWitness struct {
	Leaf        types.Field
	LeafIndex   uint64
	PreSiblings []types.Field
	Height      int
}

// ComputeOldRoot derives the pre-append root from the witness.
func (w *AppendWitness) ComputeOldRoot(params *TreeParams) types.Field {
	return w.rootWith(params.EmptyAtLevel(0), params)
}

// ComputeNewRoot derives the post-append root from the witness.
func (w *AppendWitness) ComputeNewRoot(params *TreeParams) types.Field {
	return w.rootWith(w.Leaf, params)
}

func (w *AppendWitness) rootWith(leaf types.Field, params *TreeParams) types.Field {
	current := leaf
	index := w.LeafIndex
	for _, sibling := range w.PreSiblings {
		if index&1 == 0 {
			current = params.HashPair(current, sibling)
		} else {
			current = params.HashPair(sibling, current)
		}
		index >>= 1
	}
	return current
}

// CmpField orders two field elements by their big-integer representation.
// The S-IMT sort order is defined over this comparison; never substitute a
// byte-wise or signed ordering.
func CmpField(a, b *types.Field) int {
	return a.Cmp(b)
}

// FieldLess reports a < b under the S-IMT ordering.
func FieldLess(a, b *types.Field) bool {
	return CmpField(a, b) < 0
}
