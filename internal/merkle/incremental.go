package merkle

import (
	"github.com/fluxe/core/pkg/types"
)

// nodeKey addresses a cached node by (level, index).
type nodeKey struct {
	level int
	index uint64
}

// IncrementalTree is the append-only fixed-height tree (I-IMT). Leaves are
// inserted at the next available slot and never mutated afterwards. Empty
// positions resolve to the per-level empty hashes.
type IncrementalTree struct {
	params    *TreeParams
	numLeaves uint64
	nodes     map[nodeKey]types.Field
	root      types.Field
}

// NewIncrementalTree creates an empty tree of the given height.
func NewIncrementalTree(height int) *IncrementalTree {
	params := NewTreeParams(height)
	return &IncrementalTree{
		params: params,
		nodes:  make(map[nodeKey]types.Field),
		root:   params.EmptyRoot(),
	}
}

// Root returns the current root.
func (t *IncrementalTree) Root() types.Field {
	return t.root
}

// Height returns the tree height.
func (t *IncrementalTree) Height() int {
	return t.params.Height
}

// NumLeaves returns the number of appended leaves.
func (t *IncrementalTree) NumLeaves() uint64 {
	return t.numLeaves
}

// Params exposes the tree parameters for witness verification.
func (t *IncrementalTree) Params() *TreeParams {
	return t.params
}

// node resolves a cached node, falling back to the empty hash for its level.
func (t *IncrementalTree) node(level int, index uint64) types.Field {
	if h, ok := t.nodes[nodeKey{level, index}]; ok {
		return h
	}
	return t.params.EmptyAtLevel(level)
}

// Append inserts leaf at index numLeaves, updates the path to the root and
// returns the new leaf's membership path.
func (t *IncrementalTree) Append(leaf types.Field) (*MerklePath, error) {
	leafIndex := t.numLeaves
	if leafIndex >= t.params.MaxLeaves() {
		return nil, ErrTreeFull
	}

	t.nodes[nodeKey{0, leafIndex}] = leaf

	siblings := make([]types.Field, t.params.Height)
	current := leaf
	index := leafIndex

	for level := 0; level < t.params.Height; level++ {
		sibling := t.node(level, index^1)
		siblings[level] = sibling

		parentIndex := index >> 1
		if index&1 == 0 {
			current = t.params.HashPair(current, sibling)
		} else {
			current = t.params.HashPair(sibling, current)
		}
		t.nodes[nodeKey{level + 1, parentIndex}] = current
		index = parentIndex
	}

	t.root = current
	t.numLeaves++

	return &MerklePath{LeafIndex: leafIndex, Siblings: siblings, Leaf: leaf}, nil
}

// AppendBatch appends leaves in order and returns their paths against the
// final tree state.
func (t *IncrementalTree) AppendBatch(leaves []types.Field) ([]*MerklePath, error) {
	start := t.numLeaves
	for _, leaf := range leaves {
		if _, err := t.Append(leaf); err != nil {
			return nil, err
		}
	}

	paths := make([]*MerklePath, len(leaves))
	for i := range leaves {
		path, err := t.GetPath(start + uint64(i))
		if err != nil {
			return nil, err
		}
		paths[i] = path
	}
	return paths, nil
}

// GetLeaf returns the leaf at the given position.
func (t *IncrementalTree) GetLeaf(index uint64) (types.Field, error) {
	if index >= t.numLeaves {
		return types.Field{}, ErrInvalidPosition
	}
	return t.node(0, index), nil
}

// GetPath returns the membership path of an existing leaf against the
// current root.
func (t *IncrementalTree) GetPath(index uint64) (*MerklePath, error) {
	if index >= t.numLeaves {
		return nil, ErrInvalidPosition
	}

	leaf := t.node(0, index)
	siblings := make([]types.Field, t.params.Height)
	current := index
	for level := 0; level < t.params.Height; level++ {
		siblings[level] = t.node(level, current^1)
		current >>= 1
	}

	return &MerklePath{LeafIndex: index, Siblings: siblings, Leaf: leaf}, nil
}

// GenerateAppendWitness captures the siblings of the next append position
// BEFORE the leaf is inserted, so a prover can show both the empty-position
// old root and the occupied-position new root from one sibling set. The
// tree itself is not modified.
func (t *IncrementalTree) GenerateAppendWitness(leaf types.Field) (*AppendWitness, error) {
	leafIndex := t.numLeaves
	if leafIndex >= t.params.MaxLeaves() {
		return nil, ErrTreeFull
	}

	siblings := make([]types.Field, t.params.Height)
	current := leafIndex
	for level := 0; level < t.params.Height; level++ {
		siblings[level] = t.node(level, current^1)
		current >>= 1
	}

	return &AppendWitness{
		Leaf:        leaf,
		LeafIndex:   leafIndex,
		PreSiblings: siblings,
		Height:      t.params.Height,
	}, nil
}

// Clone deep-copies the tree.
func (t *IncrementalTree) Clone() *IncrementalTree {
	nodes := make(map[nodeKey]types.Field, len(t.nodes))
	for k, v := range t.nodes {
		nodes[k] = v
	}
	return &IncrementalTree{
		params:    t.params,
		numLeaves: t.numLeaves,
		nodes:     nodes,
		root:      t.root,
	}
}
