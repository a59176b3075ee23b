package merkle

import (
	"sort"

	"github.com/fluxe/core/internal/crypto"
	"github.com/fluxe/core/pkg/types"
)

// SortedLeaf is a leaf of the sorted indexed tree. Leaves form a linked
// list ordered by key under the field-arithmetic comparison; NextKey = 0
// marks the largest key.
type SortedLeaf struct {
	Key       types.Field
	NextKey   types.Field
	NextIndex uint64
}

// Hash computes the leaf hash H(key, next_key, next_index).
func (l *SortedLeaf) Hash() types.Field {
	return crypto.Hash(l.Key, l.NextKey, types.FieldFromUint64(l.NextIndex))
}

// RangePath proves non-membership of Target: the low leaf's key/next_key
// window brackets it.
type RangePath struct {
	LowLeaf SortedLeaf
	LowPath *MerklePath
	Target  types.Field
}

// ContainsGap reports whether value falls strictly between this leaf's key
// and its successor.
func (l *SortedLeaf) ContainsGap(value *types.Field) bool {
	if !FieldLess(&l.Key, value) {
		return false
	}
	return l.NextKey.IsZero() || FieldLess(value, &l.NextKey)
}

// Verify checks the low leaf's membership and the gap condition.
func (rp *RangePath) Verify(root types.Field, params *TreeParams) bool {
	leafHash := hashSortedLeaf(&rp.LowLeaf)
	if !rp.LowPath.Leaf.Equal(&leafHash) {
		return false
	}
	if !rp.LowPath.Verify(root, params) {
		return false
	}
	return rp.LowLeaf.ContainsGap(&rp.Target)
}

// SortedInsertWitness bundles everything a circuit needs to verify the
// structural insert old_root -> new_root. The two paths deliberately refer
// to different tree states: PredUpdatePath carries the pre-insert siblings
// and, with the original predecessor leaf, recomputes the old root;
// NewLeafPath carries post-insert siblings (they already incorporate the
// predecessor rewrite) and recomputes the new root.
type SortedInsertWitness struct {
	Target          types.Field
	RangeProof      *RangePath
	NewLeaf         SortedLeaf
	UpdatedPredLeaf SortedLeaf
	NewLeafPath     *MerklePath
	PredUpdatePath  *MerklePath
	Height          int
}

// Verify replays the circuit gadget's obligations natively.
func (w *SortedInsertWitness) Verify(oldRoot, newRoot types.Field, params *TreeParams) bool {
	if len(w.PredUpdatePath.Siblings) != params.Height || len(w.NewLeafPath.Siblings) != params.Height {
		return false
	}

	// Non-membership against the old root.
	if !w.RangeProof.Verify(oldRoot, params) {
		return false
	}

	// Pointer surgery consistency.
	if !w.NewLeaf.Key.Equal(&w.Target) {
		return false
	}
	if !w.UpdatedPredLeaf.Key.Equal(&w.RangeProof.LowLeaf.Key) {
		return false
	}
	if !w.UpdatedPredLeaf.NextKey.Equal(&w.Target) {
		return false
	}
	if !w.NewLeaf.NextKey.Equal(&w.RangeProof.LowLeaf.NextKey) {
		return false
	}
	if w.NewLeaf.NextIndex != w.RangeProof.LowLeaf.NextIndex {
		return false
	}

	// Gap check.
	if !w.RangeProof.LowLeaf.ContainsGap(&w.Target) {
		return false
	}

	// Predecessor path with the ORIGINAL leaf recomputes the old root.
	if !w.PredUpdatePath.Verify(oldRoot, params) {
		return false
	}

	// New leaf path with the new leaf hash recomputes the new root.
	newLeafPath := clonePath(w.NewLeafPath)
	newLeafPath.Leaf = hashSortedLeaf(&w.NewLeaf)
	return newLeafPath.Verify(newRoot, params)
}

// SortedTree is the sorted indexed Merkle tree (S-IMT). A permanent
// sentinel leaf (key 0, next_key 0, next_index 0) occupies index 0 from
// construction.
type SortedTree struct {
	params     *TreeParams
	leaves     map[uint64]*SortedLeaf
	byKey      map[types.Field]uint64
	sortedKeys []types.Field
	nodes      map[nodeKey]types.Field
	nextIndex  uint64
	root       types.Field
}

// NewSortedTree creates an empty tree (containing only the sentinel).
func NewSortedTree(height int) *SortedTree {
	params := NewTreeParams(height)
	t := &SortedTree{
		params: params,
		leaves: make(map[uint64]*SortedLeaf),
		byKey:  make(map[types.Field]uint64),
		nodes:  make(map[nodeKey]types.Field),
		root:   params.EmptyRoot(),
	}
	t.insertLeaf(&SortedLeaf{})
	return t
}

// Root returns the current root.
func (t *SortedTree) Root() types.Field {
	return t.root
}

// Height returns the tree height.
func (t *SortedTree) Height() int {
	return t.params.Height
}

// NumLeaves returns the number of leaves including the sentinel.
func (t *SortedTree) NumLeaves() uint64 {
	return t.nextIndex
}

// Params exposes the tree parameters for witness verification.
func (t *SortedTree) Params() *TreeParams {
	return t.params
}

// Contains reports whether key is present.
func (t *SortedTree) Contains(key *types.Field) bool {
	_, ok := t.byKey[*key]
	return ok
}

// KeysByIndex returns the non-sentinel keys in insertion order. Replaying
// Insert over this sequence reproduces the tree byte-for-byte, which is how
// the storage layer persists sorted trees.
func (t *SortedTree) KeysByIndex() []types.Field {
	out := make([]types.Field, 0, t.nextIndex-1)
	for i := uint64(1); i < t.nextIndex; i++ {
		out = append(out, t.leaves[i].Key)
	}
	return out
}

// Keys returns all keys in sorted order, sentinel first.
func (t *SortedTree) Keys() []types.Field {
	out := make([]types.Field, len(t.sortedKeys))
	copy(out, t.sortedKeys)
	return out
}

func (t *SortedTree) node(level int, index uint64) types.Field {
	if h, ok := t.nodes[nodeKey{level, index}]; ok {
		return h
	}
	return t.params.EmptyAtLevel(level)
}

// findPredecessor returns the leaf with the largest key strictly below
// target (the sentinel when no real key qualifies).
func (t *SortedTree) findPredecessor(target *types.Field) uint64 {
	// sortedKeys is kept ordered; binary-search the insertion point.
	i := sort.Search(len(t.sortedKeys), func(i int) bool {
		return !FieldLess(&t.sortedKeys[i], target)
	})
	if i == 0 {
		return 0 // sentinel
	}
	return t.byKey[t.sortedKeys[i-1]]
}

// insertLeaf appends a leaf at the next available index and updates the
// path to the root.
func (t *SortedTree) insertLeaf(leaf *SortedLeaf) (*MerklePath, error) {
	index := t.nextIndex
	if index >= t.params.MaxLeaves() {
		return nil, ErrTreeFull
	}

	t.byKey[leaf.Key] = index
	t.leaves[index] = leaf

	// Maintain sortedKeys ordered by the field comparator.
	i := sort.Search(len(t.sortedKeys), func(i int) bool {
		return !FieldLess(&t.sortedKeys[i], &leaf.Key)
	})
	t.sortedKeys = append(t.sortedKeys, types.Field{})
	copy(t.sortedKeys[i+1:], t.sortedKeys[i:])
	t.sortedKeys[i] = leaf.Key

	path := t.updatePath(index, hashSortedLeaf(leaf))
	t.nextIndex++
	return path, nil
}

// updatePath writes leafHash at the leaf position and recomputes ancestors
// up to the root, returning the resulting path.
func (t *SortedTree) updatePath(leafIndex uint64, leafHash types.Field) *MerklePath {
	t.nodes[nodeKey{0, leafIndex}] = leafHash

	siblings := make([]types.Field, t.params.Height)
	current := leafHash
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
	return &MerklePath{LeafIndex: leafIndex, Siblings: siblings, Leaf: leafHash}
}

// GetPath returns the membership path of the leaf at index against the
// current root.
func (t *SortedTree) GetPath(index uint64) (*MerklePath, error) {
	leaf, ok := t.leaves[index]
	if !ok {
		return nil, ErrInvalidPosition
	}

	siblings := make([]types.Field, t.params.Height)
	current := index
	for level := 0; level < t.params.Height; level++ {
		siblings[level] = t.node(level, current^1)
		current >>= 1
	}

	return &MerklePath{LeafIndex: index, Siblings: siblings, Leaf: hashSortedLeaf(leaf)}, nil
}

// Insert adds a new key: the predecessor's pointers are rewritten to the
// new leaf, the new leaf inherits the predecessor's old pointers, and
// exactly those two paths are recomputed. Duplicate keys are rejected.
func (t *SortedTree) Insert(key types.Field) (*MerklePath, error) {
	if t.Contains(&key) {
		return nil, ErrKeyExists
	}

	predIdx := t.findPredecessor(&key)
	pred := t.leaves[predIdx]

	newLeaf := &SortedLeaf{
		Key:       key,
		NextKey:   pred.NextKey,
		NextIndex: pred.NextIndex,
	}

	updatedPred := &SortedLeaf{
		Key:       pred.Key,
		NextKey:   key,
		NextIndex: t.nextIndex,
	}
	t.leaves[predIdx] = updatedPred
	t.updatePath(predIdx, hashSortedLeaf(updatedPred))

	return t.insertLeaf(newLeaf)
}

// ProveNonMembership returns a range path for a key not in the tree.
func (t *SortedTree) ProveNonMembership(target types.Field) (*RangePath, error) {
	if t.Contains(&target) {
		return nil, ErrKeyExists
	}

	predIdx := t.findPredecessor(&target)
	low := t.leaves[predIdx]

	lowPath, err := t.GetPath(predIdx)
	if err != nil {
		return nil, err
	}

	if !low.ContainsGap(&target) {
		return nil, ErrNotInGap
	}

	return &RangePath{LowLeaf: *low, LowPath: lowPath, Target: target}, nil
}

// LookupLeaf returns an existing key's leaf together with its membership
// path. Sorted-tree membership proofs need the leaf's pointers because the
// tree hashes (key, next_key, next_index).
func (t *SortedTree) LookupLeaf(key types.Field) (*SortedLeaf, *MerklePath, error) {
	index, ok := t.byKey[key]
	if !ok {
		return nil, nil, ErrKeyNotFound
	}
	path, err := t.GetPath(index)
	if err != nil {
		return nil, nil, err
	}
	leaf := *t.leaves[index]
	return &leaf, path, nil
}

// ProveMembership returns the path of an existing key.
func (t *SortedTree) ProveMembership(key types.Field) (*MerklePath, error) {
	index, ok := t.byKey[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return t.GetPath(index)
}

// GenerateInsertWitness captures a structural insert witness for key
// WITHOUT mutating the receiver. The predecessor path is taken from the
// pre-insert state; the new leaf path is taken from a shadow tree in which
// the insertion has actually been performed, so its siblings incorporate
// the predecessor rewrite.
func (t *SortedTree) GenerateInsertWitness(key types.Field) (*SortedInsertWitness, error) {
	if t.Contains(&key) {
		return nil, ErrKeyExists
	}

	rangeProof, err := t.ProveNonMembership(key)
	if err != nil {
		return nil, err
	}

	predIdx := t.findPredecessor(&key)
	pred := t.leaves[predIdx]

	newLeaf := SortedLeaf{
		Key:       key,
		NextKey:   pred.NextKey,
		NextIndex: pred.NextIndex,
	}
	updatedPred := SortedLeaf{
		Key:       pred.Key,
		NextKey:   key,
		NextIndex: t.nextIndex,
	}

	predPathBefore, err := t.GetPath(predIdx)
	if err != nil {
		return nil, err
	}

	// Perform the insertion in a shadow tree to obtain the post-insert
	// new-leaf path.
	shadow := t.Clone()
	newLeafPath, err := shadow.Insert(key)
	if err != nil {
		return nil, err
	}

	return &SortedInsertWitness{
		Target:          key,
		RangeProof:      rangeProof,
		NewLeaf:         newLeaf,
		UpdatedPredLeaf: updatedPred,
		NewLeafPath:     newLeafPath,
		PredUpdatePath:  predPathBefore,
		Height:          t.params.Height,
	}, nil
}

// InsertWithWitness captures the witness and then applies the insert.
func (t *SortedTree) InsertWithWitness(key types.Field) (*SortedInsertWitness, error) {
	witness, err := t.GenerateInsertWitness(key)
	if err != nil {
		return nil, err
	}
	if _, err := t.Insert(key); err != nil {
		return nil, err
	}
	return witness, nil
}

// Clone deep-copies the tree.
func (t *SortedTree) Clone() *SortedTree {
	leaves := make(map[uint64]*SortedLeaf, len(t.leaves))
	for k, v := range t.leaves {
		leaf := *v
		leaves[k] = &leaf
	}
	byKey := make(map[types.Field]uint64, len(t.byKey))
	for k, v := range t.byKey {
		byKey[k] = v
	}
	sortedKeys := make([]types.Field, len(t.sortedKeys))
	copy(sortedKeys, t.sortedKeys)
	nodes := make(map[nodeKey]types.Field, len(t.nodes))
	for k, v := range t.nodes {
		nodes[k] = v
	}
	return &SortedTree{
		params:     t.params,
		leaves:     leaves,
		byKey:      byKey,
		sortedKeys: sortedKeys,
		nodes:      nodes,
		nextIndex:  t.nextIndex,
		root:       t.root,
	}
}

// hashSortedLeaf computes H(key, next_key, next_index).
func hashSortedLeaf(l *SortedLeaf) types.Field {
	return l.Hash()
}
