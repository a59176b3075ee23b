package merkle

import (
	"testing"

	"github.com/fluxe/core/pkg/types"
)

func f(v uint64) types.Field {
	return types.FieldFromUint64(v)
}

func TestSortedInsertAndMembership(t *testing.T) {
	tree := NewSortedTree(4)

	keys := []uint64{100, 200, 150}
	for _, k := range keys {
		path, err := tree.Insert(f(k))
		if err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
		if !path.Verify(tree.Root(), tree.Params()) {
			t.Fatalf("fresh insert path for %d should verify", k)
		}
	}

	// Old paths go stale; fresh membership proofs verify.
	for _, k := range keys {
		proof, err := tree.ProveMembership(f(k))
		if err != nil {
			t.Fatalf("ProveMembership(%d): %v", k, err)
		}
		if !proof.Verify(tree.Root(), tree.Params()) {
			t.Fatalf("membership proof for %d should verify", k)
		}
	}

	// Sorted order, sentinel first.
	sorted := tree.Keys()
	want := []uint64{0, 100, 150, 200}
	if len(sorted) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(sorted))
	}
	for i, k := range want {
		expected := f(k)
		if !sorted[i].Equal(&expected) {
			t.Fatalf("key %d: expected %d", i, k)
		}
	}
}

func TestDuplicateInsert(t *testing.T) {
	tree := NewSortedTree(4)

	if _, err := tree.Insert(f(100)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := tree.Insert(f(100)); err != ErrKeyExists {
		t.Fatalf("expected ErrKeyExists, got %v", err)
	}
}

func TestGapProofs(t *testing.T) {
	tree := NewSortedTree(4)

	for _, k := range []uint64{100, 200, 300, 500, 700} {
		if _, err := tree.Insert(f(k)); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
	}

	for _, target := range []uint64{50, 150, 250, 400, 600, 800} {
		proof, err := tree.ProveNonMembership(f(target))
		if err != nil {
			t.Fatalf("ProveNonMembership(%d): %v", target, err)
		}
		if !proof.Verify(tree.Root(), tree.Params()) {
			t.Fatalf("gap proof for %d should verify", target)
		}
	}

	// Present key cannot have a non-membership proof.
	if _, err := tree.ProveNonMembership(f(300)); err != ErrKeyExists {
		t.Fatalf("expected ErrKeyExists for present key, got %v", err)
	}
}

func TestGapProofBrackets(t *testing.T) {
	tree := NewSortedTree(4)
	tree.Insert(f(100))
	tree.Insert(f(200))

	proof, err := tree.ProveNonMembership(f(150))
	if err != nil {
		t.Fatalf("ProveNonMembership: %v", err)
	}

	low := f(100)
	next := f(200)
	if !proof.LowLeaf.Key.Equal(&low) {
		t.Fatal("low leaf should be 100")
	}
	if !proof.LowLeaf.NextKey.Equal(&next) {
		t.Fatal("low leaf next_key should be 200")
	}
}

func TestInsertWitnessValidates(t *testing.T) {
	tree := NewSortedTree(4)
	tree.Insert(f(100))
	tree.Insert(f(300))

	oldRoot := tree.Root()
	target := f(200)

	witness, err := tree.InsertWithWitness(target)
	if err != nil {
		t.Fatalf("InsertWithWitness: %v", err)
	}
	newRoot := tree.Root()

	if !witness.Verify(oldRoot, newRoot, tree.Params()) {
		t.Fatal("insert witness should satisfy the gadget obligations")
	}

	// The insert changes the root.
	if oldRoot.Equal(&newRoot) {
		t.Fatal("insert should change the root")
	}
}

func TestInsertWitnessPathAsymmetry(t *testing.T) {
	tree := NewSortedTree(4)
	tree.Insert(f(100))
	tree.Insert(f(300))

	oldRoot := tree.Root()
	witness, err := tree.GenerateInsertWitness(f(200))
	if err != nil {
		t.Fatalf("GenerateInsertWitness: %v", err)
	}

	// The predecessor path refers to the PRE-insert tree.
	if !witness.PredUpdatePath.Verify(oldRoot, tree.Params()) {
		t.Fatal("pred_update_path must recompute the old root")
	}

	// The new-leaf path refers to the POST-insert tree: its siblings
	// already incorporate the predecessor rewrite, so computing a root
	// with it against the old root must fail.
	newLeafPath := clonePath(witness.NewLeafPath)
	newLeafPath.Leaf = witness.NewLeaf.Hash()
	if newLeafPath.Verify(oldRoot, tree.Params()) {
		t.Fatal("new_leaf_path must NOT verify against the old root")
	}

	// Applying the insert makes the new-leaf path verify.
	if _, err := tree.Insert(f(200)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if !newLeafPath.Verify(tree.Root(), tree.Params()) {
		t.Fatal("new_leaf_path must verify against the new root")
	}

	if !witness.Verify(oldRoot, tree.Root(), tree.Params()) {
		t.Fatal("full witness should validate the transition")
	}
}

func TestInsertWitnessFuzz(t *testing.T) {
	tree := NewSortedTree(8)

	// Interleave witness generation with inserts over a shuffled key set.
	keys := []uint64{977, 12, 4096, 33, 501, 8, 70000, 255, 1024, 9999}
	for _, k := range keys {
		oldRoot := tree.Root()
		witness, err := tree.InsertWithWitness(f(k))
		if err != nil {
			t.Fatalf("InsertWithWitness(%d): %v", k, err)
		}
		if !witness.Verify(oldRoot, tree.Root(), tree.Params()) {
			t.Fatalf("witness for %d should validate", k)
		}
	}

	// Every inserted key is now a member; every midpoint is not.
	for _, k := range keys {
		if !tree.Contains(ptr(f(k))) {
			t.Fatalf("%d should be present", k)
		}
	}
	for _, missing := range []uint64{13, 34, 502, 1025, 70001} {
		proof, err := tree.ProveNonMembership(f(missing))
		if err != nil {
			t.Fatalf("ProveNonMembership(%d): %v", missing, err)
		}
		if !proof.Verify(tree.Root(), tree.Params()) {
			t.Fatalf("gap proof for %d should verify", missing)
		}
	}
}

func ptr(v types.Field) *types.Field {
	return &v
}

func TestSentinelPresent(t *testing.T) {
	tree := NewSortedTree(4)

	if tree.NumLeaves() != 1 {
		t.Fatal("fresh tree should contain only the sentinel")
	}

	var zero types.Field
	if !tree.Contains(&zero) {
		t.Fatal("sentinel key 0 should be present at genesis")
	}

	path, err := tree.GetPath(0)
	if err != nil {
		t.Fatalf("GetPath(0): %v", err)
	}
	if !path.Verify(tree.Root(), tree.Params()) {
		t.Fatal("sentinel path should verify")
	}
}

func TestCloneIsolation(t *testing.T) {
	tree := NewSortedTree(4)
	tree.Insert(f(100))

	snapshot := tree.Clone()
	tree.Insert(f(200))

	if snapshot.Contains(ptr(f(200))) {
		t.Fatal("clone should be isolated from later inserts")
	}
	snapRoot := snapshot.Root()
	liveRoot := tree.Root()
	if snapRoot.Equal(&liveRoot) {
		t.Fatal("roots should diverge after the insert")
	}
}
