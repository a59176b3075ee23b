package merkle

import (
	"testing"

	"github.com/fluxe/core/pkg/types"
)

func TestEmptyRootChain(t *testing.T) {
	params := NewTreeParams(4)

	var zero types.Field
	level1 := params.HashPair(zero, zero)
	got := params.EmptyAtLevel(1)
	if !got.Equal(&level1) {
		t.Fatal("empty[1] should be H(empty[0], empty[0])")
	}

	tree := NewIncrementalTree(4)
	root := tree.Root()
	emptyRoot := params.EmptyRoot()
	if !root.Equal(&emptyRoot) {
		t.Fatal("fresh tree root should be the empty root")
	}
}

func TestAppendThenProve(t *testing.T) {
	tree := NewIncrementalTree(4)

	leaves := []types.Field{
		types.FieldFromUint64(11),
		types.FieldFromUint64(22),
		types.FieldFromUint64(33),
	}

	for _, leaf := range leaves {
		path, err := tree.Append(leaf)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if !path.Verify(tree.Root(), tree.Params()) {
			t.Fatal("fresh append path should verify against the new root")
		}
	}

	// L1's path re-fetched after later appends verifies against the
	// latest root.
	path, err := tree.GetPath(0)
	if err != nil {
		t.Fatalf("GetPath: %v", err)
	}
	if !path.Verify(tree.Root(), tree.Params()) {
		t.Fatal("re-fetched path should verify against the latest root")
	}
	if !path.Leaf.Equal(&leaves[0]) {
		t.Fatal("leaf should be immutable after later appends")
	}
}

func TestAppendWitnessBothRoots(t *testing.T) {
	tree := NewIncrementalTree(4)

	if _, err := tree.Append(types.FieldFromUint64(1)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	leaf := types.FieldFromUint64(2)
	witness, err := tree.GenerateAppendWitness(leaf)
	if err != nil {
		t.Fatalf("GenerateAppendWitness: %v", err)
	}

	oldRoot := tree.Root()
	computedOld := witness.ComputeOldRoot(tree.Params())
	if !computedOld.Equal(&oldRoot) {
		t.Fatal("witness old root should match the pre-append root")
	}

	if _, err := tree.Append(leaf); err != nil {
		t.Fatalf("Append: %v", err)
	}

	newRoot := tree.Root()
	computedNew := witness.ComputeNewRoot(tree.Params())
	if !computedNew.Equal(&newRoot) {
		t.Fatal("witness new root should match the post-append root")
	}
}

func TestAppendWitnessEmptyTree(t *testing.T) {
	tree := NewIncrementalTree(4)

	witness, err := tree.GenerateAppendWitness(types.FieldFromUint64(7))
	if err != nil {
		t.Fatalf("GenerateAppendWitness: %v", err)
	}

	emptyRoot := tree.Params().EmptyRoot()
	computedOld := witness.ComputeOldRoot(tree.Params())
	if !computedOld.Equal(&emptyRoot) {
		t.Fatal("old root of an empty tree should be the empty root")
	}
}

func TestTreeFull(t *testing.T) {
	tree := NewIncrementalTree(2)

	for i := 0; i < 4; i++ {
		if _, err := tree.Append(types.FieldFromUint64(uint64(i + 1))); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	if _, err := tree.Append(types.FieldFromUint64(99)); err != ErrTreeFull {
		t.Fatalf("expected ErrTreeFull, got %v", err)
	}
}

func TestAppendBatch(t *testing.T) {
	tree := NewIncrementalTree(4)

	leaves := []types.Field{
		types.FieldFromUint64(5),
		types.FieldFromUint64(6),
	}
	paths, err := tree.AppendBatch(leaves)
	if err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}

	for i, path := range paths {
		if !path.Verify(tree.Root(), tree.Params()) {
			t.Fatalf("batch path %d should verify against the final root", i)
		}
	}
}
