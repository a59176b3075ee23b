package circuits

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/test"

	"github.com/fluxe/core/internal/crypto"
	"github.com/fluxe/core/internal/domain"
	"github.com/fluxe/core/internal/merkle"
	"github.com/fluxe/core/pkg/types"
)

func newNote(t *testing.T, asset types.AssetType, value uint64, pool types.PoolId) (*domain.Note, types.Field, *crypto.OwnerKey) {
	t.Helper()

	params := crypto.SetupValueCommitment()
	r, err := crypto.RandomScalar()
	if err != nil {
		t.Fatalf("RandomScalar: %v", err)
	}
	key, err := crypto.GenerateOwnerKey()
	if err != nil {
		t.Fatalf("GenerateOwnerKey: %v", err)
	}

	var psi [32]byte
	psiField, err := crypto.RandomField()
	if err != nil {
		t.Fatalf("RandomField: %v", err)
	}
	psiBytes := psiField.Bytes()
	copy(psi[:], psiBytes[:])

	note := domain.NewNote(asset, params.Commit(value, r), key.Address(), psi, pool)
	return note, r, key
}

func TestMintCircuit(t *testing.T) {
	cmtTree := merkle.NewIncrementalTree(MerkleDepth)
	ingressTree := merkle.NewIncrementalTree(MerkleDepth)

	note1, r1, _ := newNote(t, 1, 600, 1)
	note2, r2, _ := newNote(t, 1, 400, 1)

	cm1 := note1.Commitment()
	cm2 := note2.Commitment()
	acc := domain.OutputAccumulator([]types.Commitment{cm1, cm2})
	receipt := domain.NewIngressReceipt(1, types.NewAmount(1000), acc, 1)

	cmtRootOld := cmtTree.Root()
	append1, err := cmtTree.GenerateAppendWitness(cm1)
	if err != nil {
		t.Fatalf("GenerateAppendWitness: %v", err)
	}
	if _, err := cmtTree.Append(cm1); err != nil {
		t.Fatalf("Append: %v", err)
	}
	append2, err := cmtTree.GenerateAppendWitness(cm2)
	if err != nil {
		t.Fatalf("GenerateAppendWitness: %v", err)
	}
	if _, err := cmtTree.Append(cm2); err != nil {
		t.Fatalf("Append: %v", err)
	}
	cmtRootNew := cmtTree.Root()

	ingressRootOld := ingressTree.Root()
	ingressAppend, err := ingressTree.GenerateAppendWitness(receipt.Hash())
	if err != nil {
		t.Fatalf("GenerateAppendWitness: %v", err)
	}
	if _, err := ingressTree.Append(receipt.Hash()); err != nil {
		t.Fatalf("Append: %v", err)
	}
	ingressRootNew := ingressTree.Root()

	assignment, err := BuildMintAssignment(&MintWitness{
		Outputs:        []*domain.Note{note1, note2},
		Values:         []uint64{600, 400},
		Randomness:     []types.Field{r1, r2},
		Receipt:        receipt,
		CmtAppends:     []*merkle.AppendWitness{append1, append2},
		IngressAppend:  ingressAppend,
		CmtRootOld:     cmtRootOld,
		CmtRootNew:     cmtRootNew,
		IngressRootOld: ingressRootOld,
		IngressRootNew: ingressRootNew,
	})
	if err != nil {
		t.Fatalf("BuildMintAssignment: %v", err)
	}

	if err := test.IsSolved(&MintCircuit{}, assignment, ecc.BN254.ScalarField()); err != nil {
		t.Fatalf("mint relation should be satisfied: %v", err)
	}
}

func TestMintCircuitRejectsWrongAmount(t *testing.T) {
	cmtTree := merkle.NewIncrementalTree(MerkleDepth)
	ingressTree := merkle.NewIncrementalTree(MerkleDepth)

	note1, r1, _ := newNote(t, 1, 600, 1)
	note2, r2, _ := newNote(t, 1, 400, 1)
	cm1, cm2 := note1.Commitment(), note2.Commitment()
	acc := domain.OutputAccumulator([]types.Commitment{cm1, cm2})

	// Receipt amount disagrees with the output total.
	receipt := domain.NewIngressReceipt(1, types.NewAmount(999), acc, 1)

	cmtRootOld := cmtTree.Root()
	append1, _ := cmtTree.GenerateAppendWitness(cm1)
	cmtTree.Append(cm1)
	append2, _ := cmtTree.GenerateAppendWitness(cm2)
	cmtTree.Append(cm2)
	cmtRootNew := cmtTree.Root()

	ingressRootOld := ingressTree.Root()
	ingressAppend, _ := ingressTree.GenerateAppendWitness(receipt.Hash())
	ingressTree.Append(receipt.Hash())
	ingressRootNew := ingressTree.Root()

	assignment, err := BuildMintAssignment(&MintWitness{
		Outputs:        []*domain.Note{note1, note2},
		Values:         []uint64{600, 400},
		Randomness:     []types.Field{r1, r2},
		Receipt:        receipt,
		CmtAppends:     []*merkle.AppendWitness{append1, append2},
		IngressAppend:  ingressAppend,
		CmtRootOld:     cmtRootOld,
		CmtRootNew:     cmtRootNew,
		IngressRootOld: ingressRootOld,
		IngressRootNew: ingressRootNew,
	})
	if err != nil {
		t.Fatalf("BuildMintAssignment: %v", err)
	}

	if err := test.IsSolved(&MintCircuit{}, assignment, ecc.BN254.ScalarField()); err == nil {
		t.Fatal("mint with mismatched amount should not solve")
	}
}

func TestBurnCircuit(t *testing.T) {
	cmtTree := merkle.NewIncrementalTree(MerkleDepth)
	nftTree := merkle.NewSortedTree(MerkleDepth)
	exitTree := merkle.NewIncrementalTree(MerkleDepth)

	note, r, key := newNote(t, 1, 1000, 1)
	note.ComplianceHash = types.FieldFromUint64(11)
	note.CallbacksHash = types.FieldFromUint64(12)

	cm := note.Commitment()
	if _, err := cmtTree.Append(cm); err != nil {
		t.Fatalf("Append: %v", err)
	}
	notePath, err := cmtTree.GetPath(0)
	if err != nil {
		t.Fatalf("GetPath: %v", err)
	}

	nk, _ := crypto.RandomField()
	nf := note.Nullifier(nk)

	nftRootOld := nftTree.Root()
	nfInsert, err := nftTree.InsertWithWitness(nf)
	if err != nil {
		t.Fatalf("InsertWithWitness: %v", err)
	}
	nftRootNew := nftTree.Root()

	receipt := domain.NewExitReceipt(1, types.NewAmount(1000), nf, 2)

	exitRootOld := exitTree.Root()
	exitAppend, err := exitTree.GenerateAppendWitness(receipt.Hash())
	if err != nil {
		t.Fatalf("GenerateAppendWitness: %v", err)
	}
	if _, err := exitTree.Append(receipt.Hash()); err != nil {
		t.Fatalf("Append: %v", err)
	}
	exitRootNew := exitTree.Root()

	assignment, err := BuildBurnAssignment(&BurnWitness{
		Note:        note,
		Value:       1000,
		Randomness:  r,
		OwnerSk:     key.Sk,
		Nk:          nk,
		NotePath:    notePath,
		NfInsert:    nfInsert,
		Receipt:     receipt,
		ExitAppend:  exitAppend,
		CmtRoot:     cmtTree.Root(),
		NftRootOld:  nftRootOld,
		NftRootNew:  nftRootNew,
		ExitRootOld: exitRootOld,
		ExitRootNew: exitRootNew,
	})
	if err != nil {
		t.Fatalf("BuildBurnAssignment: %v", err)
	}

	if err := test.IsSolved(&BurnCircuit{}, assignment, ecc.BN254.ScalarField()); err != nil {
		t.Fatalf("burn relation should be satisfied: %v", err)
	}
}

func TestTransferCircuit(t *testing.T) {
	cmtTree := merkle.NewIncrementalTree(MerkleDepth)
	nftTree := merkle.NewSortedTree(MerkleDepth)

	// Two inputs of 500 in pool 1.
	in1, r1, key1 := newNote(t, 1, 500, 1)
	in2, r2, key2 := newNote(t, 1, 500, 1)
	in1.LineageHash = types.FieldFromUint64(100)
	in2.LineageHash = types.FieldFromUint64(200)

	if _, err := cmtTree.Append(in1.Commitment()); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := cmtTree.Append(in2.Commitment()); err != nil {
		t.Fatalf("Append: %v", err)
	}
	cmtRootOld := cmtTree.Root()

	path1, _ := cmtTree.GetPath(0)
	path2, _ := cmtTree.GetPath(1)

	nk1, _ := crypto.RandomField()
	nk2, _ := crypto.RandomField()
	nf1 := in1.Nullifier(nk1)
	nf2 := in2.Nullifier(nk2)

	nftRootOld := nftTree.Root()
	insert1, err := nftTree.InsertWithWitness(nf1)
	if err != nil {
		t.Fatalf("InsertWithWitness(nf1): %v", err)
	}
	insert2, err := nftTree.InsertWithWitness(nf2)
	if err != nil {
		t.Fatalf("InsertWithWitness(nf2): %v", err)
	}
	nftRootNew := nftTree.Root()

	// Two outputs of 495 each, fee 10, same pool.
	parents := []types.Field{in1.LineageHash, in2.LineageHash}
	out1, or1, _ := newNote(t, 1, 495, 1)
	out2, or2, _ := newNote(t, 1, 495, 1)
	out1.LineageHash = domain.ComputeLineage(parents, 0)
	out2.LineageHash = domain.ComputeLineage(parents, 1)

	append1, err := cmtTree.GenerateAppendWitness(out1.Commitment())
	if err != nil {
		t.Fatalf("GenerateAppendWitness: %v", err)
	}
	if _, err := cmtTree.Append(out1.Commitment()); err != nil {
		t.Fatalf("Append: %v", err)
	}
	append2, err := cmtTree.GenerateAppendWitness(out2.Commitment())
	if err != nil {
		t.Fatalf("GenerateAppendWitness: %v", err)
	}
	if _, err := cmtTree.Append(out2.Commitment()); err != nil {
		t.Fatalf("Append: %v", err)
	}
	cmtRootNew := cmtTree.Root()

	assignment, err := BuildTransferAssignment(&TransferWitness{
		Inputs: []*TransferInputWitness{
			{Note: in1, Value: 500, Randomness: r1, OwnerSk: key1.Sk, Nk: nk1, Path: path1, NfInsert: insert1},
			{Note: in2, Value: 500, Randomness: r2, OwnerSk: key2.Sk, Nk: nk2, Path: path2, NfInsert: insert2},
		},
		Outputs: []*TransferOutputWitness{
			{Note: out1, Value: 495, Randomness: or1, CmtAppend: append1},
			{Note: out2, Value: 495, Randomness: or2, CmtAppend: append2},
		},
		Fee:        10,
		CmtRootOld: cmtRootOld,
		CmtRootNew: cmtRootNew,
		NftRootOld: nftRootOld,
		NftRootNew: nftRootNew,
	})
	if err != nil {
		t.Fatalf("BuildTransferAssignment: %v", err)
	}

	if err := test.IsSolved(&TransferCircuit{}, assignment, ecc.BN254.ScalarField()); err != nil {
		t.Fatalf("transfer relation should be satisfied: %v", err)
	}
}

func objectUpdateFixture(t *testing.T, currentTime types.Time) *ObjectUpdateCircuit {
	t.Helper()

	objTree := merkle.NewIncrementalTree(MerkleDepth)
	cbTree := merkle.NewSortedTree(MerkleDepth)

	stateOld := domain.NewVerifiedState(1)
	objOld := domain.NewZkObject(stateOld)

	rOld, _ := crypto.RandomField()
	rNew, _ := crypto.RandomField()

	oldCm := objOld.Commitment(rOld)
	if _, err := objTree.Append(oldCm); err != nil {
		t.Fatalf("Append: %v", err)
	}
	objRootOld := objTree.Root()
	objOldPath, _ := objTree.GetPath(0)

	// Pending callback with expiry 1000 and no invocation: the timeout
	// branch needs non-membership of the ticket plus an expired clock.
	entry, err := domain.NewCallbackEntry(1, 1000, types.FieldFromUint64(7))
	if err != nil {
		t.Fatalf("NewCallbackEntry: %v", err)
	}

	stateNew := stateOld.Clone()
	stateNew.LastReviewTime = currentTime

	objNew := &domain.ZkObject{
		StateHash:  stateNew.Hash(),
		Serial:     objOld.Serial + 1,
		CbHeadHash: crypto.Hash(objOld.CbHeadHash, entry.Hash()),
	}

	nonMembership, err := cbTree.ProveNonMembership(entry.Ticket())
	if err != nil {
		t.Fatalf("ProveNonMembership: %v", err)
	}

	newCm := objNew.Commitment(rNew)
	objAppend, err := objTree.GenerateAppendWitness(newCm)
	if err != nil {
		t.Fatalf("GenerateAppendWitness: %v", err)
	}
	if _, err := objTree.Append(newCm); err != nil {
		t.Fatalf("Append: %v", err)
	}
	objRootNew := objTree.Root()

	assignment, err := BuildObjectUpdateAssignment(&ObjectUpdateWitness{
		ObjOld:              objOld,
		ObjNew:              objNew,
		ObjOldRandom:        rOld,
		ObjNewRandom:        rNew,
		StateOld:            stateOld,
		StateNew:            stateNew,
		Entry:               entry,
		TicketNonMembership: nonMembership,
		ObjOldPath:          objOldPath,
		ObjAppend:           objAppend,
		ObjRootOld:          objRootOld,
		ObjRootNew:          objRootNew,
		CbRoot:              cbTree.Root(),
		CurrentTime:         currentTime,
	})
	if err != nil {
		t.Fatalf("BuildObjectUpdateAssignment: %v", err)
	}
	return assignment
}

func TestObjectUpdateTimeout(t *testing.T) {
	// Past the expiry the timeout branch accepts.
	assignment := objectUpdateFixture(t, 2000)
	if err := test.IsSolved(&ObjectUpdateCircuit{}, assignment, ecc.BN254.ScalarField()); err != nil {
		t.Fatalf("timeout at t=2000 should be accepted: %v", err)
	}
}

func TestObjectUpdateTimeoutTooEarly(t *testing.T) {
	// Before the expiry the timeout branch must reject.
	assignment := objectUpdateFixture(t, 500)
	if err := test.IsSolved(&ObjectUpdateCircuit{}, assignment, ecc.BN254.ScalarField()); err == nil {
		t.Fatal("timeout at t=500 should be rejected")
	}
}

func TestObjectUpdateNoCallback(t *testing.T) {
	objTree := merkle.NewIncrementalTree(MerkleDepth)
	cbTree := merkle.NewSortedTree(MerkleDepth)

	stateOld := domain.NewVerifiedState(2)
	objOld := domain.NewZkObject(stateOld)

	rOld, _ := crypto.RandomField()
	rNew, _ := crypto.RandomField()

	oldCm := objOld.Commitment(rOld)
	objTree.Append(oldCm)
	objRootOld := objTree.Root()
	objOldPath, _ := objTree.GetPath(0)

	stateNew := stateOld.Clone()
	stateNew.RiskScore = stateOld.RiskScore + 5
	stateNew.LastReviewTime = 50

	objNew := &domain.ZkObject{
		StateHash:  stateNew.Hash(),
		Serial:     objOld.Serial + 1,
		CbHeadHash: objOld.CbHeadHash,
	}

	newCm := objNew.Commitment(rNew)
	objAppend, _ := objTree.GenerateAppendWitness(newCm)
	objTree.Append(newCm)
	objRootNew := objTree.Root()

	assignment, err := BuildObjectUpdateAssignment(&ObjectUpdateWitness{
		ObjOld:       objOld,
		ObjNew:       objNew,
		ObjOldRandom: rOld,
		ObjNewRandom: rNew,
		StateOld:     stateOld,
		StateNew:     stateNew,
		ObjOldPath:   objOldPath,
		ObjAppend:    objAppend,
		ObjRootOld:   objRootOld,
		ObjRootNew:   objRootNew,
		CbRoot:       cbTree.Root(),
		CurrentTime:  100,
	})
	if err != nil {
		t.Fatalf("BuildObjectUpdateAssignment: %v", err)
	}

	if err := test.IsSolved(&ObjectUpdateCircuit{}, assignment, ecc.BN254.ScalarField()); err != nil {
		t.Fatalf("no-callback update should be accepted: %v", err)
	}
}

func TestSchemaPublicInputCounts(t *testing.T) {
	cases := map[types.TransactionType]int{
		types.TxMint:         7,
		types.TxBurn:         8,
		types.TxTransfer:     6 + TransferInputs + TransferOutputs + 1,
		types.TxObjectUpdate: 4,
	}
	for txType, want := range cases {
		if got := NumPublicInputs(txType); got != want {
			t.Fatalf("%s: expected %d public inputs, got %d", txType, want, got)
		}

		inputs := make([]types.Field, want)
		if _, err := PublicAssignment(txType, inputs); err != nil {
			t.Fatalf("%s: PublicAssignment: %v", txType, err)
		}
		if _, err := PublicAssignment(txType, inputs[:want-1]); err == nil {
			t.Fatalf("%s: short vector should be rejected", txType)
		}
	}
}
