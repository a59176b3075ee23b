package verifier

import (
	"errors"
	"testing"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/rs/zerolog"

	"github.com/fluxe/core/internal/domain"
	"github.com/fluxe/core/internal/state"
	"github.com/fluxe/core/pkg/types"
)

// acceptAll stands in for SNARK verification in batch-machinery tests.
type acceptAll struct{}

func (acceptAll) Verify(types.TransactionType, groth16.Proof, []types.Field) error {
	return nil
}

// rejectAll simulates failing proofs.
type rejectAll struct{}

func (rejectAll) Verify(types.TransactionType, groth16.Proof, []types.Field) error {
	return errors.New("bad proof")
}

func newTestVerifier(t *testing.T) *BatchVerifier {
	t.Helper()
	return NewBatchVerifierWithProofVerifier(state.NewManager(8), acceptAll{}, zerolog.Nop())
}

// simulate applies the same canonical order to a clone and returns the
// resulting roots, which a well-formed client would declare.
func simulate(t *testing.T, bv *BatchVerifier, txs ...*Transaction) types.StateRoots {
	t.Helper()

	clone := bv.State().Clone()
	shadow := &BatchVerifier{state: clone, pending: txs, log: zerolog.Nop()}
	if err := shadow.applyCanonical(clone); err != nil {
		t.Fatalf("simulate: %v", err)
	}
	return clone.Roots()
}

func mintTx(t *testing.T, bv *BatchVerifier, asset types.AssetType, amount uint64, outputs ...types.Commitment) *Transaction {
	t.Helper()

	receipt := domain.NewIngressReceipt(asset, types.NewAmount(amount), domain.OutputAccumulator(outputs), 1)
	tx := &Transaction{
		TxType:   types.TxMint,
		OldRoots: bv.State().Roots(),
		Data: &MintData{
			AssetType:         asset,
			Amount:            types.NewAmount(amount),
			OutputCommitments: outputs,
			IngressReceipt:    receipt,
		},
	}
	tx.NewRoots = simulate(t, bv, tx)
	return tx
}

func burnTx(t *testing.T, bv *BatchVerifier, asset types.AssetType, amount uint64, nf types.Nullifier) *Transaction {
	t.Helper()

	receipt := domain.NewExitReceipt(asset, types.NewAmount(amount), nf, 2)
	tx := &Transaction{
		TxType:   types.TxBurn,
		OldRoots: bv.State().Roots(),
		Data: &BurnData{
			AssetType:   asset,
			Amount:      types.NewAmount(amount),
			Nullifier:   nf,
			ExitReceipt: receipt,
		},
	}
	tx.NewRoots = simulate(t, bv, tx)
	return tx
}

func TestEmptyBatch(t *testing.T) {
	bv := newTestVerifier(t)
	if _, err := bv.ProcessBatch(); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestMintBatch(t *testing.T) {
	bv := newTestVerifier(t)
	genesis := bv.State().Roots()

	cm := types.FieldFromUint64(1001)
	tx := mintTx(t, bv, 1, 1000, cm)

	if err := bv.AddTransaction(tx); err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}

	header, err := bv.ProcessBatch()
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	if !header.PrevRoots.Equal(&genesis) {
		t.Fatal("prev_roots should be the pre-batch roots")
	}
	if header.PrevRoots.CmtRoot.Equal(&header.NewRoots.CmtRoot) {
		t.Fatal("cmt root should change")
	}
	if header.PrevRoots.IngressRoot.Equal(&header.NewRoots.IngressRoot) {
		t.Fatal("ingress root should change")
	}
	if !header.PrevRoots.NftRoot.Equal(&header.NewRoots.NftRoot) {
		t.Fatal("nft root should be unchanged by a mint")
	}

	if bv.State().Supply(1).Uint64() != 1000 {
		t.Fatalf("expected supply 1000, got %s", bv.State().Supply(1).Dec())
	}
	if len(header.AggProof) == 0 {
		t.Fatal("header should carry an aggregate digest")
	}
}

func TestMintThenBurn(t *testing.T) {
	bv := newTestVerifier(t)

	cm := types.FieldFromUint64(1001)
	if err := bv.AddTransaction(mintTx(t, bv, 1, 1000, cm)); err != nil {
		t.Fatalf("AddTransaction(mint): %v", err)
	}
	if _, err := bv.ProcessBatch(); err != nil {
		t.Fatalf("ProcessBatch(mint): %v", err)
	}

	nf := types.FieldFromUint64(777)
	if err := bv.AddTransaction(burnTx(t, bv, 1, 1000, nf)); err != nil {
		t.Fatalf("AddTransaction(burn): %v", err)
	}
	if _, err := bv.ProcessBatch(); err != nil {
		t.Fatalf("ProcessBatch(burn): %v", err)
	}

	if !bv.State().Supply(1).IsZero() {
		t.Fatal("supply should return to zero after the burn")
	}
	if !bv.State().NullifierExists(nf) {
		t.Fatal("nullifier should be recorded")
	}

	// A second burn of the same nullifier aborts its batch. The declared
	// roots never matter here: the insert fails before the gate.
	double := &Transaction{
		TxType:   types.TxBurn,
		OldRoots: bv.State().Roots(),
		NewRoots: bv.State().Roots(),
		Data: &BurnData{
			AssetType:   1,
			Amount:      types.NewAmount(0),
			Nullifier:   nf,
			ExitReceipt: domain.NewExitReceipt(1, types.NewAmount(0), nf, 3),
		},
	}
	if err := bv.AddTransaction(double); err != nil {
		t.Fatalf("AddTransaction(double burn): %v", err)
	}
	if _, err := bv.ProcessBatch(); !errors.Is(err, state.ErrDoubleSpend) {
		t.Fatalf("expected double-spend abort, got %v", err)
	}
}

func TestRootConsistencyGate(t *testing.T) {
	bv := newTestVerifier(t)
	before := bv.State().Roots()

	tx := mintTx(t, bv, 1, 500, types.FieldFromUint64(5))
	tx.NewRoots.CmtRoot = types.FieldFromUint64(0xdead)

	if err := bv.AddTransaction(tx); err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}
	if _, err := bv.ProcessBatch(); !errors.Is(err, ErrInconsistentRoots) {
		t.Fatalf("expected ErrInconsistentRoots, got %v", err)
	}

	// Rollback: the live state is untouched and the batch was discarded.
	after := bv.State().Roots()
	if !after.Equal(&before) {
		t.Fatal("aborted batch must not externalize state")
	}
	if !bv.State().Supply(1).IsZero() {
		t.Fatal("aborted batch must not change supply")
	}
	if bv.PendingCount() != 0 {
		t.Fatal("aborted batch should be discarded")
	}
}

func TestInsufficientBalanceAborts(t *testing.T) {
	bv := newTestVerifier(t)

	if err := bv.AddTransaction(burnTx(t, bv, 1, 100, types.FieldFromUint64(3))); err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}
	if _, err := bv.ProcessBatch(); !errors.Is(err, state.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	if bv.State().NullifierExists(types.FieldFromUint64(3)) {
		t.Fatal("aborted batch must roll back nullifier inserts")
	}
}

func TestPrevRootsChain(t *testing.T) {
	bv := newTestVerifier(t)

	h1mint := mintTx(t, bv, 1, 100, types.FieldFromUint64(10))
	if err := bv.AddTransaction(h1mint); err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}
	h1, err := bv.ProcessBatch()
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	h2mint := mintTx(t, bv, 1, 100, types.FieldFromUint64(11))
	if err := bv.AddTransaction(h2mint); err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}
	h2, err := bv.ProcessBatch()
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	if !h2.PrevRoots.Equal(&h1.NewRoots) {
		t.Fatal("batch N+1 prev_roots must equal batch N new_roots")
	}
	if h2.BatchID != h1.BatchID+1 {
		t.Fatal("batch ids should increment")
	}
}

func TestCanonicalOrderMixedBatch(t *testing.T) {
	bv := newTestVerifier(t)

	// Seed supply and a spendable note.
	seed := mintTx(t, bv, 1, 1000, types.FieldFromUint64(50))
	if err := bv.AddTransaction(seed); err != nil {
		t.Fatalf("AddTransaction(seed): %v", err)
	}
	if _, err := bv.ProcessBatch(); err != nil {
		t.Fatalf("ProcessBatch(seed): %v", err)
	}

	// Mixed batch: a mint and a transfer. The canonical order interleaves
	// their tree operations (all ingress, then all CMT appends with mint
	// outputs first, then NFT inserts), so declared roots must be computed
	// over the whole batch, not per transaction.
	mint := mintTx(t, bv, 1, 200, types.FieldFromUint64(60))
	transfer := &Transaction{
		TxType:   types.TxTransfer,
		OldRoots: bv.State().Roots(),
		Data: &TransferData{
			Nullifiers:        []types.Nullifier{types.FieldFromUint64(70)},
			OutputCommitments: []types.Commitment{types.FieldFromUint64(80)},
		},
	}
	finalRoots := simulate(t, bv, mint, transfer)
	mint.NewRoots = finalRoots
	transfer.NewRoots = finalRoots

	if err := bv.AddTransaction(mint); err != nil {
		t.Fatalf("AddTransaction(mint): %v", err)
	}
	if err := bv.AddTransaction(transfer); err != nil {
		t.Fatalf("AddTransaction(transfer): %v", err)
	}

	header, err := bv.ProcessBatch()
	if err != nil {
		t.Fatalf("ProcessBatch(mixed): %v", err)
	}
	if !header.NewRoots.Equal(&finalRoots) {
		t.Fatal("batch roots should match the canonical-order simulation")
	}
	if bv.State().Supply(1).Uint64() != 1200 {
		t.Fatalf("expected supply 1200, got %s", bv.State().Supply(1).Dec())
	}
}

func TestRejectedProofLeavesBatchIntact(t *testing.T) {
	bv := NewBatchVerifierWithProofVerifier(state.NewManager(8), rejectAll{}, zerolog.Nop())

	receipt := domain.NewIngressReceipt(1, types.NewAmount(10), types.Field{}, 1)
	tx := &Transaction{
		TxType: types.TxMint,
		Data: &MintData{
			AssetType:      1,
			Amount:         types.NewAmount(10),
			IngressReceipt: receipt,
		},
	}

	if err := bv.AddTransaction(tx); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof, got %v", err)
	}
	if bv.PendingCount() != 0 {
		t.Fatal("rejected transaction must not enter the batch")
	}
}

func TestTxDataTypeMismatch(t *testing.T) {
	bv := newTestVerifier(t)

	tx := &Transaction{
		TxType: types.TxBurn,
		Data:   &MintData{AssetType: 1, Amount: types.NewAmount(1), IngressReceipt: domain.NewIngressReceipt(1, types.NewAmount(1), types.Field{}, 1)},
	}
	if err := bv.AddTransaction(tx); !errors.Is(err, ErrBadTxData) {
		t.Fatalf("expected ErrBadTxData, got %v", err)
	}
}
