package verifier

import (
	"errors"
	"fmt"
	"time"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/rs/zerolog"

	"github.com/fluxe/core/internal/circuits"
	"github.com/fluxe/core/internal/crypto"
	"github.com/fluxe/core/internal/state"
	"github.com/fluxe/core/pkg/types"
)

// Verifier errors
var (
	ErrEmptyBatch        = errors.New("no transactions in batch")
	ErrInvalidProof      = errors.New("proof verification failed")
	ErrInconsistentRoots = errors.New("declared roots do not match recomputed roots")
	ErrBadTxData         = errors.New("transaction data does not match its type")
)

// ProofVerifier abstracts SNARK verification so the batch machinery can be
// exercised without a trusted setup. The production implementation is
// circuits.Registry.
type ProofVerifier interface {
	Verify(t types.TransactionType, proof groth16.Proof, publicInputs []types.Field) error
}

// BatchVerifier owns the state manager and one verifying key per
// transaction type. Access is serialized by the caller: once ProcessBatch
// starts, no concurrent mutation is permitted.
type BatchVerifier struct {
	state    *state.Manager
	verifier ProofVerifier

	pending []*Transaction
	batchID uint64

	log zerolog.Logger
}

// NewBatchVerifier wires a verifier over the given state and circuit
// registry.
func NewBatchVerifier(st *state.Manager, registry *circuits.Registry, log zerolog.Logger) *BatchVerifier {
	return &BatchVerifier{
		state:    st,
		verifier: registry,
		log:      log.With().Str("component", "batch-verifier").Logger(),
	}
}

// NewBatchVerifierWithProofVerifier wires a verifier with a custom proof
// backend (tests).
func NewBatchVerifierWithProofVerifier(st *state.Manager, pv ProofVerifier, log zerolog.Logger) *BatchVerifier {
	return &BatchVerifier{state: st, verifier: pv, log: log}
}

// State exposes the owned state manager for reads (roots, supply,
// witness exports).
func (bv *BatchVerifier) State() *state.Manager {
	return bv.state
}

// PendingCount returns the number of queued transactions.
func (bv *BatchVerifier) PendingCount() int {
	return len(bv.pending)
}

// AddTransaction verifies a transaction's proof against the verifying key
// for its type and queues it. Verification failure rejects only this
// transaction; the pending batch is untouched.
func (bv *BatchVerifier) AddTransaction(tx *Transaction) error {
	if err := checkTxData(tx); err != nil {
		return err
	}

	if err := bv.verifier.Verify(tx.TxType, tx.Proof, tx.PublicInputs); err != nil {
		bv.log.Warn().Str("type", tx.TxType.String()).Err(err).Msg("rejecting transaction")
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}

	bv.pending = append(bv.pending, tx)
	return nil
}

// ProcessBatch applies the pending transactions' state operations in the
// canonical order, enforces supply accounting, and gates on root
// consistency before promoting any state. On success it emits a block
// header and clears the batch; on structural failure the whole batch is
// discarded and the live state is untouched.
func (bv *BatchVerifier) ProcessBatch() (*types.BlockHeader, error) {
	if len(bv.pending) == 0 {
		return nil, ErrEmptyBatch
	}

	prevRoots := bv.state.Roots()

	// Apply to a clone; the live state is only replaced after the
	// root-consistency gate.
	next := bv.state.Clone()

	err := bv.applyCanonical(next)
	if err == nil {
		err = bv.applySupply(next)
	}
	if err == nil {
		newRoots := next.Roots()
		declared := bv.pending[len(bv.pending)-1].NewRoots
		if !newRoots.Equal(&declared) {
			err = ErrInconsistentRoots
		}
	}

	if err != nil {
		bv.log.Error().Uint64("batch", bv.batchID).Err(err).Msg("batch aborted; rolling back")
		bv.pending = nil
		return nil, err
	}

	newRoots := next.Roots()
	header := &types.BlockHeader{
		PrevRoots: prevRoots,
		NewRoots:  newRoots,
		BatchID:   bv.batchID,
		AggProof:  bv.aggregateDigest(),
		Timestamp: uint64(time.Now().Unix()),
	}

	bv.state = next
	bv.batchID++
	count := len(bv.pending)
	bv.pending = nil

	bv.log.Info().Uint64("batch", header.BatchID).Int("txs", count).Msg("batch sealed")
	return header, nil
}

// applyCanonical replays the batch in the protocol's global ordering rule:
// ingress appends, then CMT appends, then NFT inserts, then callback ops
// (Add before Process), then object appends, then exit appends.
func (bv *BatchVerifier) applyCanonical(st *state.Manager) error {
	// 1. Ingress appends (mints).
	for _, tx := range bv.pending {
		if d, ok := tx.Data.(*MintData); ok {
			if err := st.IngressAppend(d.IngressReceipt.Hash()); err != nil {
				return err
			}
		}
	}

	// 2. CMT appends: mints then transfers, insertion order within each.
	for _, tx := range bv.pending {
		if d, ok := tx.Data.(*MintData); ok {
			for _, cm := range d.OutputCommitments {
				if err := st.CmtAppend(cm); err != nil {
					return err
				}
			}
		}
	}
	for _, tx := range bv.pending {
		if d, ok := tx.Data.(*TransferData); ok {
			for _, cm := range d.OutputCommitments {
				if err := st.CmtAppend(cm); err != nil {
					return err
				}
			}
		}
	}

	// 3. NFT inserts: burns then transfers.
	for _, tx := range bv.pending {
		if d, ok := tx.Data.(*BurnData); ok {
			if err := st.NftInsert(d.Nullifier); err != nil {
				return err
			}
		}
	}
	for _, tx := range bv.pending {
		if d, ok := tx.Data.(*TransferData); ok {
			for _, nf := range d.Nullifiers {
				if err := st.NftInsert(nf); err != nil {
					return err
				}
			}
		}
	}

	// 4. Callback operations: Add before Process. Processing consumes the
	// ticket off-tree; the object-update circuit carries the membership
	// proof, so only Add mutates the callback tree.
	for _, tx := range bv.pending {
		if d, ok := tx.Data.(*ObjectUpdateData); ok {
			for _, op := range d.CallbackOps {
				if op.Kind == CallbackAdd {
					if err := st.CbInsert(op.Ticket); err != nil {
						return err
					}
				}
			}
		}
	}

	// 5. Object appends.
	for _, tx := range bv.pending {
		if d, ok := tx.Data.(*ObjectUpdateData); ok {
			if err := st.ObjAppend(d.NewObjectCm); err != nil {
				return err
			}
		}
	}

	// 6. Exit appends (burns).
	for _, tx := range bv.pending {
		if d, ok := tx.Data.(*BurnData); ok {
			if err := st.ExitAppend(d.ExitReceipt.Hash()); err != nil {
				return err
			}
		}
	}

	return nil
}

// applySupply credits mints and debits burns, erroring on underflow.
func (bv *BatchVerifier) applySupply(st *state.Manager) error {
	for _, tx := range bv.pending {
		switch d := tx.Data.(type) {
		case *MintData:
			st.MintSupply(d.AssetType, d.Amount)
		case *BurnData:
			if err := st.BurnSupply(d.AssetType, d.Amount); err != nil {
				return err
			}
		}
	}
	return nil
}

// aggregateDigest folds the batch contents into an opaque deterministic
// digest: batch id, transaction count, and every transaction's type and
// public inputs.
func (bv *BatchVerifier) aggregateDigest() []byte {
	acc := crypto.Hash(
		types.FieldFromUint64(bv.batchID),
		types.FieldFromUint64(uint64(len(bv.pending))),
	)
	for _, tx := range bv.pending {
		acc = crypto.Hash(acc, types.FieldFromUint64(uint64(tx.TxType)))
		acc = crypto.HashChain(acc, tx.PublicInputs...)
	}
	b := acc.Bytes()
	return b[:]
}

// checkTxData rejects envelopes whose payload does not match their type.
func checkTxData(tx *Transaction) error {
	var ok bool
	switch tx.TxType {
	case types.TxMint:
		_, ok = tx.Data.(*MintData)
	case types.TxBurn:
		_, ok = tx.Data.(*BurnData)
	case types.TxTransfer:
		_, ok = tx.Data.(*TransferData)
	case types.TxObjectUpdate:
		_, ok = tx.Data.(*ObjectUpdateData)
	}
	if !ok {
		return ErrBadTxData
	}
	return nil
}
