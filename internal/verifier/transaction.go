// Package verifier implements the server-side batch verifier: it checks
// client SNARKs against the per-type verifying keys and deterministically
// re-applies their state operations in the canonical global order.
package verifier

import (
	"github.com/consensys/gnark/backend/groth16"

	"github.com/fluxe/core/internal/domain"
	"github.com/fluxe/core/pkg/types"
)

// Transaction is a client submission: a proof over one of the four
// relations, its public inputs in schema order, the declared root
// transition, and the data the state manager needs to re-apply the
// operations.
type Transaction struct {
	TxType types.TransactionType

	Proof        groth16.Proof
	PublicInputs []types.Field

	OldRoots types.StateRoots
	NewRoots types.StateRoots

	Data TxData
}

// TxData is the per-type payload.
type TxData interface {
	isTxData()
}

// MintData carries a mint's receipt and output commitments.
type MintData struct {
	AssetType         types.AssetType
	Amount            *types.Amount
	OutputCommitments []types.Commitment
	IngressReceipt    *domain.IngressReceipt
}

// BurnData carries a burn's nullifier and exit receipt.
type BurnData struct {
	AssetType   types.AssetType
	Amount      *types.Amount
	Nullifier   types.Nullifier
	ExitReceipt *domain.ExitReceipt
}

// TransferData carries a transfer's nullifiers and output commitments.
type TransferData struct {
	Nullifiers        []types.Nullifier
	OutputCommitments []types.Commitment
}

// ObjectUpdateData carries the appended object commitment and any callback
// operations.
type ObjectUpdateData struct {
	NewObjectCm types.Commitment
	CallbackOps []CallbackOperation
}

// CallbackOpKind discriminates callback operations within a batch.
type CallbackOpKind uint8

const (
	// CallbackAdd registers an invocation ticket in the callback tree.
	CallbackAdd CallbackOpKind = iota

	// CallbackProcess consumes a previously added ticket.
	CallbackProcess
)

// CallbackOperation is one callback-tree operation. Within a batch all Add
// operations apply before all Process operations.
type CallbackOperation struct {
	Kind   CallbackOpKind
	Ticket types.Field
}

func (*MintData) isTxData()         {}
func (*BurnData) isTxData()         {}
func (*TransferData) isTxData()     {}
func (*ObjectUpdateData) isTxData() {}
