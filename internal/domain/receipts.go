package domain

import (
	"github.com/fluxe/core/internal/crypto"
	"github.com/fluxe/core/pkg/types"
)

// IngressReceipt binds an external deposit to the in-protocol mint.
type IngressReceipt struct {
	AssetType types.AssetType

	Amount *types.Amount

	// BeneficiaryCm is the hash-chain accumulator over the minted output
	// commitments, starting at zero.
	BeneficiaryCm types.Field

	// Nonce makes the receipt unique.
	Nonce uint64

	// Aux binds an external deposit reference.
	Aux types.Field
}

// NewIngressReceipt builds a receipt with empty aux data.
func NewIngressReceipt(asset types.AssetType, amount *types.Amount, beneficiaryCm types.Field, nonce uint64) *IngressReceipt {
	return &IngressReceipt{
		AssetType:     asset,
		Amount:        amount,
		BeneficiaryCm: beneficiaryCm,
		Nonce:         nonce,
	}
}

// Hash computes the receipt's tree leaf.
func (r *IngressReceipt) Hash() types.Field {
	return crypto.Hash(
		types.FieldFromUint64(uint64(r.AssetType)),
		types.AmountToField(r.Amount),
		r.BeneficiaryCm,
		types.FieldFromUint64(r.Nonce),
		r.Aux,
	)
}

// SetAux binds external reference bytes.
func (r *IngressReceipt) SetAux(data []byte) {
	r.Aux = types.FieldFromBytes(data)
}

// ExitReceipt binds an external withdrawal to the in-protocol burn.
type ExitReceipt struct {
	AssetType types.AssetType

	Amount *types.Amount

	// BurnedNf is the nullifier of the burned input note.
	BurnedNf types.Nullifier

	Nonce uint64

	Aux types.Field
}

// NewExitReceipt builds a receipt with empty aux data.
func NewExitReceipt(asset types.AssetType, amount *types.Amount, burnedNf types.Nullifier, nonce uint64) *ExitReceipt {
	return &ExitReceipt{
		AssetType: asset,
		Amount:    amount,
		BurnedNf:  burnedNf,
		Nonce:     nonce,
	}
}

// Hash computes the receipt's tree leaf.
func (r *ExitReceipt) Hash() types.Field {
	return crypto.Hash(
		types.FieldFromUint64(uint64(r.AssetType)),
		types.AmountToField(r.Amount),
		r.BurnedNf,
		types.FieldFromUint64(r.Nonce),
		r.Aux,
	)
}

// SetAux binds external reference bytes.
func (r *ExitReceipt) SetAux(data []byte) {
	r.Aux = types.FieldFromBytes(data)
}

// OutputAccumulator folds output commitments into the hash-chain
// accumulator used by both the ingress receipt binding and the Mint
// circuit's cm_out_list_commit public input.
func OutputAccumulator(commitments []types.Commitment) types.Field {
	var acc types.Field
	return crypto.HashChain(acc, commitments...)
}
