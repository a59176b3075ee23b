// Package domain defines the protocol's value-bearing entities — notes,
// boundary receipts, zk-objects, compliance state and callbacks — together
// with the commitment and hash functions the circuits replicate in-circuit.
package domain

import (
	tbn "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"

	"github.com/fluxe/core/internal/crypto"
	"github.com/fluxe/core/pkg/types"
)

// Note is a confidential UTXO. A note is spendable iff its commitment is in
// the commitment tree and its nullifier is not in the nullifier tree.
type Note struct {
	// AssetType tags the committed asset.
	AssetType types.AssetType

	// VComm is the Pedersen commitment to the note value.
	VComm tbn.PointAffine

	// OwnerAddr is Hash(pk.x, pk.y) of the owner's key.
	OwnerAddr types.Field

	// Psi is per-note entropy.
	Psi [32]byte

	// ChainHint targets a chain or local shard.
	ChainHint uint64

	// ComplianceHash commits to the note's compliance metadata.
	ComplianceHash types.Field

	// LineageHash is the bounded lineage accumulator.
	LineageHash types.Field

	// PoolId is the policy pool. Zero is reserved for the boundary pool and
	// is rejected on outputs.
	PoolId types.PoolId

	// CallbacksHash is the hash-chain head of callbacks bound to the note.
	CallbacksHash types.Field

	// MemoHash commits to the encrypted off-chain memo.
	MemoHash types.Field
}

// NewNote builds a note with default chain hint and empty metadata hashes.
func NewNote(asset types.AssetType, vcomm tbn.PointAffine, owner types.Field, psi [32]byte, pool types.PoolId) *Note {
	return &Note{
		AssetType: asset,
		VComm:     vcomm,
		OwnerAddr: owner,
		Psi:       psi,
		ChainHint: 1,
		PoolId:    pool,
	}
}

// PsiField returns the note entropy reduced into the scalar field, the form
// in which it enters the commitment and the nullifier.
func (n *Note) PsiField() types.Field {
	return types.FieldFromBytes(n.Psi[:])
}

// Commitment computes the domain-separated Poseidon commitment over all
// note fields. The Pedersen point contributes its X coordinate.
func (n *Note) Commitment() types.Commitment {
	return crypto.Hash(
		crypto.DomNote,
		types.FieldFromUint64(uint64(n.AssetType)),
		crypto.PointToField(&n.VComm),
		n.OwnerAddr,
		n.PsiField(),
		types.FieldFromUint64(n.ChainHint),
		n.ComplianceHash,
		n.LineageHash,
		types.FieldFromUint64(uint64(n.PoolId)),
		n.CallbacksHash,
		n.MemoHash,
	)
}

// Nullifier derives the note's one-time spend tag under the nullifier key.
func (n *Note) Nullifier(nk types.Field) types.Nullifier {
	return crypto.Hash(crypto.DomNf, nk, n.PsiField(), n.Commitment())
}

// ComputeLineage derives an output note's lineage hash from its parents'
// lineages and the output index within the transaction.
func ComputeLineage(parentLineages []types.Field, outputIndex uint64) types.Field {
	inputs := make([]types.Field, 0, len(parentLineages)+1)
	inputs = append(inputs, parentLineages...)
	inputs = append(inputs, types.FieldFromUint64(outputIndex))
	return crypto.Hash(inputs...)
}
