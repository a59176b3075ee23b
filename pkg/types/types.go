// Package types defines the core data structures of the Fluxe protocol:
// field-element aliases, state roots, transaction types and block headers.
package types

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"
)

// Field is an element of the BN254 scalar field. All tree leaves, roots,
// commitments and nullifiers are Field values.
type Field = fr.Element

// Semantic aliases over Field.
type (
	// Commitment is a note or object commitment.
	Commitment = Field

	// Nullifier is a one-time spend tag.
	Nullifier = Field

	// MerkleRoot is the root of one of the global trees.
	MerkleRoot = Field
)

// AssetType tags an asset (e.g. USDC = 1, USDT = 2).
type AssetType = uint32

// PoolId identifies a policy pool. Pool 0 is the boundary pool.
type PoolId = uint32

// Time is a timestamp in seconds.
type Time = uint64

// Serial is the anti-replay counter of a zk-object.
type Serial = uint64

// Amount is a 128-bit unsigned monetary quantity. It is stored in a uint256
// word; the 128-bit bound is not checked by this type, by the supply ledger or
// by the wire and storage decoders.
type Amount = uint256.Int

// NewAmount returns an Amount holding v.
func NewAmount(v uint64) *Amount {
	return uint256.NewInt(v)
}

// AmountToField reduces an amount into the scalar field. Amounts are below
// 2^128 so the encoding is canonical.
func AmountToField(a *Amount) Field {
	var f Field
	f.SetBytes(a.Bytes())
	return f
}

// FieldFromUint64 lifts v into the scalar field.
func FieldFromUint64(v uint64) Field {
	var f Field
	f.SetUint64(v)
	return f
}

// FieldFromBytes interprets b as a big-endian integer reduced into the
// scalar field. Both the native and in-circuit paths use this reduction for
// byte-oriented inputs (psi entropy, jurisdiction bits, aux references).
func FieldFromBytes(b []byte) Field {
	var f Field
	f.SetBytes(b)
	return f
}

// FieldToBig returns the field element as a big integer.
func FieldToBig(f Field) *big.Int {
	return f.BigInt(new(big.Int))
}

// TransactionType discriminates the four proof relations.
type TransactionType uint8

const (
	TxMint TransactionType = iota
	TxBurn
	TxTransfer
	TxObjectUpdate
)

// String returns the canonical name of the transaction type.
func (t TransactionType) String() string {
	switch t {
	case TxMint:
		return "mint"
	case TxBurn:
		return "burn"
	case TxTransfer:
		return "transfer"
	case TxObjectUpdate:
		return "object-update"
	}
	return "unknown"
}

// StateRoots holds the eight global Merkle roots summarizing all protocol
// state.
type StateRoots struct {
	CmtRoot       MerkleRoot
	NftRoot       MerkleRoot
	ObjRoot       MerkleRoot
	CbRoot        MerkleRoot
	IngressRoot   MerkleRoot
	ExitRoot      MerkleRoot
	SanctionsRoot MerkleRoot
	PoolRulesRoot MerkleRoot
}

// Equal reports whether two root sets are identical.
func (r *StateRoots) Equal(other *StateRoots) bool {
	return r.CmtRoot.Equal(&other.CmtRoot) &&
		r.NftRoot.Equal(&other.NftRoot) &&
		r.ObjRoot.Equal(&other.ObjRoot) &&
		r.CbRoot.Equal(&other.CbRoot) &&
		r.IngressRoot.Equal(&other.IngressRoot) &&
		r.ExitRoot.Equal(&other.ExitRoot) &&
		r.SanctionsRoot.Equal(&other.SanctionsRoot) &&
		r.PoolRulesRoot.Equal(&other.PoolRulesRoot)
}

// Slice returns the roots in canonical order.
func (r *StateRoots) Slice() []Field {
	return []Field{
		r.CmtRoot, r.NftRoot, r.ObjRoot, r.CbRoot,
		r.IngressRoot, r.ExitRoot, r.SanctionsRoot, r.PoolRulesRoot,
	}
}
