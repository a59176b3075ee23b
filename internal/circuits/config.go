// Package circuits defines the four transaction relations (Mint, Burn,
// Transfer, ObjectUpdate) as gnark circuits, the shared gadgets they are
// built from, the public-input schema binding circuit and verifier, and the
// Groth16 setup plumbing.
package circuits

// Circuit shape constants. The trees the state manager maintains use the
// same fixed height, and the verifier rejects witnesses of any other shape.
const (
	// MerkleDepth is the height of every protocol tree.
	MerkleDepth = 16

	// MintOutputs is the number of output notes a Mint creates.
	MintOutputs = 2

	// TransferInputs is the number of notes a Transfer spends.
	TransferInputs = 2

	// TransferOutputs is the number of notes a Transfer creates.
	TransferOutputs = 2

	// PoolBitmapWidth bounds the pool ids a policy bitmap can address.
	PoolBitmapWidth = 64

	// ValueBits bounds note values.
	ValueBits = 64
)
