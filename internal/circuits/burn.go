package circuits

import (
	"github.com/consensys/gnark/frontend"
)

// ExitReceiptVar is the in-circuit burn receipt.
type ExitReceiptVar struct {
	AssetType frontend.Variable
	Amount    frontend.Variable
	BurnedNf  frontend.Variable
	Nonce     frontend.Variable
	Aux       frontend.Variable
}

func (r *ExitReceiptVar) hashVar(api frontend.API, h hasher) frontend.Variable {
	return hashFields(api, h, r.AssetType, r.Amount, r.BurnedNf, r.Nonce, r.Aux)
}

// BurnCircuit proves a boundary-out burn: an input note is spent, its
// nullifier enters the nullifier tree, and an exit receipt records the
// withdrawal.
type BurnCircuit struct {
	// Public inputs, in the order the verifier binds them.
	CmtRoot     frontend.Variable `gnark:",public"`
	NftRootOld  frontend.Variable `gnark:",public"`
	NftRootNew  frontend.Variable `gnark:",public"`
	ExitRootOld frontend.Variable `gnark:",public"`
	ExitRootNew frontend.Variable `gnark:",public"`
	AssetType   frontend.Variable `gnark:",public"`
	Amount      frontend.Variable `gnark:",public"`
	NfIn        frontend.Variable `gnark:",public"`

	// Witness.
	Note       NoteVar
	Value      frontend.Variable
	Randomness frontend.Variable
	OwnerSk    frontend.Variable
	Nk         frontend.Variable

	NotePath MerklePathVar

	// NfInsert carries both the non-membership proof and the structural
	// insert witness for the nullifier. A burn without it is unsatisfiable.
	NfInsert SortedInsertVar

	Receipt    ExitReceiptVar
	ExitAppend AppendWitnessVar
}

// Define implements the Burn relation.
func (c *BurnCircuit) Define(api frontend.API) error {
	h, err := newHasher(api)
	if err != nil {
		return err
	}
	curve, err := newCurve(api)
	if err != nil {
		return err
	}

	// 1. Membership of the input note.
	cm := c.Note.Commitment(api, h)
	api.AssertIsEqual(c.NotePath.Root(api, h, cm), c.CmtRoot)

	// 2. Nullifier correctness.
	nf := c.Note.NullifierVar(api, h, c.Nk, cm)
	api.AssertIsEqual(nf, c.NfIn)

	// 3. Owner authentication.
	enforceOwnerAuth(api, curve, h, c.OwnerSk, c.Note.OwnerAddr)

	// 4. Value opening and amount bound.
	enforceValueOpening(api, curve, &c.Note, c.Value, c.Randomness)
	api.ToBinary(c.Amount, ValueBits)
	api.AssertIsLessOrEqual(c.Amount, c.Value)

	// 5. Receipt consistency.
	api.AssertIsEqual(c.Note.AssetType, c.AssetType)
	api.AssertIsEqual(c.Receipt.AssetType, c.AssetType)
	api.AssertIsEqual(c.Receipt.Amount, c.Amount)
	api.AssertIsEqual(c.Receipt.BurnedNf, c.NfIn)

	// 6-7. Non-membership plus structural insert of the nullifier.
	c.NfInsert.Enforce(api, h, c.NfIn, c.NftRootOld, c.NftRootNew)

	// 8. Exit append.
	receiptHash := c.Receipt.hashVar(api, h)
	c.ExitAppend.Enforce(api, h, receiptHash, c.ExitRootOld, c.ExitRootNew)

	// 9. Compliance gates.
	api.AssertIsDifferent(c.Note.ComplianceHash, 0)
	api.AssertIsDifferent(c.Note.CallbacksHash, 0)

	return nil
}
