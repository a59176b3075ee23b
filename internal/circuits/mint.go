package circuits

import (
	"github.com/consensys/gnark/frontend"
)

// IngressReceiptVar is the in-circuit mint receipt.
type IngressReceiptVar struct {
	AssetType     frontend.Variable
	Amount        frontend.Variable
	BeneficiaryCm frontend.Variable
	Nonce         frontend.Variable
	Aux           frontend.Variable
}

// hashVar replicates domain.IngressReceipt.Hash.
func (r *IngressReceiptVar) hashVar(api frontend.API, h hasher) frontend.Variable {
	return hashFields(api, h, r.AssetType, r.Amount, r.BeneficiaryCm, r.Nonce, r.Aux)
}

// MintCircuit proves a boundary-in mint: external value enters as an
// ingress receipt and a fixed number of fresh output notes.
type MintCircuit struct {
	// Public inputs, in the order the verifier binds them.
	CmtRootOld      frontend.Variable `gnark:",public"`
	CmtRootNew      frontend.Variable `gnark:",public"`
	IngressRootOld  frontend.Variable `gnark:",public"`
	IngressRootNew  frontend.Variable `gnark:",public"`
	AssetType       frontend.Variable `gnark:",public"`
	Amount          frontend.Variable `gnark:",public"`
	CmOutListCommit frontend.Variable `gnark:",public"`

	// Witness.
	Outputs    [MintOutputs]NoteVar
	Values     [MintOutputs]frontend.Variable
	Randomness [MintOutputs]frontend.Variable

	Receipt IngressReceiptVar

	CmtAppends    [MintOutputs]AppendWitnessVar
	IngressAppend AppendWitnessVar
}

// Define implements the Mint relation.
func (c *MintCircuit) Define(api frontend.API) error {
	h, err := newHasher(api)
	if err != nil {
		return err
	}
	curve, err := newCurve(api)
	if err != nil {
		return err
	}

	// Output openings, asset consistency, value total, pool gate,
	// commitment accumulator and chained CMT appends.
	valueSum := frontend.Variable(0)
	acc := frontend.Variable(0)
	cmtRoot := c.CmtRootOld

	for i := 0; i < MintOutputs; i++ {
		out := &c.Outputs[i]

		enforceValueOpening(api, curve, out, c.Values[i], c.Randomness[i])
		valueSum = api.Add(valueSum, c.Values[i])

		api.AssertIsEqual(out.AssetType, c.AssetType)
		api.AssertIsDifferent(out.PoolId, 0)

		cm := out.Commitment(api, h)
		acc = hashFields(api, h, acc, cm)

		oldRoot, newRoot := c.CmtAppends[i].Roots(api, h, cm)
		api.AssertIsEqual(oldRoot, cmtRoot)
		cmtRoot = newRoot
	}
	api.AssertIsEqual(cmtRoot, c.CmtRootNew)

	api.AssertIsEqual(valueSum, c.Amount)

	// Receipt binds the public asset/amount and the output accumulator.
	api.AssertIsEqual(c.Receipt.AssetType, c.AssetType)
	api.AssertIsEqual(c.Receipt.Amount, c.Amount)
	api.AssertIsEqual(c.Receipt.BeneficiaryCm, acc)
	api.AssertIsEqual(c.CmOutListCommit, acc)

	// Ingress append.
	receiptHash := c.Receipt.hashVar(api, h)
	c.IngressAppend.Enforce(api, h, receiptHash, c.IngressRootOld, c.IngressRootNew)

	return nil
}
