package circuits

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/selector"

	"github.com/fluxe/core/internal/crypto"
)

// PoolRuleVar is an in-circuit pool-policy entry.
type PoolRuleVar struct {
	PoolId        frontend.Variable
	InboundAllow  frontend.Variable
	OutboundAllow frontend.Variable
	MaxPerTx      frontend.Variable
	MaxPerDay     frontend.Variable
	Flags         frontend.Variable
}

func (r *PoolRuleVar) hashVar(api frontend.API, h hasher) frontend.Variable {
	return hashFields(api, h,
		domainConst(crypto.DomPool),
		r.PoolId, r.InboundAllow, r.OutboundAllow,
		r.MaxPerTx, r.MaxPerDay, r.Flags,
	)
}

// allowBit extracts bit `pool` of a 64-bit allow bitmap. Pools beyond the
// bitmap width resolve to 0 (disallowed).
func allowBit(api frontend.API, bitmap, pool frontend.Variable) frontend.Variable {
	bits := api.ToBinary(bitmap, PoolBitmapWidth)
	inRange := isLess(api, pool, PoolBitmapWidth)
	idx := api.Select(inRange, pool, 0)
	return api.Mul(inRange, selector.Mux(api, idx, bits...))
}

// TransferCircuit proves an in-protocol transfer: a fixed number of notes
// are spent and replaced, values conserved up to the public fee.
type TransferCircuit struct {
	// Public inputs, in the order the verifier binds them. The order is
	// part of the relation; permuting it breaks the verifier contract.
	CmtRootOld    frontend.Variable `gnark:",public"`
	CmtRootNew    frontend.Variable `gnark:",public"`
	NftRootOld    frontend.Variable `gnark:",public"`
	NftRootNew    frontend.Variable `gnark:",public"`
	SanctionsRoot frontend.Variable `gnark:",public"`
	PoolRulesRoot frontend.Variable `gnark:",public"`

	Nullifiers  [TransferInputs]frontend.Variable  `gnark:",public"`
	Commitments [TransferOutputs]frontend.Variable `gnark:",public"`

	Fee frontend.Variable `gnark:",public"`

	// Witness: inputs.
	InputNotes      [TransferInputs]NoteVar
	InputValues     [TransferInputs]frontend.Variable
	InputRandomness [TransferInputs]frontend.Variable
	OwnerSks        [TransferInputs]frontend.Variable
	Nks             [TransferInputs]frontend.Variable
	InputPaths      [TransferInputs]MerklePathVar
	NfInserts       [TransferInputs]SortedInsertVar

	// Witness: outputs.
	OutputNotes      [TransferOutputs]NoteVar
	OutputValues     [TransferOutputs]frontend.Variable
	OutputRandomness [TransferOutputs]frontend.Variable
	CmtAppends       [TransferOutputs]AppendWitnessVar

	// Optional sanctions non-membership proofs per party. When absent the
	// relation falls back to requiring a non-trivial owner address.
	InputSanctionsEnabled  [TransferInputs]frontend.Variable
	InputSanctionsProofs   [TransferInputs]RangePathVar
	OutputSanctionsEnabled [TransferOutputs]frontend.Variable
	OutputSanctionsProofs  [TransferOutputs]RangePathVar

	// Optional pool policy witnesses; when disabled the simple rule set
	// applies (same pool, next pool, or either side at pool 0).
	PolicyEnabled  frontend.Variable
	SourceRule     PoolRuleVar
	SourceRulePath MerklePathVar
	DestRule       PoolRuleVar
	DestRulePath   MerklePathVar
}

// Define implements the Transfer relation.
func (c *TransferCircuit) Define(api frontend.API) error {
	h, err := newHasher(api)
	if err != nil {
		return err
	}
	curve, err := newCurve(api)
	if err != nil {
		return err
	}

	assetType := c.InputNotes[0].AssetType
	srcPool := c.InputNotes[0].PoolId
	dstPool := c.OutputNotes[0].PoolId

	// Inputs: membership, nullifier correctness, owner auth, openings,
	// chained nullifier insertion into a running NFT root.
	inputSum := frontend.Variable(0)
	nftRoot := c.NftRootOld

	for i := 0; i < TransferInputs; i++ {
		in := &c.InputNotes[i]

		cm := in.Commitment(api, h)
		api.AssertIsEqual(c.InputPaths[i].Root(api, h, cm), c.CmtRootOld)

		nf := in.NullifierVar(api, h, c.Nks[i], cm)
		api.AssertIsEqual(nf, c.Nullifiers[i])

		enforceOwnerAuth(api, curve, h, c.OwnerSks[i], in.OwnerAddr)
		enforceValueOpening(api, curve, in, c.InputValues[i], c.InputRandomness[i])
		inputSum = api.Add(inputSum, c.InputValues[i])

		api.AssertIsEqual(in.AssetType, assetType)
		api.AssertIsEqual(in.PoolId, srcPool)

		api.AssertIsBoolean(c.InputSanctionsEnabled[i])
		c.InputSanctionsProofs[i].EnforceIf(api, h, c.InputSanctionsEnabled[i], in.OwnerAddr, c.SanctionsRoot)
		api.AssertIsDifferent(in.OwnerAddr, 0)

		nftRoot = c.NfInserts[i].EnforceChained(api, h, nf, nftRoot)
	}
	api.AssertIsEqual(nftRoot, c.NftRootNew)

	// Outputs: openings, commitments, lineage, chained CMT appends.
	parentLineages := make([]frontend.Variable, TransferInputs)
	for i := 0; i < TransferInputs; i++ {
		parentLineages[i] = c.InputNotes[i].LineageHash
	}

	outputSum := frontend.Variable(0)
	cmtRoot := c.CmtRootOld

	for i := 0; i < TransferOutputs; i++ {
		out := &c.OutputNotes[i]

		enforceValueOpening(api, curve, out, c.OutputValues[i], c.OutputRandomness[i])
		outputSum = api.Add(outputSum, c.OutputValues[i])

		api.AssertIsEqual(out.AssetType, assetType)
		api.AssertIsEqual(out.PoolId, dstPool)
		api.AssertIsDifferent(out.PoolId, 0)
		api.ToBinary(out.PoolId, 32)

		// Output lineage folds every parent lineage with the output index.
		lineageInputs := append(append([]frontend.Variable{}, parentLineages...), frontend.Variable(i))
		api.AssertIsEqual(out.LineageHash, hashFields(api, h, lineageInputs...))

		cm := out.Commitment(api, h)
		api.AssertIsEqual(cm, c.Commitments[i])

		api.AssertIsBoolean(c.OutputSanctionsEnabled[i])
		c.OutputSanctionsProofs[i].EnforceIf(api, h, c.OutputSanctionsEnabled[i], out.OwnerAddr, c.SanctionsRoot)
		api.AssertIsDifferent(out.OwnerAddr, 0)

		oldRoot, newRoot := c.CmtAppends[i].Roots(api, h, cm)
		api.AssertIsEqual(oldRoot, cmtRoot)
		cmtRoot = newRoot
	}
	api.AssertIsEqual(cmtRoot, c.CmtRootNew)

	// Value conservation.
	api.ToBinary(c.Fee, ValueBits)
	api.AssertIsEqual(inputSum, api.Add(outputSum, c.Fee))

	// Pool policy.
	api.AssertIsBoolean(c.PolicyEnabled)
	policyOff := api.Sub(1, c.PolicyEnabled)

	// Simple fallback rule set: same pool, next pool, or boundary pool on
	// either side.
	samePool := api.IsZero(api.Sub(srcPool, dstPool))
	nextPool := api.IsZero(api.Sub(dstPool, api.Add(srcPool, 1)))
	srcBoundary := api.IsZero(srcPool)
	dstBoundary := api.IsZero(dstPool)
	simpleOK := api.Or(api.Or(samePool, nextPool), api.Or(srcBoundary, dstBoundary))
	conditionalAssertEqual(api, policyOff, simpleOK, 1)

	// Full policy: both rules are members of the pool-rules tree, the
	// bitmaps allow the edge, and the moved amount respects the per-tx cap.
	conditionalAssertEqual(api, c.PolicyEnabled, c.SourceRule.PoolId, srcPool)
	conditionalAssertEqual(api, c.PolicyEnabled, c.DestRule.PoolId, dstPool)

	srcRuleRoot := c.SourceRulePath.Root(api, h, c.SourceRule.hashVar(api, h))
	conditionalAssertEqual(api, c.PolicyEnabled, srcRuleRoot, c.PoolRulesRoot)
	dstRuleRoot := c.DestRulePath.Root(api, h, c.DestRule.hashVar(api, h))
	conditionalAssertEqual(api, c.PolicyEnabled, dstRuleRoot, c.PoolRulesRoot)

	outboundOK := allowBit(api, c.SourceRule.OutboundAllow, dstPool)
	inboundOK := allowBit(api, c.DestRule.InboundAllow, srcPool)
	conditionalAssertEqual(api, c.PolicyEnabled, outboundOK, 1)
	conditionalAssertEqual(api, c.PolicyEnabled, inboundOK, 1)

	withinCap := api.Sub(1, isLess(api, c.SourceRule.MaxPerTx, inputSum))
	conditionalAssertEqual(api, c.PolicyEnabled, withinCap, 1)

	return nil
}
