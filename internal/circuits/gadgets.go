package circuits

import (
	"math/big"

	tedwards "github.com/consensys/gnark-crypto/ecc/twistededwards"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/algebra/native/twistededwards"
	stdhash "github.com/consensys/gnark/std/hash"
	"github.com/consensys/gnark/std/permutation/poseidon2"

	"github.com/fluxe/core/internal/crypto"
	"github.com/fluxe/core/pkg/types"
)

// hasher abbreviates the in-circuit field hasher type.
type hasher = stdhash.FieldHasher

// newHasher builds the in-circuit Poseidon2 hasher. Parameters (t=2, rF=6,
// rP=50) match the native gnark-crypto Merkle-Damgard hasher bit-for-bit.
func newHasher(api frontend.API) (stdhash.FieldHasher, error) {
	perm, err := poseidon2.NewPoseidon2FromParameters(api, 2, 6, 50)
	if err != nil {
		return nil, err
	}
	return stdhash.NewMerkleDamgardHasher(api, perm, 0), nil
}

// hashFields resets the hasher and absorbs the inputs.
func hashFields(api frontend.API, h stdhash.FieldHasher, inputs ...frontend.Variable) frontend.Variable {
	h.Reset()
	h.Write(inputs...)
	return h.Sum()
}

// newCurve builds the Baby Jubjub gadget shared by the Pedersen, owner-auth
// and Schnorr relations.
func newCurve(api frontend.API) (twistededwards.Curve, error) {
	return twistededwards.NewEdCurve(api, tedwards.BN254)
}

// basePoint returns the curve base point as circuit constants.
func basePoint(curve twistededwards.Curve) twistededwards.Point {
	params := curve.Params()
	return twistededwards.Point{X: params.Base[0], Y: params.Base[1]}
}

// pedersenGenerators returns (G, H) of the value-commitment scheme as
// circuit constants.
func pedersenGenerators(curve twistededwards.Curve) (twistededwards.Point, twistededwards.Point) {
	native := crypto.SetupValueCommitment()
	g := twistededwards.Point{
		X: native.G.X.BigInt(new(big.Int)),
		Y: native.G.Y.BigInt(new(big.Int)),
	}
	h := twistededwards.Point{
		X: native.H.X.BigInt(new(big.Int)),
		Y: native.H.Y.BigInt(new(big.Int)),
	}
	return g, h
}

func domainConst(d types.Field) *big.Int {
	return types.FieldToBig(d)
}

// isLess returns a boolean variable set iff a < b under the field-integer
// ordering, comparing full-width bit decompositions from the most
// significant bit down.
func isLess(api frontend.API, a, b frontend.Variable) frontend.Variable {
	n := api.Compiler().FieldBitLen()
	aBits := api.ToBinary(a, n)
	bBits := api.ToBinary(b, n)

	lt := frontend.Variable(0)
	eq := frontend.Variable(1)
	for i := n - 1; i >= 0; i-- {
		// lt picks up the first differing bit where b has the 1.
		lt = api.Add(lt, api.Mul(eq, bBits[i], api.Sub(1, aBits[i])))
		eq = api.Mul(eq, api.Sub(1, api.Xor(aBits[i], bBits[i])))
	}
	return lt
}

// assertLess enforces a < b under the field-integer ordering.
func assertLess(api frontend.API, a, b frontend.Variable) {
	api.AssertIsEqual(isLess(api, a, b), 1)
}

// conditionalAssertEqual enforces a == b only when cond is set.
func conditionalAssertEqual(api frontend.API, cond, a, b frontend.Variable) {
	api.AssertIsEqual(api.Mul(cond, api.Sub(a, b)), 0)
}

// MerklePathVar is an in-circuit membership path. Pairing order at level i
// follows bit i of LeafIndex, little-endian, exactly as the native trees.
type MerklePathVar struct {
	LeafIndex frontend.Variable
	Siblings  [MerkleDepth]frontend.Variable
}

// Root walks the path upward from leaf.
func (p *MerklePathVar) Root(api frontend.API, h stdhash.FieldHasher, leaf frontend.Variable) frontend.Variable {
	bits := api.ToBinary(p.LeafIndex, MerkleDepth)
	current := leaf
	for i := 0; i < MerkleDepth; i++ {
		left := api.Select(bits[i], p.Siblings[i], current)
		right := api.Select(bits[i], current, p.Siblings[i])
		current = hashFields(api, h, left, right)
	}
	return current
}

// AppendWitnessVar proves an append transition with one pre-insert sibling
// set: the empty leaf at the position derives the old root, the appended
// leaf derives the new root.
type AppendWitnessVar struct {
	LeafIndex   frontend.Variable
	PreSiblings [MerkleDepth]frontend.Variable
}

// Roots computes (oldRoot, newRoot) for the appended leaf.
func (w *AppendWitnessVar) Roots(api frontend.API, h stdhash.FieldHasher, leaf frontend.Variable) (frontend.Variable, frontend.Variable) {
	bits := api.ToBinary(w.LeafIndex, MerkleDepth)

	oldCurrent := frontend.Variable(0)
	newCurrent := leaf
	for i := 0; i < MerkleDepth; i++ {
		oldLeft := api.Select(bits[i], w.PreSiblings[i], oldCurrent)
		oldRight := api.Select(bits[i], oldCurrent, w.PreSiblings[i])
		oldCurrent = hashFields(api, h, oldLeft, oldRight)

		newLeft := api.Select(bits[i], w.PreSiblings[i], newCurrent)
		newRight := api.Select(bits[i], newCurrent, w.PreSiblings[i])
		newCurrent = hashFields(api, h, newLeft, newRight)
	}
	return oldCurrent, newCurrent
}

// Enforce asserts the append transition oldRoot -> newRoot for leaf.
func (w *AppendWitnessVar) Enforce(api frontend.API, h stdhash.FieldHasher, leaf, oldRoot, newRoot frontend.Variable) {
	computedOld, computedNew := w.Roots(api, h, leaf)
	api.AssertIsEqual(computedOld, oldRoot)
	api.AssertIsEqual(computedNew, newRoot)
}

// SortedLeafVar is an in-circuit sorted-tree leaf.
type SortedLeafVar struct {
	Key       frontend.Variable
	NextKey   frontend.Variable
	NextIndex frontend.Variable
}

// Hash computes H(key, next_key, next_index).
func (l *SortedLeafVar) Hash(api frontend.API, h stdhash.FieldHasher) frontend.Variable {
	return hashFields(api, h, l.Key, l.NextKey, l.NextIndex)
}

// RangePathVar is an in-circuit non-membership proof.
type RangePathVar struct {
	LowLeaf SortedLeafVar
	LowPath MerklePathVar
}

// gapBit returns a boolean set iff target lies strictly inside the low
// leaf's gap.
func (rp *RangePathVar) gapBit(api frontend.API, target frontend.Variable) frontend.Variable {
	below := isLess(api, rp.LowLeaf.Key, target)
	nextZero := api.IsZero(rp.LowLeaf.NextKey)
	above := isLess(api, target, rp.LowLeaf.NextKey)
	return api.Mul(below, api.Or(nextZero, above))
}

// validBit returns a boolean set iff the range path verifies against root
// and brackets target.
func (rp *RangePathVar) validBit(api frontend.API, h stdhash.FieldHasher, target, root frontend.Variable) frontend.Variable {
	leafHash := rp.LowLeaf.Hash(api, h)
	computed := rp.LowPath.Root(api, h, leafHash)
	rootOK := api.IsZero(api.Sub(computed, root))
	return api.Mul(rootOK, rp.gapBit(api, target))
}

// Enforce asserts the non-membership proof unconditionally.
func (rp *RangePathVar) Enforce(api frontend.API, h stdhash.FieldHasher, target, root frontend.Variable) {
	api.AssertIsEqual(rp.validBit(api, h, target, root), 1)
}

// EnforceIf asserts the non-membership proof when cond is set.
func (rp *RangePathVar) EnforceIf(api frontend.API, h stdhash.FieldHasher, cond, target, root frontend.Variable) {
	conditionalAssertEqual(api, cond, rp.validBit(api, h, target, root), 1)
}

// SortedInsertVar is the in-circuit structural insert witness. Its two
// paths refer to different tree states on purpose: the predecessor path
// carries pre-insert siblings and verifies the old root with the ORIGINAL
// predecessor leaf; the new-leaf path carries post-insert siblings and
// verifies the new root directly.
type SortedInsertVar struct {
	Range           RangePathVar
	NewLeaf         SortedLeafVar
	UpdatedPredLeaf SortedLeafVar
	PredUpdatePath  MerklePathVar
	NewLeafPath     MerklePathVar
}

// EnforceChained asserts every insert obligation against oldRoot and
// returns the post-insert root computed from the new-leaf path, for
// relations that thread a running root through several insertions.
func (w *SortedInsertVar) EnforceChained(api frontend.API, h stdhash.FieldHasher, target, oldRoot frontend.Variable) frontend.Variable {
	// 1. Non-membership against the old root.
	w.Range.Enforce(api, h, target, oldRoot)

	// 2-4. Pointer surgery consistency.
	api.AssertIsEqual(w.NewLeaf.Key, target)
	api.AssertIsEqual(w.UpdatedPredLeaf.Key, w.Range.LowLeaf.Key)
	api.AssertIsEqual(w.UpdatedPredLeaf.NextKey, target)
	api.AssertIsEqual(w.NewLeaf.NextKey, w.Range.LowLeaf.NextKey)
	api.AssertIsEqual(w.NewLeaf.NextIndex, w.Range.LowLeaf.NextIndex)

	// 5. Gap check.
	assertLess(api, w.Range.LowLeaf.Key, target)
	nextZero := api.IsZero(w.Range.LowLeaf.NextKey)
	above := isLess(api, target, w.Range.LowLeaf.NextKey)
	api.AssertIsEqual(api.Or(nextZero, above), 1)

	// 6. Predecessor path with the ORIGINAL leaf recomputes the old root.
	origPredHash := w.Range.LowLeaf.Hash(api, h)
	predRoot := w.PredUpdatePath.Root(api, h, origPredHash)
	api.AssertIsEqual(predRoot, oldRoot)

	// 7. New leaf path computes the new root.
	newLeafHash := w.NewLeaf.Hash(api, h)
	return w.NewLeafPath.Root(api, h, newLeafHash)
}

// Enforce asserts the insert transition oldRoot -> newRoot for target.
func (w *SortedInsertVar) Enforce(api frontend.API, h stdhash.FieldHasher, target, oldRoot, newRoot frontend.Variable) {
	computedNew := w.EnforceChained(api, h, target, oldRoot)
	api.AssertIsEqual(computedNew, newRoot)
}

// NoteVar is an in-circuit note. The Pedersen commitment appears as its
// affine coordinates; the commitment hash consumes the X coordinate, same
// as the native encoding.
type NoteVar struct {
	AssetType      frontend.Variable
	VCommX         frontend.Variable
	VCommY         frontend.Variable
	OwnerAddr      frontend.Variable
	Psi            frontend.Variable
	ChainHint      frontend.Variable
	ComplianceHash frontend.Variable
	LineageHash    frontend.Variable
	PoolId         frontend.Variable
	CallbacksHash  frontend.Variable
	MemoHash       frontend.Variable
}

// Commitment replicates domain.Note.Commitment.
func (n *NoteVar) Commitment(api frontend.API, h stdhash.FieldHasher) frontend.Variable {
	return hashFields(api, h,
		domainConst(crypto.DomNote),
		n.AssetType,
		n.VCommX,
		n.OwnerAddr,
		n.Psi,
		n.ChainHint,
		n.ComplianceHash,
		n.LineageHash,
		n.PoolId,
		n.CallbacksHash,
		n.MemoHash,
	)
}

// NullifierVar replicates domain.Note.Nullifier given the precomputed
// commitment.
func (n *NoteVar) NullifierVar(api frontend.API, h stdhash.FieldHasher, nk, cm frontend.Variable) frontend.Variable {
	return hashFields(api, h, domainConst(crypto.DomNf), nk, n.Psi, cm)
}

// enforceValueOpening proves the note's Pedersen commitment opens to
// (value, randomness) and range-checks the value to 64 bits.
func enforceValueOpening(api frontend.API, curve twistededwards.Curve, n *NoteVar, value, randomness frontend.Variable) {
	api.ToBinary(value, ValueBits)

	g, hGen := pedersenGenerators(curve)
	p := curve.DoubleBaseScalarMul(g, hGen, value, randomness)
	api.AssertIsEqual(p.X, n.VCommX)
	api.AssertIsEqual(p.Y, n.VCommY)
}

// enforceOwnerAuth proves knowledge of the secret key behind the note's
// owner address: the public key sk*G hashes to owner_addr. Scalar
// multiplication uses the same curve and base point as native key
// derivation.
func enforceOwnerAuth(api frontend.API, curve twistededwards.Curve, h stdhash.FieldHasher, sk, ownerAddr frontend.Variable) {
	pk := curve.ScalarMul(basePoint(curve), sk)
	addr := hashFields(api, h, pk.X, pk.Y)
	api.AssertIsEqual(addr, ownerAddr)
}

// SchnorrSigVar is an in-circuit Schnorr signature with its verification
// key.
type SchnorrSigVar struct {
	PkX frontend.Variable
	PkY frontend.Variable
	RX  frontend.Variable
	RY  frontend.Variable
	S   frontend.Variable
}

// enforceSchnorrIf verifies s*G == R + e*Pk with e = H(R.x, R.y, msg) when
// cond is set. Disabled instances must still carry well-formed points; the
// witness builders fill the base point.
func enforceSchnorrIf(api frontend.API, curve twistededwards.Curve, h stdhash.FieldHasher, cond frontend.Variable, sig *SchnorrSigVar, msg frontend.Variable) {
	e := hashFields(api, h, sig.RX, sig.RY, msg)

	sG := curve.ScalarMul(basePoint(curve), sig.S)
	ePk := curve.ScalarMul(twistededwards.Point{X: sig.PkX, Y: sig.PkY}, e)
	rhs := curve.Add(twistededwards.Point{X: sig.RX, Y: sig.RY}, ePk)

	conditionalAssertEqual(api, cond, sG.X, rhs.X)
	conditionalAssertEqual(api, cond, sG.Y, rhs.Y)
}
