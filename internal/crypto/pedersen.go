package crypto

import (
	"crypto/rand"
	"errors"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	tbn "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"

	"github.com/fluxe/core/pkg/types"
)

// Commitment errors
var (
	ErrInvalidPoint  = errors.New("invalid curve point")
	ErrHashToCurve   = errors.New("hash-to-curve failed")
	ErrInvalidScalar = errors.New("invalid scalar")
)

// PedersenParams holds the two generators of the value-commitment scheme.
// G is the standard Baby Jubjub base point; H is derived by hash-to-curve so
// that log_G(H) is unknown.
type PedersenParams struct {
	G tbn.PointAffine
	H tbn.PointAffine
}

var valueCommitmentParams *PedersenParams

// SetupValueCommitment returns the protocol's value-commitment parameters.
// The result is cached; derivation is deterministic.
func SetupValueCommitment() *PedersenParams {
	if valueCommitmentParams != nil {
		return valueCommitmentParams
	}

	curve := tbn.GetEdwardsCurve()

	h, err := hashToCurve("FLUXE_PEDERSEN_H")
	if err != nil {
		// Deterministic derivation; failure means the seed constant is bad.
		panic(err)
	}

	valueCommitmentParams = &PedersenParams{
		G: curve.Base,
		H: h,
	}
	return valueCommitmentParams
}

// hashToCurve maps a seed to a prime-order subgroup point by
// try-and-increment: x = Hash(seed, ctr), solve y^2 = (1 - a x^2)/(1 - d x^2),
// then clear the cofactor.
func hashToCurve(seed string) (tbn.PointAffine, error) {
	curve := tbn.GetEdwardsCurve()
	seedField := domainTag(seed)

	var identity tbn.PointAffine
	identity.X.SetZero()
	identity.Y.SetOne()

	for ctr := uint64(0); ctr < 256; ctr++ {
		x := Hash(seedField, types.FieldFromUint64(ctr))

		// y^2 = (1 - a x^2) / (1 - d x^2)
		var x2, num, den, y2, y fr.Element
		x2.Square(&x)
		num.Mul(&curve.A, &x2)
		num.Sub(oneElem(), &num)
		den.Mul(&curve.D, &x2)
		den.Sub(oneElem(), &den)
		if den.IsZero() {
			continue
		}
		den.Inverse(&den)
		y2.Mul(&num, &den)

		if y.Sqrt(&y2) == nil {
			continue
		}

		var p tbn.PointAffine
		p.X.Set(&x)
		p.Y.Set(&y)
		if !p.IsOnCurve() {
			continue
		}

		// Clear the cofactor to land in the prime-order subgroup.
		var cleared tbn.PointAffine
		cleared.ScalarMultiplication(&p, big.NewInt(8))
		if cleared.Equal(&identity) {
			continue
		}

		return cleared, nil
	}

	return tbn.PointAffine{}, ErrHashToCurve
}

func oneElem() *fr.Element {
	var one fr.Element
	one.SetOne()
	return &one
}

// Commit computes value*G + r*H.
func (p *PedersenParams) Commit(value uint64, r types.Field) tbn.PointAffine {
	var vG, rH, out tbn.PointAffine
	vG.ScalarMultiplication(&p.G, new(big.Int).SetUint64(value))
	rH.ScalarMultiplication(&p.H, types.FieldToBig(r))
	out.Add(&vG, &rH)
	return out
}

// Verify checks that comm opens to (value, r).
func (p *PedersenParams) Verify(comm *tbn.PointAffine, value uint64, r types.Field) bool {
	expected := p.Commit(value, r)
	return comm.Equal(&expected)
}

// AddPoints returns a + b. Combined with RandomScalar sampling below the
// subgroup order, Commit(v1,r1) + Commit(v2,r2) = Commit(v1+v2, r1+r2).
func AddPoints(a, b *tbn.PointAffine) tbn.PointAffine {
	var out tbn.PointAffine
	out.Add(a, b)
	return out
}

// RandomScalar samples a commitment randomness below the Baby Jubjub
// subgroup order. Keeping randomness below the order makes scalar-field
// addition of randomness coincide with integer addition, so the
// homomorphism holds exactly.
func RandomScalar() (types.Field, error) {
	curve := tbn.GetEdwardsCurve()
	k, err := rand.Int(rand.Reader, &curve.Order)
	if err != nil {
		return types.Field{}, err
	}

	var f fr.Element
	f.SetBigInt(k)
	return f, nil
}

// PointToField encodes a commitment point as a single field element for use
// inside Poseidon hashes. Baby Jubjub coordinates already live in the BN254
// scalar field, so the encoding is the X coordinate itself; the in-circuit
// path uses the same coordinate.
func PointToField(p *tbn.PointAffine) types.Field {
	return p.X
}
