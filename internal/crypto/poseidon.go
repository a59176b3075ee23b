// Package crypto wraps the protocol's symmetric and algebraic primitives:
// the Poseidon2 hash, domain separators, Pedersen value commitments,
// Schnorr signatures and memo encryption.
//
// The native Poseidon2 here and the in-circuit hasher built from
// std/permutation/poseidon2 with parameters (t=2, rF=6, rP=50) produce
// identical outputs on identical inputs; every hash below is replicated by a
// circuit gadget and must not change independently.
package crypto

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"

	"github.com/fluxe/core/pkg/types"
)

// Domain separators. Each tag is the big-endian interpretation of its ASCII
// bytes reduced into the scalar field.
var (
	// DomNote separates note commitments.
	DomNote = domainTag("FLUXE_DOMAIN_NOTE")

	// DomNf separates nullifier derivation.
	DomNf = domainTag("FLUXE_DOMAIN_NF")

	// DomObj separates zk-object commitments.
	DomObj = domainTag("FLUXE_DOMAIN_OBJ")

	// DomPool separates pool-rule leaf hashes.
	DomPool = domainTag("FLUXE_DOMAIN_POOL")
)

func domainTag(s string) types.Field {
	var f fr.Element
	f.SetBytes([]byte(s))
	return f
}

// Hash absorbs the inputs into a Poseidon2 Merkle-Damgard chain and returns
// the digest as a field element. Inputs are written as canonical 32-byte
// big-endian encodings so that a zero element contributes 32 zero bytes.
func Hash(inputs ...types.Field) types.Field {
	h := poseidon2.NewMerkleDamgardHasher()
	for i := range inputs {
		b := inputs[i].Bytes()
		h.Write(b[:])
	}

	var out fr.Element
	out.SetBytes(h.Sum(nil))
	return out
}

// HashChain folds each value into acc via acc = Hash(acc, v), starting from
// the given accumulator. Used for output-commitment accumulators and the
// callback hash chain.
func HashChain(acc types.Field, values ...types.Field) types.Field {
	for i := range values {
		acc = Hash(acc, values[i])
	}
	return acc
}
