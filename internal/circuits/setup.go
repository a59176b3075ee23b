package circuits

import (
	"errors"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"

	"github.com/fluxe/core/pkg/types"
)

// Setup errors
var (
	ErrNotCompiled  = errors.New("circuit not compiled")
	ErrInvalidProof = errors.New("proof verification failed")
)

// Registry compiles the four transaction circuits and holds their Groth16
// keys. Verifying keys are immutable once set up and safe to share by
// reference.
type Registry struct {
	mu sync.RWMutex

	systems map[types.TransactionType]constraint.ConstraintSystem
	pks     map[types.TransactionType]groth16.ProvingKey
	vks     map[types.TransactionType]groth16.VerifyingKey
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		systems: make(map[types.TransactionType]constraint.ConstraintSystem),
		pks:     make(map[types.TransactionType]groth16.ProvingKey),
		vks:     make(map[types.TransactionType]groth16.VerifyingKey),
	}
}

// Setup compiles the circuit for a transaction type and runs the Groth16
// setup.
func (r *Registry) Setup(t types.TransactionType) error {
	template, err := NewCircuit(t)
	if err != nil {
		return err
	}

	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, template)
	if err != nil {
		return err
	}

	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.systems[t] = ccs
	r.pks[t] = pk
	r.vks[t] = vk
	r.mu.Unlock()
	return nil
}

// SetupAll runs Setup for all four transaction types.
func (r *Registry) SetupAll() error {
	for _, t := range []types.TransactionType{types.TxMint, types.TxBurn, types.TxTransfer, types.TxObjectUpdate} {
		if err := r.Setup(t); err != nil {
			return err
		}
	}
	return nil
}

// VerifyingKey returns the verifying key for a type.
func (r *Registry) VerifyingKey(t types.TransactionType) (groth16.VerifyingKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vk, ok := r.vks[t]
	if !ok {
		return nil, ErrNotCompiled
	}
	return vk, nil
}

// ProvingKey returns the proving key for a type.
func (r *Registry) ProvingKey(t types.TransactionType) (groth16.ProvingKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pk, ok := r.pks[t]
	if !ok {
		return nil, ErrNotCompiled
	}
	return pk, nil
}

// Prove generates a Groth16 proof for a fully assigned circuit.
func (r *Registry) Prove(t types.TransactionType, assignment frontend.Circuit) (groth16.Proof, error) {
	r.mu.RLock()
	ccs, okCcs := r.systems[t]
	pk, okPk := r.pks[t]
	r.mu.RUnlock()
	if !okCcs || !okPk {
		return nil, ErrNotCompiled
	}

	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, err
	}
	return groth16.Prove(ccs, pk, w)
}

// Verify checks a proof against the flat public-input vector, rebuilding
// the typed public assignment through the schema so the binding order is
// single-sourced.
func (r *Registry) Verify(t types.TransactionType, proof groth16.Proof, publicInputs []types.Field) error {
	vk, err := r.VerifyingKey(t)
	if err != nil {
		return err
	}

	assignment, err := PublicAssignment(t, publicInputs)
	if err != nil {
		return err
	}

	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return err
	}

	if err := groth16.Verify(proof, vk, w); err != nil {
		return ErrInvalidProof
	}
	return nil
}
