package circuits

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark/frontend"

	"github.com/fluxe/core/pkg/types"
)

// Schema errors
var (
	ErrBadInputCount = errors.New("wrong public input count")
	ErrUnknownTxType = errors.New("unknown transaction type")
)

// Public-input order is part of each relation: the circuit structs declare
// their public fields in this order and the verifier rebuilds assignments
// from flat vectors here. Both sides read the layout from this file only.

// NumPublicInputs returns the public vector length for a transaction type.
func NumPublicInputs(t types.TransactionType) int {
	switch t {
	case types.TxMint:
		return 7
	case types.TxBurn:
		return 8
	case types.TxTransfer:
		return 6 + TransferInputs + TransferOutputs + 1
	case types.TxObjectUpdate:
		return 4
	}
	return 0
}

// NewCircuit returns the zero-valued circuit template for a type, for
// compilation.
func NewCircuit(t types.TransactionType) (frontend.Circuit, error) {
	switch t {
	case types.TxMint:
		return &MintCircuit{}, nil
	case types.TxBurn:
		return &BurnCircuit{}, nil
	case types.TxTransfer:
		return &TransferCircuit{}, nil
	case types.TxObjectUpdate:
		return &ObjectUpdateCircuit{}, nil
	}
	return nil, ErrUnknownTxType
}

// PublicAssignment maps a flat public-input vector into a typed circuit
// assignment with only the public fields set, for proof verification.
func PublicAssignment(t types.TransactionType, inputs []types.Field) (frontend.Circuit, error) {
	if len(inputs) != NumPublicInputs(t) {
		return nil, fmt.Errorf("%w: %s wants %d, got %d", ErrBadInputCount, t, NumPublicInputs(t), len(inputs))
	}

	v := func(i int) frontend.Variable {
		return types.FieldToBig(inputs[i])
	}

	switch t {
	case types.TxMint:
		return &MintCircuit{
			CmtRootOld:      v(0),
			CmtRootNew:      v(1),
			IngressRootOld:  v(2),
			IngressRootNew:  v(3),
			AssetType:       v(4),
			Amount:          v(5),
			CmOutListCommit: v(6),
		}, nil

	case types.TxBurn:
		return &BurnCircuit{
			CmtRoot:     v(0),
			NftRootOld:  v(1),
			NftRootNew:  v(2),
			ExitRootOld: v(3),
			ExitRootNew: v(4),
			AssetType:   v(5),
			Amount:      v(6),
			NfIn:        v(7),
		}, nil

	case types.TxTransfer:
		c := &TransferCircuit{
			CmtRootOld:    v(0),
			CmtRootNew:    v(1),
			NftRootOld:    v(2),
			NftRootNew:    v(3),
			SanctionsRoot: v(4),
			PoolRulesRoot: v(5),
		}
		pos := 6
		for i := 0; i < TransferInputs; i++ {
			c.Nullifiers[i] = v(pos)
			pos++
		}
		for i := 0; i < TransferOutputs; i++ {
			c.Commitments[i] = v(pos)
			pos++
		}
		c.Fee = v(pos)
		return c, nil

	case types.TxObjectUpdate:
		return &ObjectUpdateCircuit{
			ObjRootOld:  v(0),
			ObjRootNew:  v(1),
			CbRoot:      v(2),
			CurrentTime: v(3),
		}, nil
	}

	return nil, ErrUnknownTxType
}

// MintPublicInputs emits the Mint public vector.
func MintPublicInputs(cmtOld, cmtNew, ingressOld, ingressNew types.Field, asset types.AssetType, amount *types.Amount, cmListCommit types.Field) []types.Field {
	return []types.Field{
		cmtOld, cmtNew, ingressOld, ingressNew,
		types.FieldFromUint64(uint64(asset)),
		types.AmountToField(amount),
		cmListCommit,
	}
}

// BurnPublicInputs emits the Burn public vector.
func BurnPublicInputs(cmtRoot, nftOld, nftNew, exitOld, exitNew types.Field, asset types.AssetType, amount *types.Amount, nf types.Nullifier) []types.Field {
	return []types.Field{
		cmtRoot, nftOld, nftNew, exitOld, exitNew,
		types.FieldFromUint64(uint64(asset)),
		types.AmountToField(amount),
		nf,
	}
}

// TransferPublicInputs emits the Transfer public vector.
func TransferPublicInputs(cmtOld, cmtNew, nftOld, nftNew, sanctionsRoot, poolRulesRoot types.Field, nullifiers []types.Nullifier, commitments []types.Commitment, fee uint64) []types.Field {
	out := []types.Field{cmtOld, cmtNew, nftOld, nftNew, sanctionsRoot, poolRulesRoot}
	out = append(out, nullifiers...)
	out = append(out, commitments...)
	out = append(out, types.FieldFromUint64(fee))
	return out
}

// ObjectUpdatePublicInputs emits the ObjectUpdate public vector.
func ObjectUpdatePublicInputs(objOld, objNew, cbRoot types.Field, currentTime types.Time) []types.Field {
	return []types.Field{objOld, objNew, cbRoot, types.FieldFromUint64(currentTime)}
}
