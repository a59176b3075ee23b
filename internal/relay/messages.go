// Package relay implements the libp2p gossip layer: submitted transactions
// and sealed block headers travel between nodes over GossipSub topics. The
// relay is transport only; ordering and validation stay with the batch
// verifier.
package relay

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"

	"github.com/fluxe/core/internal/domain"
	"github.com/fluxe/core/internal/verifier"
	"github.com/fluxe/core/pkg/types"
)

// Codec errors
var (
	ErrBadMessage = errors.New("malformed relay message")
)

// TransactionMessage is the wire form of a transaction envelope.
type TransactionMessage struct {
	TxType       uint8           `json:"tx_type"`
	Proof        []byte          `json:"proof"`
	PublicInputs []string        `json:"public_inputs"`
	OldRoots     [8]string       `json:"old_roots"`
	NewRoots     [8]string       `json:"new_roots"`
	Data         json.RawMessage `json:"data"`
}

// BlockMessage is the wire form of a sealed block header.
type BlockMessage struct {
	PrevRoots [8]string `json:"prev_roots"`
	NewRoots  [8]string `json:"new_roots"`
	BatchID   uint64    `json:"batch_id"`
	AggProof  []byte    `json:"agg_proof"`
	Timestamp uint64    `json:"timestamp"`
}

type mintDataWire struct {
	AssetType uint32      `json:"asset_type"`
	Amount    string      `json:"amount"`
	Outputs   []string    `json:"outputs"`
	Receipt   receiptWire `json:"receipt"`
}

type burnDataWire struct {
	AssetType uint32      `json:"asset_type"`
	Amount    string      `json:"amount"`
	Nullifier string      `json:"nullifier"`
	Receipt   receiptWire `json:"receipt"`
}

type transferDataWire struct {
	Nullifiers []string `json:"nullifiers"`
	Outputs    []string `json:"outputs"`
}

type objectUpdateDataWire struct {
	NewObjectCm string           `json:"new_object_cm"`
	Callbacks   []callbackOpWire `json:"callbacks"`
}

type callbackOpWire struct {
	Kind   uint8  `json:"kind"`
	Ticket string `json:"ticket"`
}

type receiptWire struct {
	AssetType uint32 `json:"asset_type"`
	Amount    string `json:"amount"`
	Binding   string `json:"binding"`
	Nonce     uint64 `json:"nonce"`
	Aux       string `json:"aux"`
}

func fieldHex(f types.Field) string {
	b := f.Bytes()
	return hex.EncodeToString(b[:])
}

func fieldFromHex(s string) (types.Field, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return types.Field{}, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	return types.FieldFromBytes(b), nil
}

func rootsToWire(r *types.StateRoots) [8]string {
	var out [8]string
	for i, f := range r.Slice() {
		out[i] = fieldHex(f)
	}
	return out
}

func rootsFromWire(w [8]string) (types.StateRoots, error) {
	fields := make([]types.Field, 8)
	for i, s := range w {
		f, err := fieldFromHex(s)
		if err != nil {
			return types.StateRoots{}, err
		}
		fields[i] = f
	}
	return types.StateRoots{
		CmtRoot: fields[0], NftRoot: fields[1], ObjRoot: fields[2], CbRoot: fields[3],
		IngressRoot: fields[4], ExitRoot: fields[5], SanctionsRoot: fields[6], PoolRulesRoot: fields[7],
	}, nil
}

func amountToWire(a *types.Amount) string {
	return a.Dec()
}

func amountFromWire(s string) (*types.Amount, error) {
	a := new(types.Amount)
	if err := a.SetFromDecimal(s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	return a, nil
}

// EncodeTransaction serializes a transaction envelope for gossip.
func EncodeTransaction(tx *verifier.Transaction) ([]byte, error) {
	var proofBuf bytes.Buffer
	if tx.Proof != nil {
		if _, err := tx.Proof.WriteTo(&proofBuf); err != nil {
			return nil, err
		}
	}

	inputs := make([]string, len(tx.PublicInputs))
	for i, f := range tx.PublicInputs {
		inputs[i] = fieldHex(f)
	}

	data, err := encodeTxData(tx.Data)
	if err != nil {
		return nil, err
	}

	msg := TransactionMessage{
		TxType:       uint8(tx.TxType),
		Proof:        proofBuf.Bytes(),
		PublicInputs: inputs,
		OldRoots:     rootsToWire(&tx.OldRoots),
		NewRoots:     rootsToWire(&tx.NewRoots),
		Data:         data,
	}
	return json.Marshal(&msg)
}

// DecodeTransaction parses a gossiped transaction envelope.
func DecodeTransaction(raw []byte) (*verifier.Transaction, error) {
	var msg TransactionMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}

	txType := types.TransactionType(msg.TxType)

	proof := groth16.NewProof(ecc.BN254)
	if len(msg.Proof) > 0 {
		if _, err := proof.ReadFrom(bytes.NewReader(msg.Proof)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadMessage, err)
		}
	}

	inputs := make([]types.Field, len(msg.PublicInputs))
	for i, s := range msg.PublicInputs {
		f, err := fieldFromHex(s)
		if err != nil {
			return nil, err
		}
		inputs[i] = f
	}

	oldRoots, err := rootsFromWire(msg.OldRoots)
	if err != nil {
		return nil, err
	}
	newRoots, err := rootsFromWire(msg.NewRoots)
	if err != nil {
		return nil, err
	}

	data, err := decodeTxData(txType, msg.Data)
	if err != nil {
		return nil, err
	}

	return &verifier.Transaction{
		TxType:       txType,
		Proof:        proof,
		PublicInputs: inputs,
		OldRoots:     oldRoots,
		NewRoots:     newRoots,
		Data:         data,
	}, nil
}

func encodeTxData(data verifier.TxData) (json.RawMessage, error) {
	switch d := data.(type) {
	case *verifier.MintData:
		outputs := make([]string, len(d.OutputCommitments))
		for i, cm := range d.OutputCommitments {
			outputs[i] = fieldHex(cm)
		}
		return json.Marshal(&mintDataWire{
			AssetType: d.AssetType,
			Amount:    amountToWire(d.Amount),
			Outputs:   outputs,
			Receipt: receiptWire{
				AssetType: d.IngressReceipt.AssetType,
				Amount:    amountToWire(d.IngressReceipt.Amount),
				Binding:   fieldHex(d.IngressReceipt.BeneficiaryCm),
				Nonce:     d.IngressReceipt.Nonce,
				Aux:       fieldHex(d.IngressReceipt.Aux),
			},
		})

	case *verifier.BurnData:
		return json.Marshal(&burnDataWire{
			AssetType: d.AssetType,
			Amount:    amountToWire(d.Amount),
			Nullifier: fieldHex(d.Nullifier),
			Receipt: receiptWire{
				AssetType: d.ExitReceipt.AssetType,
				Amount:    amountToWire(d.ExitReceipt.Amount),
				Binding:   fieldHex(d.ExitReceipt.BurnedNf),
				Nonce:     d.ExitReceipt.Nonce,
				Aux:       fieldHex(d.ExitReceipt.Aux),
			},
		})

	case *verifier.TransferData:
		nfs := make([]string, len(d.Nullifiers))
		for i, nf := range d.Nullifiers {
			nfs[i] = fieldHex(nf)
		}
		outputs := make([]string, len(d.OutputCommitments))
		for i, cm := range d.OutputCommitments {
			outputs[i] = fieldHex(cm)
		}
		return json.Marshal(&transferDataWire{Nullifiers: nfs, Outputs: outputs})

	case *verifier.ObjectUpdateData:
		ops := make([]callbackOpWire, len(d.CallbackOps))
		for i, op := range d.CallbackOps {
			ops[i] = callbackOpWire{Kind: uint8(op.Kind), Ticket: fieldHex(op.Ticket)}
		}
		return json.Marshal(&objectUpdateDataWire{
			NewObjectCm: fieldHex(d.NewObjectCm),
			Callbacks:   ops,
		})
	}
	return nil, ErrBadMessage
}

func decodeTxData(t types.TransactionType, raw json.RawMessage) (verifier.TxData, error) {
	switch t {
	case types.TxMint:
		var w mintDataWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadMessage, err)
		}
		amount, err := amountFromWire(w.Amount)
		if err != nil {
			return nil, err
		}
		outputs := make([]types.Commitment, len(w.Outputs))
		for i, s := range w.Outputs {
			f, err := fieldFromHex(s)
			if err != nil {
				return nil, err
			}
			outputs[i] = f
		}
		receiptAmount, err := amountFromWire(w.Receipt.Amount)
		if err != nil {
			return nil, err
		}
		binding, err := fieldFromHex(w.Receipt.Binding)
		if err != nil {
			return nil, err
		}
		aux, err := fieldFromHex(w.Receipt.Aux)
		if err != nil {
			return nil, err
		}
		receipt := domain.NewIngressReceipt(w.Receipt.AssetType, receiptAmount, binding, w.Receipt.Nonce)
		receipt.Aux = aux
		return &verifier.MintData{
			AssetType:         w.AssetType,
			Amount:            amount,
			OutputCommitments: outputs,
			IngressReceipt:    receipt,
		}, nil

	case types.TxBurn:
		var w burnDataWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadMessage, err)
		}
		amount, err := amountFromWire(w.Amount)
		if err != nil {
			return nil, err
		}
		nf, err := fieldFromHex(w.Nullifier)
		if err != nil {
			return nil, err
		}
		receiptAmount, err := amountFromWire(w.Receipt.Amount)
		if err != nil {
			return nil, err
		}
		binding, err := fieldFromHex(w.Receipt.Binding)
		if err != nil {
			return nil, err
		}
		aux, err := fieldFromHex(w.Receipt.Aux)
		if err != nil {
			return nil, err
		}
		receipt := domain.NewExitReceipt(w.Receipt.AssetType, receiptAmount, binding, w.Receipt.Nonce)
		receipt.Aux = aux
		return &verifier.BurnData{
			AssetType:   w.AssetType,
			Amount:      amount,
			Nullifier:   nf,
			ExitReceipt: receipt,
		}, nil

	case types.TxTransfer:
		var w transferDataWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadMessage, err)
		}
		nfs := make([]types.Nullifier, len(w.Nullifiers))
		for i, s := range w.Nullifiers {
			f, err := fieldFromHex(s)
			if err != nil {
				return nil, err
			}
			nfs[i] = f
		}
		outputs := make([]types.Commitment, len(w.Outputs))
		for i, s := range w.Outputs {
			f, err := fieldFromHex(s)
			if err != nil {
				return nil, err
			}
			outputs[i] = f
		}
		return &verifier.TransferData{Nullifiers: nfs, OutputCommitments: outputs}, nil

	case types.TxObjectUpdate:
		var w objectUpdateDataWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadMessage, err)
		}
		cm, err := fieldFromHex(w.NewObjectCm)
		if err != nil {
			return nil, err
		}
		ops := make([]verifier.CallbackOperation, len(w.Callbacks))
		for i, op := range w.Callbacks {
			ticket, err := fieldFromHex(op.Ticket)
			if err != nil {
				return nil, err
			}
			ops[i] = verifier.CallbackOperation{Kind: verifier.CallbackOpKind(op.Kind), Ticket: ticket}
		}
		return &verifier.ObjectUpdateData{NewObjectCm: cm, CallbackOps: ops}, nil
	}

	return nil, ErrBadMessage
}

// EncodeBlockHeader serializes a sealed header for gossip.
func EncodeBlockHeader(h *types.BlockHeader) ([]byte, error) {
	return json.Marshal(&BlockMessage{
		PrevRoots: rootsToWire(&h.PrevRoots),
		NewRoots:  rootsToWire(&h.NewRoots),
		BatchID:   h.BatchID,
		AggProof:  h.AggProof,
		Timestamp: h.Timestamp,
	})
}

// DecodeBlockHeader parses a gossiped header.
func DecodeBlockHeader(raw []byte) (*types.BlockHeader, error) {
	var msg BlockMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	prev, err := rootsFromWire(msg.PrevRoots)
	if err != nil {
		return nil, err
	}
	next, err := rootsFromWire(msg.NewRoots)
	if err != nil {
		return nil, err
	}
	return &types.BlockHeader{
		PrevRoots: prev,
		NewRoots:  next,
		BatchID:   msg.BatchID,
		AggProof:  msg.AggProof,
		Timestamp: msg.Timestamp,
	}, nil
}
