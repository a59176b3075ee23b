// Package state owns the protocol's global authenticated state: the six
// protocol trees, the two reference roots and the per-asset supply ledger.
// All mutation flows through the typed operations below; the batch verifier
// is the only caller during normal operation.
package state

import (
	"errors"
	"fmt"

	"github.com/fluxe/core/internal/merkle"
	"github.com/fluxe/core/pkg/types"
)

// State errors
var (
	ErrDoubleSpend         = errors.New("nullifier already spent")
	ErrDuplicateTicket     = errors.New("callback ticket already present")
	ErrInsufficientBalance = errors.New("insufficient supply")
	ErrUnknownAsset        = errors.New("unknown asset type")
)

// DoubleSpendError wraps ErrDoubleSpend with the offending nullifier.
type DoubleSpendError struct {
	Nullifier types.Nullifier
}

func (e *DoubleSpendError) Error() string {
	return fmt.Sprintf("nullifier already spent: %s", e.Nullifier.String())
}

func (e *DoubleSpendError) Unwrap() error {
	return ErrDoubleSpend
}

// Manager owns all eight global roots plus the supply ledger. It is not
// safe for concurrent use; the batch verifier serializes access.
type Manager struct {
	CmtTree     *merkle.IncrementalTree
	NftTree     *merkle.SortedTree
	ObjTree     *merkle.IncrementalTree
	CbTree      *merkle.SortedTree
	IngressTree *merkle.IncrementalTree
	ExitTree    *merkle.IncrementalTree

	// Reference roots, updated out-of-band through the admin path.
	sanctionsRoot types.MerkleRoot
	poolRulesRoot types.MerkleRoot

	supply *SupplyLedger

	params *merkle.TreeParams
}

// NewManager creates a genesis state with empty trees (the sorted trees
// contain their sentinel leaves) and an empty supply ledger.
func NewManager(height int) *Manager {
	return &Manager{
		CmtTree:     merkle.NewIncrementalTree(height),
		NftTree:     merkle.NewSortedTree(height),
		ObjTree:     merkle.NewIncrementalTree(height),
		CbTree:      merkle.NewSortedTree(height),
		IngressTree: merkle.NewIncrementalTree(height),
		ExitTree:    merkle.NewIncrementalTree(height),
		supply:      NewSupplyLedger(),
		params:      merkle.NewTreeParams(height),
	}
}

// Params returns the shared tree parameters.
func (m *Manager) Params() *merkle.TreeParams {
	return m.params
}

// Roots snapshots the eight global roots.
func (m *Manager) Roots() types.StateRoots {
	return types.StateRoots{
		CmtRoot:       m.CmtTree.Root(),
		NftRoot:       m.NftTree.Root(),
		ObjRoot:       m.ObjTree.Root(),
		CbRoot:        m.CbTree.Root(),
		IngressRoot:   m.IngressTree.Root(),
		ExitRoot:      m.ExitTree.Root(),
		SanctionsRoot: m.sanctionsRoot,
		PoolRulesRoot: m.poolRulesRoot,
	}
}

// IngressAppend records a mint receipt hash.
func (m *Manager) IngressAppend(receiptHash types.Field) error {
	_, err := m.IngressTree.Append(receiptHash)
	return err
}

// CmtAppend records a note commitment.
func (m *Manager) CmtAppend(commitment types.Commitment) error {
	_, err := m.CmtTree.Append(commitment)
	return err
}

// NftInsert records a spent nullifier; duplicates are the double-spend
// barrier.
func (m *Manager) NftInsert(nf types.Nullifier) error {
	if m.NftTree.Contains(&nf) {
		return &DoubleSpendError{Nullifier: nf}
	}
	_, err := m.NftTree.Insert(nf)
	return err
}

// CbInsert records a callback invocation ticket; duplicates are rejected.
func (m *Manager) CbInsert(ticket types.Field) error {
	if m.CbTree.Contains(&ticket) {
		return ErrDuplicateTicket
	}
	_, err := m.CbTree.Insert(ticket)
	return err
}

// ObjAppend records a new zk-object commitment.
func (m *Manager) ObjAppend(objectCm types.Commitment) error {
	_, err := m.ObjTree.Append(objectCm)
	return err
}

// ExitAppend records a burn receipt hash.
func (m *Manager) ExitAppend(receiptHash types.Field) error {
	_, err := m.ExitTree.Append(receiptHash)
	return err
}

// SetSanctionsRoot updates the sanctions reference root (admin path).
func (m *Manager) SetSanctionsRoot(root types.MerkleRoot) {
	m.sanctionsRoot = root
}

// SetPoolRulesRoot updates the pool-rules reference root (admin path).
func (m *Manager) SetPoolRulesRoot(root types.MerkleRoot) {
	m.poolRulesRoot = root
}

// Supply returns the circulating supply of an asset.
func (m *Manager) Supply(asset types.AssetType) *types.Amount {
	return m.supply.Get(asset)
}

// MintSupply credits an asset's supply.
func (m *Manager) MintSupply(asset types.AssetType, amount *types.Amount) {
	m.supply.Mint(asset, amount)
}

// BurnSupply debits an asset's supply, erroring on underflow.
func (m *Manager) BurnSupply(asset types.AssetType, amount *types.Amount) error {
	return m.supply.Burn(asset, amount)
}

// SupplyAssets returns the asset types with ledger entries.
func (m *Manager) SupplyAssets() []types.AssetType {
	return m.supply.Assets()
}

// NullifierExists reports whether a nullifier has been spent.
func (m *Manager) NullifierExists(nf types.Nullifier) bool {
	return m.NftTree.Contains(&nf)
}

// Clone deep-copies the manager for batch rollback: the verifier applies a
// batch to the clone and promotes it only after the root-consistency gate.
func (m *Manager) Clone() *Manager {
	return &Manager{
		CmtTree:       m.CmtTree.Clone(),
		NftTree:       m.NftTree.Clone(),
		ObjTree:       m.ObjTree.Clone(),
		CbTree:        m.CbTree.Clone(),
		IngressTree:   m.IngressTree.Clone(),
		ExitTree:      m.ExitTree.Clone(),
		sanctionsRoot: m.sanctionsRoot,
		poolRulesRoot: m.poolRulesRoot,
		supply:        m.supply.Clone(),
		params:        m.params,
	}
}
