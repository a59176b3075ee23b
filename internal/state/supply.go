package state

import (
	"github.com/holiman/uint256"

	"github.com/fluxe/core/pkg/types"
)

// SupplyLedger tracks circulating supply per asset. Supply can never go
// negative: burns that would underflow are rejected before any mutation.
type SupplyLedger struct {
	balances map[types.AssetType]*uint256.Int
}

// NewSupplyLedger creates an empty ledger.
func NewSupplyLedger() *SupplyLedger {
	return &SupplyLedger{balances: make(map[types.AssetType]*uint256.Int)}
}

// Get returns the circulating supply of an asset (zero if never minted).
func (l *SupplyLedger) Get(asset types.AssetType) *types.Amount {
	if b, ok := l.balances[asset]; ok {
		return new(uint256.Int).Set(b)
	}
	return uint256.NewInt(0)
}

// Mint credits supply.
func (l *SupplyLedger) Mint(asset types.AssetType, amount *types.Amount) {
	b, ok := l.balances[asset]
	if !ok {
		b = uint256.NewInt(0)
		l.balances[asset] = b
	}
	b.Add(b, amount)
}

// Burn debits supply, erroring on underflow.
func (l *SupplyLedger) Burn(asset types.AssetType, amount *types.Amount) error {
	b, ok := l.balances[asset]
	if !ok {
		return ErrInsufficientBalance
	}
	if b.Lt(amount) {
		return ErrInsufficientBalance
	}
	b.Sub(b, amount)
	return nil
}

// Assets returns the asset types with ledger entries.
func (l *SupplyLedger) Assets() []types.AssetType {
	out := make([]types.AssetType, 0, len(l.balances))
	for a := range l.balances {
		out = append(out, a)
	}
	return out
}

// Clone deep-copies the ledger.
func (l *SupplyLedger) Clone() *SupplyLedger {
	balances := make(map[types.AssetType]*uint256.Int, len(l.balances))
	for k, v := range l.balances {
		balances[k] = new(uint256.Int).Set(v)
	}
	return &SupplyLedger{balances: balances}
}
