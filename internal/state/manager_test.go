package state

import (
	"errors"
	"testing"

	"github.com/fluxe/core/pkg/types"
)

func TestGenesisRoots(t *testing.T) {
	m := NewManager(8)
	roots := m.Roots()

	// The incremental trees start empty; the sorted trees contain their
	// sentinel, so their roots differ from the empty root.
	emptyRoot := m.Params().EmptyRoot()
	if !roots.CmtRoot.Equal(&emptyRoot) {
		t.Fatal("cmt root should be the empty root at genesis")
	}
	if roots.NftRoot.Equal(&emptyRoot) {
		t.Fatal("nft root should include the sentinel at genesis")
	}
}

func TestMintFlow(t *testing.T) {
	m := NewManager(8)
	before := m.Roots()

	receiptHash := types.FieldFromUint64(111)
	cm := types.FieldFromUint64(222)

	if err := m.IngressAppend(receiptHash); err != nil {
		t.Fatalf("IngressAppend: %v", err)
	}
	if err := m.CmtAppend(cm); err != nil {
		t.Fatalf("CmtAppend: %v", err)
	}
	m.MintSupply(1, types.NewAmount(1000))

	after := m.Roots()
	if before.IngressRoot.Equal(&after.IngressRoot) {
		t.Fatal("ingress root should change")
	}
	if before.CmtRoot.Equal(&after.CmtRoot) {
		t.Fatal("cmt root should change")
	}
	if !before.NftRoot.Equal(&after.NftRoot) {
		t.Fatal("nft root should be untouched by a mint")
	}

	if m.Supply(1).Uint64() != 1000 {
		t.Fatalf("expected supply 1000, got %s", m.Supply(1).Dec())
	}
}

func TestDoubleSpendRejected(t *testing.T) {
	m := NewManager(8)

	nf := types.FieldFromUint64(42)
	if err := m.NftInsert(nf); err != nil {
		t.Fatalf("first NftInsert: %v", err)
	}

	err := m.NftInsert(nf)
	if err == nil {
		t.Fatal("second insert should fail")
	}
	if !errors.Is(err, ErrDoubleSpend) {
		t.Fatalf("expected ErrDoubleSpend, got %v", err)
	}

	var dsErr *DoubleSpendError
	if !errors.As(err, &dsErr) {
		t.Fatal("error should carry the nullifier")
	}
	if !dsErr.Nullifier.Equal(&nf) {
		t.Fatal("error should name the offending nullifier")
	}
}

func TestSupplyUnderflow(t *testing.T) {
	m := NewManager(8)
	m.MintSupply(1, types.NewAmount(100))

	if err := m.BurnSupply(1, types.NewAmount(101)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if m.Supply(1).Uint64() != 100 {
		t.Fatal("failed burn must not change supply")
	}

	if err := m.BurnSupply(1, types.NewAmount(100)); err != nil {
		t.Fatalf("BurnSupply: %v", err)
	}
	if !m.Supply(1).IsZero() {
		t.Fatal("supply should reach zero")
	}

	if err := m.BurnSupply(2, types.NewAmount(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("burning an unknown asset should underflow, got %v", err)
	}
}

func TestDuplicateTicket(t *testing.T) {
	m := NewManager(8)

	ticket := types.FieldFromUint64(7)
	if err := m.CbInsert(ticket); err != nil {
		t.Fatalf("CbInsert: %v", err)
	}
	if err := m.CbInsert(ticket); !errors.Is(err, ErrDuplicateTicket) {
		t.Fatalf("expected ErrDuplicateTicket, got %v", err)
	}
}

func TestCloneIsolation(t *testing.T) {
	m := NewManager(8)
	m.MintSupply(1, types.NewAmount(500))

	clone := m.Clone()

	if err := clone.NftInsert(types.FieldFromUint64(9)); err != nil {
		t.Fatalf("NftInsert on clone: %v", err)
	}
	clone.MintSupply(1, types.NewAmount(500))

	if m.NullifierExists(types.FieldFromUint64(9)) {
		t.Fatal("clone mutations must not leak into the original")
	}
	if m.Supply(1).Uint64() != 500 {
		t.Fatal("clone supply mutations must not leak")
	}

	origRoots := m.Roots()
	cloneRoots := clone.Roots()
	if origRoots.Equal(&cloneRoots) {
		t.Fatal("roots should diverge after clone mutation")
	}
}

func TestReferenceRoots(t *testing.T) {
	m := NewManager(8)

	root := types.FieldFromUint64(1234)
	m.SetSanctionsRoot(root)
	m.SetPoolRulesRoot(root)

	roots := m.Roots()
	if !roots.SanctionsRoot.Equal(&root) || !roots.PoolRulesRoot.Equal(&root) {
		t.Fatal("reference roots should reflect the admin update")
	}
}
