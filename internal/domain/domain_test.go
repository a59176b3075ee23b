package domain

import (
	"testing"

	"github.com/fluxe/core/internal/crypto"
	"github.com/fluxe/core/pkg/types"
)

func testNote(t *testing.T, value uint64) (*Note, types.Field) {
	t.Helper()

	params := crypto.SetupValueCommitment()
	r, err := crypto.RandomScalar()
	if err != nil {
		t.Fatalf("RandomScalar: %v", err)
	}

	key, err := crypto.GenerateOwnerKey()
	if err != nil {
		t.Fatalf("GenerateOwnerKey: %v", err)
	}

	psi := [32]byte{1, 2, 3}
	note := NewNote(1, params.Commit(value, r), key.Address(), psi, 1)
	return note, r
}

func TestNoteCommitmentDeterministic(t *testing.T) {
	note, _ := testNote(t, 1000)

	cm1 := note.Commitment()
	cm2 := note.Commitment()
	if !cm1.Equal(&cm2) {
		t.Fatal("commitment should be deterministic")
	}

	note.PoolId = 2
	cm3 := note.Commitment()
	if cm1.Equal(&cm3) {
		t.Fatal("commitment should depend on every field")
	}
}

func TestNullifierKeyed(t *testing.T) {
	note, _ := testNote(t, 1000)

	nk1, _ := crypto.RandomField()
	nk2, _ := crypto.RandomField()

	nf1 := note.Nullifier(nk1)
	nf1Again := note.Nullifier(nk1)
	nf2 := note.Nullifier(nk2)

	if !nf1.Equal(&nf1Again) {
		t.Fatal("nullifier should be deterministic")
	}
	if nf1.Equal(&nf2) {
		t.Fatal("different nullifier keys should give different nullifiers")
	}
}

func TestLineage(t *testing.T) {
	p1 := types.FieldFromUint64(111)
	p2 := types.FieldFromUint64(222)

	l0 := ComputeLineage([]types.Field{p1, p2}, 0)
	l1 := ComputeLineage([]types.Field{p1, p2}, 1)
	if l0.Equal(&l1) {
		t.Fatal("lineage should depend on the output index")
	}

	manual := crypto.Hash(p1, p2, types.FieldFromUint64(0))
	if !l0.Equal(&manual) {
		t.Fatal("lineage should be Poseidon(parents..., index)")
	}
}

func TestReceiptHashes(t *testing.T) {
	cm := types.FieldFromUint64(77)
	ingress := NewIngressReceipt(1, types.NewAmount(1000), cm, 5)

	h1 := ingress.Hash()
	h2 := ingress.Hash()
	if !h1.Equal(&h2) {
		t.Fatal("ingress hash should be deterministic")
	}

	ingress.Nonce = 6
	h3 := ingress.Hash()
	if h1.Equal(&h3) {
		t.Fatal("ingress hash should depend on the nonce")
	}

	nf := types.FieldFromUint64(88)
	exit := NewExitReceipt(1, types.NewAmount(500), nf, 9)
	e1 := exit.Hash()
	e2 := exit.Hash()
	if !e1.Equal(&e2) {
		t.Fatal("exit hash should be deterministic")
	}
}

func TestOutputAccumulator(t *testing.T) {
	cm1 := types.FieldFromUint64(1)
	cm2 := types.FieldFromUint64(2)

	acc := OutputAccumulator([]types.Commitment{cm1, cm2})

	var zero types.Field
	manual := crypto.Hash(crypto.Hash(zero, cm1), cm2)
	if !acc.Equal(&manual) {
		t.Fatal("accumulator should fold from zero")
	}
}

func TestZkObjectCallbacks(t *testing.T) {
	st := NewVerifiedState(1)
	obj := NewZkObject(st)

	if obj.Serial != 0 {
		t.Fatal("fresh object serial should be 0")
	}
	stateHash := st.Hash()
	if !obj.StateHash.Equal(&stateHash) {
		t.Fatal("state hash should bind the initial state")
	}

	entry, err := NewCallbackEntry(1, 1000, types.FieldFromUint64(7))
	if err != nil {
		t.Fatalf("NewCallbackEntry: %v", err)
	}

	before := obj.CbHeadHash
	obj.AddCallback(entry)

	if obj.Serial != 1 {
		t.Fatal("AddCallback should bump the serial")
	}
	expected := crypto.Hash(before, entry.Hash())
	if !obj.CbHeadHash.Equal(&expected) {
		t.Fatal("AddCallback should fold the entry hash into the chain")
	}
}

func TestCallbackTicketAndExpiry(t *testing.T) {
	entry, err := NewCallbackEntry(1, 1000, types.FieldFromUint64(7))
	if err != nil {
		t.Fatalf("NewCallbackEntry: %v", err)
	}

	t1 := entry.Ticket()
	t2 := entry.Ticket()
	if !t1.Equal(&t2) {
		t.Fatal("ticket should be deterministic")
	}

	if entry.IsExpired(1000) {
		t.Fatal("entry should not expire at its own expiry time")
	}
	if !entry.IsExpired(1001) {
		t.Fatal("entry should expire after its expiry time")
	}
}

func TestCallbackInvocationSignature(t *testing.T) {
	providerSk, err := crypto.GenerateSchnorrKey(nil)
	if err != nil {
		t.Fatalf("GenerateSchnorrKey: %v", err)
	}
	providerPk := providerSk.Public()

	inv := NewCallbackInvocation(providerPk.ToField(), []byte{1, 2, 3, 4}, 1234567890)

	if inv.VerifySignature(&providerPk) {
		t.Fatal("unsigned invocation should not verify")
	}

	if err := inv.Sign(providerSk); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !inv.VerifySignature(&providerPk) {
		t.Fatal("signed invocation should verify")
	}

	inv.Timestamp = 999
	if inv.VerifySignature(&providerPk) {
		t.Fatal("tampered invocation should not verify")
	}
}

func TestComplianceFreeze(t *testing.T) {
	st := NewVerifiedState(2)
	if st.DailyLimit.IsZero() {
		t.Fatal("verified state should have limits")
	}

	h1 := st.Hash()
	st.Freeze()
	if !st.Frozen {
		t.Fatal("Freeze should set the flag")
	}
	if !st.DailyLimit.IsZero() || !st.MonthlyLimit.IsZero() || !st.YearlyLimit.IsZero() {
		t.Fatal("frozen state must zero all limits")
	}

	h2 := st.Hash()
	if h1.Equal(&h2) {
		t.Fatal("state hash should change on freeze")
	}
}

func TestPoolRuleBitmaps(t *testing.T) {
	rule := &PoolRule{
		PoolId:        1,
		InboundAllow:  1 << 2,
		OutboundAllow: 1<<3 | 1<<1,
		MaxPerTx:      types.NewAmount(1000),
		MaxPerDay:     types.NewAmount(10000),
	}

	if !rule.AllowsOutbound(3) || !rule.AllowsOutbound(1) {
		t.Fatal("outbound bitmap should allow pools 1 and 3")
	}
	if rule.AllowsOutbound(2) {
		t.Fatal("outbound bitmap should not allow pool 2")
	}
	if !rule.AllowsInbound(2) {
		t.Fatal("inbound bitmap should allow pool 2")
	}
	if rule.AllowsOutbound(64) {
		t.Fatal("pools beyond the bitmap width are disallowed")
	}

	h1 := rule.Hash()
	rule.Flags = 1
	h2 := rule.Hash()
	if h1.Equal(&h2) {
		t.Fatal("rule hash should bind the flags")
	}
}
