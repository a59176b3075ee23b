package types

import (
	"testing"
)

func TestAmountToField(t *testing.T) {
	a := NewAmount(1000)
	f := AmountToField(a)
	want := FieldFromUint64(1000)
	if !f.Equal(&want) {
		t.Fatal("amount-to-field should agree with uint64 lifting")
	}
}

func TestStateRootsEqual(t *testing.T) {
	var a, b StateRoots
	if !a.Equal(&b) {
		t.Fatal("zero root sets should be equal")
	}

	b.NftRoot = FieldFromUint64(1)
	if a.Equal(&b) {
		t.Fatal("differing root sets should not be equal")
	}

	if len(a.Slice()) != 8 {
		t.Fatal("there are eight global roots")
	}
}

func TestTransactionTypeNames(t *testing.T) {
	names := map[TransactionType]string{
		TxMint:         "mint",
		TxBurn:         "burn",
		TxTransfer:     "transfer",
		TxObjectUpdate: "object-update",
	}
	for txType, want := range names {
		if txType.String() != want {
			t.Fatalf("expected %q, got %q", want, txType.String())
		}
	}
}

func TestFieldFromBytesDeterministic(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	f1 := FieldFromBytes(b)
	f2 := FieldFromBytes(b)
	if !f1.Equal(&f2) {
		t.Fatal("byte reduction should be deterministic")
	}
}
