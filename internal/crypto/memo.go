package crypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/fluxe/core/pkg/types"
)

// Memo errors
var (
	ErrMemoEncrypt = errors.New("memo encryption failed")
	ErrMemoDecrypt = errors.New("memo decryption failed")
)

// EncryptedMemo is an authenticated ciphertext delivered off-chain to the
// note recipient. Only its hash enters the note commitment.
type EncryptedMemo struct {
	Ciphertext []byte
	Nonce      [chacha20poly1305.NonceSize]byte
}

// EncryptMemo encrypts plaintext under a 32-byte shared secret with
// ChaCha20-Poly1305. A fresh random nonce is drawn per memo.
func EncryptMemo(plaintext []byte, sharedSecret *[32]byte) (*EncryptedMemo, error) {
	key := deriveMemoKey(sharedSecret)
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, ErrMemoEncrypt
	}

	var nonce [chacha20poly1305.NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, ErrMemoEncrypt
	}

	ct := aead.Seal(nil, nonce[:], plaintext, nil)
	return &EncryptedMemo{Ciphertext: ct, Nonce: nonce}, nil
}

// DecryptMemo authenticates and decrypts a memo. A wrong key or tampered
// ciphertext fails.
func DecryptMemo(memo *EncryptedMemo, sharedSecret *[32]byte) ([]byte, error) {
	key := deriveMemoKey(sharedSecret)
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, ErrMemoDecrypt
	}

	pt, err := aead.Open(nil, memo.Nonce[:], memo.Ciphertext, nil)
	if err != nil {
		return nil, ErrMemoDecrypt
	}
	return pt, nil
}

// MemoHash binds the encrypted memo into the note commitment.
func MemoHash(memo *EncryptedMemo) types.Field {
	h, _ := blake2b.New256(nil)
	h.Write(memo.Ciphertext)
	h.Write(memo.Nonce[:])
	return types.FieldFromBytes(h.Sum(nil))
}

// DeriveSharedSecret derives a memo key-agreement secret from sender and
// recipient key material.
func DeriveSharedSecret(senderKey, recipientKey types.Field) [32]byte {
	h := Hash(senderKey, recipientKey)
	return h.Bytes()
}

func deriveMemoKey(sharedSecret *[32]byte) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write(sharedSecret[:])
	h.Write([]byte("FLUXE_MEMO_KEY"))
	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}
