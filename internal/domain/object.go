package domain

import (
	"github.com/fluxe/core/internal/crypto"
	"github.com/fluxe/core/pkg/types"
)

// ZkObject is the per-user compliance state machine. Its commitment is an
// append-only leaf in the object tree; updates append a new leaf rather
// than mutate in place.
type ZkObject struct {
	// StateHash commits to the current ComplianceState.
	StateHash types.Field

	// Serial is the anti-replay counter; every update increments it.
	Serial types.Serial

	// CbHeadHash is the rolling hash-chain of pending callbacks.
	CbHeadHash types.Field
}

// NewZkObject creates an object over an initial state.
func NewZkObject(state *ComplianceState) *ZkObject {
	return &ZkObject{StateHash: state.Hash()}
}

// Commitment computes the object's tree leaf under the given randomness.
func (o *ZkObject) Commitment(r types.Field) types.Field {
	return crypto.Hash(
		crypto.DomObj,
		o.StateHash,
		types.FieldFromUint64(o.Serial),
		o.CbHeadHash,
		r,
	)
}

// AddCallback folds the entry hash into the callback chain and bumps the
// serial.
func (o *ZkObject) AddCallback(entry *CallbackEntry) {
	o.Serial++
	o.CbHeadHash = crypto.Hash(o.CbHeadHash, entry.Hash())
}

// ProcessCallback advances the state machine after an invocation or
// timeout and bumps the serial.
func (o *ZkObject) ProcessCallback(newStateHash types.Field, entry *CallbackEntry) {
	o.Serial++
	o.StateHash = newStateHash
	o.CbHeadHash = crypto.Hash(o.CbHeadHash, entry.Hash())
}

// CallbackEntry is a pending compliance-provider callback registered on an
// object.
type CallbackEntry struct {
	// MethodId identifies the provider method.
	MethodId uint32

	// Expiry is the time after which the timeout branch opens.
	Expiry types.Time

	// ProviderKey is the field form of the provider's Schnorr key.
	ProviderKey types.Field

	// UserRand blinds the ticket.
	UserRand types.Field
}

// NewCallbackEntry builds an entry with fresh user randomness.
func NewCallbackEntry(methodId uint32, expiry types.Time, providerKey types.Field) (*CallbackEntry, error) {
	userRand, err := crypto.RandomField()
	if err != nil {
		return nil, err
	}
	return &CallbackEntry{
		MethodId:    methodId,
		Expiry:      expiry,
		ProviderKey: providerKey,
		UserRand:    userRand,
	}, nil
}

// Hash computes the entry hash folded into cb_head_hash.
func (e *CallbackEntry) Hash() types.Field {
	return crypto.Hash(
		types.FieldFromUint64(uint64(e.MethodId)),
		types.FieldFromUint64(e.Expiry),
		e.ProviderKey,
		e.UserRand,
	)
}

// Ticket derives the callback's lookup key in the callback tree.
func (e *CallbackEntry) Ticket() types.Field {
	return crypto.Hash(e.ProviderKey, e.UserRand)
}

// IsExpired reports whether the timeout branch is open at now.
func (e *CallbackEntry) IsExpired(now types.Time) bool {
	return now > e.Expiry
}

// CallbackInvocation is a provider's response posted against a ticket.
type CallbackInvocation struct {
	Ticket types.Field

	// Payload is the provider's (encrypted) response.
	Payload []byte

	Timestamp types.Time

	// Signature, when present, signs Hash(ticket, payloadField, timestamp).
	Signature *crypto.SchnorrSignature
}

// NewCallbackInvocation builds an unsigned invocation.
func NewCallbackInvocation(ticket types.Field, payload []byte, ts types.Time) *CallbackInvocation {
	return &CallbackInvocation{Ticket: ticket, Payload: payload, Timestamp: ts}
}

// PayloadField reduces the payload into the scalar field.
func (inv *CallbackInvocation) PayloadField() types.Field {
	return types.FieldFromBytes(inv.Payload)
}

// SignedMessage is the field the provider signs.
func (inv *CallbackInvocation) SignedMessage() types.Field {
	return crypto.Hash(inv.Ticket, inv.PayloadField(), types.FieldFromUint64(inv.Timestamp))
}

// Sign attaches a provider signature.
func (inv *CallbackInvocation) Sign(sk *crypto.SchnorrSecretKey) error {
	sig, err := sk.Sign(inv.SignedMessage(), nil)
	if err != nil {
		return err
	}
	inv.Signature = &sig
	return nil
}

// VerifySignature checks the attached signature under the provider key.
func (inv *CallbackInvocation) VerifySignature(pk *crypto.SchnorrPublicKey) bool {
	if inv.Signature == nil {
		return false
	}
	return pk.Verify(inv.SignedMessage(), inv.Signature)
}

// Hash commits to the invocation's ticket, timestamp and payload. The
// callback tree is keyed by Ticket, not by this hash.
func (inv *CallbackInvocation) Hash() types.Field {
	return crypto.Hash(inv.Ticket, types.FieldFromUint64(inv.Timestamp), inv.PayloadField())
}
