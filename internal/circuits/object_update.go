package circuits

import (
	"github.com/consensys/gnark/frontend"

	"github.com/fluxe/core/internal/crypto"
)

// ZkObjectVar is an in-circuit zk-object.
type ZkObjectVar struct {
	StateHash  frontend.Variable
	Serial     frontend.Variable
	CbHeadHash frontend.Variable
}

// commitment replicates domain.ZkObject.Commitment.
func (o *ZkObjectVar) commitment(api frontend.API, h hasher, randomness frontend.Variable) frontend.Variable {
	return hashFields(api, h, domainConst(crypto.DomObj), o.StateHash, o.Serial, o.CbHeadHash, randomness)
}

// ComplianceStateVar is an in-circuit compliance state.
type ComplianceStateVar struct {
	Level            frontend.Variable
	RiskScore        frontend.Variable
	Frozen           frontend.Variable
	LastReviewTime   frontend.Variable
	JurisdictionBits frontend.Variable
	DailyLimit       frontend.Variable
	MonthlyLimit     frontend.Variable
	YearlyLimit      frontend.Variable
	RepHash          frontend.Variable
}

// hashVar replicates domain.ComplianceState.Hash.
func (s *ComplianceStateVar) hashVar(api frontend.API, h hasher) frontend.Variable {
	return hashFields(api, h,
		s.Level, s.RiskScore, s.Frozen, s.LastReviewTime, s.JurisdictionBits,
		s.DailyLimit, s.MonthlyLimit, s.YearlyLimit, s.RepHash,
	)
}

// CallbackEntryVar is an in-circuit callback entry.
type CallbackEntryVar struct {
	MethodId    frontend.Variable
	Expiry      frontend.Variable
	ProviderKey frontend.Variable
	UserRand    frontend.Variable
}

func (e *CallbackEntryVar) hashVar(api frontend.API, h hasher) frontend.Variable {
	return hashFields(api, h, e.MethodId, e.Expiry, e.ProviderKey, e.UserRand)
}

func (e *CallbackEntryVar) ticket(api frontend.API, h hasher) frontend.Variable {
	return hashFields(api, h, e.ProviderKey, e.UserRand)
}

// CallbackInvocationVar is an in-circuit callback invocation.
type CallbackInvocationVar struct {
	Ticket       frontend.Variable
	PayloadField frontend.Variable
	Timestamp    frontend.Variable
	HasSignature frontend.Variable
	Signature    SchnorrSigVar
}

// ObjectUpdateCircuit proves one step of a user's compliance state machine:
// the old object is a member of the object tree, the new object extends it
// by exactly one serial, and the callback chain advances through exactly
// one of the three branches (process, timeout, none).
type ObjectUpdateCircuit struct {
	// Public inputs, in the order the verifier binds them.
	ObjRootOld  frontend.Variable `gnark:",public"`
	ObjRootNew  frontend.Variable `gnark:",public"`
	CbRoot      frontend.Variable `gnark:",public"`
	CurrentTime frontend.Variable `gnark:",public"`

	// Witness.
	ObjOld       ZkObjectVar
	ObjNew       ZkObjectVar
	ObjOldRandom frontend.Variable
	ObjNewRandom frontend.Variable
	StateOld     ComplianceStateVar
	StateNew     ComplianceStateVar

	HasEntry frontend.Variable
	Entry    CallbackEntryVar

	HasInvocation frontend.Variable
	Invocation    CallbackInvocationVar

	// The callback tree is keyed by tickets; membership of the processed
	// ticket needs its sorted leaf and path.
	InvocationLeaf SortedLeafVar
	InvocationPath MerklePathVar

	// TicketNonMembership backs the timeout branch.
	TicketNonMembership RangePathVar

	ObjOldPath MerklePathVar
	ObjAppend  AppendWitnessVar
}

// Define implements the ObjectUpdate relation.
func (c *ObjectUpdateCircuit) Define(api frontend.API) error {
	h, err := newHasher(api)
	if err != nil {
		return err
	}
	curve, err := newCurve(api)
	if err != nil {
		return err
	}

	// 1. Old object membership and state-hash bindings.
	oldCm := c.ObjOld.commitment(api, h, c.ObjOldRandom)
	api.AssertIsEqual(c.ObjOldPath.Root(api, h, oldCm), c.ObjRootOld)

	api.AssertIsEqual(c.ObjOld.StateHash, c.StateOld.hashVar(api, h))
	api.AssertIsEqual(c.ObjNew.StateHash, c.StateNew.hashVar(api, h))

	// 2. Serial increments by exactly one.
	api.AssertIsEqual(c.ObjNew.Serial, api.Add(c.ObjOld.Serial, 1))

	// 3-5. Callback branches.
	api.AssertIsBoolean(c.HasEntry)
	api.AssertIsBoolean(c.HasInvocation)
	// An invocation only makes sense against an entry.
	conditionalAssertEqual(api, c.HasInvocation, c.HasEntry, 1)

	// Chain update when an entry is processed; unchanged otherwise.
	entryHash := c.Entry.hashVar(api, h)
	chained := hashFields(api, h, c.ObjOld.CbHeadHash, entryHash)
	expectedHead := api.Select(c.HasEntry, chained, c.ObjOld.CbHeadHash)
	api.AssertIsEqual(c.ObjNew.CbHeadHash, expectedHead)

	ticket := c.Entry.ticket(api, h)

	// Invocation branch: ticket match, ticket membership in the callback
	// tree, optional provider signature.
	conditionalAssertEqual(api, c.HasInvocation, c.Invocation.Ticket, ticket)
	conditionalAssertEqual(api, c.HasInvocation, c.InvocationLeaf.Key, ticket)
	invRoot := c.InvocationPath.Root(api, h, c.InvocationLeaf.Hash(api, h))
	conditionalAssertEqual(api, c.HasInvocation, invRoot, c.CbRoot)

	api.AssertIsBoolean(c.Invocation.HasSignature)
	sigActive := api.Mul(c.HasInvocation, c.Invocation.HasSignature)
	signedMsg := hashFields(api, h, c.Invocation.Ticket, c.Invocation.PayloadField, c.Invocation.Timestamp)
	enforceSchnorrIf(api, curve, h, sigActive, &c.Invocation.Signature, signedMsg)

	// Timeout branch: entry present, no invocation, ticket absent from the
	// callback tree and the entry expired.
	timeout := api.Mul(c.HasEntry, api.Sub(1, c.HasInvocation))
	c.TicketNonMembership.EnforceIf(api, h, timeout, ticket, c.CbRoot)
	expired := isLess(api, c.Entry.Expiry, c.CurrentTime)
	conditionalAssertEqual(api, timeout, expired, 1)

	// 6. State-transition rules.
	riskOK := api.Sub(1, isLess(api, c.StateNew.RiskScore, c.StateOld.RiskScore))
	api.AssertIsEqual(riskOK, 1)

	api.ToBinary(c.StateNew.Level, 2)

	api.AssertIsBoolean(c.StateNew.Frozen)
	conditionalAssertEqual(api, c.StateNew.Frozen, c.StateNew.DailyLimit, 0)
	conditionalAssertEqual(api, c.StateNew.Frozen, c.StateNew.MonthlyLimit, 0)
	conditionalAssertEqual(api, c.StateNew.Frozen, c.StateNew.YearlyLimit, 0)

	api.AssertIsDifferent(c.StateNew.JurisdictionBits, 0)

	reviewOK := api.Sub(1, isLess(api, c.StateNew.LastReviewTime, c.StateOld.LastReviewTime))
	api.AssertIsEqual(reviewOK, 1)

	// 7. Object append.
	newCm := c.ObjNew.commitment(api, h, c.ObjNewRandom)
	c.ObjAppend.Enforce(api, h, newCm, c.ObjRootOld, c.ObjRootNew)

	return nil
}
