package circuits

import (
	"errors"
	"math/big"

	"github.com/consensys/gnark/frontend"

	"github.com/fluxe/core/internal/crypto"
	"github.com/fluxe/core/internal/domain"
	"github.com/fluxe/core/internal/merkle"
	"github.com/fluxe/core/pkg/types"
)

// Builder errors
var (
	ErrWitnessShape = errors.New("witness does not match circuit shape")
)

func fv(f types.Field) frontend.Variable {
	return types.FieldToBig(f)
}

// PathVar converts a native Merkle path into its circuit form.
func PathVar(p *merkle.MerklePath) (MerklePathVar, error) {
	var out MerklePathVar
	if len(p.Siblings) != MerkleDepth {
		return out, ErrWitnessShape
	}
	out.LeafIndex = p.LeafIndex
	for i, s := range p.Siblings {
		out.Siblings[i] = fv(s)
	}
	return out, nil
}

// AppendVar converts a native append witness into its circuit form.
func AppendVar(w *merkle.AppendWitness) (AppendWitnessVar, error) {
	var out AppendWitnessVar
	if len(w.PreSiblings) != MerkleDepth {
		return out, ErrWitnessShape
	}
	out.LeafIndex = w.LeafIndex
	for i, s := range w.PreSiblings {
		out.PreSiblings[i] = fv(s)
	}
	return out, nil
}

// LeafVar converts a native sorted leaf into its circuit form.
func LeafVar(l *merkle.SortedLeaf) SortedLeafVar {
	return SortedLeafVar{
		Key:       fv(l.Key),
		NextKey:   fv(l.NextKey),
		NextIndex: l.NextIndex,
	}
}

// RangeVar converts a native range path into its circuit form.
func RangeVar(rp *merkle.RangePath) (RangePathVar, error) {
	lowPath, err := PathVar(rp.LowPath)
	if err != nil {
		return RangePathVar{}, err
	}
	return RangePathVar{
		LowLeaf: LeafVar(&rp.LowLeaf),
		LowPath: lowPath,
	}, nil
}

// InsertVar converts a native structural insert witness into its circuit
// form.
func InsertVar(w *merkle.SortedInsertWitness) (SortedInsertVar, error) {
	rangeVar, err := RangeVar(w.RangeProof)
	if err != nil {
		return SortedInsertVar{}, err
	}
	predPath, err := PathVar(w.PredUpdatePath)
	if err != nil {
		return SortedInsertVar{}, err
	}
	newPath, err := PathVar(w.NewLeafPath)
	if err != nil {
		return SortedInsertVar{}, err
	}
	return SortedInsertVar{
		Range:           rangeVar,
		NewLeaf:         LeafVar(&w.NewLeaf),
		UpdatedPredLeaf: LeafVar(&w.UpdatedPredLeaf),
		PredUpdatePath:  predPath,
		NewLeafPath:     newPath,
	}, nil
}

// NoteAssignment converts a native note into its circuit form.
func NoteAssignment(n *domain.Note) NoteVar {
	return NoteVar{
		AssetType:      uint64(n.AssetType),
		VCommX:         fv(n.VComm.X),
		VCommY:         fv(n.VComm.Y),
		OwnerAddr:      fv(n.OwnerAddr),
		Psi:            fv(n.PsiField()),
		ChainHint:      n.ChainHint,
		ComplianceHash: fv(n.ComplianceHash),
		LineageHash:    fv(n.LineageHash),
		PoolId:         uint64(n.PoolId),
		CallbacksHash:  fv(n.CallbacksHash),
		MemoHash:       fv(n.MemoHash),
	}
}

// dummyRangeVar fills a disabled range-proof branch with zero values. The
// branch's constraints are conditioned off, so only the shape matters.
func dummyRangeVar() RangePathVar {
	var out RangePathVar
	out.LowLeaf = SortedLeafVar{Key: 0, NextKey: 0, NextIndex: 0}
	out.LowPath.LeafIndex = 0
	for i := range out.LowPath.Siblings {
		out.LowPath.Siblings[i] = 0
	}
	return out
}

// dummyPathVar fills a disabled membership-path branch.
func dummyPathVar() MerklePathVar {
	var out MerklePathVar
	out.LeafIndex = 0
	for i := range out.Siblings {
		out.Siblings[i] = 0
	}
	return out
}

// dummySchnorrVar fills a disabled signature branch with the curve base
// point so the gadget's group operations stay well-formed.
func dummySchnorrVar() SchnorrSigVar {
	params := crypto.SetupValueCommitment()
	return SchnorrSigVar{
		PkX: fv(params.G.X),
		PkY: fv(params.G.Y),
		RX:  fv(params.G.X),
		RY:  fv(params.G.Y),
		S:   1,
	}
}

// dummyPoolRuleVar fills a disabled policy branch.
func dummyPoolRuleVar() PoolRuleVar {
	return PoolRuleVar{PoolId: 0, InboundAllow: 0, OutboundAllow: 0, MaxPerTx: 0, MaxPerDay: 0, Flags: 0}
}

// MintWitness is the native material behind a Mint assignment.
type MintWitness struct {
	Outputs    []*domain.Note
	Values     []uint64
	Randomness []types.Field

	Receipt *domain.IngressReceipt

	CmtAppends    []*merkle.AppendWitness
	IngressAppend *merkle.AppendWitness

	CmtRootOld     types.Field
	CmtRootNew     types.Field
	IngressRootOld types.Field
	IngressRootNew types.Field
}

// BuildMintAssignment assembles the full Mint circuit assignment.
func BuildMintAssignment(w *MintWitness) (*MintCircuit, error) {
	if len(w.Outputs) != MintOutputs || len(w.Values) != MintOutputs ||
		len(w.Randomness) != MintOutputs || len(w.CmtAppends) != MintOutputs {
		return nil, ErrWitnessShape
	}

	commitments := make([]types.Commitment, MintOutputs)
	for i, n := range w.Outputs {
		commitments[i] = n.Commitment()
	}
	acc := domain.OutputAccumulator(commitments)

	c := &MintCircuit{
		CmtRootOld:      fv(w.CmtRootOld),
		CmtRootNew:      fv(w.CmtRootNew),
		IngressRootOld:  fv(w.IngressRootOld),
		IngressRootNew:  fv(w.IngressRootNew),
		AssetType:       uint64(w.Receipt.AssetType),
		Amount:          fv(types.AmountToField(w.Receipt.Amount)),
		CmOutListCommit: fv(acc),
		Receipt: IngressReceiptVar{
			AssetType:     uint64(w.Receipt.AssetType),
			Amount:        fv(types.AmountToField(w.Receipt.Amount)),
			BeneficiaryCm: fv(w.Receipt.BeneficiaryCm),
			Nonce:         w.Receipt.Nonce,
			Aux:           fv(w.Receipt.Aux),
		},
	}

	for i := 0; i < MintOutputs; i++ {
		c.Outputs[i] = NoteAssignment(w.Outputs[i])
		c.Values[i] = w.Values[i]
		c.Randomness[i] = fv(w.Randomness[i])

		appendVar, err := AppendVar(w.CmtAppends[i])
		if err != nil {
			return nil, err
		}
		c.CmtAppends[i] = appendVar
	}

	ingressVar, err := AppendVar(w.IngressAppend)
	if err != nil {
		return nil, err
	}
	c.IngressAppend = ingressVar

	return c, nil
}

// BurnWitness is the native material behind a Burn assignment.
type BurnWitness struct {
	Note       *domain.Note
	Value      uint64
	Randomness types.Field
	OwnerSk    *big.Int
	Nk         types.Field

	NotePath *merkle.MerklePath
	NfInsert *merkle.SortedInsertWitness

	Receipt    *domain.ExitReceipt
	ExitAppend *merkle.AppendWitness

	CmtRoot     types.Field
	NftRootOld  types.Field
	NftRootNew  types.Field
	ExitRootOld types.Field
	ExitRootNew types.Field
}

// BuildBurnAssignment assembles the full Burn circuit assignment.
func BuildBurnAssignment(w *BurnWitness) (*BurnCircuit, error) {
	notePath, err := PathVar(w.NotePath)
	if err != nil {
		return nil, err
	}
	nfInsert, err := InsertVar(w.NfInsert)
	if err != nil {
		return nil, err
	}
	exitAppend, err := AppendVar(w.ExitAppend)
	if err != nil {
		return nil, err
	}

	nf := w.Note.Nullifier(w.Nk)

	return &BurnCircuit{
		CmtRoot:     fv(w.CmtRoot),
		NftRootOld:  fv(w.NftRootOld),
		NftRootNew:  fv(w.NftRootNew),
		ExitRootOld: fv(w.ExitRootOld),
		ExitRootNew: fv(w.ExitRootNew),
		AssetType:   uint64(w.Note.AssetType),
		Amount:      fv(types.AmountToField(w.Receipt.Amount)),
		NfIn:        fv(nf),

		Note:       NoteAssignment(w.Note),
		Value:      w.Value,
		Randomness: fv(w.Randomness),
		OwnerSk:    w.OwnerSk,
		Nk:         fv(w.Nk),
		NotePath:   notePath,
		NfInsert:   nfInsert,
		Receipt: ExitReceiptVar{
			AssetType: uint64(w.Receipt.AssetType),
			Amount:    fv(types.AmountToField(w.Receipt.Amount)),
			BurnedNf:  fv(w.Receipt.BurnedNf),
			Nonce:     w.Receipt.Nonce,
			Aux:       fv(w.Receipt.Aux),
		},
		ExitAppend: exitAppend,
	}, nil
}

// TransferInputWitness is one spent note with its authorization material.
type TransferInputWitness struct {
	Note       *domain.Note
	Value      uint64
	Randomness types.Field
	OwnerSk    *big.Int
	Nk         types.Field
	Path       *merkle.MerklePath
	NfInsert   *merkle.SortedInsertWitness

	// SanctionsProof, when set, proves the owner is not sanctioned.
	SanctionsProof *merkle.RangePath
}

// TransferOutputWitness is one created note.
type TransferOutputWitness struct {
	Note       *domain.Note
	Value      uint64
	Randomness types.Field
	CmtAppend  *merkle.AppendWitness

	SanctionsProof *merkle.RangePath
}

// TransferPolicyWitness carries the optional pool-policy membership data.
type TransferPolicyWitness struct {
	SourceRule *domain.PoolRule
	SourcePath *merkle.MerklePath
	DestRule   *domain.PoolRule
	DestPath   *merkle.MerklePath
}

// TransferWitness is the native material behind a Transfer assignment.
type TransferWitness struct {
	Inputs  []*TransferInputWitness
	Outputs []*TransferOutputWitness
	Fee     uint64

	Policy *TransferPolicyWitness

	CmtRootOld    types.Field
	CmtRootNew    types.Field
	NftRootOld    types.Field
	NftRootNew    types.Field
	SanctionsRoot types.Field
	PoolRulesRoot types.Field
}

// BuildTransferAssignment assembles the full Transfer circuit assignment.
func BuildTransferAssignment(w *TransferWitness) (*TransferCircuit, error) {
	if len(w.Inputs) != TransferInputs || len(w.Outputs) != TransferOutputs {
		return nil, ErrWitnessShape
	}

	c := &TransferCircuit{
		CmtRootOld:    fv(w.CmtRootOld),
		CmtRootNew:    fv(w.CmtRootNew),
		NftRootOld:    fv(w.NftRootOld),
		NftRootNew:    fv(w.NftRootNew),
		SanctionsRoot: fv(w.SanctionsRoot),
		PoolRulesRoot: fv(w.PoolRulesRoot),
		Fee:           w.Fee,
	}

	for i, in := range w.Inputs {
		c.InputNotes[i] = NoteAssignment(in.Note)
		c.InputValues[i] = in.Value
		c.InputRandomness[i] = fv(in.Randomness)
		c.OwnerSks[i] = in.OwnerSk
		c.Nks[i] = fv(in.Nk)
		c.Nullifiers[i] = fv(in.Note.Nullifier(in.Nk))

		path, err := PathVar(in.Path)
		if err != nil {
			return nil, err
		}
		c.InputPaths[i] = path

		insert, err := InsertVar(in.NfInsert)
		if err != nil {
			return nil, err
		}
		c.NfInserts[i] = insert

		if in.SanctionsProof != nil {
			rv, err := RangeVar(in.SanctionsProof)
			if err != nil {
				return nil, err
			}
			c.InputSanctionsEnabled[i] = 1
			c.InputSanctionsProofs[i] = rv
		} else {
			c.InputSanctionsEnabled[i] = 0
			c.InputSanctionsProofs[i] = dummyRangeVar()
		}
	}

	for i, out := range w.Outputs {
		c.OutputNotes[i] = NoteAssignment(out.Note)
		c.OutputValues[i] = out.Value
		c.OutputRandomness[i] = fv(out.Randomness)
		c.Commitments[i] = fv(out.Note.Commitment())

		appendVar, err := AppendVar(out.CmtAppend)
		if err != nil {
			return nil, err
		}
		c.CmtAppends[i] = appendVar

		if out.SanctionsProof != nil {
			rv, err := RangeVar(out.SanctionsProof)
			if err != nil {
				return nil, err
			}
			c.OutputSanctionsEnabled[i] = 1
			c.OutputSanctionsProofs[i] = rv
		} else {
			c.OutputSanctionsEnabled[i] = 0
			c.OutputSanctionsProofs[i] = dummyRangeVar()
		}
	}

	if w.Policy != nil {
		c.PolicyEnabled = 1
		c.SourceRule = poolRuleVar(w.Policy.SourceRule)
		c.DestRule = poolRuleVar(w.Policy.DestRule)

		srcPath, err := PathVar(w.Policy.SourcePath)
		if err != nil {
			return nil, err
		}
		c.SourceRulePath = srcPath

		dstPath, err := PathVar(w.Policy.DestPath)
		if err != nil {
			return nil, err
		}
		c.DestRulePath = dstPath
	} else {
		c.PolicyEnabled = 0
		c.SourceRule = dummyPoolRuleVar()
		c.DestRule = dummyPoolRuleVar()
		c.SourceRulePath = dummyPathVar()
		c.DestRulePath = dummyPathVar()
	}

	return c, nil
}

func poolRuleVar(r *domain.PoolRule) PoolRuleVar {
	return PoolRuleVar{
		PoolId:        uint64(r.PoolId),
		InboundAllow:  r.InboundAllow,
		OutboundAllow: r.OutboundAllow,
		MaxPerTx:      fv(types.AmountToField(r.MaxPerTx)),
		MaxPerDay:     fv(types.AmountToField(r.MaxPerDay)),
		Flags:         uint64(r.Flags),
	}
}

// ObjectUpdateWitness is the native material behind an ObjectUpdate
// assignment.
type ObjectUpdateWitness struct {
	ObjOld       *domain.ZkObject
	ObjNew       *domain.ZkObject
	ObjOldRandom types.Field
	ObjNewRandom types.Field
	StateOld     *domain.ComplianceState
	StateNew     *domain.ComplianceState

	Entry *domain.CallbackEntry

	Invocation *domain.CallbackInvocation

	// InvocationLeaf and InvocationPath prove the processed ticket's
	// membership in the callback tree.
	InvocationLeaf *merkle.SortedLeaf
	InvocationPath *merkle.MerklePath

	// ProviderPk verifies a signed invocation; required when the
	// invocation carries a signature.
	ProviderPk *crypto.SchnorrPublicKey

	// TicketNonMembership backs the timeout branch; required when Entry is
	// set and Invocation is nil.
	TicketNonMembership *merkle.RangePath

	ObjOldPath *merkle.MerklePath
	ObjAppend  *merkle.AppendWitness

	ObjRootOld  types.Field
	ObjRootNew  types.Field
	CbRoot      types.Field
	CurrentTime types.Time
}

// BuildObjectUpdateAssignment assembles the full ObjectUpdate circuit
// assignment.
func BuildObjectUpdateAssignment(w *ObjectUpdateWitness) (*ObjectUpdateCircuit, error) {
	objPath, err := PathVar(w.ObjOldPath)
	if err != nil {
		return nil, err
	}
	objAppend, err := AppendVar(w.ObjAppend)
	if err != nil {
		return nil, err
	}

	c := &ObjectUpdateCircuit{
		ObjRootOld:  fv(w.ObjRootOld),
		ObjRootNew:  fv(w.ObjRootNew),
		CbRoot:      fv(w.CbRoot),
		CurrentTime: w.CurrentTime,

		ObjOld:       zkObjectVar(w.ObjOld),
		ObjNew:       zkObjectVar(w.ObjNew),
		ObjOldRandom: fv(w.ObjOldRandom),
		ObjNewRandom: fv(w.ObjNewRandom),
		StateOld:     complianceVar(w.StateOld),
		StateNew:     complianceVar(w.StateNew),

		ObjOldPath: objPath,
		ObjAppend:  objAppend,
	}

	if w.Entry != nil {
		c.HasEntry = 1
		c.Entry = CallbackEntryVar{
			MethodId:    uint64(w.Entry.MethodId),
			Expiry:      w.Entry.Expiry,
			ProviderKey: fv(w.Entry.ProviderKey),
			UserRand:    fv(w.Entry.UserRand),
		}
	} else {
		c.HasEntry = 0
		c.Entry = CallbackEntryVar{MethodId: 0, Expiry: 0, ProviderKey: 0, UserRand: 0}
	}

	if w.Invocation != nil {
		c.HasInvocation = 1
		c.Invocation = CallbackInvocationVar{
			Ticket:       fv(w.Invocation.Ticket),
			PayloadField: fv(w.Invocation.PayloadField()),
			Timestamp:    w.Invocation.Timestamp,
		}
		if w.Invocation.Signature != nil {
			if w.ProviderPk == nil {
				return nil, ErrWitnessShape
			}
			sig := w.Invocation.Signature
			c.Invocation.HasSignature = 1
			c.Invocation.Signature = SchnorrSigVar{
				PkX: fv(w.ProviderPk.P.X),
				PkY: fv(w.ProviderPk.P.Y),
				RX:  fv(sig.R.X),
				RY:  fv(sig.R.Y),
				S:   sig.S,
			}
		} else {
			c.Invocation.HasSignature = 0
			c.Invocation.Signature = dummySchnorrVar()
		}

		if w.InvocationLeaf == nil {
			return nil, ErrWitnessShape
		}
		c.InvocationLeaf = LeafVar(w.InvocationLeaf)

		path, err := PathVar(w.InvocationPath)
		if err != nil {
			return nil, err
		}
		c.InvocationPath = path
	} else {
		c.HasInvocation = 0
		c.Invocation = CallbackInvocationVar{
			Ticket: 0, PayloadField: 0, Timestamp: 0,
			HasSignature: 0, Signature: dummySchnorrVar(),
		}
		c.InvocationLeaf = SortedLeafVar{Key: 0, NextKey: 0, NextIndex: 0}
		c.InvocationPath = dummyPathVar()
	}

	if w.TicketNonMembership != nil {
		rv, err := RangeVar(w.TicketNonMembership)
		if err != nil {
			return nil, err
		}
		c.TicketNonMembership = rv
	} else {
		c.TicketNonMembership = dummyRangeVar()
	}

	return c, nil
}

func zkObjectVar(o *domain.ZkObject) ZkObjectVar {
	return ZkObjectVar{
		StateHash:  fv(o.StateHash),
		Serial:     o.Serial,
		CbHeadHash: fv(o.CbHeadHash),
	}
}

func complianceVar(s *domain.ComplianceState) ComplianceStateVar {
	frozen := uint64(0)
	if s.Frozen {
		frozen = 1
	}
	return ComplianceStateVar{
		Level:            uint64(s.Level),
		RiskScore:        uint64(s.RiskScore),
		Frozen:           frozen,
		LastReviewTime:   s.LastReviewTime,
		JurisdictionBits: fv(types.FieldFromBytes(s.JurisdictionBits[:])),
		DailyLimit:       fv(types.AmountToField(s.DailyLimit)),
		MonthlyLimit:     fv(types.AmountToField(s.MonthlyLimit)),
		YearlyLimit:      fv(types.AmountToField(s.YearlyLimit)),
		RepHash:          fv(s.RepHash),
	}
}
