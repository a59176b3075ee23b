package domain

import (
	"github.com/holiman/uint256"

	"github.com/fluxe/core/internal/crypto"
	"github.com/fluxe/core/pkg/types"
)

// ComplianceState is the per-user state committed into a zk-object.
type ComplianceState struct {
	// Level: 0=unverified, 1=basic KYC, 2=enhanced, 3=institutional.
	Level uint8

	// RiskScore only ever increases across updates.
	RiskScore uint32

	// Frozen forces all limits to zero.
	Frozen bool

	// LastReviewTime is monotone across updates.
	LastReviewTime types.Time

	// JurisdictionBits is the allowed-region bitfield; all-zero is invalid.
	JurisdictionBits [32]byte

	DailyLimit   *types.Amount
	MonthlyLimit *types.Amount
	YearlyLimit  *types.Amount

	// RepHash commits to the reputation vector.
	RepHash types.Field
}

// NewComplianceState returns the zeroed, unverified state.
func NewComplianceState() *ComplianceState {
	return &ComplianceState{
		DailyLimit:   uint256.NewInt(0),
		MonthlyLimit: uint256.NewInt(0),
		YearlyLimit:  uint256.NewInt(0),
	}
}

// NewVerifiedState returns a state with level-based default limits and all
// jurisdictions allowed.
func NewVerifiedState(level uint8) *ComplianceState {
	var daily, monthly, yearly uint64
	switch level {
	case 1:
		daily, monthly, yearly = 10_000, 50_000, 200_000
	case 2:
		daily, monthly, yearly = 100_000, 500_000, 2_000_000
	case 3:
		daily, monthly, yearly = 1<<63, 1<<63, 1<<63
	}

	s := &ComplianceState{
		Level:        level,
		DailyLimit:   uint256.NewInt(daily),
		MonthlyLimit: uint256.NewInt(monthly),
		YearlyLimit:  uint256.NewInt(yearly),
	}
	for i := range s.JurisdictionBits {
		s.JurisdictionBits[i] = 0xff
	}
	return s
}

// Hash commits to the full state.
func (s *ComplianceState) Hash() types.Field {
	frozen := uint64(0)
	if s.Frozen {
		frozen = 1
	}
	return crypto.Hash(
		types.FieldFromUint64(uint64(s.Level)),
		types.FieldFromUint64(uint64(s.RiskScore)),
		types.FieldFromUint64(frozen),
		types.FieldFromUint64(s.LastReviewTime),
		types.FieldFromBytes(s.JurisdictionBits[:]),
		types.AmountToField(s.DailyLimit),
		types.AmountToField(s.MonthlyLimit),
		types.AmountToField(s.YearlyLimit),
		s.RepHash,
	)
}

// Freeze zeroes all limits and sets the frozen flag.
func (s *ComplianceState) Freeze() {
	s.Frozen = true
	s.DailyLimit = uint256.NewInt(0)
	s.MonthlyLimit = uint256.NewInt(0)
	s.YearlyLimit = uint256.NewInt(0)
}

// Unfreeze restores spendability with new limits.
func (s *ComplianceState) Unfreeze(daily, monthly, yearly *types.Amount) {
	s.Frozen = false
	s.DailyLimit = daily
	s.MonthlyLimit = monthly
	s.YearlyLimit = yearly
}

// Clone deep-copies the state.
func (s *ComplianceState) Clone() *ComplianceState {
	c := *s
	c.DailyLimit = new(uint256.Int).Set(s.DailyLimit)
	c.MonthlyLimit = new(uint256.Int).Set(s.MonthlyLimit)
	c.YearlyLimit = new(uint256.Int).Set(s.YearlyLimit)
	return &c
}

// PoolRule is a policy entry for a pool, committed into the pool-rules
// tree. Allow bitmaps cover pools 0..63; bit i set means pool i is allowed.
type PoolRule struct {
	PoolId types.PoolId

	InboundAllow  uint64
	OutboundAllow uint64

	MaxPerTx  *types.Amount
	MaxPerDay *types.Amount

	Flags uint32
}

// NewDefaultPoolRule allows everything with unbounded caps.
func NewDefaultPoolRule(pool types.PoolId) *PoolRule {
	max := new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 128), 1)
	return &PoolRule{
		PoolId:        pool,
		InboundAllow:  ^uint64(0),
		OutboundAllow: ^uint64(0),
		MaxPerTx:      max,
		MaxPerDay:     max,
	}
}

// Hash computes the rule's tree leaf.
func (r *PoolRule) Hash() types.Field {
	return crypto.Hash(
		crypto.DomPool,
		types.FieldFromUint64(uint64(r.PoolId)),
		types.FieldFromUint64(r.InboundAllow),
		types.FieldFromUint64(r.OutboundAllow),
		types.AmountToField(r.MaxPerTx),
		types.AmountToField(r.MaxPerDay),
		types.FieldFromUint64(uint64(r.Flags)),
	)
}

// AllowsOutbound reports whether transfers from this rule's pool to dst are
// permitted.
func (r *PoolRule) AllowsOutbound(dst types.PoolId) bool {
	if dst >= 64 {
		return false
	}
	return r.OutboundAllow&(1<<dst) != 0
}

// AllowsInbound reports whether transfers into this rule's pool from src
// are permitted.
func (r *PoolRule) AllowsInbound(src types.PoolId) bool {
	if src >= 64 {
		return false
	}
	return r.InboundAllow&(1<<src) != 0
}
