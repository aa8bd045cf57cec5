package outcome

import (
	"bytes"
	"encoding/json"
	"time"
)

// OutcomeType classifies what the customer achieved.
type OutcomeType int

const (
	OutcomeTypeCustomerSatisfaction  OutcomeType = 1
	OutcomeTypeCareerManagement      OutcomeType = 2
	OutcomeTypeSustainableEmployment OutcomeType = 3
	OutcomeTypeAccreditedLearning    OutcomeType = 4
	OutcomeTypeCareerProgression     OutcomeType = 5
)

// Valid reports whether t is a defined member.
func (t OutcomeType) Valid() bool {
	switch t {
	case OutcomeTypeCustomerSatisfaction,
		OutcomeTypeCareerManagement,
		OutcomeTypeSustainableEmployment,
		OutcomeTypeAccreditedLearning,
		OutcomeTypeCareerProgression:
		return true
	default:
		return false
	}
}

func (t OutcomeType) String() string {
	switch t {
	case OutcomeTypeCustomerSatisfaction:
		return "CustomerSatisfaction"
	case OutcomeTypeCareerManagement:
		return "CareerManagement"
	case OutcomeTypeSustainableEmployment:
		return "SustainableEmployment"
	case OutcomeTypeAccreditedLearning:
		return "AccreditedLearning"
	case OutcomeTypeCareerProgression:
		return "CareerProgression"
	default:
		return "Unknown"
	}
}

// ClaimedPriorityGroup is the customer's priority status when the outcome was claimed.
type ClaimedPriorityGroup int

const (
	PriorityGroupYoungNEET               ClaimedPriorityGroup = 1
	PriorityGroupLowSkilledAdults        ClaimedPriorityGroup = 2
	PriorityGroupLongTermUnemployed      ClaimedPriorityGroup = 3
	PriorityGroupSingleParents           ClaimedPriorityGroup = 4
	PriorityGroupSpecialEducationalNeeds ClaimedPriorityGroup = 5
	PriorityGroupOver50AtRisk            ClaimedPriorityGroup = 6
	PriorityGroupNotAPriorityCustomer    ClaimedPriorityGroup = 99
)

// Valid reports whether g is a defined member.
func (g ClaimedPriorityGroup) Valid() bool {
	switch g {
	case PriorityGroupYoungNEET,
		PriorityGroupLowSkilledAdults,
		PriorityGroupLongTermUnemployed,
		PriorityGroupSingleParents,
		PriorityGroupSpecialEducationalNeeds,
		PriorityGroupOver50AtRisk,
		PriorityGroupNotAPriorityCustomer:
		return true
	default:
		return false
	}
}

// Outcome is the full stored resource. JSON member names are the wire names.
type Outcome struct {
	OutcomeID                string                `json:"OutcomeId,omitempty"`
	CustomerID               string                `json:"CustomerId" validate:"required,uuid"`
	ActionPlanID             string                `json:"ActionPlanId" validate:"required,uuid"`
	SessionID                string                `json:"SessionId,omitempty" validate:"omitempty,uuid"`
	SubcontractorID          string                `json:"SubcontractorId,omitempty" validate:"omitempty,max=50"`
	OutcomeType              *OutcomeType          `json:"OutcomeType,omitempty"`
	OutcomeClaimedDate       *time.Time            `json:"OutcomeClaimedDate,omitempty" validate:"required"`
	OutcomeEffectiveDate     *time.Time            `json:"OutcomeEffectiveDate,omitempty" validate:"required"`
	ClaimedPriorityGroup     *ClaimedPriorityGroup `json:"ClaimedPriorityGroup,omitempty"`
	TouchpointID             string                `json:"TouchpointId" validate:"required,max=10"`
	LastModifiedDate         *time.Time            `json:"LastModifiedDate,omitempty"`
	LastModifiedTouchpointID string                `json:"LastModifiedTouchpointId,omitempty" validate:"omitempty,len=10,numeric"`
}

func (o *Outcome) ClaimedDate() *time.Time { return o.OutcomeClaimedDate }
func (o *Outcome) EffectiveDate() *time.Time { return o.OutcomeEffectiveDate }
func (o *Outcome) Type() *OutcomeType { return o.OutcomeType }
func (o *Outcome) PriorityGroup() *ClaimedPriorityGroup { return o.ClaimedPriorityGroup }
func (o *Outcome) ModifiedDate() *time.Time { return o.LastModifiedDate }

// OutcomePatch is a sparse update. Nil pointers and empty strings leave the
// stored value alone. An explicit JSON null on OutcomeClaimedDate or
// OutcomeEffectiveDate asks for the stored value to be nulled.
type OutcomePatch struct {
	SessionID                string                `json:"SessionId,omitempty" validate:"omitempty,uuid"`
	SubcontractorID          string                `json:"SubcontractorId,omitempty" validate:"omitempty,max=50"`
	OutcomeType              *OutcomeType          `json:"OutcomeType,omitempty"`
	OutcomeClaimedDate       *time.Time            `json:"OutcomeClaimedDate,omitempty"`
	OutcomeEffectiveDate     *time.Time            `json:"OutcomeEffectiveDate,omitempty"`
	ClaimedPriorityGroup     *ClaimedPriorityGroup `json:"ClaimedPriorityGroup,omitempty"`
	TouchpointID             string                `json:"TouchpointId,omitempty" validate:"omitempty,max=10"`
	LastModifiedDate         *time.Time            `json:"LastModifiedDate,omitempty"`
	LastModifiedTouchpointID string                `json:"LastModifiedTouchpointId,omitempty" validate:"omitempty,len=10,numeric"`

	clearClaimedDate   bool
	clearEffectiveDate bool
}

func (p *OutcomePatch) ClaimedDate() *time.Time { return p.OutcomeClaimedDate }
func (p *OutcomePatch) EffectiveDate() *time.Time { return p.OutcomeEffectiveDate }
func (p *OutcomePatch) Type() *OutcomeType { return p.OutcomeType }
func (p *OutcomePatch) PriorityGroup() *ClaimedPriorityGroup { return p.ClaimedPriorityGroup }
func (p *OutcomePatch) ModifiedDate() *time.Time { return p.LastModifiedDate }

// ClearClaimedDate marks OutcomeClaimedDate to be written as null.
func (p *OutcomePatch) ClearClaimedDate() {
	p.OutcomeClaimedDate = nil
	p.clearClaimedDate = true
}

// ClearEffectiveDate marks OutcomeEffectiveDate to be written as null.
func (p *OutcomePatch) ClearEffectiveDate() {
	p.OutcomeEffectiveDate = nil
	p.clearEffectiveDate = true
}

// ClearsClaimedDate reports whether the patch nulls OutcomeClaimedDate.
func (p *OutcomePatch) ClearsClaimedDate() bool { return p.clearClaimedDate }

// ClearsEffectiveDate reports whether the patch nulls OutcomeEffectiveDate.
func (p *OutcomePatch) ClearsEffectiveDate() bool { return p.clearEffectiveDate }

// Empty reports whether the patch supplies no member at all.
func (p *OutcomePatch) Empty() bool {
	return p.SessionID == "" && p.SubcontractorID == "" && p.OutcomeType == nil &&
		p.OutcomeClaimedDate == nil && p.OutcomeEffectiveDate == nil && p.ClaimedPriorityGroup == nil &&
		p.TouchpointID == "" && p.LastModifiedDate == nil && p.LastModifiedTouchpointID == "" &&
		!p.clearClaimedDate && !p.clearEffectiveDate
}

// UnmarshalJSON records explicit nulls on the two retractable dates.
func (p *OutcomePatch) UnmarshalJSON(data []byte) error {
	type plain OutcomePatch
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return err
	}
	*p = OutcomePatch(decoded)
	if isNull(members, "OutcomeClaimedDate") {
		p.ClearClaimedDate()
	}
	if isNull(members, "OutcomeEffectiveDate") {
		p.ClearEffectiveDate()
	}
	return nil
}

func isNull(members map[string]json.RawMessage, key string) bool {
	raw, ok := members[key]
	return ok && bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
