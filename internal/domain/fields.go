package domain

import (
	"encoding/json"
	"fmt"

	"stagegate/internal/stage"
)

// Signoff is the state of a single approval field on a stage record.
type Signoff string

const (
	SignoffPending  Signoff = "pending"
	SignoffApproved Signoff = "approved"
	SignoffRejected Signoff = "rejected"
)

func (s Signoff) valid() bool {
	switch s {
	case SignoffPending, SignoffApproved, SignoffRejected, "":
		return true
	}
	return false
}

// StageFields holds the typed form data for one stage record. Ready reports
// whether the record has every required sign-off for the next action; the
// engine does not consult it on advance, UI-level code does.
type StageFields interface {
	Ready() bool
	Validate() error
}

type IdeationFields struct {
	Summary           string  `json:"summary,omitempty"`
	BusinessNeed      string  `json:"business_need,omitempty"`
	RequestedDeadline *string `json:"requested_deadline,omitempty"`
	SubmitterSignoff  Signoff `json:"submitter_signoff,omitempty"`
}

func (f IdeationFields) Ready() bool {
	return f.Summary != "" && f.SubmitterSignoff == SignoffApproved
}

func (f IdeationFields) Validate() error {
	return validateSignoffs(map[string]Signoff{"submitter_signoff": f.SubmitterSignoff})
}

type FeasibilityFields struct {
	Assessment string  `json:"assessment,omitempty"`
	ApproverID *string `json:"approver_id,omitempty"`
	Decision   Signoff `json:"decision,omitempty"`
}

func (f FeasibilityFields) Ready() bool { return f.Decision == SignoffApproved }

func (f FeasibilityFields) Validate() error {
	return validateSignoffs(map[string]Signoff{"decision": f.Decision})
}

type ScopingFields struct {
	ScopeStatement  string  `json:"scope_statement,omitempty"`
	Assumptions     string  `json:"assumptions,omitempty"`
	Submitted       bool    `json:"submitted,omitempty"`
	ReviewerSignoff Signoff `json:"reviewer_signoff,omitempty"`
}

func (f ScopingFields) Ready() bool {
	return f.Submitted && f.ReviewerSignoff == SignoffApproved
}

func (f ScopingFields) Validate() error {
	return validateSignoffs(map[string]Signoff{"reviewer_signoff": f.ReviewerSignoff})
}

type SchedulingFields struct {
	PlannedStart      *string `json:"planned_start,omitempty"`
	PlannedEnd        *string `json:"planned_end,omitempty"`
	Scheduled         bool    `json:"scheduled,omitempty"`
	SubmittedToReview bool    `json:"submitted_to_review,omitempty"`
}

func (f SchedulingFields) Ready() bool { return f.Scheduled }

func (f SchedulingFields) Validate() error { return nil }

type DetailedDesignFields struct {
	DesignSummary string  `json:"design_summary,omitempty"`
	DesignReview  Signoff `json:"design_review,omitempty"`
}

func (f DetailedDesignFields) Ready() bool { return f.DesignReview == SignoffApproved }

func (f DetailedDesignFields) Validate() error {
	return validateSignoffs(map[string]Signoff{"design_review": f.DesignReview})
}

// DevelopmentFields also covers the Build stage; the build reference is the
// artifact handed over to testing.
type DevelopmentFields struct {
	ProgressNotes  string  `json:"progress_notes,omitempty"`
	BuildReference string  `json:"build_reference,omitempty"`
	DevComplete    Signoff `json:"dev_complete,omitempty"`
}

func (f DevelopmentFields) Ready() bool { return f.DevComplete == SignoffApproved }

func (f DevelopmentFields) Validate() error {
	return validateSignoffs(map[string]Signoff{"dev_complete": f.DevComplete})
}

// TestingFields requires five independent approvals before the project can
// move on to deployment.
type TestingFields struct {
	UATRequested       bool    `json:"uat_requested,omitempty"`
	UATSignoff         Signoff `json:"uat_signoff,omitempty"`
	ServiceSignoff     Signoff `json:"service_signoff,omitempty"`
	SecuritySignoff    Signoff `json:"security_signoff,omitempty"`
	PerformanceSignoff Signoff `json:"performance_signoff,omitempty"`
	RegressionSignoff  Signoff `json:"regression_signoff,omitempty"`
}

func (f TestingFields) Ready() bool {
	for _, s := range []Signoff{f.UATSignoff, f.ServiceSignoff, f.SecuritySignoff, f.PerformanceSignoff, f.RegressionSignoff} {
		if s != SignoffApproved {
			return false
		}
	}
	return true
}

func (f TestingFields) Validate() error {
	return validateSignoffs(map[string]Signoff{
		"uat_signoff":         f.UATSignoff,
		"service_signoff":     f.ServiceSignoff,
		"security_signoff":    f.SecuritySignoff,
		"performance_signoff": f.PerformanceSignoff,
		"regression_signoff":  f.RegressionSignoff,
	})
}

type DeployedFields struct {
	DeployedAt                 *string `json:"deployed_at,omitempty"`
	ServiceAcceptanceRequested bool    `json:"service_acceptance_requested,omitempty"`
	DeploymentApproval         Signoff `json:"deployment_approval,omitempty"`
	ServiceAcceptance          Signoff `json:"service_acceptance,omitempty"`
}

func (f DeployedFields) Ready() bool {
	return f.DeploymentApproval == SignoffApproved && f.ServiceAcceptance == SignoffApproved
}

func (f DeployedFields) Validate() error {
	return validateSignoffs(map[string]Signoff{
		"deployment_approval": f.DeploymentApproval,
		"service_acceptance":  f.ServiceAcceptance,
	})
}

func validateSignoffs(fields map[string]Signoff) error {
	for name, s := range fields {
		if !s.valid() {
			return fmt.Errorf("invalid sign-off value %q for %s", s, name)
		}
	}
	return nil
}

// NewFields returns the zero-value fields for a record type, with every
// sign-off pending.
func NewFields(rt stage.RecordType) (StageFields, error) {
	switch rt {
	case stage.RecordIdeation:
		return IdeationFields{SubmitterSignoff: SignoffPending}, nil
	case stage.RecordFeasibility:
		return FeasibilityFields{Decision: SignoffPending}, nil
	case stage.RecordScoping:
		return ScopingFields{ReviewerSignoff: SignoffPending}, nil
	case stage.RecordScheduling:
		return SchedulingFields{}, nil
	case stage.RecordDetailedDesign:
		return DetailedDesignFields{DesignReview: SignoffPending}, nil
	case stage.RecordDevelopment:
		return DevelopmentFields{DevComplete: SignoffPending}, nil
	case stage.RecordTesting:
		return TestingFields{
			UATSignoff:         SignoffPending,
			ServiceSignoff:     SignoffPending,
			SecuritySignoff:    SignoffPending,
			PerformanceSignoff: SignoffPending,
			RegressionSignoff:  SignoffPending,
		}, nil
	case stage.RecordDeployed:
		return DeployedFields{
			DeploymentApproval: SignoffPending,
			ServiceAcceptance:  SignoffPending,
		}, nil
	}
	return nil, fmt.Errorf("unknown record type %q", rt)
}

// DecodeFields parses a stage record's stored JSON into its typed fields.
func DecodeFields(rec StageRecord) (StageFields, error) {
	raw := []byte(rec.FieldsJSON)
	if len(raw) == 0 {
		return NewFields(rec.RecordType)
	}
	switch rec.RecordType {
	case stage.RecordIdeation:
		var f IdeationFields
		return f, json.Unmarshal(raw, &f)
	case stage.RecordFeasibility:
		var f FeasibilityFields
		return f, json.Unmarshal(raw, &f)
	case stage.RecordScoping:
		var f ScopingFields
		return f, json.Unmarshal(raw, &f)
	case stage.RecordScheduling:
		var f SchedulingFields
		return f, json.Unmarshal(raw, &f)
	case stage.RecordDetailedDesign:
		var f DetailedDesignFields
		return f, json.Unmarshal(raw, &f)
	case stage.RecordDevelopment:
		var f DevelopmentFields
		return f, json.Unmarshal(raw, &f)
	case stage.RecordTesting:
		var f TestingFields
		return f, json.Unmarshal(raw, &f)
	case stage.RecordDeployed:
		var f DeployedFields
		return f, json.Unmarshal(raw, &f)
	}
	return nil, fmt.Errorf("unknown record type %q", rec.RecordType)
}

// EncodeFields serializes typed fields for storage.
func EncodeFields(f StageFields) (string, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("marshal stage fields: %w", err)
	}
	return string(b), nil
}
