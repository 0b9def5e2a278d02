// Package event defines the lifecycle events fired by the transition engine
// and consumed by the notification router. The Event interface is sealed:
// the set of event types is closed and the router matches over it
// exhaustively.
package event

import "stagegate/internal/stage"

// Type tags an event for config lookup and rule matching.
type Type string

const (
	TypeProjectCreated             Type = "project.created"
	TypeProjectUpdated             Type = "project.updated"
	TypeStageChanged               Type = "project.stage_changed"
	TypeFeasibilityApproved        Type = "feasibility.approved"
	TypeFeasibilityRejected        Type = "feasibility.rejected"
	TypeScopingSubmitted           Type = "scoping.submitted"
	TypeSchedulingScheduled        Type = "scheduling.scheduled"
	TypeSchedulingSubmittedReview  Type = "scheduling.submitted_to_review"
	TypeUATRequested               Type = "uat.requested"
	TypeUATAccepted                Type = "uat.accepted"
	TypeUATRejected                Type = "uat.rejected"
	TypeServiceAcceptanceRequested Type = "service_acceptance.requested"
	TypeDeploymentApproved         Type = "deployment.approved"
	TypeDeploymentServiceAccepted  Type = "deployment.service_accepted"
)

// Event is the contract between the transition engine and the notification
// router. Each event carries the project it concerns; stage-change events
// additionally carry the stage the project moved to.
type Event interface {
	Type() Type
	ProjectID() string
	sealed()
}

// Staged is implemented by events that carry a stage value. The resolver
// consults stage_roles only for these.
type Staged interface {
	Event
	Stage() stage.Stage
}

type base struct {
	Project string
}

func (b base) ProjectID() string { return b.Project }
func (base) sealed()             {}

// ProjectCreated fires after a project and all of its stage records exist.
type ProjectCreated struct{ base }

func NewProjectCreated(projectID string) ProjectCreated {
	return ProjectCreated{base{Project: projectID}}
}

func (ProjectCreated) Type() Type { return TypeProjectCreated }

// ProjectUpdated fires on general project mutations outside the stage FSM.
type ProjectUpdated struct{ base }

func NewProjectUpdated(projectID string) ProjectUpdated {
	return ProjectUpdated{base{Project: projectID}}
}

func (ProjectUpdated) Type() Type { return TypeProjectUpdated }

// StageChanged fires when a project's status moves to a new stage,
// including Completed and Cancelled.
type StageChanged struct {
	base
	To stage.Stage
}

func NewStageChanged(projectID string, to stage.Stage) StageChanged {
	return StageChanged{base: base{Project: projectID}, To: to}
}

func (StageChanged) Type() Type           { return TypeStageChanged }
func (e StageChanged) Stage() stage.Stage { return e.To }

// Sign-off events fire when a stage record's sign-off fields change state.

type FeasibilityApproved struct{ base }

func NewFeasibilityApproved(projectID string) FeasibilityApproved {
	return FeasibilityApproved{base{Project: projectID}}
}

func (FeasibilityApproved) Type() Type { return TypeFeasibilityApproved }

type FeasibilityRejected struct{ base }

func NewFeasibilityRejected(projectID string) FeasibilityRejected {
	return FeasibilityRejected{base{Project: projectID}}
}

func (FeasibilityRejected) Type() Type { return TypeFeasibilityRejected }

type ScopingSubmitted struct{ base }

func NewScopingSubmitted(projectID string) ScopingSubmitted {
	return ScopingSubmitted{base{Project: projectID}}
}

func (ScopingSubmitted) Type() Type { return TypeScopingSubmitted }

type SchedulingScheduled struct{ base }

func NewSchedulingScheduled(projectID string) SchedulingScheduled {
	return SchedulingScheduled{base{Project: projectID}}
}

func (SchedulingScheduled) Type() Type { return TypeSchedulingScheduled }

type SchedulingSubmittedToReview struct{ base }

func NewSchedulingSubmittedToReview(projectID string) SchedulingSubmittedToReview {
	return SchedulingSubmittedToReview{base{Project: projectID}}
}

func (SchedulingSubmittedToReview) Type() Type { return TypeSchedulingSubmittedReview }

type UATRequested struct{ base }

func NewUATRequested(projectID string) UATRequested {
	return UATRequested{base{Project: projectID}}
}

func (UATRequested) Type() Type { return TypeUATRequested }

type UATAccepted struct{ base }

func NewUATAccepted(projectID string) UATAccepted {
	return UATAccepted{base{Project: projectID}}
}

func (UATAccepted) Type() Type { return TypeUATAccepted }

type UATRejected struct{ base }

func NewUATRejected(projectID string) UATRejected {
	return UATRejected{base{Project: projectID}}
}

func (UATRejected) Type() Type { return TypeUATRejected }

type ServiceAcceptanceRequested struct{ base }

func NewServiceAcceptanceRequested(projectID string) ServiceAcceptanceRequested {
	return ServiceAcceptanceRequested{base{Project: projectID}}
}

func (ServiceAcceptanceRequested) Type() Type { return TypeServiceAcceptanceRequested }

type DeploymentApproved struct{ base }

func NewDeploymentApproved(projectID string) DeploymentApproved {
	return DeploymentApproved{base{Project: projectID}}
}

func (DeploymentApproved) Type() Type { return TypeDeploymentApproved }

type DeploymentServiceAccepted struct{ base }

func NewDeploymentServiceAccepted(projectID string) DeploymentServiceAccepted {
	return DeploymentServiceAccepted{base{Project: projectID}}
}

func (DeploymentServiceAccepted) Type() Type { return TypeDeploymentServiceAccepted }
