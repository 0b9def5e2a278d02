package engine

import (
	"stagegate/internal/domain"
	"stagegate/internal/event"
	"stagegate/internal/stage"
)

// signoffEvents diffs the old and new fields of a stage record and
// returns the events for every sign-off or request flag that changed
// state. A field that was already in its new state fires nothing, so
// re-saving a record is quiet.
func signoffEvents(projectID string, rt stage.RecordType, old, updated domain.StageFields) []event.Event {
	var out []event.Event
	switch rt {
	case stage.RecordFeasibility:
		o, _ := old.(domain.FeasibilityFields)
		n, _ := updated.(domain.FeasibilityFields)
		if o.Decision != n.Decision {
			switch n.Decision {
			case domain.SignoffApproved:
				out = append(out, event.NewFeasibilityApproved(projectID))
			case domain.SignoffRejected:
				out = append(out, event.NewFeasibilityRejected(projectID))
			}
		}
	case stage.RecordScoping:
		o, _ := old.(domain.ScopingFields)
		n, _ := updated.(domain.ScopingFields)
		if !o.Submitted && n.Submitted {
			out = append(out, event.NewScopingSubmitted(projectID))
		}
	case stage.RecordScheduling:
		o, _ := old.(domain.SchedulingFields)
		n, _ := updated.(domain.SchedulingFields)
		if !o.Scheduled && n.Scheduled {
			out = append(out, event.NewSchedulingScheduled(projectID))
		}
		if !o.SubmittedToReview && n.SubmittedToReview {
			out = append(out, event.NewSchedulingSubmittedToReview(projectID))
		}
	case stage.RecordTesting:
		o, _ := old.(domain.TestingFields)
		n, _ := updated.(domain.TestingFields)
		if !o.UATRequested && n.UATRequested {
			out = append(out, event.NewUATRequested(projectID))
		}
		if o.UATSignoff != n.UATSignoff {
			switch n.UATSignoff {
			case domain.SignoffApproved:
				out = append(out, event.NewUATAccepted(projectID))
			case domain.SignoffRejected:
				out = append(out, event.NewUATRejected(projectID))
			}
		}
	case stage.RecordDeployed:
		o, _ := old.(domain.DeployedFields)
		n, _ := updated.(domain.DeployedFields)
		if !o.ServiceAcceptanceRequested && n.ServiceAcceptanceRequested {
			out = append(out, event.NewServiceAcceptanceRequested(projectID))
		}
		if o.DeploymentApproval != n.DeploymentApproval && n.DeploymentApproval == domain.SignoffApproved {
			out = append(out, event.NewDeploymentApproved(projectID))
		}
		if o.ServiceAcceptance != n.ServiceAcceptance && n.ServiceAcceptance == domain.SignoffApproved {
			out = append(out, event.NewDeploymentServiceAccepted(projectID))
		}
	}
	return out
}
