package flightplan

import (
	"fmt"
	"time"

	"github.com/signalsfoundry/flightplan-orchestrator/model"
)

const (
	msgApproved           = "Flight plan approved successfully"
	msgRejected           = "Flight plan rejected successfully"
	msgOverpassCreated    = "Overpass created and assigned successfully."
	msgOverpassReused     = "Existing overpass assigned successfully."
	msgVersionCreated     = "New flight plan version created successfully"
	msgStartInPast        = "Cannot assign an overpass that starts in the past."
	msgEndInPast          = "Cannot assign an overpass that ends in the past."
	msgStartAfterEnd      = "Start time must be before end time."
	msgNoOverpass         = "No matching overpass found in the specified time window."
	msgNoGroundStation    = "A ground station is required to assign an overpass."
	msgOverpassHeldFormat = "The selected overpass is already assigned to another flight plan: %s"
)

// approvalRejection explains why a plan in status st cannot be approved or
// rejected.
func approvalRejection(st model.FlightPlanStatus) string {
	switch st {
	case model.StatusRejected:
		return "Cannot modify a plan that has already been rejected."
	case model.StatusApproved:
		return "Cannot modify a plan that has already been approved."
	case model.StatusAssignedToOverpass:
		return "Cannot modify a plan that has been assigned to an overpass."
	case model.StatusTransmitted:
		return "Cannot modify a plan that has been transmitted."
	case model.StatusFailed:
		return "Cannot modify a plan that has failed."
	case model.StatusSuperseded:
		return "Cannot modify a superseded plan."
	}
	return fmt.Sprintf("Unknown flight plan status: %s", st)
}

// assignRejection explains why a plan in status st cannot take an overpass.
func assignRejection(st model.FlightPlanStatus) string {
	switch st {
	case model.StatusDraft:
		return "Cannot associate overpass with a draft flight plan. Flight plan must be Approved first."
	case model.StatusRejected:
		return "Cannot associate overpass with a rejected flight plan."
	case model.StatusAssignedToOverpass:
		return "Flight plan is already assigned to an overpass."
	case model.StatusTransmitted:
		return "Cannot modify a transmitted flight plan."
	case model.StatusFailed:
		return "Cannot associate overpass with a failed flight plan."
	case model.StatusSuperseded:
		return "Cannot associate overpass with a superseded flight plan."
	}
	return fmt.Sprintf("Unknown flight plan status: %s", st)
}

func versionRejection(st model.FlightPlanStatus) string {
	return fmt.Sprintf("Cannot create a new version of a plan with status %s.", st)
}

func conflictMessage(other *model.FlightPlan) string {
	at := ""
	if other.ScheduledAt != nil {
		at = " at " + other.ScheduledAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	return fmt.Sprintf("Conflict: flight plan '%s' (ID: %s) is already scheduled for this satellite%s.", other.Name, other.ID, at)
}

func noCandidateMessage(tolerance time.Duration) string {
	return fmt.Sprintf("No overpass found within %d-minute tolerance of the specified time window.", int(tolerance.Minutes()))
}
