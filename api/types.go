package api

import (
	"time"

	"github.com/ruteri/appinstance-provisioning-backend/interfaces"
)

// AccountHeader carries the authenticated account id. It is set by the
// gateway in front of the user-facing routes.
const AccountHeader = "X-Account-Id"

// BuyRequest is the optional body of a buy call.
type BuyRequest struct {
	OrganizationID string `json:"organization_id,omitempty"`
	Name           string `json:"name,omitempty" validate:"omitempty,max=256"`
}

// StatusChangeRequest asks to stop or restart a running instance.
type StatusChangeRequest struct {
	Status interfaces.InstanceStatus `json:"status" validate:"required,oneof=RUNNING STOPPED"`
}

// InstanceResponse is the public view of an AppInstance. Destruction
// credentials are never exposed.
type InstanceResponse struct {
	ID                      string                     `json:"id"`
	ApplicationID           string                     `json:"application_id"`
	OrganizationID          string                     `json:"organization_id,omitempty"`
	InstantiatorID          string                     `json:"instantiator_id"`
	Status                  interfaces.InstanceStatus  `json:"status"`
	Name                    interfaces.LocalizedString `json:"name"`
	NeededScopes            interfaces.NeededScopes    `json:"needed_scopes"`
	StatusChanged           time.Time                  `json:"status_changed"`
	StatusChangeRequesterID string                     `json:"status_change_requester_id,omitempty"`
	Modified                time.Time                  `json:"modified"`
}

func NewInstanceResponse(instance *interfaces.AppInstance) InstanceResponse {
	return InstanceResponse{
		ID:                      instance.ID,
		ApplicationID:           instance.ApplicationID,
		OrganizationID:          instance.ProviderID,
		InstantiatorID:          instance.InstantiatorID,
		Status:                  instance.Status,
		Name:                    instance.Name,
		NeededScopes:            instance.NeededScopes,
		StatusChanged:           instance.StatusChanged,
		StatusChangeRequesterID: instance.StatusChangeRequesterID,
		Modified:                instance.Modified(),
	}
}

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Error string `json:"error"`
}
