// Package authz implements the access-control policy for maintenance
// requests. Every endpoint funnels its decision through Authorize so the
// ownership and role rules live in exactly one place.
package authz

import (
	"github.com/Enochteo/web103-finalproject/internal/models"
	appErrors "github.com/Enochteo/web103-finalproject/pkg/errors"
)

// Action enumerates every operation the policy can decide on.
type Action string

const (
	ActionCreateRequest        Action = "CREATE_REQUEST"
	ActionReadRequest          Action = "READ_REQUEST"
	ActionListRequests         Action = "LIST_REQUESTS"
	ActionUpdateRequestContent Action = "UPDATE_REQUEST_CONTENT"
	ActionDeleteRequest        Action = "DELETE_REQUEST"
	ActionAssignRequest        Action = "ASSIGN_REQUEST"
	ActionUpdateStatus         Action = "UPDATE_STATUS"
	ActionCreateResolution     Action = "CREATE_RESOLUTION"
	ActionManageCategory       Action = "MANAGE_CATEGORY"
	ActionManageUsers          Action = "MANAGE_USERS"
	ActionExportRequests       Action = "EXPORT_REQUESTS"
)

// Denial reason codes carried on forbidden errors.
const (
	ReasonUnauthenticated = "unauthenticated"
	ReasonNotOwner        = "not_owner"
	ReasonNotAssignee     = "not_assignee"
	ReasonRoleForbidden   = "role_forbidden"
)

// Authorize decides whether the principal may perform the action, optionally
// against a target request. It is a pure function: no lookups, no side
// effects. A nil principal is anonymous.
func Authorize(p *models.Principal, action Action, target *models.Request) error {
	// Reads are public in this system.
	if action == ActionReadRequest || action == ActionListRequests {
		return nil
	}

	if p == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, ReasonUnauthenticated)
	}

	switch action {
	case ActionCreateRequest:
		return nil

	case ActionUpdateRequestContent, ActionDeleteRequest:
		if p.Role == models.RoleAdmin {
			return nil
		}
		if target != nil && target.UserID == p.ID {
			return nil
		}
		return deny(ReasonNotOwner)

	case ActionUpdateStatus:
		if p.Role == models.RoleAdmin {
			return nil
		}
		if p.Role == models.RoleTechnician {
			if target != nil && target.AssignedTo != nil && *target.AssignedTo == p.ID {
				return nil
			}
			return deny(ReasonNotAssignee)
		}
		return deny(ReasonRoleForbidden)

	case ActionAssignRequest, ActionManageCategory, ActionManageUsers, ActionExportRequests:
		if p.Role == models.RoleAdmin {
			return nil
		}
		return deny(ReasonRoleForbidden)

	case ActionCreateResolution:
		if p.Role != models.RoleTechnician {
			return deny(ReasonRoleForbidden)
		}
		if target != nil && target.AssignedTo != nil && *target.AssignedTo == p.ID {
			return nil
		}
		return deny(ReasonNotAssignee)
	}

	return deny(ReasonRoleForbidden)
}

func deny(reason string) error {
	return appErrors.Clone(appErrors.ErrForbidden, reason)
}
