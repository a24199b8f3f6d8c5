package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin            = "LOGIN"
	AuditActionRegister         = "REGISTER"
	AuditActionUserCreate       = "USER_CREATE"
	AuditActionRequestCreate    = "REQUEST_CREATE"
	AuditActionRequestUpdate    = "REQUEST_UPDATE"
	AuditActionRequestDelete    = "REQUEST_DELETE"
	AuditActionRequestAssign    = "REQUEST_ASSIGN"
	AuditActionStatusChange     = "STATUS_CHANGE"
	AuditActionResolutionCreate = "RESOLUTION_CREATE"
	AuditActionCategoryCreate   = "CATEGORY_CREATE"
	AuditActionCategoryDelete   = "CATEGORY_DELETE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *int64    `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
