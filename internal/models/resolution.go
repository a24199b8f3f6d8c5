package models

import "time"

// Resolution records terminal-state evidence for a resolved request. At most
// one resolution exists per request, enforced by a unique index on request_id.
type Resolution struct {
	ID                 int64     `db:"id" json:"id"`
	RequestID          int64     `db:"request_id" json:"request_id"`
	AdminNotes         *string   `db:"admin_notes" json:"admin_notes,omitempty"`
	TechnicianPhotoURL *string   `db:"photo_url" json:"technician_photo_url,omitempty"`
	ResolvedAt         time.Time `db:"resolved_at" json:"resolved_at"`
}
