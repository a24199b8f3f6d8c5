package models

import "time"

// Urgency classifies how pressing a maintenance request is.
type Urgency string

const (
	UrgencyLow    Urgency = "LOW"
	UrgencyMedium Urgency = "MEDIUM"
	UrgencyHigh   Urgency = "HIGH"
)

// Valid reports whether the urgency is one of the closed set.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return true
	}
	return false
}

// RequestStatus is the lifecycle state of a maintenance request.
type RequestStatus string

const (
	StatusPending    RequestStatus = "PENDING"
	StatusInProgress RequestStatus = "IN_PROGRESS"
	StatusResolved   RequestStatus = "RESOLVED"
	StatusCancelled  RequestStatus = "CANCELLED"
)

// Valid reports whether the status is one of the closed set.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusResolved, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the status has no outgoing transitions.
func (s RequestStatus) Terminal() bool {
	return s == StatusResolved || s == StatusCancelled
}

// statusTransitions is the lifecycle transition table. A same-state set is
// always accepted as a no-op and is not listed here.
var statusTransitions = map[RequestStatus][]RequestStatus{
	StatusPending:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusResolved, StatusCancelled},
	StatusResolved:   {},
	StatusCancelled:  {},
}

// CanTransition reports whether the lifecycle permits moving from one status
// to another. Setting the current status again is idempotent and allowed.
func CanTransition(from, to RequestStatus) bool {
	if from == to {
		return true
	}
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Request represents one maintenance issue reported on campus.
type Request struct {
	ID          int64         `db:"id" json:"id"`
	Title       string        `db:"title" json:"title"`
	Description string        `db:"description" json:"description"`
	Location    string        `db:"location" json:"location"`
	Urgency     Urgency       `db:"urgency" json:"urgency"`
	Status      RequestStatus `db:"status" json:"status"`
	UserID      int64         `db:"user_id" json:"user_id"`
	AssignedTo  *int64        `db:"assigned_to" json:"assigned_to,omitempty"`
	CategoryID  *int64        `db:"category_id" json:"category_id,omitempty"`
	PhotoURL    *string       `db:"photo_url" json:"photo_url,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
}

// RequestDetail joins submitter, assignee and category names onto a request.
type RequestDetail struct {
	Request
	SubmitterName *string `db:"submitter_name" json:"submitter_name,omitempty"`
	AssigneeName  *string `db:"assignee_name" json:"assignee_name,omitempty"`
	CategoryName  *string `db:"category_name" json:"category_name,omitempty"`
}

// RequestFilter encapsulates the list-query contract: AND-combined filters,
// whitelisted sorting and 1-based pagination. MaxPageSize raises the page
// size ceiling above the API default of 100; only trusted internal callers
// such as exports set it.
type RequestFilter struct {
	Status      *RequestStatus
	Urgency     *Urgency
	CategoryID  *int64
	UserID      *int64
	AssignedTo  *int64
	Search      string
	Page        int
	PageSize    int
	MaxPageSize int
	SortBy      string
	SortOrder   string
}
