package assignment

import (
	"context"
	"errors"
	"time"

	"siteops.kr/internal/access"
)

var (
	// ErrOverlap is returned when a new assignment interval would overlap an
	// existing one for the same (user, site).
	ErrOverlap = errors.New("assignment: interval overlaps an existing assignment")
	// ErrNotAssigned is returned when an operation expects a current
	// assignment and none exists.
	ErrNotAssigned = errors.New("assignment: user is not assigned to site")
	// ErrSiteNotFound is returned when the target site does not exist.
	ErrSiteNotFound = errors.New("assignment: site not found")
	// ErrInvalidInput flags malformed arguments.
	ErrInvalidInput = errors.New("assignment: invalid input")
)

// Site is a construction site owned by an organization.
type Site struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Status         string    `json:"status"` // active | inactive
	CreatedAt      time.Time `json:"created_at"`
}

const (
	SiteStatusActive   = "active"
	SiteStatusInactive = "inactive"
)

// Assignment is a time-bounded grant of a local role to a user on a site.
// The interval is [StartDate, EndDate); a nil EndDate means current.
// Assignments are never hard-deleted: removal closes the interval so the
// history stays queryable.
type Assignment struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	SiteID    string           `json:"site_id"`
	Role      access.LocalRole `json:"role"`
	StartDate time.Time        `json:"start_date"`
	EndDate   *time.Time       `json:"end_date,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	CreatedBy string           `json:"created_by"`
}

// ActiveAt reports whether the assignment covers the given instant.
// EndDate is exclusive.
func (a Assignment) ActiveAt(at time.Time) bool {
	if at.Before(a.StartDate) {
		return false
	}
	return a.EndDate == nil || at.Before(*a.EndDate)
}

// Current reports whether the assignment is open-ended.
func (a Assignment) Current() bool { return a.EndDate == nil }

// SiteRole pairs a site with the local role held there.
type SiteRole struct {
	SiteID string           `json:"site_id"`
	Role   access.LocalRole `json:"role"`
}

// Store is the persistence contract for assignments and the site directory.
// Insert must enforce the non-overlap invariant atomically.
type Store interface {
	Insert(ctx context.Context, a *Assignment) error
	// Close sets the end date on the current assignment for (user, site).
	// Returns ErrNotAssigned when no interval covers endDate and none was
	// already closed exactly at endDate (retry tolerance).
	Close(ctx context.Context, userID, siteID string, endDate time.Time) (Assignment, error)
	// ActiveAt returns the assignment covering asOf, if any.
	ActiveAt(ctx context.Context, userID, siteID string, asOf time.Time) (Assignment, bool, error)
	// ListActive returns all assignments for the user active at asOf.
	ListActive(ctx context.Context, userID string, asOf time.Time) ([]Assignment, error)
	// History returns all assignments for the user ordered by start date
	// descending.
	History(ctx context.Context, userID string) ([]Assignment, error)
	// GetSite looks up a site by id.
	GetSite(ctx context.Context, siteID string) (Site, error)
}
