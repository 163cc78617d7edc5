// Package report implements the daily-report lifecycle: a guarded state
// machine over draft, submitted, approved and rejected reports. Every
// transition is authorized through the access resolver and announced as a
// domain event; terminal reports are retained for audit, never deleted.
package report

import (
	"context"
	"errors"
	"time"
)

// Status is the explicit lifecycle state of a daily report. Timestamps are
// audit metadata only, never the transition's source of truth.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

var (
	// ErrNotFound is returned for unknown report ids.
	ErrNotFound = errors.New("report: not found")
	// ErrWrongState rejects a transition from an incompatible status.
	ErrWrongState = errors.New("report: wrong state for transition")
	// ErrImmutableReport rejects edits to anything but a draft.
	ErrImmutableReport = errors.New("report: only drafts are editable")
	// ErrIncompleteReport rejects submission of a report missing required
	// fields.
	ErrIncompleteReport = errors.New("report: required fields are missing")
	// ErrConcurrentModification is returned when a conditional write lost
	// the race against another writer. Retry with freshly read state.
	ErrConcurrentModification = errors.New("report: concurrent modification")
	// ErrInvalidInput flags malformed arguments.
	ErrInvalidInput = errors.New("report: invalid input")
)

// DailyReport is one site's work report for one work date.
type DailyReport struct {
	ID              string     `json:"id"`
	SiteID          string     `json:"site_id"`
	WorkDate        time.Time  `json:"work_date"`
	CreatorID       string     `json:"creator_id"`
	Status          Status     `json:"status"`
	WorkContent     string     `json:"work_content"`
	AttendanceIDs   []string   `json:"attendance_ids,omitempty"`
	TotalLaborHours float64    `json:"total_labor_hours"`
	ApproverID      string     `json:"approver_id,omitempty"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Event is the domain event emitted once per successful transition.
type Event struct {
	ReportID   string    `json:"report_id"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	ActorID    string    `json:"actor_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// Dispatcher delivers domain events to the external notification system.
// Dispatch is fire-and-forget: failures are logged, never rolled back into
// the transition.
type Dispatcher interface {
	Dispatch(ctx context.Context, evt Event) error
}

// Filter narrows report listings.
type Filter struct {
	SiteID    string
	CreatorID string
	Status    Status
	WorkDate  time.Time
}

// Store is the persistence contract for daily reports. Update is a
// compare-and-set conditioned on the previously read status and must return
// ErrConcurrentModification when another writer got there first.
type Store interface {
	Create(ctx context.Context, rep *DailyReport) error
	Get(ctx context.Context, id string) (DailyReport, error)
	Update(ctx context.Context, rep DailyReport, expect Status) (DailyReport, error)
	List(ctx context.Context, f Filter) ([]DailyReport, error)
}
