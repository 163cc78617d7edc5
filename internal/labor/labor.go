// Package labor converts raw attendance records into normalized labor-hour
// (공수) values and period summaries. 1.0 labor-hour unit equals one standard
// 480-minute shift.
package labor

import (
	"context"
	"errors"
	"math"
	"time"
)

const (
	// StandardDayMinutes is the length of one full shift: 1.0 labor-hours.
	StandardDayMinutes = 480
	// RoundingStep is the resolution labor-hours are rounded to.
	RoundingStep = 0.25
	// MaxLaborHours caps a single record. Above 1.0 accommodates the
	// documented double-shift case.
	MaxLaborHours = 2.0
)

var (
	// ErrInvalidInterval is returned when checkOut does not come after checkIn.
	ErrInvalidInterval = errors.New("labor: check-out must be after check-in")
	// ErrOutOfRange is returned when the rounded value falls outside
	// [0, MaxLaborHours]. This signals a data-entry error upstream and is
	// never silently clamped.
	ErrOutOfRange = errors.New("labor: labor-hours out of range")
	// ErrNotFound is returned for missing attendance records.
	ErrNotFound = errors.New("labor: record not found")
	// ErrInvalidInput flags malformed arguments.
	ErrInvalidInput = errors.New("labor: invalid input")
)

// Hours computes the labor-hour value for a worked interval: minutes divided
// by the standard day, rounded to the nearest quarter.
func Hours(checkIn, checkOut time.Time) (float64, error) {
	if !checkOut.After(checkIn) {
		return 0, ErrInvalidInterval
	}
	minutes := checkOut.Sub(checkIn).Minutes()
	value := math.Round(minutes/StandardDayMinutes/RoundingStep) * RoundingStep
	if value < 0 || value > MaxLaborHours {
		return 0, ErrOutOfRange
	}
	return value, nil
}

// AttendanceStatus classifies a day record.
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusAbsent  AttendanceStatus = "absent"
	StatusLeave   AttendanceStatus = "leave"
)

// AttendanceRecord is one user's attendance on one site for one work date.
// Multiple records for the same user and date across different sites are
// legal; they are summed, never merged.
type AttendanceRecord struct {
	ID         string           `json:"id"`
	UserID     string           `json:"user_id"`
	SiteID     string           `json:"site_id"`
	WorkDate   time.Time        `json:"work_date"`
	CheckIn    *time.Time       `json:"check_in,omitempty"`
	CheckOut   *time.Time       `json:"check_out,omitempty"`
	LaborHours float64          `json:"labor_hours"`
	Status     AttendanceStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Summary aggregates a user's records over a period.
type Summary struct {
	WorkDays        int     `json:"work_days"`
	TotalLaborHours float64 `json:"total_labor_hours"`
	RecordCount     int     `json:"record_count"`
}

// SiteHours is the per-site share of one day's labor-hours.
type SiteHours struct {
	SiteID     string  `json:"site_id"`
	LaborHours float64 `json:"labor_hours"`
}

// Filter narrows attendance queries. A zero SiteID matches every site; an
// empty SiteIDs slice applies no site restriction beyond SiteID.
type Filter struct {
	UserID  string
	SiteID  string
	SiteIDs []string
	From    time.Time
	To      time.Time
}

// Store is the persistence contract for attendance records.
type Store interface {
	Insert(ctx context.Context, rec *AttendanceRecord) error
	List(ctx context.Context, f Filter) ([]AttendanceRecord, error)
}
