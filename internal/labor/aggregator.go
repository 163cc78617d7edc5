package labor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"siteops.kr/internal/access"
	"siteops.kr/internal/assignment"
	"siteops.kr/internal/ids"
)

// AssignmentSource is the slice of the site assignment registry the
// aggregator needs: coverage checks for new records and the caller's managed
// sites for visibility scoping.
type AssignmentSource interface {
	CurrentAssignment(ctx context.Context, userID, siteID string, asOf time.Time) (assignment.Assignment, bool, error)
	ManagedSiteIDs(ctx context.Context, userID string, asOf time.Time) ([]string, error)
}

// Aggregator turns attendance into labor-hour values and period summaries.
// All reads are scoped through the access resolver: a worker summarizes only
// their own records, anyone else needs attendance visibility on the site they
// name, and unfiltered queries expand to the caller's managed sites.
type Aggregator struct {
	store       Store
	assignments AssignmentSource
	resolver    *access.Resolver
	now         func() time.Time
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		if fn != nil {
			a.now = fn
		}
	}
}

// NewAggregator constructs an Aggregator.
func NewAggregator(store Store, assignments AssignmentSource, resolver *access.Resolver, opts ...AggregatorOption) (*Aggregator, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	if assignments == nil {
		return nil, fmt.Errorf("%w: assignment source is required", ErrInvalidInput)
	}
	if resolver == nil {
		return nil, fmt.Errorf("%w: resolver is required", ErrInvalidInput)
	}
	a := &Aggregator{store: store, assignments: assignments, resolver: resolver, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// RecordInput describes one attendance entry.
type RecordInput struct {
	UserID   string
	SiteID   string
	WorkDate time.Time
	CheckIn  time.Time
	CheckOut time.Time
	Status   AttendanceStatus
}

// Record validates and persists an attendance record, deriving its
// labor-hours. The (user, site) pair must resolve to an assignment covering
// the work date, current or historical.
func (a *Aggregator) Record(ctx context.Context, actor access.Actor, in RecordInput) (AttendanceRecord, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.SiteID = strings.TrimSpace(in.SiteID)
	if in.UserID == "" || in.SiteID == "" {
		return AttendanceRecord{}, fmt.Errorf("%w: user_id and site_id are required", ErrInvalidInput)
	}
	if in.Status == "" {
		in.Status = StatusPresent
	}

	if !actor.IsAdmin() && actor.ID != in.UserID {
		// Recording on someone's behalf needs supervisory capability on the
		// site; the resolver is the single source of that decision.
		decision, err := a.resolver.ResolveSite(ctx, actor, access.ActionRecordAttendance, in.SiteID)
		if err != nil {
			return AttendanceRecord{}, err
		}
		if err := decision.Err(access.ActionRecordAttendance); err != nil {
			return AttendanceRecord{}, err
		}
	}

	workDate := assignment.DateOf(in.WorkDate)
	if _, ok, err := a.assignments.CurrentAssignment(ctx, in.UserID, in.SiteID, workDate); err != nil {
		return AttendanceRecord{}, err
	} else if !ok {
		return AttendanceRecord{}, assignment.ErrNotAssigned
	}

	rec := AttendanceRecord{
		ID:        ids.New(),
		UserID:    in.UserID,
		SiteID:    in.SiteID,
		WorkDate:  workDate,
		Status:    in.Status,
		CreatedAt: a.now().UTC(),
	}
	if in.Status == StatusPresent {
		hours, err := Hours(in.CheckIn, in.CheckOut)
		if err != nil {
			return AttendanceRecord{}, err
		}
		checkIn, checkOut := in.CheckIn, in.CheckOut
		rec.CheckIn = &checkIn
		rec.CheckOut = &checkOut
		rec.LaborHours = hours
	}
	if err := a.store.Insert(ctx, &rec); err != nil {
		return AttendanceRecord{}, err
	}
	return rec, nil
}

// Summarize aggregates a user's labor-hours over [from, to]. An empty siteID
// spans all sites visible to the actor. WorkDays counts distinct work dates
// with labor-hours above zero.
func (a *Aggregator) Summarize(ctx context.Context, actor access.Actor, userID, siteID string, from, to time.Time) (Summary, error) {
	recs, err := a.visibleRecords(ctx, actor, userID, siteID, from, to)
	if err != nil {
		return Summary{}, err
	}
	days := make(map[string]struct{})
	var sum Summary
	for _, rec := range recs {
		sum.RecordCount++
		sum.TotalLaborHours += rec.LaborHours
		if rec.LaborHours > 0 {
			days[rec.WorkDate.Format(time.DateOnly)] = struct{}{}
		}
	}
	sum.WorkDays = len(days)
	return sum, nil
}

// DailyTotal returns the per-site breakdown for one user and date plus the
// cross-site total. The total always equals the sum of the per-site values.
func (a *Aggregator) DailyTotal(ctx context.Context, actor access.Actor, userID string, date time.Time) ([]SiteHours, float64, error) {
	day := assignment.DateOf(date)
	recs, err := a.visibleRecords(ctx, actor, userID, "", day, day)
	if err != nil {
		return nil, 0, err
	}
	perSite := make(map[string]float64)
	var order []string
	for _, rec := range recs {
		if _, seen := perSite[rec.SiteID]; !seen {
			order = append(order, rec.SiteID)
		}
		perSite[rec.SiteID] += rec.LaborHours
	}
	var out []SiteHours
	var total float64
	for _, siteID := range order {
		out = append(out, SiteHours{SiteID: siteID, LaborHours: perSite[siteID]})
		total += perSite[siteID]
	}
	return out, total, nil
}

// SiteDayTotal sums every worker's labor-hours on one site for one work
// date. Used by the report workflow as display data on an already-authorized
// report; it applies no caller scoping of its own.
func (a *Aggregator) SiteDayTotal(ctx context.Context, siteID string, date time.Time) (float64, error) {
	day := assignment.DateOf(date)
	recs, err := a.store.List(ctx, Filter{SiteID: siteID, From: day, To: day})
	if err != nil {
		return 0, err
	}
	var total float64
	for _, rec := range recs {
		total += rec.LaborHours
	}
	return total, nil
}

// visibleRecords applies the caller's visibility before querying the store.
func (a *Aggregator) visibleRecords(ctx context.Context, actor access.Actor, userID, siteID string, from, to time.Time) ([]AttendanceRecord, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	f := Filter{
		UserID: userID,
		SiteID: strings.TrimSpace(siteID),
		From:   assignment.DateOf(from),
		To:     assignment.DateOf(to),
	}

	switch {
	case actor.IsAdmin():
		// Full visibility.
	case actor.ID == userID:
		// Workers see their own records across all their sites.
	case f.SiteID != "":
		decision, err := a.resolver.ResolveSite(ctx, actor, access.ActionViewAttendance, f.SiteID)
		if err != nil {
			return nil, err
		}
		if err := decision.Err(access.ActionViewAttendance); err != nil {
			return nil, err
		}
	default:
		// No site named: expand to the sites the caller manages.
		managed, err := a.assignments.ManagedSiteIDs(ctx, actor.ID, a.now())
		if err != nil {
			return nil, err
		}
		if len(managed) == 0 {
			return nil, (&access.DeniedError{Action: access.ActionViewAttendance, Reason: access.ReasonNotAssigned})
		}
		f.SiteIDs = managed
	}
	return a.store.List(ctx, f)
}
