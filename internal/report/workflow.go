package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"siteops.kr/internal/access"
	"siteops.kr/internal/audit"
	"siteops.kr/internal/ids"
	"siteops.kr/internal/obs"
)

// HoursReader supplies aggregated labor-hours for display data stamped onto
// a report at submission.
type HoursReader interface {
	SiteDayTotal(ctx context.Context, siteID string, date time.Time) (float64, error)
}

// Workflow governs the daily-report lifecycle. Every transition first asks
// the access resolver whether the acting user may perform it; successful
// transitions are idempotent under retry by the same actor and emit exactly
// one domain event.
type Workflow struct {
	store      Store
	resolver   *access.Resolver
	dispatcher Dispatcher
	hours      HoursReader
	now        func() time.Time
}

// WorkflowOption configures a Workflow.
type WorkflowOption func(*Workflow)

// WithDispatcher sets the domain-event dispatcher.
func WithDispatcher(d Dispatcher) WorkflowOption {
	return func(w *Workflow) { w.dispatcher = d }
}

// WithHoursReader enables labor-hour stamping at submission.
func WithHoursReader(h HoursReader) WorkflowOption {
	return func(w *Workflow) { w.hours = h }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) WorkflowOption {
	return func(w *Workflow) {
		if fn != nil {
			w.now = fn
		}
	}
}

// NewWorkflow constructs a Workflow.
func NewWorkflow(store Store, resolver *access.Resolver, opts ...WorkflowOption) (*Workflow, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	if resolver == nil {
		return nil, fmt.Errorf("%w: resolver is required", ErrInvalidInput)
	}
	w := &Workflow{store: store, resolver: resolver, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// CreateInput describes a new draft report.
type CreateInput struct {
	SiteID        string
	WorkDate      time.Time
	WorkContent   string
	AttendanceIDs []string
}

// Create opens a new draft for the acting user on the given site.
func (w *Workflow) Create(ctx context.Context, actor access.Actor, in CreateInput) (DailyReport, error) {
	in.SiteID = strings.TrimSpace(in.SiteID)
	if in.SiteID == "" {
		return DailyReport{}, fmt.Errorf("%w: site_id is required", ErrInvalidInput)
	}
	if in.WorkDate.IsZero() {
		return DailyReport{}, fmt.Errorf("%w: work_date is required", ErrInvalidInput)
	}

	// The assignment must cover the work date, not the wall clock: a worker
	// hired today cannot backfill reports for dates before their assignment.
	decision, err := w.resolver.ResolveSiteAsOf(ctx, actor, access.ActionCreateReport, in.SiteID, dateOf(in.WorkDate))
	if err != nil {
		return DailyReport{}, err
	}
	if err := decision.Err(access.ActionCreateReport); err != nil {
		return DailyReport{}, err
	}

	now := w.now().UTC()
	rep := &DailyReport{
		ID:            ids.New(),
		SiteID:        in.SiteID,
		WorkDate:      dateOf(in.WorkDate),
		CreatorID:     actor.ID,
		Status:        StatusDraft,
		WorkContent:   strings.TrimSpace(in.WorkContent),
		AttendanceIDs: in.AttendanceIDs,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := w.store.Create(ctx, rep); err != nil {
		return DailyReport{}, err
	}
	return *rep, nil
}

// EditInput carries the mutable draft fields. Nil pointers leave the field
// unchanged.
type EditInput struct {
	WorkContent   *string
	AttendanceIDs *[]string
}

// Edit mutates a draft. Any other status fails with ErrImmutableReport.
func (w *Workflow) Edit(ctx context.Context, actor access.Actor, reportID string, in EditInput) (DailyReport, error) {
	rep, err := w.store.Get(ctx, reportID)
	if err != nil {
		return DailyReport{}, err
	}

	decision, err := w.resolver.ResolveReport(ctx, actor, access.ActionEditReport, view(rep))
	if err != nil {
		return DailyReport{}, err
	}
	if !decision.Allowed {
		if decision.Reason == access.ReasonWrongState {
			return DailyReport{}, ErrImmutableReport
		}
		return DailyReport{}, decision.Err(access.ActionEditReport)
	}

	if in.WorkContent != nil {
		rep.WorkContent = strings.TrimSpace(*in.WorkContent)
	}
	if in.AttendanceIDs != nil {
		rep.AttendanceIDs = *in.AttendanceIDs
	}
	rep.UpdatedAt = w.now().UTC()
	return w.store.Update(ctx, rep, StatusDraft)
}

// Submit moves a draft to submitted. Fails with ErrIncompleteReport when the
// work content or the attendance linkage is missing. Retrying a submit of an
// already-submitted report by its creator returns the report unchanged.
func (w *Workflow) Submit(ctx context.Context, actor access.Actor, reportID string) (DailyReport, error) {
	rep, err := w.store.Get(ctx, reportID)
	if err != nil {
		return DailyReport{}, err
	}
	if rep.Status == StatusSubmitted && rep.CreatorID == actor.ID {
		if err := w.stillVisible(ctx, actor, rep); err != nil {
			return DailyReport{}, err
		}
		return rep, nil
	}

	decision, err := w.resolver.ResolveReport(ctx, actor, access.ActionSubmitReport, view(rep))
	if err != nil {
		return DailyReport{}, err
	}
	if !decision.Allowed {
		if decision.Reason == access.ReasonWrongState {
			return DailyReport{}, ErrWrongState
		}
		return DailyReport{}, decision.Err(access.ActionSubmitReport)
	}

	if strings.TrimSpace(rep.WorkContent) == "" || len(rep.AttendanceIDs) == 0 {
		return DailyReport{}, ErrIncompleteReport
	}

	now := w.now().UTC()
	from := rep.Status
	rep.Status = StatusSubmitted
	rep.SubmittedAt = &now
	rep.UpdatedAt = now
	if w.hours != nil {
		if total, err := w.hours.SiteDayTotal(ctx, rep.SiteID, rep.WorkDate); err == nil {
			rep.TotalLaborHours = total
		}
	}

	updated, err := w.store.Update(ctx, rep, StatusDraft)
	if err != nil {
		return DailyReport{}, err
	}
	w.emit(ctx, updated, from, actor)
	return updated, nil
}

// Approve finalizes a submitted report. A duplicate approve by the same
// authorized manager returns the already-approved report without a second
// event.
func (w *Workflow) Approve(ctx context.Context, actor access.Actor, reportID string) (DailyReport, error) {
	rep, err := w.store.Get(ctx, reportID)
	if err != nil {
		return DailyReport{}, err
	}
	if rep.Status == StatusApproved && rep.ApproverID == actor.ID {
		if err := w.stillVisible(ctx, actor, rep); err != nil {
			return DailyReport{}, err
		}
		return rep, nil
	}

	decision, err := w.resolver.ResolveReport(ctx, actor, access.ActionApproveReport, view(rep))
	if err != nil {
		return DailyReport{}, err
	}
	if !decision.Allowed {
		if decision.Reason == access.ReasonWrongState {
			return DailyReport{}, ErrWrongState
		}
		return DailyReport{}, decision.Err(access.ActionApproveReport)
	}

	now := w.now().UTC()
	from := rep.Status
	rep.Status = StatusApproved
	rep.ApproverID = actor.ID
	rep.ApprovedAt = &now
	rep.UpdatedAt = now

	updated, err := w.store.Update(ctx, rep, StatusSubmitted)
	if err != nil {
		return DailyReport{}, err
	}
	w.emit(ctx, updated, from, actor)
	return updated, nil
}

// Reject returns a submitted report to its creator with a reason.
func (w *Workflow) Reject(ctx context.Context, actor access.Actor, reportID, reason string) (DailyReport, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return DailyReport{}, fmt.Errorf("%w: rejection reason is required", ErrInvalidInput)
	}

	rep, err := w.store.Get(ctx, reportID)
	if err != nil {
		return DailyReport{}, err
	}
	if rep.Status == StatusRejected && rep.ApproverID == actor.ID && rep.RejectionReason == reason {
		if err := w.stillVisible(ctx, actor, rep); err != nil {
			return DailyReport{}, err
		}
		return rep, nil
	}

	decision, err := w.resolver.ResolveReport(ctx, actor, access.ActionRejectReport, view(rep))
	if err != nil {
		return DailyReport{}, err
	}
	if !decision.Allowed {
		if decision.Reason == access.ReasonWrongState {
			return DailyReport{}, ErrWrongState
		}
		return DailyReport{}, decision.Err(access.ActionRejectReport)
	}

	now := w.now().UTC()
	from := rep.Status
	rep.Status = StatusRejected
	rep.ApproverID = actor.ID
	rep.RejectionReason = reason
	rep.UpdatedAt = now

	updated, err := w.store.Update(ctx, rep, StatusSubmitted)
	if err != nil {
		return DailyReport{}, err
	}
	w.emit(ctx, updated, from, actor)
	return updated, nil
}

// Revise reopens a rejected report as a draft. The rejection reason is
// retained for audit; the editable fields become mutable again.
func (w *Workflow) Revise(ctx context.Context, actor access.Actor, reportID string) (DailyReport, error) {
	rep, err := w.store.Get(ctx, reportID)
	if err != nil {
		return DailyReport{}, err
	}
	if rep.Status == StatusDraft && rep.CreatorID == actor.ID && rep.RejectionReason != "" {
		if err := w.stillVisible(ctx, actor, rep); err != nil {
			return DailyReport{}, err
		}
		return rep, nil
	}

	decision, err := w.resolver.ResolveReport(ctx, actor, access.ActionReviseReport, view(rep))
	if err != nil {
		return DailyReport{}, err
	}
	if !decision.Allowed {
		if decision.Reason == access.ReasonWrongState {
			return DailyReport{}, ErrWrongState
		}
		return DailyReport{}, decision.Err(access.ActionReviseReport)
	}

	now := w.now().UTC()
	from := rep.Status
	rep.Status = StatusDraft
	rep.SubmittedAt = nil
	rep.UpdatedAt = now

	updated, err := w.store.Update(ctx, rep, StatusRejected)
	if err != nil {
		return DailyReport{}, err
	}
	w.emit(ctx, updated, from, actor)
	return updated, nil
}

// Get loads a report the actor may view.
func (w *Workflow) Get(ctx context.Context, actor access.Actor, reportID string) (DailyReport, error) {
	rep, err := w.store.Get(ctx, reportID)
	if err != nil {
		return DailyReport{}, err
	}
	decision, err := w.resolver.ResolveReport(ctx, actor, access.ActionViewReport, view(rep))
	if err != nil {
		return DailyReport{}, err
	}
	if err := decision.Err(access.ActionViewReport); err != nil {
		return DailyReport{}, err
	}
	return rep, nil
}

// List returns the reports visible to the actor. With a site filter the
// caller needs VIEW_SITE there; workers without it fall back to their own
// reports on that site. Without a site filter only the actor's own reports
// are returned for non-admins.
func (w *Workflow) List(ctx context.Context, actor access.Actor, f Filter) ([]DailyReport, error) {
	if actor.IsAdmin() {
		return w.store.List(ctx, f)
	}
	if f.SiteID == "" {
		f.CreatorID = actor.ID
		return w.store.List(ctx, f)
	}

	decision, err := w.resolver.ResolveSite(ctx, actor, access.ActionViewSite, f.SiteID)
	if err != nil {
		return nil, err
	}
	if decision.Allowed {
		return w.store.List(ctx, f)
	}
	if decision.Reason == access.ReasonInsufficientRole {
		// Assigned without site-wide visibility: own reports only.
		f.CreatorID = actor.ID
		return w.store.List(ctx, f)
	}
	return nil, decision.Err(access.ActionViewSite)
}

// emit publishes the transition event and audit record. Emission is
// best-effort: a dispatch failure never rolls back the state change.
func (w *Workflow) emit(ctx context.Context, rep DailyReport, from Status, actor access.Actor) {
	evt := Event{
		ReportID:   rep.ID,
		FromStatus: from,
		ToStatus:   rep.Status,
		ActorID:    actor.ID,
		Timestamp:  rep.UpdatedAt,
	}
	obs.ReportTransition(string(from), string(rep.Status))
	_ = audit.LogEvent(ctx, "report.transition", map[string]any{
		"report_id": evt.ReportID,
		"from":      string(evt.FromStatus),
		"to":        string(evt.ToStatus),
		"actor_id":  evt.ActorID,
	})
	if w.dispatcher == nil {
		return
	}
	if err := w.dispatcher.Dispatch(ctx, evt); err != nil {
		obs.LogRequest(map[string]any{
			"level":     "warn",
			"msg":       "report event dispatch failed",
			"report_id": evt.ReportID,
			"error":     err.Error(),
		})
	}
}

// stillVisible gates the idempotent-retry fast paths: a retry only echoes the
// stored report back if the actor could still read it, so an actor whose
// assignment was revoked since the original transition is denied.
func (w *Workflow) stillVisible(ctx context.Context, actor access.Actor, rep DailyReport) error {
	decision, err := w.resolver.ResolveReport(ctx, actor, access.ActionViewReport, view(rep))
	if err != nil {
		return err
	}
	return decision.Err(access.ActionViewReport)
}

func view(rep DailyReport) access.ReportView {
	return access.ReportView{
		SiteID:    rep.SiteID,
		CreatorID: rep.CreatorID,
		Status:    string(rep.Status),
	}
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
