package access

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Action identifies an operation submitted for an access decision.
type Action string

const (
	ActionViewSite          Action = "site.view"
	ActionViewReport        Action = "report.view"
	ActionCreateReport      Action = "report.create"
	ActionEditReport        Action = "report.edit"
	ActionSubmitReport      Action = "report.submit"
	ActionApproveReport     Action = "report.approve"
	ActionRejectReport      Action = "report.reject"
	ActionReviseReport      Action = "report.revise"
	ActionViewAttendance    Action = "attendance.view"
	ActionRecordAttendance  Action = "attendance.record"
	ActionManageAssignments Action = "assignments.manage"
)

// DenyReason is the machine-readable cause attached to every denial. Callers
// must not infer the reason from absence of data; an empty result and an
// explicit denial are different audit outcomes.
type DenyReason string

const (
	ReasonNotAssigned      DenyReason = "not_assigned"
	ReasonWrongState       DenyReason = "wrong_state"
	ReasonNotOwner         DenyReason = "not_owner"
	ReasonInsufficientRole DenyReason = "insufficient_role"
)

// ErrDenied is the sentinel all denial errors unwrap to.
var ErrDenied = errors.New("access denied")

// DeniedError carries the deny reason for a rejected operation.
type DeniedError struct {
	Action Action
	Reason DenyReason
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied: %s (%s)", e.Action, e.Reason)
}

func (e *DeniedError) Unwrap() error { return ErrDenied }

// ReasonOf extracts the deny reason from an error chain, if present.
func ReasonOf(err error) (DenyReason, bool) {
	var denied *DeniedError
	if errors.As(err, &denied) {
		return denied.Reason, true
	}
	return "", false
}

// Decision is the outcome of resolving (actor, action, target).
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

// Allow returns a positive decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny returns a negative decision with its reason.
func Deny(reason DenyReason) Decision { return Decision{Reason: reason} }

// Err converts a decision into an error, nil when allowed.
func (d Decision) Err(action Action) error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Action: action, Reason: d.Reason}
}

// ReportView is the slice of a daily report the resolver needs for
// object-level checks. Status values mirror the report package.
type ReportView struct {
	SiteID    string
	CreatorID string
	Status    string
}

const (
	statusDraft     = "draft"
	statusSubmitted = "submitted"
	statusRejected  = "rejected"
)

// AssignmentSource answers which local role a user holds on a site at an
// instant. Implemented by the site assignment registry.
type AssignmentSource interface {
	LocalRoleAt(ctx context.Context, userID, siteID string, asOf time.Time) (LocalRole, bool, error)
}

// SiteDirectory resolves the owning organization of a site, used to scope
// admin capabilities.
type SiteDirectory interface {
	SiteOrganization(ctx context.Context, siteID string) (string, error)
}

// Resolver computes allow/deny decisions from the actor's global role and the
// site assignment registry. It is the single choke point for every query
// filter and mutation guard; the database's own row-security policies are an
// independent second enforcement layer.
type Resolver struct {
	assignments AssignmentSource
	sites       SiteDirectory
	now         func() time.Time
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewResolver constructs a Resolver.
func NewResolver(assignments AssignmentSource, sites SiteDirectory, opts ...ResolverOption) (*Resolver, error) {
	if assignments == nil {
		return nil, errors.New("access: assignment source is required")
	}
	if sites == nil {
		return nil, errors.New("access: site directory is required")
	}
	r := &Resolver{assignments: assignments, sites: sites, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// CapabilitiesOn resolves the actor's capability set on one site as of now.
// Global role alone never grants site access for non-admin actors: without a
// current assignment the set is empty.
func (r *Resolver) CapabilitiesOn(ctx context.Context, actor Actor, siteID string) (CapabilitySet, error) {
	return r.capabilitiesAt(ctx, actor, siteID, r.now())
}

func (r *Resolver) capabilitiesAt(ctx context.Context, actor Actor, siteID string, asOf time.Time) (CapabilitySet, error) {
	switch actor.GlobalRole {
	case RoleSystemAdmin:
		return newSet(CapAdminAll), nil
	case RoleAdmin:
		set := newSet(CapAdminAll)
		org, err := r.sites.SiteOrganization(ctx, siteID)
		if err != nil {
			return nil, err
		}
		if org != actor.OrganizationID {
			// Admins manage assignments only inside their own organization.
			delete(set, CapAdminAll)
			set = newSet(CapViewSite, CapApproveSite, CapEditOwnDraft, CapViewOwn)
		}
		return set, nil
	}

	role, ok, err := r.assignments.LocalRoleAt(ctx, actor.ID, siteID, asOf)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newSet(), nil
	}
	return capabilitiesForLocalRole(role), nil
}

// ResolveSite decides a site-scoped action with no object-level conditions,
// against the assignments current as of now.
func (r *Resolver) ResolveSite(ctx context.Context, actor Actor, action Action, siteID string) (Decision, error) {
	return r.ResolveSiteAsOf(ctx, actor, action, siteID, r.now())
}

// ResolveSiteAsOf decides a site-scoped action against the assignments in
// force at a specific instant. Backdated writes (a report for a past work
// date) resolve at that date, not at submission time.
func (r *Resolver) ResolveSiteAsOf(ctx context.Context, actor Actor, action Action, siteID string, asOf time.Time) (Decision, error) {
	caps, err := r.capabilitiesAt(ctx, actor, siteID, asOf)
	if err != nil {
		return Decision{}, err
	}
	if len(caps) == 0 && !actor.IsAdmin() {
		return Deny(ReasonNotAssigned), nil
	}
	if caps.Has(requiredCapability(action)) {
		return Allow(), nil
	}
	return Deny(ReasonInsufficientRole), nil
}

// ResolveReport decides an object-level action against a specific report.
// Denial precedence: assignment, capability, ownership, state — so a caller
// without the capability is denied identically regardless of report state.
func (r *Resolver) ResolveReport(ctx context.Context, actor Actor, action Action, rep ReportView) (Decision, error) {
	caps, err := r.CapabilitiesOn(ctx, actor, rep.SiteID)
	if err != nil {
		return Decision{}, err
	}
	if len(caps) == 0 && !actor.IsAdmin() {
		return Deny(ReasonNotAssigned), nil
	}

	switch action {
	case ActionViewReport:
		if caps.Has(CapViewSite) {
			return Allow(), nil
		}
		if caps.Has(CapViewOwn) {
			if rep.CreatorID != actor.ID {
				return Deny(ReasonNotOwner), nil
			}
			return Allow(), nil
		}
		return Deny(ReasonInsufficientRole), nil

	case ActionEditReport, ActionSubmitReport, ActionReviseReport:
		if !caps.Has(CapEditOwnDraft) {
			return Deny(ReasonInsufficientRole), nil
		}
		if rep.CreatorID != actor.ID && !actor.IsAdmin() {
			return Deny(ReasonNotOwner), nil
		}
		want := statusDraft
		if action == ActionReviseReport {
			want = statusRejected
		}
		if rep.Status != want {
			return Deny(ReasonWrongState), nil
		}
		return Allow(), nil

	case ActionApproveReport, ActionRejectReport:
		if !caps.Has(CapApproveSite) {
			return Deny(ReasonInsufficientRole), nil
		}
		if rep.Status != statusSubmitted {
			return Deny(ReasonWrongState), nil
		}
		return Allow(), nil

	default:
		if caps.Has(requiredCapability(action)) {
			return Allow(), nil
		}
		return Deny(ReasonInsufficientRole), nil
	}
}

// requiredCapability maps site-scoped actions to the capability that grants
// them outright.
func requiredCapability(action Action) Capability {
	switch action {
	case ActionViewSite, ActionViewAttendance:
		return CapViewSite
	case ActionApproveReport, ActionRejectReport, ActionRecordAttendance:
		// Recording attendance for someone else is a supervisory action;
		// self-recording never reaches the resolver.
		return CapApproveSite
	case ActionCreateReport, ActionEditReport, ActionSubmitReport, ActionReviseReport:
		return CapEditOwnDraft
	case ActionManageAssignments:
		return CapManageAssignments
	default:
		return CapAdminAll
	}
}
