package access

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeRegistry struct {
	roles map[string]map[string]LocalRole // userID -> siteID -> role
	orgs  map[string]string               // siteID -> organizationID
}

func (f *fakeRegistry) LocalRoleAt(ctx context.Context, userID, siteID string, asOf time.Time) (LocalRole, bool, error) {
	role, ok := f.roles[userID][siteID]
	return role, ok, nil
}

func (f *fakeRegistry) SiteOrganization(ctx context.Context, siteID string) (string, error) {
	return f.orgs[siteID], nil
}

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	reg := &fakeRegistry{
		roles: map[string]map[string]LocalRole{
			"worker-1":  {"site-a": LocalWorker},
			"manager-1": {"site-a": LocalSiteManager},
			"client-1":  {"site-a": LocalCustomerManager},
		},
		orgs: map[string]string{
			"site-a": "org-1",
			"site-b": "org-2",
		},
	}
	r, err := NewResolver(reg, reg)
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	return r
}

func TestResolveSiteDecisions(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		actor   Actor
		action  Action
		siteID  string
		allowed bool
		reason  DenyReason
	}{
		{"assigned worker views site", Actor{ID: "worker-1", GlobalRole: RoleWorker}, ActionViewSite, "site-a", false, ReasonInsufficientRole},
		{"assigned worker creates report", Actor{ID: "worker-1", GlobalRole: RoleWorker}, ActionCreateReport, "site-a", true, ""},
		{"unassigned worker denied", Actor{ID: "worker-1", GlobalRole: RoleWorker}, ActionCreateReport, "site-b", false, ReasonNotAssigned},
		{"global manager role alone grants nothing", Actor{ID: "manager-1", GlobalRole: RoleSiteManager}, ActionViewSite, "site-b", false, ReasonNotAssigned},
		{"site manager views site", Actor{ID: "manager-1", GlobalRole: RoleSiteManager}, ActionViewSite, "site-a", true, ""},
		{"customer manager views site", Actor{ID: "client-1", GlobalRole: RoleCustomerManager}, ActionViewSite, "site-a", true, ""},
		{"customer manager cannot create", Actor{ID: "client-1", GlobalRole: RoleCustomerManager}, ActionCreateReport, "site-a", false, ReasonInsufficientRole},
		{"customer manager views attendance", Actor{ID: "client-1", GlobalRole: RoleCustomerManager}, ActionViewAttendance, "site-a", true, ""},
		{"worker cannot view site attendance", Actor{ID: "worker-1", GlobalRole: RoleWorker}, ActionViewAttendance, "site-a", false, ReasonInsufficientRole},
		{"site manager records attendance for others", Actor{ID: "manager-1", GlobalRole: RoleSiteManager}, ActionRecordAttendance, "site-a", true, ""},
		{"worker cannot record attendance for others", Actor{ID: "worker-1", GlobalRole: RoleWorker}, ActionRecordAttendance, "site-a", false, ReasonInsufficientRole},
		{"worker cannot manage assignments", Actor{ID: "worker-1", GlobalRole: RoleWorker}, ActionManageAssignments, "site-a", false, ReasonInsufficientRole},
		{"admin manages assignments in own org", Actor{ID: "admin-1", GlobalRole: RoleAdmin, OrganizationID: "org-1"}, ActionManageAssignments, "site-a", true, ""},
		{"admin cannot manage assignments cross-org", Actor{ID: "admin-1", GlobalRole: RoleAdmin, OrganizationID: "org-1"}, ActionManageAssignments, "site-b", false, ReasonInsufficientRole},
		{"admin still views cross-org", Actor{ID: "admin-1", GlobalRole: RoleAdmin, OrganizationID: "org-1"}, ActionViewSite, "site-b", true, ""},
		{"system admin manages everywhere", Actor{ID: "root", GlobalRole: RoleSystemAdmin}, ActionManageAssignments, "site-b", true, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := r.ResolveSite(ctx, tc.actor, tc.action, tc.siteID)
			if err != nil {
				t.Fatalf("ResolveSite failed: %v", err)
			}
			if d.Allowed != tc.allowed {
				t.Fatalf("allowed = %v, want %v (reason %q)", d.Allowed, tc.allowed, d.Reason)
			}
			if !tc.allowed && d.Reason != tc.reason {
				t.Fatalf("reason = %q, want %q", d.Reason, tc.reason)
			}
		})
	}
}

func TestResolveReportDecisions(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	draftOwn := ReportView{SiteID: "site-a", CreatorID: "worker-1", Status: "draft"}
	draftOther := ReportView{SiteID: "site-a", CreatorID: "worker-9", Status: "draft"}
	submittedOwn := ReportView{SiteID: "site-a", CreatorID: "worker-1", Status: "submitted"}
	approvedOwn := ReportView{SiteID: "site-a", CreatorID: "worker-1", Status: "approved"}
	rejectedOwn := ReportView{SiteID: "site-a", CreatorID: "worker-1", Status: "rejected"}

	worker := Actor{ID: "worker-1", GlobalRole: RoleWorker}
	manager := Actor{ID: "manager-1", GlobalRole: RoleSiteManager}
	client := Actor{ID: "client-1", GlobalRole: RoleCustomerManager}

	cases := []struct {
		name    string
		actor   Actor
		action  Action
		rep     ReportView
		allowed bool
		reason  DenyReason
	}{
		{"owner edits draft", worker, ActionEditReport, draftOwn, true, ""},
		{"owner cannot edit submitted", worker, ActionEditReport, submittedOwn, false, ReasonWrongState},
		{"owner cannot edit approved", worker, ActionEditReport, approvedOwn, false, ReasonWrongState},
		{"worker cannot edit another draft", worker, ActionEditReport, draftOther, false, ReasonNotOwner},
		{"owner submits draft", worker, ActionSubmitReport, draftOwn, true, ""},
		{"owner cannot approve own", worker, ActionApproveReport, submittedOwn, false, ReasonInsufficientRole},
		{"worker views own", worker, ActionViewReport, draftOwn, true, ""},
		{"worker cannot view another report", worker, ActionViewReport, draftOther, false, ReasonNotOwner},
		{"owner revises rejected", worker, ActionReviseReport, rejectedOwn, true, ""},
		{"owner cannot revise draft", worker, ActionReviseReport, draftOwn, false, ReasonWrongState},
		{"manager approves submitted", manager, ActionApproveReport, submittedOwn, true, ""},
		{"manager cannot approve draft", manager, ActionApproveReport, draftOwn, false, ReasonWrongState},
		{"manager cannot approve approved", manager, ActionApproveReport, approvedOwn, false, ReasonWrongState},
		{"manager rejects submitted", manager, ActionRejectReport, submittedOwn, true, ""},
		{"manager views any report on site", manager, ActionViewReport, draftOther, true, ""},
		{"customer manager views reports", client, ActionViewReport, draftOther, true, ""},
		{"customer manager cannot approve", client, ActionApproveReport, submittedOwn, false, ReasonInsufficientRole},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := r.ResolveReport(ctx, tc.actor, tc.action, tc.rep)
			if err != nil {
				t.Fatalf("ResolveReport failed: %v", err)
			}
			if d.Allowed != tc.allowed {
				t.Fatalf("allowed = %v, want %v (reason %q)", d.Allowed, tc.allowed, d.Reason)
			}
			if !tc.allowed && d.Reason != tc.reason {
				t.Fatalf("reason = %q, want %q", d.Reason, tc.reason)
			}
		})
	}
}

// windowedRegistry grants a worker role only from its start date onward.
type windowedRegistry struct {
	start time.Time
}

func (w *windowedRegistry) LocalRoleAt(ctx context.Context, userID, siteID string, asOf time.Time) (LocalRole, bool, error) {
	if asOf.Before(w.start) {
		return "", false, nil
	}
	return LocalWorker, true, nil
}

func (w *windowedRegistry) SiteOrganization(ctx context.Context, siteID string) (string, error) {
	return "org-1", nil
}

func TestResolveSiteAsOf(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reg := &windowedRegistry{start: start}
	r, err := NewResolver(reg, reg)
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	worker := Actor{ID: "worker-1", GlobalRole: RoleWorker}
	ctx := context.Background()

	d, err := r.ResolveSiteAsOf(ctx, worker, ActionCreateReport, "site-a", start.AddDate(0, -1, 0))
	if err != nil {
		t.Fatalf("ResolveSiteAsOf failed: %v", err)
	}
	if d.Allowed || d.Reason != ReasonNotAssigned {
		t.Fatalf("decision before start = %+v, want not_assigned denial", d)
	}

	d, err = r.ResolveSiteAsOf(ctx, worker, ActionCreateReport, "site-a", start)
	if err != nil {
		t.Fatalf("ResolveSiteAsOf failed: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("decision at start = %+v, want allow", d)
	}
}

func TestCapabilityPrecedesState(t *testing.T) {
	// A caller without the approve capability gets insufficient_role even
	// when the report is also in the wrong state.
	r := newTestResolver(t)
	worker := Actor{ID: "worker-1", GlobalRole: RoleWorker}
	draft := ReportView{SiteID: "site-a", CreatorID: "worker-1", Status: "draft"}

	d, err := r.ResolveReport(context.Background(), worker, ActionApproveReport, draft)
	if err != nil {
		t.Fatalf("ResolveReport failed: %v", err)
	}
	if d.Allowed || d.Reason != ReasonInsufficientRole {
		t.Fatalf("decision = %+v, want insufficient_role denial", d)
	}
}

func TestDeniedErrorUnwrapsToSentinel(t *testing.T) {
	err := Deny(ReasonNotAssigned).Err(ActionViewSite)
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected errors.Is(err, ErrDenied)")
	}
	reason, ok := ReasonOf(err)
	if !ok || reason != ReasonNotAssigned {
		t.Fatalf("ReasonOf = %v %v", reason, ok)
	}
	if Allow().Err(ActionViewSite) != nil {
		t.Fatal("allow decision must yield nil error")
	}
}

func TestCapabilitySetAdminImpliesAll(t *testing.T) {
	set := newSet(CapAdminAll)
	for _, c := range []Capability{CapViewSite, CapApproveSite, CapEditOwnDraft, CapViewOwn, CapManageAssignments} {
		if !set.Has(c) {
			t.Fatalf("admin set missing %s", c)
		}
	}
	if newSet(CapViewOwn).Has(CapApproveSite) {
		t.Fatal("view_own must not imply approve")
	}
}
