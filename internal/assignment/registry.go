package assignment

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"siteops.kr/internal/access"
	"siteops.kr/internal/audit"
	"siteops.kr/internal/ids"
)

// Registry owns the time-bounded mapping of users to sites and their
// site-local roles. It answers "what can user U see or do on site S, as of
// date D" and records every write as an auditable event.
type Registry struct {
	store Store
	now   func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRegistry constructs a Registry over the given store.
func NewRegistry(store Store, opts ...RegistryOption) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	r := &Registry{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Assign opens a new assignment interval [effectiveDate, ∞) for the user on
// the site. Fails with ErrOverlap when any existing interval for the pair
// would overlap the new one.
func (r *Registry) Assign(ctx context.Context, actorID, userID, siteID string, role access.LocalRole, effectiveDate time.Time) (Assignment, error) {
	userID = strings.TrimSpace(userID)
	siteID = strings.TrimSpace(siteID)
	if userID == "" || siteID == "" {
		return Assignment{}, fmt.Errorf("%w: user_id and site_id are required", ErrInvalidInput)
	}
	if _, ok := access.ParseLocalRole(string(role)); !ok {
		return Assignment{}, fmt.Errorf("%w: unsupported local role %q", ErrInvalidInput, role)
	}
	if _, err := r.store.GetSite(ctx, siteID); err != nil {
		return Assignment{}, err
	}

	a := &Assignment{
		ID:        ids.New(),
		UserID:    userID,
		SiteID:    siteID,
		Role:      role,
		StartDate: DateOf(effectiveDate),
		CreatedAt: r.now().UTC(),
		CreatedBy: actorID,
	}
	if err := r.store.Insert(ctx, a); err != nil {
		return Assignment{}, err
	}

	_ = audit.LogEvent(ctx, "assignment.created", map[string]any{
		"assignment_id": a.ID,
		"actor_id":      actorID,
		"user_id":       userID,
		"site_id":       siteID,
		"role":          string(role),
		"start_date":    a.StartDate.Format(time.DateOnly),
	})
	return *a, nil
}

// Unassign closes the current assignment at effectiveDate. Retrying with the
// same date is idempotent; without a matching interval it fails with
// ErrNotAssigned.
func (r *Registry) Unassign(ctx context.Context, actorID, userID, siteID string, effectiveDate time.Time) (Assignment, error) {
	userID = strings.TrimSpace(userID)
	siteID = strings.TrimSpace(siteID)
	if userID == "" || siteID == "" {
		return Assignment{}, fmt.Errorf("%w: user_id and site_id are required", ErrInvalidInput)
	}

	closed, err := r.store.Close(ctx, userID, siteID, DateOf(effectiveDate))
	if err != nil {
		return Assignment{}, err
	}

	_ = audit.LogEvent(ctx, "assignment.closed", map[string]any{
		"assignment_id": closed.ID,
		"actor_id":      actorID,
		"user_id":       userID,
		"site_id":       siteID,
		"end_date":      closed.EndDate.Format(time.DateOnly),
	})
	return closed, nil
}

// CurrentAssignment returns the assignment active at asOf, if any.
func (r *Registry) CurrentAssignment(ctx context.Context, userID, siteID string, asOf time.Time) (Assignment, bool, error) {
	return r.store.ActiveAt(ctx, userID, siteID, asOf)
}

// LocalRoleAt implements access.AssignmentSource.
func (r *Registry) LocalRoleAt(ctx context.Context, userID, siteID string, asOf time.Time) (access.LocalRole, bool, error) {
	a, ok, err := r.store.ActiveAt(ctx, userID, siteID, asOf)
	if err != nil || !ok {
		return "", false, err
	}
	return a.Role, true, nil
}

// SiteOrganization implements access.SiteDirectory.
func (r *Registry) SiteOrganization(ctx context.Context, siteID string) (string, error) {
	site, err := r.store.GetSite(ctx, siteID)
	if err != nil {
		return "", err
	}
	return site.OrganizationID, nil
}

// Site looks up a site by id.
func (r *Registry) Site(ctx context.Context, siteID string) (Site, error) {
	return r.store.GetSite(ctx, siteID)
}

// SitesFor returns the (site, role) pairs active for the user at asOf as a
// finite, restartable sequence.
func (r *Registry) SitesFor(ctx context.Context, userID string, asOf time.Time) (iter.Seq[SiteRole], error) {
	active, err := r.store.ListActive(ctx, userID, asOf)
	if err != nil {
		return nil, err
	}
	return func(yield func(SiteRole) bool) {
		for _, a := range active {
			if !yield(SiteRole{SiteID: a.SiteID, Role: a.Role}) {
				return
			}
		}
	}, nil
}

// ManagedSiteIDs returns the ids of sites where the user currently holds the
// site_manager local role.
func (r *Registry) ManagedSiteIDs(ctx context.Context, userID string, asOf time.Time) ([]string, error) {
	seq, err := r.SitesFor(ctx, userID, asOf)
	if err != nil {
		return nil, err
	}
	var out []string
	for sr := range seq {
		if sr.Role == access.LocalSiteManager {
			out = append(out, sr.SiteID)
		}
	}
	return out, nil
}

// HistoryFor returns every assignment for the user, current and past, ordered
// by start date descending.
func (r *Registry) HistoryFor(ctx context.Context, userID string) (iter.Seq[Assignment], error) {
	history, err := r.store.History(ctx, userID)
	if err != nil {
		return nil, err
	}
	return func(yield func(Assignment) bool) {
		for _, a := range history {
			if !yield(a) {
				return
			}
		}
	}, nil
}

// DateOf truncates an instant to its UTC calendar day.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Overlaps reports whether an existing interval would clash with a new
// open-ended interval starting at start. EndDate is exclusive, so an interval
// closed exactly at start does not overlap.
func Overlaps(existing Assignment, start time.Time) bool {
	return existing.EndDate == nil || existing.EndDate.After(start)
}
