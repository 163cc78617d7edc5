package access

import "strings"

// GlobalRole is the organization-wide role ceiling carried by a user account.
// It widens visibility but never replaces the site-local assignment role.
type GlobalRole string

const (
	RoleWorker          GlobalRole = "worker"
	RoleSiteManager     GlobalRole = "site_manager"
	RoleCustomerManager GlobalRole = "customer_manager"
	RoleAdmin           GlobalRole = "admin"
	RoleSystemAdmin     GlobalRole = "system_admin"
)

// ParseGlobalRole normalizes a raw role string.
func ParseGlobalRole(raw string) (GlobalRole, bool) {
	switch GlobalRole(strings.TrimSpace(strings.ToLower(raw))) {
	case RoleWorker:
		return RoleWorker, true
	case RoleSiteManager:
		return RoleSiteManager, true
	case RoleCustomerManager:
		return RoleCustomerManager, true
	case RoleAdmin:
		return RoleAdmin, true
	case RoleSystemAdmin:
		return RoleSystemAdmin, true
	default:
		return "", false
	}
}

// LocalRole is the role a user holds on one specific site through a
// site assignment.
type LocalRole string

const (
	LocalWorker          LocalRole = "worker"
	LocalSiteManager     LocalRole = "site_manager"
	LocalCustomerManager LocalRole = "customer_manager"
)

// ParseLocalRole normalizes a raw site-local role string.
func ParseLocalRole(raw string) (LocalRole, bool) {
	switch LocalRole(strings.TrimSpace(strings.ToLower(raw))) {
	case LocalWorker:
		return LocalWorker, true
	case LocalSiteManager:
		return LocalSiteManager, true
	case LocalCustomerManager:
		return LocalCustomerManager, true
	default:
		return "", false
	}
}

// Capability is a coarse grant resolved from roles. Object-level conditions
// (ownership, report state) are applied on top by the resolver.
type Capability string

const (
	CapAdminAll          Capability = "admin.all"
	CapViewSite          Capability = "site.view"
	CapApproveSite       Capability = "site.approve"
	CapEditOwnDraft      Capability = "report.edit_own_draft"
	CapViewOwn           Capability = "report.view_own"
	CapManageAssignments Capability = "site.assignments.manage"
)

// CapabilitySet is the set of capabilities an actor holds on one site.
type CapabilitySet map[Capability]struct{}

// Has reports whether the capability is granted. CapAdminAll implies
// everything.
func (s CapabilitySet) Has(c Capability) bool {
	if _, ok := s[CapAdminAll]; ok {
		return true
	}
	_, ok := s[c]
	return ok
}

func newSet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// capabilitiesForLocalRole maps a site-local role to its capability set.
func capabilitiesForLocalRole(role LocalRole) CapabilitySet {
	switch role {
	case LocalSiteManager:
		return newSet(CapViewSite, CapApproveSite, CapEditOwnDraft, CapViewOwn)
	case LocalCustomerManager:
		// Read-only, aggregated. Never edit or approve.
		return newSet(CapViewSite)
	case LocalWorker:
		// Workers do not see other workers' reports.
		return newSet(CapViewOwn, CapEditOwnDraft)
	default:
		return newSet()
	}
}

// Actor is the already-authenticated caller every public operation receives.
type Actor struct {
	ID             string
	GlobalRole     GlobalRole
	OrganizationID string
}

// IsAdmin reports whether the actor short-circuits to the admin capability set.
func (a Actor) IsAdmin() bool {
	return a.GlobalRole == RoleAdmin || a.GlobalRole == RoleSystemAdmin
}
