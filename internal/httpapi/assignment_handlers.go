package httpapi

import (
	"net/http"
	"strings"
	"time"

	"siteops.kr/internal/access"
	"siteops.kr/internal/assignment"
)

type assignRequest struct {
	UserID        string `json:"user_id"`
	Role          string `json:"role"`
	EffectiveDate string `json:"effective_date"`
}

func (a *API) handleSiteSubresources(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/sites/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	siteID := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getSite(w, r, siteID)
	case len(parts) == 2 && parts[1] == "assignments":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.assign(w, r, siteID)
	case len(parts) == 3 && parts[1] == "assignments":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		a.unassign(w, r, siteID, parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) getSite(w http.ResponseWriter, r *http.Request, siteID string) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	decision, err := a.resolver.ResolveSite(r.Context(), actor, access.ActionViewSite, siteID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := decision.Err(access.ActionViewSite); err != nil {
		handleDomainError(w, r, err)
		return
	}
	site, err := a.registry.Site(r.Context(), siteID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

func (a *API) assign(w http.ResponseWriter, r *http.Request, siteID string) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}

	var req assignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, ok := access.ParseLocalRole(req.Role)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "unsupported role")
		return
	}
	effective, err := parseDateOrToday(req.EffectiveDate)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "effective_date must be YYYY-MM-DD")
		return
	}

	decision, err := a.resolver.ResolveSite(r.Context(), actor, access.ActionManageAssignments, siteID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := decision.Err(access.ActionManageAssignments); err != nil {
		handleDomainError(w, r, err)
		return
	}

	created, err := a.registry.Assign(r.Context(), actor.ID, req.UserID, siteID, role, effective)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/sites/"+siteID+"/assignments/"+created.UserID)
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) unassign(w http.ResponseWriter, r *http.Request, siteID, userID string) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	effective, err := parseDateOrToday(r.URL.Query().Get("effective_date"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "effective_date must be YYYY-MM-DD")
		return
	}

	decision, err := a.resolver.ResolveSite(r.Context(), actor, access.ActionManageAssignments, siteID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := decision.Err(access.ActionManageAssignments); err != nil {
		handleDomainError(w, r, err)
		return
	}

	closed, err := a.registry.Unassign(r.Context(), actor.ID, userID, siteID, effective)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, closed)
}

func (a *API) handleUserSubresources(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	userID := parts[0]

	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	// Assignment history is visible to the user themselves and to admins.
	if !actor.IsAdmin() && actor.ID != userID {
		handleDomainError(w, r, (&access.DeniedError{
			Action: access.ActionViewSite,
			Reason: access.ReasonInsufficientRole,
		}))
		return
	}

	switch parts[1] {
	case "assignments":
		seq, err := a.registry.HistoryFor(r.Context(), userID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		items := []assignment.Assignment{}
		for item := range seq {
			items = append(items, item)
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case "sites":
		seq, err := a.registry.SitesFor(r.Context(), userID, time.Now().UTC())
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		items := []assignment.SiteRole{}
		for item := range seq {
			items = append(items, item)
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func parseDateOrToday(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse(time.DateOnly, raw)
}
