package httpapi

import (
	"net/http"
	"strings"
	"time"

	"siteops.kr/internal/report"
)

type createReportRequest struct {
	SiteID        string   `json:"site_id"`
	WorkDate      string   `json:"work_date"`
	WorkContent   string   `json:"work_content"`
	AttendanceIDs []string `json:"attendance_ids"`
}

type editReportRequest struct {
	WorkContent   *string   `json:"work_content"`
	AttendanceIDs *[]string `json:"attendance_ids"`
}

type rejectReportRequest struct {
	Reason string `json:"reason"`
}

func (a *API) handleReportsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createReport(w, r)
	case http.MethodGet:
		a.listReports(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleReportResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/reports/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	reportID := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			a.getReport(w, r, reportID)
		case http.MethodPatch:
			a.editReport(w, r, reportID)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
		}
	case len(parts) == 2:
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.transitionReport(w, r, reportID, parts[1])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) createReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req createReportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	workDate, err := time.Parse(time.DateOnly, strings.TrimSpace(req.WorkDate))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "work_date must be YYYY-MM-DD")
		return
	}

	rep, err := a.workflow.Create(r.Context(), actor, report.CreateInput{
		SiteID:        req.SiteID,
		WorkDate:      workDate,
		WorkContent:   req.WorkContent,
		AttendanceIDs: req.AttendanceIDs,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/reports/"+rep.ID)
	writeJSON(w, http.StatusCreated, rep)
}

func (a *API) getReport(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	rep, err := a.workflow.Get(r.Context(), actor, id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (a *API) editReport(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req editReportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rep, err := a.workflow.Edit(r.Context(), actor, id, report.EditInput{
		WorkContent:   req.WorkContent,
		AttendanceIDs: req.AttendanceIDs,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (a *API) transitionReport(w http.ResponseWriter, r *http.Request, id, verb string) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}

	var (
		rep report.DailyReport
		err error
	)
	switch verb {
	case "submit":
		rep, err = a.workflow.Submit(r.Context(), actor, id)
	case "approve":
		rep, err = a.workflow.Approve(r.Context(), actor, id)
	case "reject":
		var req rejectReportRequest
		if derr := decodeJSON(w, r, &req); derr != nil {
			writeError(w, r, http.StatusBadRequest, derr.Error())
			return
		}
		rep, err = a.workflow.Reject(r.Context(), actor, id, req.Reason)
	case "revise":
		rep, err = a.workflow.Revise(r.Context(), actor, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (a *API) listReports(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := report.Filter{
		SiteID:    strings.TrimSpace(q.Get("site_id")),
		CreatorID: strings.TrimSpace(q.Get("creator_id")),
		Status:    report.Status(strings.TrimSpace(q.Get("status"))),
	}
	if raw := strings.TrimSpace(q.Get("work_date")); raw != "" {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "work_date must be YYYY-MM-DD")
			return
		}
		f.WorkDate = d
	}

	items, err := a.workflow.List(r.Context(), actor, f)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if items == nil {
		items = []report.DailyReport{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"as_of": time.Now().UTC(),
	})
}
