package httpapi

import (
	"net/http"
	"strings"
	"time"

	"siteops.kr/internal/labor"
)

type attendanceRequest struct {
	UserID   string `json:"user_id"`
	SiteID   string `json:"site_id"`
	WorkDate string `json:"work_date"`
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
	Status   string `json:"status"`
}

func (a *API) handleAttendance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}

	var req attendanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	workDate, err := time.Parse(time.DateOnly, strings.TrimSpace(req.WorkDate))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "work_date must be YYYY-MM-DD")
		return
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = actor.ID
	}
	in := labor.RecordInput{
		UserID:   userID,
		SiteID:   req.SiteID,
		WorkDate: workDate,
		Status:   labor.AttendanceStatus(strings.TrimSpace(req.Status)),
	}
	if req.CheckIn != "" || req.CheckOut != "" {
		checkIn, err := time.Parse(time.RFC3339, req.CheckIn)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "check_in must be RFC3339")
			return
		}
		checkOut, err := time.Parse(time.RFC3339, req.CheckOut)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "check_out must be RFC3339")
			return
		}
		in.CheckIn = checkIn
		in.CheckOut = checkOut
	}

	rec, err := a.aggregator.Record(r.Context(), actor, in)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) handleLaborSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	userID := strings.TrimSpace(q.Get("user_id"))
	if userID == "" {
		userID = actor.ID
	}
	from, err := parseDateParam(q.Get("from"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "from must be YYYY-MM-DD")
		return
	}
	to, err := parseDateParam(q.Get("to"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "to must be YYYY-MM-DD")
		return
	}
	if from.IsZero() || to.IsZero() {
		writeError(w, r, http.StatusBadRequest, "from and to are required")
		return
	}

	sum, err := a.aggregator.Summarize(r.Context(), actor, userID, strings.TrimSpace(q.Get("site_id")), from, to)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (a *API) handleLaborDaily(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	userID := strings.TrimSpace(q.Get("user_id"))
	if userID == "" {
		userID = actor.ID
	}
	date, err := parseDateParam(q.Get("date"))
	if err != nil || date.IsZero() {
		writeError(w, r, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	perSite, total, err := a.aggregator.DailyTotal(r.Context(), actor, userID, date)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if perSite == nil {
		perSite = []labor.SiteHours{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"date":    date.Format(time.DateOnly),
		"sites":   perSite,
		"total":   total,
	})
}

func parseDateParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, raw)
}
