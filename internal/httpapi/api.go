// Package httpapi exposes the site-operations core over HTTP: auth token
// issuance, assignment management, the daily-report lifecycle and labor-hour
// aggregation, plus health, readiness and metrics endpoints.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"siteops.kr/internal/access"
	"siteops.kr/internal/assignment"
	"siteops.kr/internal/auth"
	"siteops.kr/internal/labor"
	"siteops.kr/internal/notify"
	"siteops.kr/internal/obs"
	"siteops.kr/internal/report"
)

// ReadyProbe reports whether the service can take traffic (e.g. DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps carries the wired domain services.
type Deps struct {
	Users      auth.UserStore
	Registry   *assignment.Registry
	Resolver   *access.Resolver
	Workflow   *report.Workflow
	Aggregator *labor.Aggregator
	Stream     *notify.Stream
	TokenTTL   time.Duration
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	users      auth.UserStore
	registry   *assignment.Registry
	resolver   *access.Resolver
	workflow   *report.Workflow
	aggregator *labor.Aggregator
	stream     *notify.Stream
	tokenTTL   time.Duration
}

// New builds the router.
func New(rp ReadyProbe, version string, deps Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		users:      deps.Users,
		registry:   deps.Registry,
		resolver:   deps.Resolver,
		workflow:   deps.Workflow,
		aggregator: deps.Aggregator,
		stream:     deps.Stream,
		tokenTTL:   deps.TokenTTL,
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = 12 * time.Hour
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/token", a.handleToken)

	a.mux.HandleFunc("/v1/sites/", a.handleSiteSubresources)
	a.mux.HandleFunc("/v1/users/", a.handleUserSubresources)

	a.mux.HandleFunc("/v1/reports", a.handleReportsCollection)
	a.mux.HandleFunc("/v1/reports/events", a.StreamEvents)
	a.mux.HandleFunc("/v1/reports/", a.handleReportResource)

	a.mux.HandleFunc("/v1/attendance", a.handleAttendance)
	a.mux.HandleFunc("/v1/labor/summary", a.handleLaborSummary)
	a.mux.HandleFunc("/v1/labor/daily", a.handleLaborDaily)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the instrumented handler for the server.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.withAuth(a.mux))
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "siteops-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "siteops-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleDomainError maps domain sentinels to HTTP statuses. Denials carry
// their machine-readable reason so clients can distinguish not_assigned from
// wrong_state without parsing prose.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var denied *access.DeniedError
	if errors.As(err, &denied) {
		obs.AccessDenial(string(denied.Reason))
		payload := map[string]any{
			"error":  denied.Error(),
			"reason": string(denied.Reason),
		}
		if rid := RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		writeJSON(w, http.StatusForbidden, payload)
		return
	}

	switch {
	case errors.Is(err, assignment.ErrNotAssigned):
		obs.AccessDenial(string(access.ReasonNotAssigned))
		payload := map[string]any{
			"error":  err.Error(),
			"reason": string(access.ReasonNotAssigned),
		}
		if rid := RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		writeJSON(w, http.StatusForbidden, payload)
	case errors.Is(err, assignment.ErrOverlap),
		errors.Is(err, report.ErrWrongState),
		errors.Is(err, report.ErrImmutableReport),
		errors.Is(err, report.ErrConcurrentModification):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, report.ErrIncompleteReport):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, assignment.ErrSiteNotFound),
		errors.Is(err, report.ErrNotFound),
		errors.Is(err, labor.ErrNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, assignment.ErrInvalidInput),
		errors.Is(err, report.ErrInvalidInput),
		errors.Is(err, labor.ErrInvalidInput),
		errors.Is(err, labor.ErrInvalidInterval),
		errors.Is(err, labor.ErrOutOfRange):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
