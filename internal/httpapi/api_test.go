package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"siteops.kr/internal/access"
	"siteops.kr/internal/assignment"
	"siteops.kr/internal/auth"
	"siteops.kr/internal/labor"
	"siteops.kr/internal/notify"
	"siteops.kr/internal/report"
)

type testEnv struct {
	handler http.Handler
	tokens  map[string]string
	stream  *notify.Stream
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("SITEOPS_AUTH_SECRET", "api-test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	ctx := t.Context()

	hash, err := auth.HashPassword("pw")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	users := auth.NewMemoryUserStore()
	accounts := []auth.User{
		{ID: "admin-1", Email: "admin@example.kr", Name: "Admin", GlobalRole: access.RoleAdmin, OrganizationID: "org-1", PasswordHash: hash},
		{ID: "manager-1", Email: "manager@example.kr", Name: "Manager", GlobalRole: access.RoleSiteManager, PasswordHash: hash},
		{ID: "worker-1", Email: "worker1@example.kr", Name: "Worker One", GlobalRole: access.RoleWorker, PasswordHash: hash},
		{ID: "worker-2", Email: "worker2@example.kr", Name: "Worker Two", GlobalRole: access.RoleWorker, PasswordHash: hash},
	}
	for i := range accounts {
		if err := users.Insert(ctx, &accounts[i]); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}

	store := assignment.NewMemory()
	store.PutSite(assignment.Site{ID: "site-a", OrganizationID: "org-1", Name: "Tower A"})
	registry, err := assignment.NewRegistry(store)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := registry.Assign(ctx, "admin-1", "manager-1", "site-a", access.LocalSiteManager, start); err != nil {
		t.Fatalf("assign manager: %v", err)
	}
	if _, err := registry.Assign(ctx, "admin-1", "worker-1", "site-a", access.LocalWorker, start); err != nil {
		t.Fatalf("assign worker: %v", err)
	}

	resolver, err := access.NewResolver(registry, registry)
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	aggregator, err := labor.NewAggregator(labor.NewMemory(), registry, resolver)
	if err != nil {
		t.Fatalf("aggregator: %v", err)
	}
	stream := notify.NewStream()
	workflow, err := report.NewWorkflow(report.NewMemory(), resolver,
		report.WithDispatcher(stream),
		report.WithHoursReader(aggregator),
	)
	if err != nil {
		t.Fatalf("workflow: %v", err)
	}

	api := New(ReadyProbe{}, "test", Deps{
		Users:      users,
		Registry:   registry,
		Resolver:   resolver,
		Workflow:   workflow,
		Aggregator: aggregator,
		Stream:     stream,
		TokenTTL:   time.Hour,
	})

	env := &testEnv{handler: api.Handler(), tokens: make(map[string]string), stream: stream}
	for _, u := range accounts {
		token, err := auth.GenerateToken(u.ID, string(u.GlobalRole), u.OrganizationID, time.Hour)
		if err != nil {
			t.Fatalf("token for %s: %v", u.ID, err)
		}
		env.tokens[u.ID] = token
	}
	return env
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[userID])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func TestPublicEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/readyz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/v1/info", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("info = %d", rec.Code)
	}
}

func TestAuthenticationRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/reports", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/reports", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	res := httptest.NewRecorder()
	env.handler.ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token = %d, want 401", res.Code)
	}
}

func TestTokenEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/auth/token", "", map[string]string{
		"email":    "worker1@example.kr",
		"password": "pw",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("token = %d (%s)", rec.Code, rec.Body.String())
	}
	res := decodeBody[tokenResponse](t, rec)
	if res.Token == "" || res.TokenType != "Bearer" || res.UserID != "worker-1" {
		t.Fatalf("unexpected response: %+v", res)
	}

	// The issued token works against a protected endpoint.
	req := httptest.NewRequest(http.MethodGet, "/v1/reports", nil)
	req.Header.Set("Authorization", "Bearer "+res.Token)
	out := httptest.NewRecorder()
	env.handler.ServeHTTP(out, req)
	if out.Code != http.StatusOK {
		t.Fatalf("authenticated list = %d", out.Code)
	}

	rec = env.do(t, http.MethodPost, "/v1/auth/token", "", map[string]string{
		"email":    "worker1@example.kr",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password = %d, want 401", rec.Code)
	}
}

func TestReportLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/reports", "worker-1", map[string]any{
		"site_id":        "site-a",
		"work_date":      "2026-03-02",
		"work_content":   "formwork on level 3",
		"attendance_ids": []string{"att-1"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d (%s)", rec.Code, rec.Body.String())
	}
	created := decodeBody[report.DailyReport](t, rec)
	if created.Status != report.StatusDraft || rec.Header().Get("Location") == "" {
		t.Fatalf("unexpected created report: %+v", created)
	}
	base := "/v1/reports/" + created.ID

	rec = env.do(t, http.MethodPost, base+"/submit", "worker-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit = %d (%s)", rec.Code, rec.Body.String())
	}

	// Submitted reports are immutable.
	content := "changed"
	rec = env.do(t, http.MethodPatch, base, "worker-1", map[string]any{"work_content": content})
	if rec.Code != http.StatusConflict {
		t.Fatalf("edit submitted = %d, want 409", rec.Code)
	}

	rec = env.do(t, http.MethodPost, base+"/approve", "manager-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve = %d (%s)", rec.Code, rec.Body.String())
	}
	approved := decodeBody[report.DailyReport](t, rec)
	if approved.Status != report.StatusApproved || approved.ApproverID != "manager-1" {
		t.Fatalf("unexpected approved report: %+v", approved)
	}

	// Retried approve is idempotent.
	rec = env.do(t, http.MethodPost, base+"/approve", "manager-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("retried approve = %d", rec.Code)
	}

	// A conflicting transition after approval is rejected.
	rec = env.do(t, http.MethodPost, base+"/reject", "manager-1", map[string]string{"reason": "late"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("reject approved = %d, want 409", rec.Code)
	}
}

func TestRejectAndReviseOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/reports", "worker-1", map[string]any{
		"site_id":        "site-a",
		"work_date":      "2026-03-03",
		"work_content":   "rebar",
		"attendance_ids": []string{"att-2"},
	})
	created := decodeBody[report.DailyReport](t, rec)
	base := "/v1/reports/" + created.ID

	if rec := env.do(t, http.MethodPost, base+"/submit", "worker-1", nil); rec.Code != http.StatusOK {
		t.Fatalf("submit = %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, base+"/reject", "manager-1", map[string]string{"reason": "missing photos"})
	if rec.Code != http.StatusOK {
		t.Fatalf("reject = %d (%s)", rec.Code, rec.Body.String())
	}
	rejected := decodeBody[report.DailyReport](t, rec)
	if rejected.Status != report.StatusRejected || rejected.RejectionReason != "missing photos" {
		t.Fatalf("unexpected rejected report: %+v", rejected)
	}

	rec = env.do(t, http.MethodPost, base+"/revise", "worker-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("revise = %d (%s)", rec.Code, rec.Body.String())
	}
	revised := decodeBody[report.DailyReport](t, rec)
	if revised.Status != report.StatusDraft {
		t.Fatalf("status = %v, want draft", revised.Status)
	}
}

func TestDenialCarriesMachineReadableReason(t *testing.T) {
	env := newTestEnv(t)

	// worker-2 has no assignment on site-a.
	rec := env.do(t, http.MethodPost, "/v1/reports", "worker-2", map[string]any{
		"site_id":      "site-a",
		"work_date":    "2026-03-02",
		"work_content": "x",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unassigned create = %d, want 403", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["reason"] != string(access.ReasonNotAssigned) {
		t.Fatalf("reason = %v, want not_assigned", body["reason"])
	}

	// worker-1 is assigned but cannot manage assignments.
	rec = env.do(t, http.MethodPost, "/v1/sites/site-a/assignments", "worker-1", map[string]string{
		"user_id":        "worker-2",
		"role":           "worker",
		"effective_date": "2026-06-01",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("worker assign = %d, want 403", rec.Code)
	}
	body = decodeBody[map[string]any](t, rec)
	if body["reason"] != string(access.ReasonInsufficientRole) {
		t.Fatalf("reason = %v, want insufficient_role", body["reason"])
	}
}

func TestAssignmentEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/sites/site-a/assignments", "admin-1", map[string]string{
		"user_id":        "worker-2",
		"role":           "worker",
		"effective_date": "2026-06-01",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("assign = %d (%s)", rec.Code, rec.Body.String())
	}
	created := decodeBody[assignment.Assignment](t, rec)
	if created.UserID != "worker-2" || created.SiteID != "site-a" {
		t.Fatalf("unexpected assignment: %+v", created)
	}

	// A second open-ended assignment on the same pair conflicts.
	rec = env.do(t, http.MethodPost, "/v1/sites/site-a/assignments", "admin-1", map[string]string{
		"user_id":        "worker-2",
		"role":           "site_manager",
		"effective_date": "2026-07-01",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("overlapping assign = %d, want 409", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/v1/sites/site-a/assignments/worker-2?effective_date=2026-09-01", "admin-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unassign = %d (%s)", rec.Code, rec.Body.String())
	}
	closed := decodeBody[assignment.Assignment](t, rec)
	if closed.EndDate == nil {
		t.Fatalf("expected closed interval, got %+v", closed)
	}

	// Users read their own history; others do not.
	rec = env.do(t, http.MethodGet, "/v1/users/worker-2/assignments", "worker-2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("own history = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/v1/users/worker-2/assignments", "worker-1", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign history = %d, want 403", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/v1/users/worker-2/assignments", "admin-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin history = %d", rec.Code)
	}
}

func TestAttendanceAndSummary(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/attendance", "worker-1", map[string]string{
		"site_id":   "site-a",
		"work_date": "2026-03-02",
		"check_in":  "2026-03-02T08:00:00Z",
		"check_out": "2026-03-02T16:00:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("attendance = %d (%s)", rec.Code, rec.Body.String())
	}
	created := decodeBody[labor.AttendanceRecord](t, rec)
	if created.LaborHours != 1.0 {
		t.Fatalf("labor hours = %v, want 1.0", created.LaborHours)
	}

	rec = env.do(t, http.MethodGet, "/v1/labor/summary?from=2026-03-01&to=2026-03-31", "worker-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary = %d (%s)", rec.Code, rec.Body.String())
	}
	sum := decodeBody[labor.Summary](t, rec)
	if sum.TotalLaborHours != 1.0 || sum.WorkDays != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	// Reversed intervals are a client error, never clamped.
	rec = env.do(t, http.MethodPost, "/v1/attendance", "worker-1", map[string]string{
		"site_id":   "site-a",
		"work_date": "2026-03-03",
		"check_in":  "2026-03-03T16:00:00Z",
		"check_out": "2026-03-03T08:00:00Z",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("reversed interval = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/v1/labor/daily?date=2026-03-02", "worker-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("daily = %d (%s)", rec.Code, rec.Body.String())
	}
	daily := decodeBody[map[string]any](t, rec)
	if total, ok := daily["total"].(float64); !ok || total != 1.0 {
		t.Fatalf("daily total = %v, want 1.0", daily["total"])
	}
}

func TestStreamEventsOverRealConnection(t *testing.T) {
	// A real server, not a ResponseRecorder: ResponseRecorder implements
	// http.Flusher and would mask a wrapper in the chain that does not.
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/reports/events", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+env.tokens["worker-1"])

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	preamble, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read preamble: %v", err)
	}
	if !strings.HasPrefix(preamble, ":") {
		t.Fatalf("preamble = %q, want SSE comment", preamble)
	}

	// The subscription exists once the preamble arrived; dispatch an event
	// and expect it as a data frame.
	if err := env.stream.Dispatch(ctx, report.Event{
		ReportID:   "r-1",
		FromStatus: report.StatusDraft,
		ToStatus:   report.StatusSubmitted,
	}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	var frame string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			frame = strings.TrimPrefix(strings.TrimSpace(line), "data: ")
			break
		}
	}
	var evt report.Event
	if err := json.Unmarshal([]byte(frame), &evt); err != nil {
		t.Fatalf("decode frame %q: %v", frame, err)
	}
	if evt.ReportID != "r-1" || evt.ToStatus != report.StatusSubmitted {
		t.Fatalf("unexpected event: %+v", evt)
	}
}

func TestUnknownRoutesAndMethods(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/nope", "worker-1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown route = %d, want 404", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, "/v1/reports", "worker-1", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("bad method = %d, want 405", rec.Code)
	}
	rec = env.do(t, http.MethodGet, fmt.Sprintf("/v1/reports/%s", "no-such-report"), "worker-1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing report = %d, want 404", rec.Code)
	}
}
