package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"childminder/internal/assistant"
	"childminder/internal/core"
	applog "childminder/internal/log"
	"childminder/internal/metrics"
	"childminder/internal/middleware/ratelimit"
	"childminder/internal/repository"
	"childminder/internal/services"
	"childminder/internal/storage/memory"
)

// wednesday is 2025-01-15 09:00 UTC.
var wednesday = time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu       sync.Mutex
	childIDs []string
}

func (p *recordingPublisher) PublishInvoiceDispatch(_ context.Context, childID string, _ time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.childIDs = append(p.childIDs, childID)
	return nil
}

type testEnv struct {
	server    *Server
	clock     *testClock
	publisher *recordingPublisher
}

type envOption func(d *Deps, repo *repository.Repository)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	clock := &testClock{now: wednesday}

	n := 0
	repo := repository.New(memory.New(),
		repository.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
		repository.WithClock(clock.Now))

	svcOpts := []services.Option{services.WithLocation(time.UTC), services.WithClock(clock.Now)}
	reconciler := services.NewReconciler(repo, svcOpts...)
	children := services.NewChildService(repo, svcOpts...)
	attendance := services.NewAttendanceService(repo, reconciler, svcOpts...)
	publisher := &recordingPublisher{}

	deps := Deps{
		Children:   children,
		Attendance: attendance,
		Reconciler: reconciler,
		Invoices:   services.NewInvoiceService(repo, publisher, "£", svcOpts...),
		Expenses:   services.NewExpenseService(repo),
		Tools:      assistant.NewTools(children, attendance, "£"),
		Metrics:    metrics.New(),
		Logger:     applog.New(applog.Config{Level: slog.LevelError, Format: "json", Output: io.Discard}),
		Now:        clock.Now,
		RateLimit:  ratelimit.Config{RequestsPerMinute: 1000},
	}
	for _, opt := range opts {
		opt(&deps, repo)
	}

	srv := NewServer(":0", deps)
	t.Cleanup(func() {
		srv.cacheManager.Stop()
		srv.limiter.Stop()
	})
	return &testEnv{server: srv, clock: clock, publisher: publisher}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

type outcomeBody[T any] struct {
	Outcome string `json:"outcome"`
	Data    T      `json:"data"`
}

func (e *testEnv) createChild(t *testing.T, body string) core.Child {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/children", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create child: status %d body %s", rec.Code, rec.Body.String())
	}
	return decode[outcomeBody[core.Child]](t, rec).Data
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthz: %d %q", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("readyz: %d", rec.Code)
	}

	failing := newTestEnv(t, func(d *Deps, _ *repository.Repository) {
		d.Ready = func(context.Context) error { return errors.New("store unreachable") }
	})
	if rec := failing.do(t, http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("failing readyz: %d", rec.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/children/missing", nil)
	req.Header.Set("X-Request-ID", "5b1c1f2e-8a53-4a0e-9e38-2f4d3c9a7b10")
	rec = httptest.NewRecorder()
	env.server.Handler.ServeHTTP(rec, req)
	body := decode[errorResponse](t, rec)
	if body.RequestID != "5b1c1f2e-8a53-4a0e-9e38-2f4d3c9a7b10" {
		t.Errorf("request id = %q", body.RequestID)
	}
}

func TestChildren(t *testing.T) {
	env := newTestEnv(t)

	leo := env.createChild(t, `{"name":"Leo","rate":"12.50","email":"parent@example.com"}`)
	if leo.ID == "" || !leo.Active || leo.Rate.String() != "12.5" {
		t.Fatalf("unexpected child %+v", leo)
	}

	rec := env.do(t, http.MethodGet, "/api/children/"+leo.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}

	t.Run("update keeps active when omitted", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, "/api/children/"+leo.ID, `{"name":"Leo B","rate":15}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
		}
		got := decode[outcomeBody[core.Child]](t, rec).Data
		if got.Name != "Leo B" || !got.Active {
			t.Errorf("unexpected child %+v", got)
		}
	})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown child", http.MethodGet, "/api/children/missing", "", http.StatusNotFound},
		{"update unknown child", http.MethodPut, "/api/children/missing", `{"name":"X"}`, http.StatusNotFound},
		{"empty name", http.MethodPost, "/api/children", `{"name":"  "}`, http.StatusUnprocessableEntity},
		{"negative rate", http.MethodPost, "/api/children", `{"name":"Mia","rate":-1}`, http.StatusUnprocessableEntity},
		{"bad schedule", http.MethodPost, "/api/children", `{"name":"Mia","schedule":{"enabled":true,"days":[9],"start":"08:00","end":"17:00"}}`, http.StatusUnprocessableEntity},
		{"malformed json", http.MethodPost, "/api/children", `{"name":`, http.StatusBadRequest},
		{"empty body", http.MethodPost, "/api/children", "", http.StatusBadRequest},
		{"hours of unknown child", http.MethodGet, "/api/children/missing/hours", "", http.StatusNotFound},
		{"history of unknown child", http.MethodGet, "/api/children/missing/history", "", http.StatusNotFound},
		{"status of unknown child", http.MethodGet, "/api/children/missing/status", "", http.StatusNotFound},
		{"bad status day", http.MethodGet, "/api/children/" + leo.ID + "/status?day=15-01-2025", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestCheckInCheckOut(t *testing.T) {
	env := newTestEnv(t)
	leo := env.createChild(t, `{"name":"Leo","rate":10}`)

	rec := env.do(t, http.MethodPost, "/api/children/"+leo.ID+"/check-in", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("check in: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/children/"+leo.ID+"/check-in", "")
	if rec.Code != http.StatusOK || decode[outcomeBody[any]](t, rec).Outcome != "noop" {
		t.Errorf("second check in: %d %s", rec.Code, rec.Body.String())
	}

	status := decode[statusResponse](t, env.do(t, http.MethodGet, "/api/children/"+leo.ID+"/status", ""))
	if status.Status != core.StatusCheckedIn || status.Day != "2025-01-15" {
		t.Errorf("status = %+v", status)
	}

	env.clock.Advance(2 * time.Hour)
	rec = env.do(t, http.MethodPost, "/api/children/"+leo.ID+"/check-out", "")
	if rec.Code != http.StatusOK || decode[outcomeBody[core.AttendanceRecord]](t, rec).Outcome != "ok" {
		t.Fatalf("check out: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/children/"+leo.ID+"/check-out", "")
	if decode[outcomeBody[any]](t, rec).Outcome != "noop" {
		t.Errorf("second check out: %s", rec.Body.String())
	}

	if rec := env.do(t, http.MethodPost, "/api/children/missing/check-in", ""); rec.Code != http.StatusNotFound {
		t.Errorf("check in unknown child: %d", rec.Code)
	}

	hours := decode[services.ChildHours](t, env.do(t, http.MethodGet, "/api/children/"+leo.ID+"/hours", ""))
	if hours.Total != 2 {
		t.Errorf("total hours = %v, want 2", hours.Total)
	}
	history := decode[[]core.AttendanceRecord](t, env.do(t, http.MethodGet, "/api/children/"+leo.ID+"/history", ""))
	if len(history) != 1 {
		t.Errorf("history has %d records, want 1", len(history))
	}
	all := decode[[]core.AttendanceRecord](t, env.do(t, http.MethodGet, "/api/attendance?childId="+leo.ID, ""))
	if len(all) != 1 {
		t.Errorf("attendance has %d records, want 1", len(all))
	}
}

func TestEditAndDeleteRecord(t *testing.T) {
	env := newTestEnv(t)
	leo := env.createChild(t, `{"name":"Leo","rate":10}`)
	rec := env.do(t, http.MethodPost, "/api/children/"+leo.ID+"/check-in", "")
	record := decode[outcomeBody[core.AttendanceRecord]](t, rec).Data

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"valid edit", "/api/attendance/" + record.ID, `{"startTime":"2025-01-15T08:00:00Z","endTime":"2025-01-15T12:00:00Z"}`, http.StatusOK},
		{"reopen", "/api/attendance/" + record.ID, `{"startTime":"2025-01-15T08:00:00Z","endTime":null}`, http.StatusOK},
		{"missing start", "/api/attendance/" + record.ID, `{"endTime":"2025-01-15T12:00:00Z"}`, http.StatusUnprocessableEntity},
		{"malformed time", "/api/attendance/" + record.ID, `{"startTime":"yesterday"}`, http.StatusBadRequest},
		{"unknown record", "/api/attendance/missing", `{"startTime":"2025-01-15T08:00:00Z"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPut, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	if rec := env.do(t, http.MethodDelete, "/api/attendance/"+record.ID, ""); rec.Code != http.StatusOK {
		t.Errorf("delete: %d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/api/attendance/"+record.ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete: %d", rec.Code)
	}
}

func TestDashboardAndMarkAbsent(t *testing.T) {
	env := newTestEnv(t)
	env.createChild(t, `{"name":"Walk-in","rate":10}`)
	sam := env.createChild(t, `{"name":"Sam","rate":10,"schedule":{"enabled":true,"days":[1,2,3,4,5],"start":"08:00","end":"17:00"}}`)

	d := decode[services.Dashboard](t, env.do(t, http.MethodGet, "/api/dashboard", ""))
	if d.Materialized != 1 || d.Expected != 1 || len(d.Children) != 2 {
		t.Fatalf("dashboard = %+v", d)
	}
	first := d.Children[0]
	if first.Child.ID != sam.ID || first.Status != core.StatusScheduled || first.Record == nil {
		t.Fatalf("scheduled child should sort first, got %+v", first)
	}

	rec := env.do(t, http.MethodPost, "/api/attendance/"+first.Record.ID+"/absent", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("mark absent: %d %s", rec.Code, rec.Body.String())
	}

	created := decode[map[string]int](t, env.do(t, http.MethodPost, "/api/reconcile", ""))
	if created["created"] != 0 {
		t.Errorf("absent day was materialized again: %v", created)
	}
	status := decode[statusResponse](t, env.do(t, http.MethodGet, "/api/children/"+sam.ID+"/status", ""))
	if status.Status != core.StatusNone {
		t.Errorf("status after absence = %q", status.Status)
	}

	if rec := env.do(t, http.MethodPost, "/api/attendance/missing/absent", ""); rec.Code != http.StatusNotFound {
		t.Errorf("absent unknown record: %d", rec.Code)
	}
}

func TestInvoice(t *testing.T) {
	env := newTestEnv(t)
	leo := env.createChild(t, `{"name":"Leo","rate":10,"email":"parent@example.com"}`)

	inv := decode[services.Invoice](t, env.do(t, http.MethodGet, "/api/children/"+leo.ID+"/invoice", ""))
	if inv.Number != "INV-2025-01-LEO" || len(inv.Lines) != 0 {
		t.Fatalf("empty invoice = %+v", inv)
	}

	env.do(t, http.MethodPost, "/api/children/"+leo.ID+"/check-in", "")
	env.clock.Advance(2 * time.Hour)
	env.do(t, http.MethodPost, "/api/children/"+leo.ID+"/check-out", "")

	inv = decode[services.Invoice](t, env.do(t, http.MethodGet, "/api/children/"+leo.ID+"/invoice", ""))
	if len(inv.Lines) != 1 || inv.TotalHours != 2 || inv.TotalCost.String() != "20" {
		t.Errorf("cached invoice was not refreshed: %+v", inv)
	}

	rec := env.do(t, http.MethodGet, "/api/children/"+leo.ID+"/invoice?format=text", "")
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
	for _, want := range []string{"INV-2025-01-LEO", "Total Hours: 2.00 hrs", "Total Due: £20.00"} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("text invoice missing %q:\n%s", want, rec.Body.String())
		}
	}

	if rec := env.do(t, http.MethodGet, "/api/children/missing/invoice", ""); rec.Code != http.StatusNotFound {
		t.Errorf("invoice of unknown child: %d", rec.Code)
	}
}

func TestInvoiceCacheDroppedAfterScheduledReconcile(t *testing.T) {
	var reconciler *services.Reconciler
	env := newTestEnv(t, func(d *Deps, _ *repository.Repository) { reconciler = d.Reconciler })
	ava := env.createChild(t, `{"name":"Ava","rate":10,"schedule":{"enabled":true,"days":[3],"start":"08:00","end":"10:00"}}`)

	path := "/api/children/" + ava.ID + "/invoice"
	if inv := decode[services.Invoice](t, env.do(t, http.MethodGet, path, "")); len(inv.Lines) != 0 {
		t.Fatalf("invoice before reconcile = %+v", inv)
	}

	processor := services.NewScheduleProcessor(reconciler, services.ScheduleProcessorConfig{
		OnMaterialized: func(int) { env.server.InvalidateCache() },
	})
	if created := processor.RunOnce(context.Background()); created != 1 {
		t.Fatalf("RunOnce created %d, want 1", created)
	}

	inv := decode[services.Invoice](t, env.do(t, http.MethodGet, path, ""))
	if len(inv.Lines) != 1 || inv.TotalHours != 2 {
		t.Errorf("invoice still cached after scheduled reconcile: %+v", inv)
	}
}

func TestSendInvoice(t *testing.T) {
	env := newTestEnv(t)
	leo := env.createChild(t, `{"name":"Leo","rate":10,"email":"parent@example.com"}`)
	mia := env.createChild(t, `{"name":"Mia","rate":10}`)

	if rec := env.do(t, http.MethodPost, "/api/children/"+leo.ID+"/invoice/send", ""); rec.Code != http.StatusAccepted {
		t.Errorf("send: %d %s", rec.Code, rec.Body.String())
	}
	if len(env.publisher.childIDs) != 1 || env.publisher.childIDs[0] != leo.ID {
		t.Errorf("published %v", env.publisher.childIDs)
	}
	if rec := env.do(t, http.MethodPost, "/api/children/"+mia.ID+"/invoice/send", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("send without email: %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/children/missing/invoice/send", ""); rec.Code != http.StatusNotFound {
		t.Errorf("send to unknown child: %d", rec.Code)
	}

	noBroker := newTestEnv(t, func(d *Deps, repo *repository.Repository) {
		d.Invoices = services.NewInvoiceService(repo, nil, "£")
	})
	sam := noBroker.createChild(t, `{"name":"Sam","email":"parent@example.com"}`)
	if rec := noBroker.do(t, http.MethodPost, "/api/children/"+sam.ID+"/invoice/send", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("send without broker: %d", rec.Code)
	}
}

func TestExpenses(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/expenses", `{"description":"Crayons","amount":"4.50"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add expense: %d %s", rec.Code, rec.Body.String())
	}
	env.do(t, http.MethodPost, "/api/expenses", `{"description":"Snacks","amount":3}`)

	if rec := env.do(t, http.MethodPost, "/api/expenses", `{"description":"","amount":1}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty description: %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/expenses", `{"description":"Refund","amount":-2}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("negative amount: %d", rec.Code)
	}

	report := decode[services.ExpenseReport](t, env.do(t, http.MethodGet, "/api/expenses", ""))
	if len(report.Expenses) != 2 || report.Total.String() != "7.5" {
		t.Errorf("report = %+v", report)
	}
	if report.Expenses[0].Type != core.ExpenseType {
		t.Errorf("type = %q", report.Expenses[0].Type)
	}
}

func TestAssistantTools(t *testing.T) {
	env := newTestEnv(t)
	env.createChild(t, `{"name":"Leo","rate":10}`)

	names := decode[map[string][]string](t, env.do(t, http.MethodGet, "/api/assistant/tools", ""))
	if len(names["tools"]) != 5 {
		t.Errorf("tools = %v", names)
	}

	rec := env.do(t, http.MethodPost, "/api/assistant/tools/checkInChild", `{"name":"leo"}`)
	res := decode[assistant.Result](t, rec)
	if rec.Code != http.StatusOK || !res.RequiresReload || !strings.Contains(res.Message, "checked in Leo") {
		t.Errorf("check in via assistant: %d %+v", rec.Code, res)
	}

	rec = env.do(t, http.MethodPost, "/api/assistant/tools/listChildren", "")
	if rec.Code != http.StatusOK || !strings.Contains(decode[assistant.Result](t, rec).Message, "Leo") {
		t.Errorf("list children via assistant: %d %s", rec.Code, rec.Body.String())
	}

	if rec := env.do(t, http.MethodPost, "/api/assistant/tools/launchRocket", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown tool: %d", rec.Code)
	}
}

func TestRateLimitOnlyAppliesToMutations(t *testing.T) {
	env := newTestEnv(t, func(d *Deps, _ *repository.Repository) {
		d.RateLimit = ratelimit.Config{RequestsPerMinute: 2}
	})

	for i := 0; i < 5; i++ {
		if rec := env.do(t, http.MethodGet, "/api/children", ""); rec.Code != http.StatusOK {
			t.Fatalf("read %d limited: %d", i, rec.Code)
		}
	}

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = env.do(t, http.MethodPost, "/api/expenses", `{"description":"Glue","amount":1}`)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Errorf("third write: %d, want 429", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/api/children", "")

	rec := env.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `childminder_http_requests_total{method="GET",route="GET /api/children",status="200"}`) {
		t.Errorf("request counter missing from:\n%s", rec.Body.String())
	}

	bare := newTestEnv(t, func(d *Deps, _ *repository.Repository) { d.Metrics = nil })
	if rec := bare.do(t, http.MethodGet, "/metrics", ""); rec.Code != http.StatusNotFound {
		t.Errorf("metrics without registry: %d", rec.Code)
	}
}
