// Package http exposes the childminder services as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"childminder/internal/assistant"
	"childminder/internal/cache"
	applog "childminder/internal/log"
	"childminder/internal/metrics"
	"childminder/internal/middleware/ratelimit"
	"childminder/internal/middleware/security"
	"childminder/internal/middleware/trace"
	"childminder/internal/services"
)

const (
	invoiceCacheSize = 100
	invoiceCacheTTL  = time.Minute
)

// Deps are the services the API serves. Metrics, Logger, Ready, Now and
// TrustedProxies are optional.
type Deps struct {
	Children   *services.ChildService
	Attendance *services.AttendanceService
	Reconciler *services.Reconciler
	Invoices   *services.InvoiceService
	Expenses   *services.ExpenseService
	Tools      *assistant.Tools
	Metrics    *metrics.Metrics
	Logger     *applog.Logger
	Ready      func(ctx context.Context) error
	Now        func() time.Time
	RateLimit  ratelimit.Config

	// TrustedProxies are CIDRs whose forwarded headers are believed.
	TrustedProxies []string
}

type Server struct {
	http.Server
	deps Deps

	structured   *applog.StructuredLogger
	invoiceCache *cache.LRUCache[services.Invoice]
	cacheManager *cache.Manager
	limiter      *ratelimit.Limiter

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = applog.New(applog.DefaultConfig())
	}
	deps.Logger = deps.Logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		deps:         deps,
		structured:   applog.NewStructuredLogger(deps.Logger),
		invoiceCache: cache.NewLRUCache[services.Invoice](invoiceCacheSize, invoiceCacheTTL),
		cacheManager: cache.NewManager(),
		limiter:      ratelimit.NewLimiter(deps.RateLimit),
	}
	s.cacheManager.Register(s.invoiceCache)
	s.cacheManager.StartCleanup(context.Background(), 5*time.Minute)

	mux := http.NewServeMux()
	s.routes(mux)

	detector := security.NewDetector()
	for _, cidr := range deps.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			deps.Logger.Warn("Ignoring trusted proxy", applog.FieldError, err)
		}
	}
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(deps.Logger, detector.ExtractClientIP, deps.Metrics.ObserveRequest)

	var handler http.Handler = mux
	handler = s.limiter.Middleware(detector.ExtractClientIP, s.onRateLimit)(handler)
	handler = detector.Middleware(handler)
	handler = headers.Middleware(handler)
	handler = tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.deps.Metrics.Handler())

	mux.HandleFunc("GET /api/children", s.handleListChildren)
	mux.HandleFunc("POST /api/children", s.handleCreateChild)
	mux.HandleFunc("GET /api/children/{id}", s.handleGetChild)
	mux.HandleFunc("PUT /api/children/{id}", s.handleUpdateChild)
	mux.HandleFunc("GET /api/children/{id}/hours", s.handleChildHours)
	mux.HandleFunc("GET /api/children/{id}/history", s.handleChildHistory)
	mux.HandleFunc("GET /api/children/{id}/status", s.handleChildStatus)

	mux.HandleFunc("GET /api/attendance", s.handleListAttendance)
	mux.HandleFunc("POST /api/children/{id}/check-in", s.handleCheckIn)
	mux.HandleFunc("POST /api/children/{id}/check-out", s.handleCheckOut)
	mux.HandleFunc("PUT /api/attendance/{id}", s.handleEditRecord)
	mux.HandleFunc("DELETE /api/attendance/{id}", s.handleDeleteRecord)
	mux.HandleFunc("POST /api/attendance/{id}/absent", s.handleMarkAbsent)
	mux.HandleFunc("POST /api/reconcile", s.handleReconcile)
	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)

	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)

	mux.HandleFunc("GET /api/children/{id}/invoice", s.handleInvoice)
	mux.HandleFunc("POST /api/children/{id}/invoice/send", s.handleSendInvoice)

	mux.HandleFunc("GET /api/assistant/tools", s.handleListTools)
	mux.HandleFunc("POST /api/assistant/tools/{tool}", s.handleAssistantTool)
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).Logger.WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldComponent, applog.ComponentRateLimit,
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded, try again later")
}

// invalidate drops cached invoices after any attendance or child change.
func (s *Server) invalidate() {
	s.invoiceCache.Purge()
}

// InvalidateCache drops cached invoices after a change made outside the API,
// such as a scheduled reconcile.
func (s *Server) InvalidateCache() {
	s.invalidate()
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			applog.FromContext(ctx).WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
			writeError(w, r, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
