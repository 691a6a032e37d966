package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	applog "conti/internal/log"
	"conti/internal/middleware/ratelimit"
	"conti/internal/middleware/security"
	"conti/internal/middleware/trace"
	"conti/internal/report"
	"conti/internal/services"
)

// ReadyFunc reports whether the server's dependencies are reachable.
type ReadyFunc func(ctx context.Context) error

// Deps are the collaborators a Server routes requests to. Limiter and
// Ready are optional.
type Deps struct {
	Engine  *report.Engine
	Ledger  *services.LedgerService
	Ready   ReadyFunc
	Limiter *ratelimit.Limiter
	Logger  *applog.Logger
}

// Server is the JSON API: report views, a balance chart, category and
// expense writes, and health checks.
type Server struct {
	http.Server

	engine  *report.Engine
	ledger  *services.LedgerService
	ready   ReadyFunc
	limiter *ratelimit.Limiter
	tracer  *trace.Middleware
	logger  *applog.Logger
	started time.Time

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = applog.New(applog.Config{Level: slog.LevelInfo, Component: applog.ComponentHTTP})
	}

	s := &Server{
		engine:  d.Engine,
		ledger:  d.Ledger,
		ready:   d.Ready,
		limiter: d.Limiter,
		tracer:  trace.NewMiddleware(logger.Slog()),
		logger:  logger,
		started: time.Now(),
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/reports/balance.png", s.handleBalanceChart)
	api.HandleFunc("GET /api/reports/{kind}", s.handleReport)
	api.HandleFunc("GET /api/categories", s.handleListCategories)
	api.HandleFunc("POST /api/categories", s.handleCreateCategory)
	api.HandleFunc("DELETE /api/categories/{id}", s.handleDeleteCategory)
	api.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	api.HandleFunc("PUT /api/expenses/{id}", s.handleUpdateExpense)
	api.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)

	var apiHandler http.Handler = api
	if s.limiter != nil {
		apiHandler = s.limiter.Middleware(ratelimit.ClientIP, nil)(apiHandler)
	}

	root := http.NewServeMux()
	root.Handle("/api/", apiHandler)
	root.HandleFunc("GET /healthz", s.handleHealth)
	root.HandleFunc("GET /readyz", s.handleReady)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	var h http.Handler = root
	h = headers.Middleware(h)
	h = applog.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})(h)
	h = applog.Middleware(logger)(h)
	h = s.tracer.Handler(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Metrics returns request counters collected by the trace middleware.
func (s *Server) Metrics() trace.Metrics {
	return s.tracer.GetMetrics()
}

// Shutdown stops the limiter cleanup and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		err = s.Server.Shutdown(ctx)
	})
	return err
}
