package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	applog "piggybank/internal/log"
	"piggybank/internal/middleware/ratelimit"
	"piggybank/internal/middleware/security"
	"piggybank/internal/middleware/trace"
	"piggybank/internal/services"
)

// Server wires the HTTP API: deposits, withdrawals, balances, kids and
// allocation settings. All routes except health checks require the
// X-Guardian-ID header.
type Server struct {
	http.Server

	engine   *services.TransactionEngine
	policies *services.PolicyService
	kids     *services.KidService
	queries  *services.QueryService

	rateLimiter  *ratelimit.Limiter
	detector     *security.Detector
	tracer       *trace.Middleware
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, logger *applog.Logger, engine *services.TransactionEngine, policies *services.PolicyService, kids *services.KidService, queries *services.QueryService) *Server {
	s := &Server{
		engine:      engine,
		policies:    policies,
		kids:        kids,
		queries:     queries,
		rateLimiter: ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		detector:    security.NewDetector(),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /kids", s.handleCreateKid)
	mux.HandleFunc("GET /kids", s.handleListKids)
	mux.HandleFunc("GET /kids/{kidID}", s.handleKidDetails)
	mux.HandleFunc("PUT /kids/{kidID}", s.handleUpdateKid)
	mux.HandleFunc("DELETE /kids/{kidID}", s.handleDeleteKid)

	mux.HandleFunc("POST /kids/{kidID}/deposits", s.handleDeposit)
	mux.HandleFunc("POST /kids/{kidID}/withdrawals", s.handleWithdrawal)
	mux.HandleFunc("GET /kids/{kidID}/balances", s.handleBalances)
	mux.HandleFunc("GET /kids/{kidID}/balances/{bucket}", s.handleAvailableBalance)
	mux.HandleFunc("GET /kids/{kidID}/activity", s.handleActivity)

	mux.HandleFunc("GET /totals", s.handleGuardianTotals)

	mux.HandleFunc("GET /settings/allocation", s.handleGetAllocation)
	mux.HandleFunc("PUT /settings/allocation", s.handlePutAllocation)

	headersMW := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	rateMW := s.rateLimiter.Middleware(s.detector.ExtractClientIP, nil)

	// Outermost-in: seed the context logger, trace the request, then
	// enrich the logger with the request id the tracer assigned.
	requestIDMW := applog.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})
	handler := applog.Middleware(logger)(
		s.tracer.Middleware(
			requestIDMW(
				headersMW.Middleware(
					rateMW(s.rejectSuspicious(mux))))))

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// rejectSuspicious drops requests that match known attack patterns.
func (s *Server) rejectSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// AddTrustedProxy registers a proxy network whose forwarded-IP headers
// are honored for client IP extraction.
func (s *Server) AddTrustedProxy(cidr string) error {
	return s.detector.AddTrustedProxy(cidr)
}

type metricsResponse struct {
	TotalRequests         int64 `json:"total_requests"`
	AverageResponseTimeUs int64 `json:"average_response_time_us"`
	SuspiciousRequests    int64 `json:"suspicious_requests"`
	TrackedClients        int   `json:"tracked_clients"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	reqs := s.tracer.GetMetrics()
	sec := s.detector.GetMetrics()
	writeJSON(w, http.StatusOK, metricsResponse{
		TotalRequests:         reqs.TotalRequests,
		AverageResponseTimeUs: reqs.AverageResponseTime,
		SuspiciousRequests:    sec.SuspiciousRequests,
		TrackedClients:        s.rateLimiter.ActiveClients(),
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
