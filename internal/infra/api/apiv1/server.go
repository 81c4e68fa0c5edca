// File: internal/infra/api/apiv1/server.go
package apiv1

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"billz/internal/domain"
	"billz/internal/domain/model"
	"billz/internal/infra/api"
	"billz/internal/infra/logging"
	"billz/internal/infra/metrics"
	"billz/internal/usecase"
)

const (
	PaymentHeader = "X-PAYMENT"
	maxBodyBytes  = 1 << 20
)

// HealthCheck is reported under its name on /health.
type HealthCheck func(ctx context.Context) error

type Options struct {
	RequestTimeout time.Duration
	RateLimiter    api.Limiter
	RateLimit      int
	RateWindow     time.Duration
	RateKey        func(client, route string) string
	Auth           *api.AuthManager // nil disables the admin routes
	Checks         map[string]HealthCheck
	Dev            bool
}

type Server struct {
	intake  usecase.IntakeUseCase
	status  usecase.StatusUseCase
	refunds usecase.RefundUseCase
	opts    Options
	log     *zerolog.Logger
}

func NewServer(intake usecase.IntakeUseCase, status usecase.StatusUseCase, refunds usecase.RefundUseCase, opts Options, logger *zerolog.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = time.Minute
	}
	if opts.RateKey == nil {
		opts.RateKey = func(client, route string) string { return "rl:" + route + ":" + client }
	}
	l := logger.With().Str("component", "http").Logger()
	return &Server{intake: intake, status: status, refunds: refunds, opts: opts, log: &l}
}

// Routes builds the public and admin router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(api.TraceID())
	r.Use(api.Recover(s.log))
	r.Use(api.RequestLog(s.log))
	r.Use(api.Metrics())

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(api.Timeout(s.opts.RequestTimeout))
		r.With(api.RateLimit(s.opts.RateLimiter, "intake", s.opts.RateLimit, s.opts.RateWindow, s.opts.RateKey, s.log)).
			Post("/api/execute-automation", s.handleExecute)
		r.Get("/api/job/{jobId}/status", s.handleStatus)
	})

	if s.opts.Auth != nil && s.refunds != nil {
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(api.Timeout(s.opts.RequestTimeout))
			r.Use(api.RequireAdmin(s.opts.Auth, s.log))
			r.Get("/refunds", s.handleListRefunds)
			r.Post("/refunds/{paymentId}/approve", s.handleApproveRefund)
		})
	}
	return r
}

type executeRequest struct {
	AutomationID string          `json:"automationId"`
	Params       json.RawMessage `json:"params"`
}

type x402Body struct {
	X402Version int                          `json:"x402Version"`
	Error       string                       `json:"error"`
	Accepts     []*model.PaymentRequirements `json:"accepts"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	log := logging.With(r.Context(), s.log)

	var req executeRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid request body"})
		return
	}
	req.AutomationID = strings.TrimSpace(req.AutomationID)
	if req.AutomationID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "automationId is required"})
		return
	}

	res, err := s.intake.Submit(r.Context(), usecase.SubmitRequest{
		AutomationID: req.AutomationID,
		Params:       req.Params,
		ProofHeader:  r.Header.Get(PaymentHeader),
	})
	if err != nil {
		var pr *usecase.PaymentRequiredError
		switch {
		case errors.As(err, &pr) && pr.Missing:
			writeJSON(w, http.StatusPaymentRequired, x402Body{
				X402Version: model.X402Version,
				Error:       "X-PAYMENT header is required",
				Accepts:     []*model.PaymentRequirements{pr.Requirements},
			})
		case errors.As(err, &pr):
			writeJSON(w, http.StatusPaymentRequired, map[string]any{"error": "Invalid payment", "reason": pr.Reason})
		case errors.Is(err, domain.ErrUnknownAutomation):
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Unknown automation", "automationId": req.AutomationID})
		case errors.Is(err, domain.ErrInvalidArgument):
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid request", "details": err.Error()})
		case errors.Is(err, domain.ErrDuplicatePayment):
			writeJSON(w, http.StatusConflict, map[string]any{"error": "Payment already used"})
		default:
			log.Error().Err(err).Str("automation_id", req.AutomationID).Msg("execute automation failed")
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Internal server error", "details": err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"jobId":     res.JobID,
		"status":    res.Status,
		"statusUrl": res.StatusURL,
		"message":   "Payment verified. Automation queued for execution.",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	st, err := s.status.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "Job not found", "jobId": jobID})
			return
		}
		log := logging.With(r.Context(), s.log)
		log.Error().Err(err).Str("job_id", jobID).Msg("status lookup failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Internal server error", "details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var (
		mu     sync.Mutex
		g      errgroup.Group
		checks = make(map[string]string, len(s.opts.Checks))
		code   = http.StatusOK
	)
	for name, fn := range s.opts.Checks {
		name, fn := name, fn
		g.Go(func() error {
			res := "ok"
			if err := fn(ctx); err != nil {
				res = err.Error()
			}
			mu.Lock()
			defer mu.Unlock()
			checks[name] = res
			if res != "ok" {
				code = http.StatusServiceUnavailable
			}
			return nil
		})
	}
	_ = g.Wait()
	status := "ok"
	if code != http.StatusOK {
		status = "degraded"
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": checks, "time": time.Now().UTC()})
}

type refundView struct {
	PaymentID         string             `json:"paymentId"`
	AutomationID      string             `json:"automationId"`
	Amount            string             `json:"amount"`
	RefundStatus      model.RefundStatus `json:"refundStatus"`
	RefundReason      *string            `json:"refundReason,omitempty"`
	RefundTxReference *string            `json:"refundTxReference,omitempty"`
	RefundedAt        *time.Time         `json:"refundedAt,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
}

func (s *Server) handleListRefunds(w http.ResponseWriter, r *http.Request) {
	st := model.RefundStatus(r.URL.Query().Get("status"))
	if st == "" {
		st = model.RefundStatusPending
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	ps, err := s.refunds.List(r.Context(), st, limit)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			metrics.IncAdminAction("list_refunds", "invalid")
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid refund status", "status": st})
			return
		}
		metrics.IncAdminAction("list_refunds", "error")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Internal server error", "details": err.Error()})
		return
	}

	out := make([]refundView, 0, len(ps))
	for _, p := range ps {
		out = append(out, refundView{
			PaymentID:         p.ID,
			AutomationID:      p.AutomationID,
			Amount:            strconv.FormatInt(p.Amount, 10),
			RefundStatus:      p.RefundStatusOrNone(),
			RefundReason:      p.RefundReason,
			RefundTxReference: p.RefundTxReference,
			RefundedAt:        p.RefundedAt,
			CreatedAt:         p.CreatedAt,
		})
	}
	metrics.IncAdminAction("list_refunds", "ok")
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handleApproveRefund(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "paymentId")
	err := s.refunds.Approve(r.Context(), id)
	switch {
	case err == nil:
		metrics.IncAdminAction("approve_refund", "ok")
		writeJSON(w, http.StatusOK, map[string]any{"paymentId": id, "refundStatus": model.RefundStatusApproved})
	case errors.Is(err, domain.ErrNotFound):
		metrics.IncAdminAction("approve_refund", "not_found")
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Payment not found", "paymentId": id})
	case errors.Is(err, domain.ErrConflict):
		metrics.IncAdminAction("approve_refund", "conflict")
		writeJSON(w, http.StatusConflict, map[string]any{"error": "Refund is not pending", "paymentId": id})
	default:
		metrics.IncAdminAction("approve_refund", "error")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Internal server error", "details": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
