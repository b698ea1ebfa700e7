package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"invokeledger/native/common"
	"invokeledger/native/settlement"
	"invokeledger/observability"
	"invokeledger/services/settlementd/auth"
	settlemw "invokeledger/services/settlementd/middleware"
	"invokeledger/services/settlementd/store"
	"invokeledger/services/settlementd/stream"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	Module      *settlement.Module
	Registry    *store.Registry
	Archive     *store.Archive
	Hub         *stream.Hub
	Pauses      *common.PauseSet
	Auth        *auth.Authenticator
	RateLimiter *settlemw.RateLimiter
	Idempotency *settlemw.Idempotency
	Logger      *slog.Logger
}

// Server exposes the settlement module over HTTP.
type Server struct {
	module   *settlement.Module
	registry *store.Registry
	archive  *store.Archive
	hub      *stream.Hub
	pauses   *common.PauseSet
	auth     *auth.Authenticator
	limiter  *settlemw.RateLimiter
	idem     *settlemw.Idempotency
	logger   *slog.Logger

	router http.Handler
}

func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	authn := cfg.Auth
	if authn == nil {
		authn = auth.NewAuthenticator(auth.Config{}, logger)
	}
	srv := &Server{
		module:   cfg.Module,
		registry: cfg.Registry,
		archive:  cfg.Archive,
		hub:      cfg.Hub,
		pauses:   cfg.Pauses,
		auth:     authn,
		limiter:  cfg.RateLimiter,
		idem:     cfg.Idempotency,
		logger:   logger,
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		if s.limiter != nil {
			api.Use(s.limiter.Middleware("settlementd"))
		}

		api.Get("/accounts", s.getAccounts)
		api.Get("/balances/{account}", s.getBalance)
		api.Get("/assets/{asset}/minimum-tip", s.getMinimumTip)
		api.Get("/assets/{asset}/pools/{fingerprint}", s.getPool)
		api.Get("/assets/{asset}/pools/{fingerprint}/pledges/{account}", s.getPledge)
		api.Get("/assets/{asset}/occurrences/{seq}/price", s.getPrice)
		api.Get("/assets/{asset}/occurrences/{seq}/purchases/{account}", s.getPurchase)
		api.Get("/earnings/{ledger}/{account}", s.getEarnings)
		if s.archive != nil {
			api.Get("/events", s.listEvents)
			if s.hub != nil {
				api.Handle("/events/stream", stream.NewHandler(s.hub, s.archive, s.logger))
			}
		}

		api.Group(func(mutating chi.Router) {
			if s.idem != nil {
				mutating.Use(s.idem.Middleware)
			}

			mutating.Group(func(caller chi.Router) {
				caller.Use(s.auth.Middleware())
				caller.Post("/tips", s.tip)
				caller.Post("/tips/claim", s.claimTips)
				caller.Post("/tips/withdraw", s.withdrawTip)
				caller.Post("/tips/withdraw-batch", s.withdrawTips)
				caller.Put("/assets/{asset}/minimum-tip", s.setMinimumTip)
				caller.Post("/access/purchase", s.purchase)
				caller.Put("/assets/{asset}/occurrences/{seq}/price", s.setPrice)
				caller.Post("/earnings/{ledger}/withdraw", s.withdrawEarnings)
				caller.Post("/earnings/{ledger}/platform/withdraw", s.withdrawPlatformEarnings)
			})

			mutating.Group(func(admin chi.Router) {
				admin.Use(s.auth.Middleware(auth.ScopeAdmin))
				admin.Post("/admin/deposits", s.deposit)
				admin.Put("/admin/pauses/{module}", s.setPause)
			})

			if s.registry != nil {
				mutating.Group(func(oracle chi.Router) {
					oracle.Use(s.auth.Middleware(auth.ScopeOracle))
					oracle.Post("/oracle/occurrences", s.recordOccurrence)
					oracle.Post("/oracle/results", s.recordResult)
					oracle.Put("/oracle/controllers/{asset}", s.setController)
					oracle.Put("/oracle/controllers/{asset}/solvency", s.setSolvency)
				})
			}
		})
	})
	return r
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		observability.ModuleMetrics().Observe("settlementd", r.Method+" "+route, status, time.Since(start))
		s.logger.Debug("request served",
			slog.String("method", r.Method),
			slog.String("path", route),
			slog.Int("status", status),
			slog.String("request_id", chimw.GetReqID(r.Context())),
			slog.Duration("duration", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		writeErrorStatus(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeErrorStatus(w http.ResponseWriter, status int, err error) {
	body, _ := json.Marshal(map[string]string{"error": err.Error()})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
