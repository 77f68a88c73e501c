// Package api exposes the daemon's HTTP control surface: pairing, call
// control (place, answer, hang up), audio toggles and session state.
package api

import (
	"net/http"

	"github.com/addiegupta/xcall/internal/api/middleware"
	"github.com/addiegupta/xcall/internal/audio"
	"github.com/addiegupta/xcall/internal/callsession"
	"github.com/addiegupta/xcall/internal/duration"
	"github.com/addiegupta/xcall/internal/prefs"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router    *chi.Mux
	ctrl      *callsession.Controller
	tracker   *duration.Tracker
	audio     *audio.RouteManager
	prefs     *prefs.Store
	secret    []byte
	collector prometheus.Collector

	limiter     *middleware.RateLimiter
	pairLimiter *middleware.RateLimiter
}

// NewServer creates the control API handler with all routes mounted.
// jwtSecret signs the tokens issued by the pairing endpoint. collector may
// be nil, in which case no /metrics endpoint is mounted.
func NewServer(ctrl *callsession.Controller, tracker *duration.Tracker, routes *audio.RouteManager, pf *prefs.Store, jwtSecret []byte, collector prometheus.Collector) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		ctrl:        ctrl,
		tracker:     tracker,
		audio:       routes,
		prefs:       pf,
		secret:      jwtSecret,
		collector:   collector,
		limiter:     middleware.NewRateLimiter(rate.Limit(20), 40),
		pairLimiter: middleware.NewRateLimiter(rate.Limit(5), 10),
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops the background rate-limiter cleanup goroutines.
func (s *Server) Close() {
	s.limiter.Stop()
	s.pairLimiter.Stop()
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RateLimit(s.limiter))

	if s.collector != nil {
		reg := prometheus.NewRegistry()
		reg.MustRegister(s.collector)
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Pairing is unauthenticated but rate limited harder.
		r.With(middleware.RateLimit(s.pairLimiter)).Post("/pair", s.handlePair)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.secret))

			r.Post("/calls", s.handlePlaceCall)
			r.Post("/notifications/inbound", s.handleInbound)
			r.Get("/calls/active", s.handleActiveCall)
			r.Post("/calls/active/hangup", s.handleHangup)
			r.Post("/calls/active/speaker", s.handleToggleSpeaker)
			r.Post("/calls/active/mute", s.handleToggleMute)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
