// Package httpapi exposes the platform over HTTP. Every mutating route is
// dispatched through the orchestrator with its route policy; reads go
// straight to the services.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	bookingsvc "github.com/driveline/platform/internal/app/services/booking"
	contentsvc "github.com/driveline/platform/internal/app/services/content"
	"github.com/driveline/platform/internal/app/services/payments"
	referralsvc "github.com/driveline/platform/internal/app/services/referral"
	"github.com/driveline/platform/internal/middleware"
	"github.com/driveline/platform/internal/orchestrator"
	"github.com/driveline/platform/pkg/logger"
)

// Route names used for policy lookup and metrics labels.
const (
	RouteContentSave   = "content.save"
	RouteHoursSet      = "hours.set"
	RouteLessonBook    = "lesson.book"
	RouteLessonCancel  = "lesson.cancel"
	RouteCheckout      = "checkout.create"
	RouteReferralMint  = "referral.create"
	RouteReferralClaim = "referral.redeem"
)

// Config holds the HTTP server settings.
type Config struct {
	JWTSecret []byte
	// IPRatePerSecond and IPBurst configure the transport limiter.
	IPRatePerSecond float64
	IPBurst         int
	// Policies overrides the per-route orchestrator policy by route name.
	Policies map[string]orchestrator.RouteConfig
}

// DefaultConfig returns the default transport configuration. Every mutating
// route requires an authenticated caller except the payment webhook, which
// the provider signs instead.
func DefaultConfig() Config {
	return Config{
		IPRatePerSecond: 50,
		IPBurst:         100,
		Policies: map[string]orchestrator.RouteConfig{
			RouteContentSave:   {Route: RouteContentSave, Priority: orchestrator.PriorityMedium, MaxRetries: 2, RequireAuth: true},
			RouteHoursSet:      {Route: RouteHoursSet, Priority: orchestrator.PriorityMedium, MaxRetries: 2, RequireAuth: true},
			RouteLessonBook:    {Route: RouteLessonBook, Priority: orchestrator.PriorityHigh, MaxRetries: 2, RequireAuth: true},
			RouteLessonCancel:  {Route: RouteLessonCancel, Priority: orchestrator.PriorityHigh, MaxRetries: 2, RequireAuth: true},
			RouteCheckout:      {Route: RouteCheckout, Priority: orchestrator.PriorityHigh, MaxRetries: 1, RequireAuth: true},
			RouteReferralMint:  {Route: RouteReferralMint, Priority: orchestrator.PriorityLow, MaxRetries: 2, RequireAuth: true},
			RouteReferralClaim: {Route: RouteReferralClaim, Priority: orchestrator.PriorityLow, MaxRetries: 2, RequireAuth: true},
		},
	}
}

// Server routes HTTP traffic to the services.
type Server struct {
	cfg      Config
	orch     *orchestrator.Orchestrator
	content  *contentsvc.Service
	booking  *bookingsvc.Service
	payments *payments.Service
	referral *referralsvc.Service
	registry *prometheus.Registry
	logger   *logger.Logger
}

// NewServer builds the HTTP server facade.
func NewServer(
	cfg Config,
	orch *orchestrator.Orchestrator,
	content *contentsvc.Service,
	booking *bookingsvc.Service,
	pay *payments.Service,
	referral *referralsvc.Service,
	registry *prometheus.Registry,
	log *logger.Logger,
) *Server {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	if cfg.Policies == nil {
		cfg.Policies = DefaultConfig().Policies
	}
	if cfg.IPRatePerSecond <= 0 {
		cfg.IPRatePerSecond = DefaultConfig().IPRatePerSecond
	}
	if cfg.IPBurst <= 0 {
		cfg.IPBurst = DefaultConfig().IPBurst
	}
	return &Server{
		cfg:      cfg,
		orch:     orch,
		content:  content,
		booking:  booking,
		payments: pay,
		referral: referral,
		registry: registry,
		logger:   log,
	}
}

// Router assembles the chi router with the middleware chain.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RateLimit(s.cfg.IPRatePerSecond, s.cfg.IPBurst))
	r.Use(middleware.Auth(s.cfg.JWTSecret, s.logger))

	r.Get("/healthz", s.handleHealth)
	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/content/{page}", s.handleContentLoad)
		r.Put("/content/{page}/{key}", s.handleContentSave)

		r.Get("/instructors/{id}/hours", s.handleHoursGet)
		r.Put("/instructors/{id}/hours", s.handleHoursSet)
		r.Get("/instructors/{id}/availability", s.handleAvailability)

		r.Post("/lessons", s.handleLessonBook)
		r.Delete("/lessons/{id}", s.handleLessonCancel)

		r.Post("/checkout", s.handleCheckout)
		r.Post("/webhooks/payment", s.handlePaymentWebhook)

		r.Post("/referrals", s.handleReferralCreate)
		r.Post("/referrals/redeem", s.handleReferralRedeem)
	})
	return r
}

// policy returns the configured route policy, falling back to a sane one so
// an unconfigured route never bypasses the orchestrator.
func (s *Server) policy(route string) orchestrator.RouteConfig {
	if cfg, ok := s.cfg.Policies[route]; ok {
		return cfg
	}
	return orchestrator.RouteConfig{Route: route, Priority: orchestrator.PriorityMedium, MaxRetries: 2, RequireAuth: true}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
