// Package app assembles the platform: stores, cache, orchestrator, services
// and the HTTP surface.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/driveline/platform/internal/app/httpapi"
	bookingsvc "github.com/driveline/platform/internal/app/services/booking"
	contentsvc "github.com/driveline/platform/internal/app/services/content"
	"github.com/driveline/platform/internal/app/services/payments"
	referralsvc "github.com/driveline/platform/internal/app/services/referral"
	"github.com/driveline/platform/internal/app/services/reminders"
	"github.com/driveline/platform/internal/app/storage"
	"github.com/driveline/platform/internal/app/storage/memory"
	"github.com/driveline/platform/internal/app/storage/postgres"
	"github.com/driveline/platform/internal/app/storage/supabase"
	"github.com/driveline/platform/internal/cache"
	"github.com/driveline/platform/internal/config"
	"github.com/driveline/platform/internal/orchestrator"
	"github.com/driveline/platform/internal/platform/migrations"
	"github.com/driveline/platform/pkg/logger"
)

// Stores groups the persistence interfaces the services consume. Any nil
// field falls back to the in-memory implementation.
type Stores struct {
	Content  storage.ContentStore
	Booking  storage.BookingStore
	Referral storage.ReferralStore
	Payment  storage.PaymentStore
}

// Application is the assembled platform.
type Application struct {
	Config    config.Config
	Logger    *logger.Logger
	Registry  *prometheus.Registry
	Server    *httpapi.Server
	Reminders *reminders.Runner

	pg *postgres.Store
}

// New builds the application from configuration. The store selection order is
// Postgres DSN, then Supabase project, then in-memory.
func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	app := &Application{Config: cfg, Logger: log, Registry: prometheus.NewRegistry()}

	stores := Stores{}
	switch {
	case cfg.Database.PostgresDSN != "":
		pg, err := postgres.Open(cfg.Database.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := migrations.Apply(ctx, pg.DB()); err != nil {
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		app.pg = pg
		stores = Stores{Content: pg, Booking: pg, Referral: pg, Payment: pg}
		log.Info("using postgres storage")
	case cfg.Supabase.URL != "":
		sb, err := supabase.New(supabase.Config{URL: cfg.Supabase.URL, ServiceKey: cfg.Supabase.ServiceKey})
		if err != nil {
			return nil, fmt.Errorf("configure supabase: %w", err)
		}
		// Supabase backs the content path; the rest stays in memory until
		// the remaining tables move over.
		stores = Stores{Content: sb}
		log.Info("using supabase content storage")
	default:
		log.Warn("no database configured, using in-memory storage")
	}

	mem := memory.New()
	if stores.Content == nil {
		stores.Content = mem
	}
	if stores.Booking == nil {
		stores.Booking = mem
	}
	if stores.Referral == nil {
		stores.Referral = mem
	}
	if stores.Payment == nil {
		stores.Payment = mem
	}

	var layer cache.Cache
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisFromURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("configure redis: %w", err)
		}
		layer = redisCache
		log.Info("using redis cache")
	} else {
		layer = cache.NewMemory()
	}

	orch := orchestrator.New(orchestrator.Options{
		MaxConcurrent:  cfg.Orchestrator.MaxConcurrent,
		BaseBackoff:    cfg.Orchestrator.BaseBackoff,
		MaxBackoff:     cfg.Orchestrator.MaxBackoff,
		DefaultTimeout: cfg.Orchestrator.DefaultTimeout,
		DefaultRate:    orchestrator.RatePolicy{Ceiling: cfg.Orchestrator.RateCeiling, Window: cfg.Orchestrator.RateWindow},
		Logger:         log.WithField("component", "orchestrator"),
		Metrics:        orchestrator.NewMetrics(app.Registry),
	})

	contentSvc := contentsvc.New(stores.Content, layer, contentsvc.Config{PageTTL: cfg.Content.PageTTL}, log.WithField("component", "content"))
	bookingSvc := bookingsvc.New(stores.Booking, layer, bookingsvc.Config{
		AvailabilityTTL: cfg.Booking.AvailabilityTTL,
		SlotLength:      cfg.Booking.SlotLength,
	}, log.WithField("component", "booking"))
	referralSvc := referralsvc.New(stores.Referral, referralsvc.DefaultConfig(), log.WithField("component", "referral"))

	gateway := payments.NewHTTPGateway(cfg.Payments.GatewayURL, cfg.Payments.APIKey, nil)
	paySvc := payments.New(stores.Payment, gateway, log.WithField("component", "payments"))

	policies, err := config.LoadRoutePolicies(cfg.RoutePolicyFile, httpapi.DefaultConfig().Policies)
	if err != nil {
		return nil, err
	}

	app.Server = httpapi.NewServer(httpapi.Config{
		JWTSecret:       []byte(cfg.Auth.JWTSecret),
		IPRatePerSecond: cfg.Server.IPRatePerSecond,
		IPBurst:         cfg.Server.IPBurst,
		Policies:        policies,
	}, orch, contentSvc, bookingSvc, paySvc, referralSvc, app.Registry, log.WithField("component", "httpapi"))

	app.Reminders = reminders.New(stores.Booking, reminders.LogNotifier(log), reminders.Config{
		Schedule: cfg.Reminders.Schedule,
		Horizon:  cfg.Reminders.Horizon,
	}, log.WithField("component", "reminders"))

	return app, nil
}

// Handler returns the assembled HTTP handler.
func (a *Application) Handler() http.Handler { return a.Server.Router() }

// Start begins the background runners.
func (a *Application) Start() error {
	return a.Reminders.Start()
}

// Stop shuts the background runners and store connections down.
func (a *Application) Stop() {
	a.Reminders.Stop()
	if a.pg != nil {
		if err := a.pg.Close(); err != nil {
			a.Logger.WithError(err).Warn("closing postgres")
		}
	}
}
