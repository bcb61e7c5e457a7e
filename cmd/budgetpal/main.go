package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/auth"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/backend"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/cache"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/cli"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/core"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/family"
	apphttp "github.com/WouterMerckaert-dev/BudgetPal/internal/http"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/log"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/metrics"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/services"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentApp)

	defaults, err := cfg.DefaultBudget()
	if err != nil {
		cli.Fatal(logger, "Invalid default budget", "error", err)
	}
	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", "error", err)
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentStorage).Logger).
		CreateBackend(context.Background(), backendConfig)
	if err != nil {
		cli.Fatal(logger, "Failed to create backend", "error", err, "backend", cfg.DataBackend)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	m := metrics.New()
	familyCache := cache.NewFamilyCache(cfg.CacheSize, cfg.CacheTTL)
	cacheManager := cache.NewManager()
	cacheManager.Register(familyCache)
	cacheManager.StartCleanup(time.Minute)
	defer cacheManager.Stop()

	listeners := append([]family.Listener{familyCache}, res.Listeners()...)
	if res.Publisher == nil && res.Events != nil {
		// Without a broker the worker never sees changes, so the API keeps
		// the audit trail itself.
		listeners = append(listeners, auditListener(res.Events))
	}

	opts := []family.Option{
		family.WithRecorder(m),
		family.WithDefaultBudget(defaults),
	}
	for _, l := range listeners {
		opts = append(opts, family.WithListener(l))
	}
	coord := family.NewCoordinator(res.Store, opts...)
	families := familyCache.Wrap(coord)
	expenses := services.NewExpenseService(res.Store, families, listeners...)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Coordinator:        coord,
		Expenses:           expenses,
		Families:           families,
		Events:             res.Events,
		Verifier:           auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		Metrics:            m,
		Logger:             logger.WithComponent(log.ComponentHTTP),
		Ready:              res.Ready,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		ConflictRetries:    cfg.ConflictRetries,
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	_, _, done := cli.GracefulShutdown(logger, 30*time.Second, srv.Shutdown)

	logger.Info("Starting budgetpal server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp_enabled", res.Publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cli.Fatal(logger, "Server error", "error", err, "port", cfg.Port)
	}

	<-done
	logger.Info("Server stopped gracefully")
}

func auditListener(events backend.EventLog) family.Listener {
	return family.ListenerFunc(func(ctx context.Context, change core.FamilyChange) {
		if err := events.RecordEvent(ctx, change); err != nil {
			log.FromContext(ctx).ErrorContext(ctx, "Failed to record membership event",
				"event", change.Event, "error", err)
		}
	})
}
