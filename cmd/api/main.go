package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/mealpass/ticket-service/internal/api/http"
	"github.com/mealpass/ticket-service/internal/api/http/handlers"
	"github.com/mealpass/ticket-service/internal/auth"
	"github.com/mealpass/ticket-service/internal/config"
	"github.com/mealpass/ticket-service/internal/events"
	"github.com/mealpass/ticket-service/internal/observability"
	"github.com/mealpass/ticket-service/internal/payment"
	"github.com/mealpass/ticket-service/internal/persistence"
	"github.com/mealpass/ticket-service/internal/pricing"
	"github.com/mealpass/ticket-service/internal/repository"
	"github.com/mealpass/ticket-service/internal/service"
	"github.com/mealpass/ticket-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()

	prices := pricing.Table{
		StandardLunch:    cfg.Pricing.StandardLunch,
		StandardDinner:   cfg.Pricing.StandardDinner,
		DiscountedLunch:  cfg.Pricing.DiscountedLunch,
		DiscountedDinner: cfg.Pricing.DiscountedDinner,
	}

	provider := payment.NewStripeProvider(cfg.Payment)
	dedup := persistence.NewEventDeduplicator(redis, cfg.Payment.DedupTTL(), logger)

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:   userRepo,
		Dispatcher: dispatcher,
	})
	purchaseService := service.NewPurchaseService(service.PurchaseDependencies{
		UserRepo:   userRepo,
		TicketRepo: ticketRepo,
		Provider:   provider,
		Prices:     prices,
		PaymentCfg: cfg.Payment,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	reconciliationService := service.NewReconciliationService(service.ReconciliationDependencies{
		TicketStore: ticketRepo,
		Provider:    provider,
		Dedup:       dedup,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: ticketRepo,
		UserRepo:   userRepo,
		Prices:     prices,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Users:          handlers.NewUsersHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Purchase:       handlers.NewPurchaseHandler(purchaseService),
		Webhook:        handlers.NewWebhookHandler(reconciliationService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
