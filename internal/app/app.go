package app

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/EdulogyIT/holibayt-backend/internal/config"
	"github.com/EdulogyIT/holibayt-backend/internal/infrastructure/database"
	notificationmsg "github.com/EdulogyIT/holibayt-backend/internal/infrastructure/messaging"
	"github.com/EdulogyIT/holibayt-backend/internal/infrastructure/provider/stripe"
	"github.com/EdulogyIT/holibayt-backend/internal/usecase"
	"github.com/EdulogyIT/holibayt-backend/pkg/messaging"
)

// App is the wired escrow service shared by the server and the CLI.
type App struct {
	DB    *gorm.DB
	Repos *database.Repositories
	Redis messaging.RedisClient

	Escrow       *usecase.EscrowService
	Scheduler    *usecase.ReleaseScheduler
	Checkout     *usecase.CheckoutService
	Confirmation *usecase.ConfirmationService
	Reconciler   *usecase.Reconciler
	Webhooks     *usecase.WebhookService

	logger *zap.Logger
}

// New connects to the database (and Redis when configured) and builds the usecases.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	settings, err := usecase.SettingsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		DB:     db,
		Repos:  database.NewRepositories(db, cfg.Service.Supabase, logger),
		logger: logger,
	}

	var publisher usecase.NotificationPublisher
	if cfg.Redis.Enabled() {
		client, err := messaging.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			// Notifications are still stored; only the live fan-out is lost.
			logger.Warn("Redis unavailable, notifications will not be published", zap.Error(err))
		} else {
			a.Redis = client
			publisher = notificationmsg.NewNotificationPublisher(client, logger)
		}
	}

	paymentProvider := stripe.NewStripeProvider(stripe.Config{
		SecretKey:     cfg.Service.Stripe.SecretKey,
		WebhookSecret: cfg.Service.Stripe.WebhookSecret,
		APIURL:        cfg.Service.Stripe.APIURL,
	}, logger)

	r := a.Repos
	notifier := usecase.NewNotifier(r.Notification, publisher, logger)

	a.Escrow = usecase.NewEscrowService(r.Booking, r.Payment, r.Property, r.Commission,
		paymentProvider, r.Clock, notifier, settings, logger)
	a.Scheduler = usecase.NewReleaseScheduler(r.Booking, a.Escrow, r.Clock, settings, logger)
	a.Checkout = usecase.NewCheckoutService(r.Booking, r.Payment, r.Property, r.Commission,
		paymentProvider, settings, logger)
	a.Confirmation = usecase.NewConfirmationService(r.Booking, r.Payment, r.Property, r.Commission,
		paymentProvider, r.Clock, notifier, settings, logger)
	a.Reconciler = usecase.NewReconciler(r.Booking, r.Payment, r.Property, r.Commission, settings, logger)
	a.Webhooks = usecase.NewWebhookService(paymentProvider, r.Webhook, a.Confirmation, logger)

	return a, nil
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}
	if err := database.Close(a.DB, a.logger); err != nil {
		a.logger.Error("Failed to close database connection", zap.Error(err))
	}
}
