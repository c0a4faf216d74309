package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	_ "settlementsam/docs"
	"settlementsam/internal/authz"
	"settlementsam/internal/config"
	"settlementsam/internal/handlers"
	"settlementsam/internal/middleware"
	"settlementsam/internal/pdf"
	"settlementsam/internal/realtime"
	"settlementsam/internal/repositories"
	"settlementsam/internal/repositories/fsstore"
	"settlementsam/internal/routes"
	"settlementsam/internal/services"
	"settlementsam/internal/utils"
)

// OpenStore connects the configured persistence backend. SQL backends are
// migrated before use.
func OpenStore(ctx context.Context, cfg *config.Config) (repositories.Store, error) {
	if cfg.Database.Driver == "firestore" {
		fs, err := fsstore.New(ctx, cfg.Firestore.ProjectID, cfg.Firestore.CredentialsFile)
		if err != nil {
			return nil, err
		}
		return fs, nil
	}
	dialect, err := repositories.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	store, err := repositories.OpenSQL(ctx, dialect, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

type App struct {
	cfg    *config.Config
	log    *zap.Logger
	store  repositories.Store
	hub    *realtime.Hub
	server *http.Server
}

// New wires the store, services and HTTP routes. Optional integrations
// (Redis, Telegram, Sheets) are skipped with a log line when unconfigured.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	loc := cfg.Location()
	tokens := authz.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AdminTTL, cfg.Auth.SessionTTL)
	hub := realtime.NewHub(cfg.Server.AllowedOrigins, log)

	// === Outbound channels ===
	dialer := services.NewDialer(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPUser, cfg.Email.SMTPPassword)
	gateway := utils.NewSMSGateway(dialer, cfg.Email.FromEmail, cfg.SMS.Brand, cfg.SMS.DryRun, log)
	mailer := services.NewEmailService(dialer, cfg.Email.FromEmail, cfg.SMS.Brand, pdf.NewSummaryGenerator(cfg.SMS.Brand, cfg.PDF.FontPath), log)

	var notifier services.Notifier = services.LogNotifier{Log: log}
	if cfg.Telegram.Token != "" {
		tg, err := services.NewTelegramNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID, "", log)
		if err != nil {
			log.Warn("[app][init] telegram disabled", zap.Error(err))
		} else {
			notifier = tg
		}
	}

	var sheets services.SheetWriter
	if cfg.Sheets.CredentialsFile != "" {
		ss, err := services.NewSheetsService(ctx, cfg.Sheets.CredentialsFile, cfg.Sheets.Range, log)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("sheets: %w", err)
		}
		sheets = ss
	} else {
		log.Info("[app][init] google sheets not configured")
	}

	// === Services ===
	otpService := services.NewOTPService(store, gateway, tokens, services.OTPSettings{
		CodeLength:  cfg.OTP.CodeLength,
		TTL:         cfg.OTP.TTL,
		MaxSends:    cfg.OTP.MaxSends,
		SendWindow:  cfg.OTP.SendWindow,
		MaxAttempts: cfg.OTP.MaxAttempts,
	}, log)
	if cfg.Redis.URL != "" {
		rdb, err := services.NewRedisClient(cfg.Redis.URL)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		otpService.WithLimiter(services.NewRedisSendLimiter(rdb, cfg.OTP.MaxSends, cfg.OTP.SendWindow))
	}

	dedupe := time.Duration(cfg.Delivery.DedupeDays) * 24 * time.Hour
	leadService := services.NewLeadService(store, store, dedupe, log).WithNotifier(notifier).WithEvents(hub)
	clientService := services.NewClientService(store, log)
	billingService := services.NewBillingService(store, store, services.BillingSettings{
		Location:      loc,
		MaxPackage:    cfg.Delivery.MaxPackage,
		SkipWeekends:  cfg.Delivery.SkipWeekends,
		WebhookSecret: cfg.Stripe.WebhookSecret,
	}, log)
	distributor := services.NewDistributor(store, mailer, sheets, services.DistributorSettings{
		Location:        loc,
		ExclusivityDays: cfg.Delivery.ExclusivityDays,
	}, log).WithNotifier(notifier).WithEvents(hub)

	accounts := make([]services.AdminAccount, 0, len(cfg.Auth.Admins))
	for _, a := range cfg.Auth.Admins {
		accounts = append(accounts, services.AdminAccount{Username: a.Username, PasswordHash: a.PasswordHash, Role: a.Role})
	}
	authService := services.NewAuthService(accounts, tokens, log)
	reportService := services.NewReportService(store, store)

	// === Gin ===
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	routes.SetupRoutes(router, routes.Handlers{
		Quiz:    handlers.NewQuizHandler(),
		OTP:     handlers.NewOTPHandler(otpService, leadService, log),
		Leads:   handlers.NewLeadHandler(leadService, distributor, log),
		Clients: handlers.NewClientHandler(clientService, billingService, log),
		Billing: handlers.NewBillingHandler(billingService, log),
		Auth:    handlers.NewAuthHandler(authService, log),
		Reports: handlers.NewReportHandler(reportService, log),
		Hub:     hub,
	}, tokens, middleware.NewIPRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst))

	return &App{
		cfg:   cfg,
		log:   log,
		store: store,
		hub:   hub,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("[app][run] listening", zap.String("addr", a.server.Addr), zap.String("store", a.cfg.Database.Driver))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		a.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	a.hub.Close()
	err := a.server.Shutdown(shutdownCtx)
	a.Close()
	a.log.Info("[app][run] stopped")
	return err
}

func (a *App) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("[app][close] store", zap.Error(err))
	}
}
