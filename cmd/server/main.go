package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HFI-UC/UtiOpia-sub001/config"
	"github.com/HFI-UC/UtiOpia-sub001/internal/acl"
	"github.com/HFI-UC/UtiOpia-sub001/internal/audit"
	"github.com/HFI-UC/UtiOpia-sub001/internal/auth"
	"github.com/HFI-UC/UtiOpia-sub001/internal/ban"
	"github.com/HFI-UC/UtiOpia-sub001/internal/cache"
	"github.com/HFI-UC/UtiOpia-sub001/internal/captcha"
	"github.com/HFI-UC/UtiOpia-sub001/internal/database"
	"github.com/HFI-UC/UtiOpia-sub001/internal/handlers"
	"github.com/HFI-UC/UtiOpia-sub001/internal/identity"
	"github.com/HFI-UC/UtiOpia-sub001/internal/logger"
	"github.com/HFI-UC/UtiOpia-sub001/internal/middleware"
	"github.com/HFI-UC/UtiOpia-sub001/internal/models"
	"github.com/HFI-UC/UtiOpia-sub001/internal/moderation"
	"github.com/HFI-UC/UtiOpia-sub001/internal/notify"
	"github.com/HFI-UC/UtiOpia-sub001/internal/repository"
	"github.com/HFI-UC/UtiOpia-sub001/internal/repository/memory"
	"github.com/HFI-UC/UtiOpia-sub001/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	log.Logger = logger.Setup(cfg.Log.Level, cfg.Log.Pretty, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	health := map[string]handlers.HealthCheck{}

	// Storage
	var store *repository.Store
	switch cfg.Store.Driver {
	case "memory":
		log.Warn().Msg("Using in-memory store, data will not survive a restart")
		store = memory.NewStore()
	default:
		db, err := database.NewPostgresDB(cfg.GetDSN())
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()

		log.Info().Msg("Running database migrations...")
		if err := database.RunMigrations(db.DB); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
		log.Info().Msg("Migrations completed successfully")

		store = repository.NewPostgresStore(db)
		health["database"] = db.PingContext
	}

	// Connect to Redis
	var redis *cache.RedisClient
	if cfg.Redis.Enabled {
		redis, err = cache.NewRedisClient(cfg.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to Redis, running single-instance")
			redis = nil
		} else {
			defer redis.Close()
			health["redis"] = redis.Ping
		}
	}

	// Access control
	policy := acl.DefaultPolicy()
	if cfg.Moderation.PolicyFile != "" {
		policy, err = acl.LoadPolicy(cfg.Moderation.PolicyFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.Moderation.PolicyFile).Msg("Failed to load ACL policy")
		}
	}

	auditLog := audit.NewLogger(store.Audit, audit.Config{
		WriteTimeout:  cfg.Audit.WriteTimeout,
		RetryInterval: cfg.Audit.RetryInterval,
		QueueSize:     cfg.Audit.QueueSize,
	})
	auditDone := make(chan struct{})
	go func() {
		defer close(auditDone)
		auditLog.Run(ctx)
	}()

	// Initialize services
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpiryHours)
	bans := ban.NewRegistry(store.Tx, store.Bans, policy, auditLog)

	var verifier captcha.Verifier = captcha.Disabled{}
	if cfg.Captcha.Secret != "" {
		verifier = captcha.NewHTTPVerifier(captcha.Config{
			VerifyURL: cfg.Captcha.VerifyURL,
			Secret:    cfg.Captcha.Secret,
			Timeout:   cfg.Captcha.Timeout,
			RetryMax:  cfg.Captcha.RetryMax,
		})
	} else {
		log.Warn().Msg("CAPTCHA verification disabled")
	}

	var notifier notify.Notifier = notify.Noop{}
	smtpSender := notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		User:     cfg.SMTP.User,
		Pass:     cfg.SMTP.Pass,
		From:     cfg.SMTP.From,
		FromName: cfg.SMTP.FromName,
	})
	if smtpSender.Enabled() {
		notifier = notify.NewAsync(smtpSender, 15*time.Second, 4)
	}

	// Live wall
	hub := websocket.NewHub(redis)
	go hub.Run(ctx)
	wsHandler := websocket.NewHandler(hub, cfg.CORS.AllowedOrigins)

	engine := moderation.NewEngine(moderation.Deps{
		Tx:       store.Tx,
		Messages: store.Messages,
		Users:    store.Users,
		Resolver: identity.NewResolver(store.Users, bans),
		Captcha:  verifier,
		Notifier: notifier,
		Wall:     hub,
		Policy:   policy,
		Audit:    auditLog,
	}, moderation.Config{MaxContentLength: cfg.Moderation.MaxContentLength})

	if cfg.Bootstrap.AdminEmail != "" && cfg.Bootstrap.AdminPassword != "" {
		if err := bootstrapAdmin(ctx, store.Users, cfg.Bootstrap); err != nil {
			log.Fatal().Err(err).Msg("Failed to bootstrap admin user")
		}
	}

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter(redis, cfg.API.RateLimitSubmissionsPerMin, cfg.API.RateLimitBurst)
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				rateLimiter.Cleanup(now)
			}
		}
	}()

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		Store:          store,
		Engine:         engine,
		Bans:           bans,
		Policy:         policy,
		JWT:            jwtService,
		Audit:          auditLog,
		RateLimiter:    rateLimiter,
		WS:             wsHandler,
		Logger:         log.With().Str("component", "http").Logger(),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Health:         health,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Server.Env).Msg("Starting confession wall server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	<-auditDone
}

// bootstrapAdmin makes sure the configured super admin exists.
func bootstrapAdmin(ctx context.Context, users repository.Users, cfg config.BootstrapConfig) error {
	hash, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	user, err := users.EnsureUser(ctx, &models.User{
		ID:           uuid.New(),
		Email:        models.NormalizeEmail(cfg.AdminEmail),
		DisplayName:  "Administrator",
		PasswordHash: hash,
		Role:         acl.RoleSuperAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return err
	}
	if user.Role != acl.RoleSuperAdmin {
		if _, err := users.UpdateRole(ctx, user.ID, acl.RoleSuperAdmin); err != nil {
			return err
		}
	}
	log.Info().Str("email", user.Email).Msg("Super admin ready")
	return nil
}
