package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"stockledger/internal/audit"
	"stockledger/internal/cache"
	"stockledger/internal/config"
	"stockledger/internal/database"
	"stockledger/internal/eventbus"
	custommiddleware "stockledger/internal/middleware"
	"stockledger/internal/repository"
	"stockledger/internal/service"
	"stockledger/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config      *config.Config
	logger      *zap.Logger
	db          database.Service
	redis       *redis.Client
	bus         *eventbus.Bus
	recorder    *audit.Recorder
	userService service.UserService
	unsubscribe func()
}

func NewServer(cfg *config.Config, logger *zap.Logger, db database.Service) *Server {
	router := chi.NewRouter()

	router.Use(custommiddleware.DefaultMiddlewareStack(logger)...)
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.Server.IsDevelopment()))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := db.Health()
		status := http.StatusOK
		if health["status"] != "up" {
			status = http.StatusServiceUnavailable
		}
		custommiddleware.RespondWithJSON(w, status, map[string]interface{}{
			"status":   health["status"],
			"database": health,
		})
	})

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Initialize repositories
	sqlDB := db.DB()
	userRepo := repository.NewUserRepository(sqlDB)
	productRepo := repository.NewProductRepository(sqlDB)
	movementRepo := repository.NewMovementRepository(sqlDB)
	alertRepo := repository.NewAlertRepository(sqlDB)
	auditRepo := repository.NewAuditRepository(sqlDB)
	reportRepo := repository.NewReportRepository(sqlDB)
	backupRepo := repository.NewBackupRepository(sqlDB)

	bus := eventbus.New()
	recorder := audit.NewRecorder(auditRepo, logger.Named("audit"))
	reportCache := cache.New(redisClient, "reports", cfg.Cache.TTL, logger.Named("cache"))

	// Initialize services
	userService := service.NewUserService(userRepo, recorder, cfg.JWT.Secret, cfg.JWT.Expiry)
	ledgerService := service.NewLedgerService(movementRepo, productRepo, recorder, bus, logger)
	productService := service.NewProductService(productRepo, ledgerService, recorder, bus, logger)
	alertService := service.NewAlertService(alertRepo, productRepo, recorder, logger)
	auditService := service.NewAuditService(auditRepo)
	reportService := service.NewReportService(reportRepo, productRepo, movementRepo, reportCache, logger)
	backupService := service.NewBackupService(backupRepo, cfg.Backup.PageSize, bus, logger)

	unsubscribe := service.InvalidateOnChange(bus, reportService, logger)

	// Initialize handlers
	userHandler := transport.NewUserHandler(userService, cfg.JWT.Expiry, !cfg.Server.IsDevelopment(), logger)
	productHandler := transport.NewProductHandler(productService, ledgerService, logger)
	movementHandler := transport.NewMovementHandler(ledgerService, logger)
	alertHandler := transport.NewAlertHandler(alertService, logger)
	auditHandler := transport.NewAuditHandler(auditService, logger)
	reportHandler := transport.NewReportHandler(reportService, logger)
	eventHandler := transport.NewEventHandler(bus, logger)
	backupHandler := transport.NewBackupHandler(backupService, logger)

	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)
	apiLimiter := custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimit.Requests,
		Window:            cfg.RateLimit.Window,
		KeyPrefix:         "rate_limit:api",
	}, logger)
	loginLimiter := custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimit.LoginRequests,
		Window:            cfg.RateLimit.Window,
		KeyPrefix:         "rate_limit:login",
	}, logger)

	router.Route("/api", func(r chi.Router) {
		userHandler.RegisterRoutes(r, authMiddleware, loginLimiter)
		backupHandler.RegisterRoutes(r, custommiddleware.RequireAPIKey(cfg.Backup.APIKey, logger))

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(apiLimiter)

			productHandler.RegisterRoutes(r)
			movementHandler.RegisterRoutes(r)
			alertHandler.RegisterRoutes(r)
			auditHandler.RegisterRoutes(r)
			reportHandler.RegisterRoutes(r)
			eventHandler.RegisterRoutes(r)
		})
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	httpServer.RegisterOnShutdown(eventHandler.Close)

	return &Server{
		Server: httpServer,
		config:      cfg,
		logger:      logger,
		db:          db,
		redis:       redisClient,
		bus:         bus,
		recorder:    recorder,
		userService: userService,
		unsubscribe: unsubscribe,
	}
}

// EnsureSeedUser creates the configured bootstrap account if it is missing.
func (s *Server) EnsureSeedUser(ctx context.Context) error {
	seed := s.config.Seed
	if seed.Username == "" || seed.Password == "" {
		return nil
	}

	created, err := s.userService.EnsureUser(ctx, seed.Username, seed.Password)
	if err != nil {
		return fmt.Errorf("failed to seed user %q: %w", seed.Username, err)
	}
	if created {
		s.logger.Info("Seed user created", zap.String("username", seed.Username))
	}
	return nil
}

// Shutdown ends event streams, stops accepting connections and waits for
// in-flight requests until ctx is done. Connections still open at that point
// are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Server.Shutdown(ctx)
	if err != nil {
		s.logger.Warn("Graceful shutdown incomplete, closing connections", zap.Error(err))
		err = multierr.Append(err, s.Server.Close())
	}
	return err
}

// Close drains pending audit writes and releases the database and Redis.
// Call it after Shutdown so no request can schedule new work.
func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.recorder.Close()

	err := multierr.Combine(
		s.redis.Close(),
		s.db.Close(),
	)
	if err != nil {
		s.logger.Error("Failed to close server resources", zap.Error(err))
	}

	_ = s.logger.Sync()
	return err
}
