package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	gorillasessions "github.com/gorilla/sessions"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/trainwell-app/trainwell-engine/pkg/auth"
	"github.com/trainwell-app/trainwell-engine/pkg/changefeed"
	"github.com/trainwell-app/trainwell-engine/pkg/config"
	"github.com/trainwell-app/trainwell-engine/pkg/database"
	"github.com/trainwell-app/trainwell-engine/pkg/handlers"
	"github.com/trainwell-app/trainwell-engine/pkg/logging"
	"github.com/trainwell-app/trainwell-engine/pkg/repositories"
	"github.com/trainwell-app/trainwell-engine/pkg/services"
	"github.com/trainwell-app/trainwell-engine/pkg/sessionstore"
)

// Version is set at build time via ldflags
var Version = "dev"

// sessionStoreDir holds the device-local anonymous session file.
const sessionStoreDir = "data/sessions"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.URL())),
		zap.String("redis_host", cfg.Redis.Host))

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.URL(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	sqlDB, err := sql.Open("pgx", cfg.Database.URL())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, "migrations", logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = sqlDB.Close()

	// Change feed: Redis when configured, in-process otherwise.
	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	var feed changefeed.Feed
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		feed = changefeed.NewRedisFeed(redisClient, logger)
		logger.Info("Using Redis change feed")
	} else {
		feed = changefeed.NewMemoryFeed()
		logger.Info("Redis not configured, using in-process change feed")
	}

	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		logger.Fatal("Failed to create JWKS client", zap.Error(err))
	}
	defer jwksClient.Close()
	authService := auth.NewAuthService(jwksClient, logger)
	authMiddleware := auth.NewMiddleware(authService, logger)

	engagementRepo := repositories.NewEngagementRepository(db, feed, logger)
	trainerRepo := repositories.NewTrainerRepository(db)
	waitlistRepo := repositories.NewWaitlistRepository(db)
	conversationRepo := repositories.NewConversationRepository(db)
	callRepo := repositories.NewDiscoveryCallRepository(db, feed, logger)
	sessionMirror := repositories.NewAnonymousSessionRepository(db)
	profileRepo := repositories.NewClientProfileRepository(db)

	localStore, err := sessionstore.NewFileStore(sessionStoreDir)
	if err != nil {
		logger.Fatal("Failed to create session store", zap.Error(err))
	}
	hub := sessionstore.NewHub()
	sessionManager := services.NewAnonymousSessionManager(localStore, hub, sessionMirror,
		cfg.Engine.SessionTTL(), cfg.Engine.SavedTrainerCap, logger)

	trainerService := services.NewUnifiedTrainerService(engagementRepo, trainerRepo,
		waitlistRepo, conversationRepo, callRepo,
		cfg.Engine.CacheTTL(), cfg.Engine.ShortlistCap, logger)

	syncRegistry := services.NewSyncRegistry(feed,
		cfg.Engine.Debounce(), cfg.Engine.RefreshGrace(),
		trainerService.Invalidate, logger)
	defer syncRegistry.CloseAll()

	migrationState := services.NewMigrationState()
	migrationController := services.NewMigrationController(sessionManager,
		engagementRepo, profileRepo, sessionMirror, migrationState, logger)

	cookieKey := []byte(cfg.SessionCookieKey)
	if len(cookieKey) == 0 {
		logger.Warn("SESSION_COOKIE_KEY not set, anonymous cookies will not survive restarts")
		cookieKey = securecookie.GenerateRandomKey(32)
	}
	cookieStore := gorillasessions.NewCookieStore(cookieKey)

	// Expired mirror rows accumulate until swept.
	go sweepExpiredSessions(ctx, sessionMirror, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewEngagementHandler(engagementRepo, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewTrainersHandler(trainerService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewSessionHandler(sessionManager, cookieStore, logger).RegisterRoutes(mux)
	handlers.NewMigrationHandler(migrationController, migrationState, cookieStore, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewSyncHandler(syncRegistry, logger).RegisterRoutes(mux, authMiddleware)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting trainwell-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

// sweepExpiredSessions periodically deletes expired anonymous session mirrors.
func sweepExpiredSessions(ctx context.Context, mirror repositories.AnonymousSessionRepository, logger *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := mirror.DeleteExpired(ctx)
			if err != nil {
				logger.Warn("Failed to sweep expired sessions", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("Swept expired anonymous sessions", zap.Int64("count", n))
			}
		}
	}
}
