package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"trustgate/internal/auth"
	"trustgate/internal/db"
	"trustgate/internal/kv"
	"trustgate/internal/maintenance"
	"trustgate/internal/member"
	"trustgate/internal/observability"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger().With(map[string]any{"service": "trustgate"})

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	redisURL, err := mustEnv("REDIS_URL")
	if err != nil {
		return nil, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development"), os.Getenv("APP_RELEASE")); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))
	database.SetConnMaxIdleTime(envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(context.Background(), database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := kv.OpenRedis(connectCtx, redisURL)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("open redis: %w", err)
	}

	members := member.NewRepository(database)
	guard := auth.NewAttemptGuard(
		store,
		envMinutesOrDefault("LOGIN_FAILURE_TTL_MINUTES", 10),
		envMinutesOrDefault("LOGIN_LOCK_MINUTES", 10),
	)
	tokens := auth.NewTokenAuthority(jwtSecret, envMinutesOrDefault("TOKEN_TTL_MINUTES", 10))
	revocations := auth.NewRevocationRegistry(store, tokens)

	policy := auth.DefaultPasswordPolicy()
	policy.MinLength = envIntOrDefault("PASSWORD_MIN_LENGTH", policy.MinLength)

	authService := auth.NewService(members, guard, tokens, revocations)
	authService.WithSecurityConfig(envIntOrDefault("LOGIN_MAX_ATTEMPTS", 5), policy)
	authHandler := auth.NewHandler(authService, EnvBoolOrDefault("SECURE_COOKIES", false))

	purgeHandler := maintenance.NewPurgeHandler(
		members,
		logger,
		os.Getenv("CRON_SECRET"),
		envDaysOrDefault("MEMBER_PURGE_RETENTION_DAYS", 30),
		envIntOrDefault("MEMBER_PURGE_BATCH_SIZE", 500),
	)

	loginLimiter := auth.NewLoginRateLimiter(
		envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),
	)

	mux := http.NewServeMux()
	mux.Handle("POST /auth/login", loginLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("POST /auth/logout", authHandler.Logout)
	mux.Handle("POST /auth/extend-session", auth.Middleware(authService, http.HandlerFunc(authHandler.ExtendSession)))
	mux.HandleFunc("POST /auth/members", authHandler.Register)
	mux.HandleFunc("POST /auth/email", authHandler.CheckDuplicateEmail)
	mux.HandleFunc("GET /internal/maintenance/purge", purgeHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/purge", purgeHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database, store))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			storeErr := store.Close()
			dbErr := database.Close()
			if dbErr != nil {
				return dbErr
			}
			return storeErr
		},
	}, nil
}

func healthHandler(database *sql.DB, store *kv.RedisStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		} else if err := store.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * 24 * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
