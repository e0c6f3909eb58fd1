package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"oauth2jwt/internal/auth"
	"oauth2jwt/internal/config"
	"oauth2jwt/internal/handler"
	"oauth2jwt/internal/metrics"
	"oauth2jwt/internal/models"
	"oauth2jwt/internal/oauth"
	"oauth2jwt/internal/service"
	"oauth2jwt/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

const shutdownTimeout = 10 * time.Second

func main() {
	//PARSE ARGS
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to the yaml config")

	flag.Parse()
	if configPath == "" {
		log.Fatal("failed get config path from flags")
	}

	cfg := config.MustLoadConfig(configPath)

	//INIT LOGGER
	lgr := setupLogger(cfg.Env)
	lgr.Info("starting oauth2jwt", slog.String("env", cfg.Env), slog.String("db_driver", cfg.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//INIT DB
	st, err := setupStorage(ctx, cfg)
	if err != nil {
		lgr.Error("failed to init storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer st.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		lgr.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}

	//INIT SERVICE
	tokens, err := auth.NewTokenProvider(cfg.JWT.Secret, cfg.AccessTokenTTL(), auth.WithIssuer(cfg.JWT.Issuer))
	if err != nil {
		lgr.Error("failed to init token provider", slog.Any("error", err))
		os.Exit(1)
	}

	refresh := service.NewRefreshTokens(storage.NewRedisRefreshStore(rdb, cfg.KeyPrefix), cfg.RefreshTokenTTL(), time.Now)
	srvc := service.NewService(st, tokens, refresh, lgr, service.WithBcryptCost(cfg.BcryptCost))

	if err := srvc.CheckBootstrap(ctx); err != nil {
		lgr.Error("reference roles missing, registration will fail", slog.Any("error", err))
	}

	//INIT SERVER
	metrics.Init()
	if cfg.Env != envLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	var google handler.IdentityProvider
	if cfg.OAuth2.Google.Enabled() {
		google = oauth.NewGoogleProvider(cfg.OAuth2.Google)
	} else {
		lgr.Warn("google sign-in disabled, no client credentials")
	}

	h := handler.NewHandler(srvc, tokens, google, handler.Config{
		SuccessRedirectURI: cfg.SuccessRedirectURI,
		RateLimitRPS:       cfg.RateLimit.RPS,
		RateLimitBurst:     cfg.RateLimit.Burst,
		SecureCookies:      cfg.Env == envProd,
	}, lgr)

	server := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      h.InitRoutes(),
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		lgr.Info("http server started", slog.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lgr.Error("http server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	lgr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		lgr.Error("failed to shutdown http server", slog.Any("error", err))
	}

	lgr.Info("stopped")
}

func setupStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return storage.NewMemoryStorage(models.RoleUser, models.RoleAdmin), nil
	default:
		return storage.NewPostgresStorage(ctx, cfg.DbURL)
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}
	return log
}
