// Command vidquota serves the video quota and membership API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ineyio/vidquota"
	"github.com/ineyio/vidquota/httpapi"
	"github.com/ineyio/vidquota/meter"
	"github.com/ineyio/vidquota/provider/deepseek"
	"github.com/ineyio/vidquota/provider/mock"
	"github.com/ineyio/vidquota/provider/seedance"
	"github.com/ineyio/vidquota/quota"
	"github.com/ineyio/vidquota/quota/gormstore"
	quotapg "github.com/ineyio/vidquota/quota/postgres"
	quotaredis "github.com/ineyio/vidquota/quota/redis"
	"github.com/ineyio/vidquota/script"
)

// env is the process environment. The YAML file named by CONFIG, when set,
// carries the engine settings; everything else comes from here.
type env struct {
	ConfigPath      string `envconfig:"CONFIG"`
	Host            string `envconfig:"HOST" default:"0.0.0.0"`
	Port            string `envconfig:"PORT" default:"8000"`
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`
	Store           string `envconfig:"STORE" default:"sqlite"`
	DatabaseURL     string `envconfig:"DATABASE_URL"`
	RedisAddr       string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	SQLitePath      string `envconfig:"SQLITE_PATH" default:"data/vidquota.db"`
	SeedanceBaseURL string `envconfig:"SEEDANCE_BASE_URL"`
	SeedanceAPIKey  string `envconfig:"SEEDANCE_API_KEY"`
	DeepSeekAPIKey  string `envconfig:"DEEPSEEK_API_KEY"`
	HealthGate      bool   `envconfig:"HEALTH_GATE" default:"true"`
}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("no .env file found")
	}

	var e env
	if err := envconfig.Process("", &e); err != nil {
		logger.Fatal().Err(err).Msg("read environment")
	}
	if lvl, err := zerolog.ParseLevel(e.LogLevel); err == nil {
		logger = logger.Level(lvl)
	}

	if err := run(e, logger); err != nil {
		logger.Fatal().Err(err).Msg("vidquota exited")
	}
}

func run(e env, logger zerolog.Logger) error {
	cfg, err := loadConfig(e)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, closeStore, err := openStore(ctx, e)
	if err != nil {
		return err
	}
	defer closeStore()

	var video vidquota.VideoProvider
	if cfg.Mock {
		logger.Warn().Msg("mock video provider enabled")
		video = mock.New()
	} else {
		video = seedance.New(cfg.Video.BaseURL, cfg.Video.Auth)
	}

	opts := []vidquota.Option{vidquota.WithMeter(meter.NewZerologMeter(logger))}
	if e.HealthGate {
		opts = append(opts, vidquota.WithHealthTracker(vidquota.NewHealthTracker()))
	}
	svc, err := vidquota.NewService(cfg, video, store, opts...)
	if err != nil {
		return err
	}

	apiOpts := []httpapi.Option{httpapi.WithLogger(logger)}
	if w := newScriptWriter(cfg, logger); w != nil {
		apiOpts = append(apiOpts, httpapi.WithScriptWriter(w))
	}

	srv := &http.Server{
		Addr:         net.JoinHostPort(e.Host, e.Port),
		Handler:      httpapi.New(svc, apiOpts...).Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Timeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("store", e.Store).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-quit:
	}
	logger.Info().Msg("shutdown signal received")

	// In-flight generations may take up to the provider timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info().Msg("server shut down gracefully")
	return nil
}

func loadConfig(e env) (vidquota.Config, error) {
	if e.ConfigPath != "" {
		cfg, err := vidquota.LoadConfig(e.ConfigPath)
		if err != nil {
			return vidquota.Config{}, err
		}
		if cfg.Video.Auth.APIKey == "" {
			cfg.Video.Auth.APIKey = e.SeedanceAPIKey
		}
		if cfg.Text.Auth.APIKey == "" {
			cfg.Text.Auth.APIKey = e.DeepSeekAPIKey
		}
		return cfg, nil
	}

	cfg := vidquota.Config{
		Mock:  e.SeedanceBaseURL == "",
		Video: vidquota.ProviderConfig{BaseURL: e.SeedanceBaseURL, Auth: vidquota.Auth{APIKey: e.SeedanceAPIKey}},
		Text:  vidquota.ProviderConfig{Auth: vidquota.Auth{APIKey: e.DeepSeekAPIKey}},
	}.WithDefaults()
	return cfg, cfg.Validate()
}

func openStore(ctx context.Context, e env) (vidquota.Store, func(), error) {
	switch e.Store {
	case "memory":
		return quota.NewMemoryStore(), func() {}, nil

	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(e.SQLitePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		db, err := gormstore.OpenSQLite(e.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		s := gormstore.New(db)
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		return s, func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}, nil

	case "postgres":
		if e.DatabaseURL == "" {
			return nil, nil, errors.New("DATABASE_URL is required for STORE=postgres")
		}
		pool, err := pgxpool.New(ctx, e.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("pgxpool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		s := quotapg.New(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil

	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: e.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return quotaredis.New(client, quotaredis.WithUsageTTL(8*24*time.Hour)), func() { client.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown STORE %q (memory|sqlite|postgres|redis)", e.Store)
	}
}

func newScriptWriter(cfg vidquota.Config, logger zerolog.Logger) *script.Writer {
	switch {
	case cfg.Text.Auth.APIKey != "":
		var opts []deepseek.Option
		if cfg.Text.BaseURL != "" {
			opts = append(opts, deepseek.WithBaseURL(cfg.Text.BaseURL))
		}
		if cfg.Text.Model != "" {
			opts = append(opts, deepseek.WithModel(cfg.Text.Model))
		}
		if cfg.Text.Timeout > 0 {
			opts = append(opts, deepseek.WithHTTPClient(&http.Client{Timeout: cfg.Text.Timeout}))
		}
		return script.NewWriter(deepseek.New(cfg.Text.Auth, opts...), script.WithSceneCorpus())
	case cfg.Mock:
		return script.NewWriter(mock.NewText("标题: 示例脚本\n镜头1: 开场\n台词1: 大家好\n配乐建议: 轻快"))
	default:
		logger.Warn().Msg("DEEPSEEK_API_KEY not set, script endpoint disabled")
		return nil
	}
}
