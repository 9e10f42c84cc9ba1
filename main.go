package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/genapp-poc-v1/server/internal/appgen/backend"
	"github.com/genapp-poc-v1/server/internal/appgen/graph"
	"github.com/genapp-poc-v1/server/internal/appgen/graph/render"
	"github.com/genapp-poc-v1/server/internal/appgen/httpapi"
	"github.com/genapp-poc-v1/server/internal/appgen/initializer"
	"github.com/genapp-poc-v1/server/internal/appgen/llm"
	"github.com/genapp-poc-v1/server/internal/appgen/model"
	"github.com/genapp-poc-v1/server/internal/appgen/repo"
	"github.com/genapp-poc-v1/server/internal/core"
	logx "github.com/genapp-poc-v1/server/pkg/logger"
	pkgredis "github.com/genapp-poc-v1/server/pkg/redis"
	"github.com/genapp-poc-v1/server/pkg/sqlite"
)

// AppConfig defines all configurable parameters of the server,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT"`
	// DevMode is the older switch; "false" means production.
	DevMode  string `envconfig:"DEV_MODE"`
	LogLevel string `envconfig:"LOG_LEVEL"`

	// Infrastructure
	Server  model.ServerConfig
	Storage model.StorageConfig
	SQLite  sqlite.Config
	Redis   pkgredis.Config

	// Generation
	Defaults model.AppDefaults
	LLM      model.LLMConfig
	Init     model.InitConfig
}

func main() {
	// Load .env file
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	envName := cfg.Environment
	if envName == "" {
		envName = cfg.DevMode
	}
	env := core.ParseEnvironment(envName)
	logx.Init(logx.LoggerOpts{Environment: env, Level: cfg.LogLevel})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logx.Fatal().Err(err).Msg("Server stopped with error")
	}
}

func run(ctx context.Context, cfg AppConfig) error {
	variant, err := backend.ParseVariant(cfg.Storage.Backend)
	if err != nil {
		return err
	}

	settingsDB, err := cfg.SQLite.Open(ctx, cfg.Storage.SettingsDB)
	if err != nil {
		return err
	}
	defer settingsDB.Close()

	settings, err := repo.NewSettingsRepository(ctx, settingsDB)
	if err != nil {
		return err
	}

	var backends backend.Opener
	switch variant {
	case backend.KeyValue:
		rdb, err := cfg.Redis.New(ctx)
		if err != nil {
			logx.Error().Err(err).Msg("Failed to connect to Redis")
			return err
		}
		defer rdb.Close()
		logx.Info().Str("url", redactURL(cfg.Redis.URL)).Msg("Connected to Redis successfully")
		backends = backend.RedisOpener{Client: rdb}
	default:
		backends = backend.SQLOpener{Config: cfg.SQLite}
	}

	gateway, err := llm.NewGateway(ctx, cfg.LLM, variant)
	if err != nil {
		return err
	}

	tenantInit, err := initializer.New(initializer.Config{
		Gateway:  gateway,
		Settings: settings,
		Backends: backends,
		Policy:   cfg.Init.Policy(),
		ClaimTTL: cfg.Init.ClaimTTL,
	})
	if err != nil {
		return err
	}
	defer tenantInit.Wait()

	renderer := render.NewRenderer()
	engine, err := graph.NewEngine(ctx, graph.Config{
		Gateway:     gateway,
		Settings:    settings,
		Backends:    backends,
		Initializer: tenantInit,
		Renderer:    renderer,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: httpapi.NewRouter(&httpapi.Handlers{
			Engine:      engine,
			Settings:    settings,
			Renderer:    renderer,
			Defaults:    cfg.Defaults,
			Initializer: tenantInit,
		}),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logx.Info().
			Str("addr", cfg.Server.Addr).
			Str("backend", string(variant)).
			Str("llm_provider", cfg.LLM.Provider).
			Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logx.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid"
	}
	return u.Redacted()
}
