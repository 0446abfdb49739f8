package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kacper-wojtaszczyk/weathermart/internal/cache"
	"github.com/kacper-wojtaszczyk/weathermart/internal/config"
	"github.com/kacper-wojtaszczyk/weathermart/internal/exitcode"
	"github.com/kacper-wojtaszczyk/weathermart/internal/plan"
	"github.com/kacper-wojtaszczyk/weathermart/internal/prefetch"
	"github.com/kacper-wojtaszczyk/weathermart/internal/provider"
	"github.com/kacper-wojtaszczyk/weathermart/internal/registry"
	"github.com/kacper-wojtaszczyk/weathermart/internal/retriever"
	"github.com/kacper-wojtaszczyk/weathermart/internal/retriever/dem"
	"github.com/kacper-wojtaszczyk/weathermart/internal/retriever/httpclient"
	"github.com/kacper-wojtaszczyk/weathermart/internal/retriever/nwp"
	"github.com/kacper-wojtaszczyk/weathermart/internal/retriever/radar"
	"github.com/kacper-wojtaszczyk/weathermart/internal/retriever/satellite"
	"github.com/kacper-wojtaszczyk/weathermart/internal/retriever/station"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Configure the global logger
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})))

	// Parse CLI flags
	configPath := flag.String("config", "", "Path to the YAML request config")
	workers := flag.Int("workers", 4, "Maximum concurrent upstream fetches")
	warmInterval := flag.Duration("warm-interval", 0, "Re-run the request on this interval to keep the cache warm (0 = run once)")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: weathermart -config request.yaml")
		return exitcode.ConfigError
	}

	// Ensure environment variables are loaded
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load env vars", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return exitcode.ConfigError
	}

	doc, err := os.ReadFile(*configPath)
	if err != nil {
		slog.Error("failed to read request config", "path", *configPath, "error", err)
		return exitcode.ConfigError
	}
	request, err := plan.ParseYAML(doc)
	if err != nil {
		slog.Error("invalid request config", "error", err)
		return exitcode.ConfigError
	}

	// Create a cancellable context (for graceful shutdown)
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize cache store", "error", err)
		return exitcode.NetworkError
	}

	retrievers, err := buildRetrievers(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize retrievers", "error", err)
		return exitcode.NetworkError
	}
	reg, err := registry.New(retrievers...)
	if err != nil {
		slog.Error("failed to build retriever registry", "error", err)
		return exitcode.ConfigError
	}

	p := provider.New(store, reg, provider.Options{Workers: *workers})

	if *warmInterval > 0 {
		warmer := prefetch.New(p, *warmInterval, *warmInterval)
		warmer.Add(request)
		if err := warmer.Start(); err != nil {
			slog.Error("failed to start prefetch scheduler", "error", err)
			return exitcode.ConfigError
		}
		defer warmer.Stop()
		warmer.Run(ctx)
		<-ctx.Done()
		slog.Info("shutdown complete")
		return exitcode.Success
	}

	result, err := p.Provide(ctx, request)
	if err != nil {
		slog.Error("retrieval failed", "error", err)
		return exitcode.DataError
	}

	for variable, field := range result.Fields {
		slog.Info("field retrieved",
			"variable", variable.String(),
			"source", field.Source.String(),
			"crs", field.CRS,
			"time_steps", len(field.Times),
		)
	}
	for _, warning := range result.Warnings {
		slog.Warn("unit not merged", "unit", warning.Unit.String(), "kind", string(warning.Kind), "detail", warning.Detail)
	}
	if result.Empty() && len(result.Warnings) > 0 {
		return exitcode.DataError
	}
	return exitcode.Success
}

// buildStore connects the MinIO cache when configured; a nil store disables
// caching.
func buildStore(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	if cfg.MinIOEndpoint == "" {
		slog.Info("no cache configured, every unit will be fetched")
		return nil, nil
	}
	store, err := cache.NewMinIOStore(ctx, cache.MinIOConfig{
		Endpoint:  cfg.MinIOEndpoint,
		AccessKey: cfg.MinIOAccessKey,
		SecretKey: cfg.MinIOSecretKey,
		Bucket:    cfg.MinIOBucket,
		UseSSL:    cfg.MinIOUseSSL,
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

// buildRetrievers registers every backend with an endpoint configured.
func buildRetrievers(ctx context.Context, cfg *config.Config) ([]retriever.Retriever, error) {
	httpCfg := httpclient.DefaultConfig()
	var retrievers []retriever.Retriever

	if cfg.RadarAPIKey != "" || cfg.RadarBaseURL != "" {
		retrievers = append(retrievers, radar.New(cfg.RadarBaseURL, cfg.RadarAPIKey, httpCfg))
	}
	if cfg.SatelliteBaseURL != "" {
		retrievers = append(retrievers, satellite.New(cfg.SatelliteBaseURL, cfg.SatelliteAPIKey, httpCfg))
	}
	if cfg.DEMBaseURL != "" {
		retrievers = append(retrievers, dem.New(cfg.DEMBaseURL, httpCfg))
	}
	if cfg.NWPArchiveRoot != "" {
		retrievers = append(retrievers, nwp.New(cfg.NWPArchiveRoot, nwp.EccodesDecoder{}))
	}
	if cfg.ClickHouseHost != "" {
		store, err := station.NewClickHouseStore(ctx, station.ClickHouseConfig{
			Host:     cfg.ClickHouseHost,
			Port:     cfg.ClickHousePort,
			User:     cfg.ClickHouseUser,
			Password: cfg.ClickHousePassword,
			Database: cfg.ClickHouseDatabase,
		}, slog.Default())
		if err != nil {
			return nil, err
		}
		retrievers = append(retrievers, station.New(store))
	}
	if len(retrievers) == 0 {
		return nil, fmt.Errorf("no retriever backends configured")
	}
	return retrievers, nil
}
