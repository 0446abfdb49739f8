package config

import (
	"fmt"
	"os"
)

// Config holds process configuration. Retriever backends are optional:
// only the ones with an endpoint configured are registered.
type Config struct {
	// Object-storage cache. Empty endpoint disables caching.
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	// Surface observation warehouse. Empty host disables the SURFACE source.
	ClickHouseHost     string
	ClickHousePort     string
	ClickHouseUser     string
	ClickHousePassword string
	ClickHouseDatabase string

	// OPERA radar API. Empty key disables the OPERA source.
	RadarBaseURL string
	RadarAPIKey  string

	// Satellite ordering API. Empty base URL disables the SATELLITE source.
	SatelliteBaseURL string
	SatelliteAPIKey  string

	// DEM tile service. Empty base URL disables the NASADEM source.
	DEMBaseURL string

	// NWP grib archive root. Empty disables the archive sources.
	NWPArchiveRoot string
}

type ErrMissingRequiredEnvVar struct {
	Name string
}

func (e *ErrMissingRequiredEnvVar) Error() string {
	return fmt.Sprintf("required environment variable %q is not set", e.Name)
}

// Load reads configuration from environment variables. Backends are opt-in,
// but a partially configured backend is an error so typos do not silently
// disable caching or a source.
func Load() (*Config, error) {
	cfg := &Config{
		MinIOEndpoint:      os.Getenv("MINIO_ENDPOINT"),
		MinIOAccessKey:     os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey:     os.Getenv("MINIO_SECRET_KEY"),
		MinIOBucket:        getEnv("MINIO_BUCKET", "weathermart-cache"),
		MinIOUseSSL:        os.Getenv("MINIO_USE_SSL") == "true",
		ClickHouseHost:     os.Getenv("CLICKHOUSE_HOST"),
		ClickHousePort:     getEnv("CLICKHOUSE_PORT", "9000"),
		ClickHouseUser:     getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePassword: os.Getenv("CLICKHOUSE_PASSWORD"),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "weathermart"),
		RadarBaseURL:       os.Getenv("RADAR_BASE_URL"),
		RadarAPIKey:        os.Getenv("RADAR_API_KEY"),
		SatelliteBaseURL:   os.Getenv("SATELLITE_BASE_URL"),
		SatelliteAPIKey:    os.Getenv("SATELLITE_API_KEY"),
		DEMBaseURL:         os.Getenv("DEM_BASE_URL"),
		NWPArchiveRoot:     os.Getenv("NWP_ARCHIVE_ROOT"),
	}

	if cfg.MinIOEndpoint != "" {
		if cfg.MinIOAccessKey == "" {
			return nil, &ErrMissingRequiredEnvVar{Name: "MINIO_ACCESS_KEY"}
		}
		if cfg.MinIOSecretKey == "" {
			return nil, &ErrMissingRequiredEnvVar{Name: "MINIO_SECRET_KEY"}
		}
	}
	if cfg.SatelliteBaseURL != "" && cfg.SatelliteAPIKey == "" {
		return nil, &ErrMissingRequiredEnvVar{Name: "SATELLITE_API_KEY"}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
