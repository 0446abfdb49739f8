package station_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/kacper-wojtaszczyk/weathermart/internal/retriever/station"
)

func newStore(t *testing.T) *station.ClickHouseStore {
	t.Helper()

	host := os.Getenv("CLICKHOUSE_HOST")
	if host == "" {
		t.Skip("CLICKHOUSE_HOST not set, skipping integration test")
	}
	port := os.Getenv("CLICKHOUSE_PORT")
	if port == "" {
		port = "9000"
	}
	user := os.Getenv("CLICKHOUSE_USER")
	if user == "" {
		user = "default"
	}
	database := os.Getenv("CLICKHOUSE_DATABASE")
	if database == "" {
		database = "weathermart"
	}

	store, err := station.NewClickHouseStore(context.Background(), station.ClickHouseConfig{
		Host:     host,
		Port:     port,
		User:     user,
		Password: os.Getenv("CLICKHOUSE_PASSWORD"),
		Database: database,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestQuery_Integration(t *testing.T) {
	store := newStore(t)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	observations, err := store.Query(context.Background(), "tre200s0", from, to, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, obs := range observations {
		if obs.Time.Before(from) || !obs.Time.Before(to) {
			t.Fatalf("observation %v outside queried span", obs.Time)
		}
		if obs.StationID == "" {
			t.Fatal("observation without station id")
		}
	}
}
