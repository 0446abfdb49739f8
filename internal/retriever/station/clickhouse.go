package station

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseStore implements ObservationStore against the measurement
// warehouse.
type ClickHouseStore struct {
	conn driver.Conn
}

// ClickHouseConfig holds warehouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

// NewClickHouseStore connects to the warehouse and verifies the connection.
func NewClickHouseStore(ctx context.Context, cfg ClickHouseConfig, logger *slog.Logger) (*ClickHouseStore, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Logger: logger,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	return &ClickHouseStore{conn: conn}, nil
}

// Query returns the observations of one parameter over [from, to), limited
// to stations licensed at or below the use-limitation tier.
func (s *ClickHouseStore) Query(ctx context.Context, parameter string, from, to time.Time, useLimitation int) ([]Observation, error) {
	rows, err := s.conn.Query(
		ctx,
		`
		SELECT station_id, ts, value
		FROM observations FINAL
		WHERE parameter = @parameter
		  AND ts >= @from AND ts < @to
		  AND use_limitation <= @limitation
		ORDER BY ts, station_id
		`,
		clickhouse.Named("parameter", parameter),
		clickhouse.Named("from", from),
		clickhouse.Named("to", to),
		clickhouse.Named("limitation", useLimitation),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var observations []Observation
	for rows.Next() {
		var obs Observation
		if err := rows.Scan(&obs.StationID, &obs.Time, &obs.Value); err != nil {
			return nil, err
		}
		observations = append(observations, obs)
	}
	return observations, rows.Err()
}

// Close releases the warehouse connection.
func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}
