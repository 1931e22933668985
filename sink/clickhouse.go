package sink

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/bwesterb/go-wattsup"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ReadingsTableSQL creates the table records are stored in, one row per
// field.
const ReadingsTableSQL = `
	CREATE TABLE IF NOT EXISTS meter_readings (
		timestamp DateTime64(3),
		device_id String,
		field String,
		value Float64
	) ENGINE = MergeTree()
	ORDER BY (device_id, field, timestamp)
	PARTITION BY toYYYYMM(timestamp)
`

const insertReadingsSQL = "INSERT INTO meter_readings (timestamp, device_id, field, value)"

type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

// ClickHouse stores records in the meter_readings table.
type ClickHouse struct {
	conn driver.Conn
	log  logrus.FieldLogger
}

// NewClickHouse connects to ClickHouse and creates the table if needed.
func NewClickHouse(ctx context.Context, cfg ClickHouseConfig, log logrus.FieldLogger) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "connecting to ClickHouse")
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "pinging ClickHouse")
	}
	if err := conn.Exec(ctx, ReadingsTableSQL); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "creating meter_readings")
	}

	log = log.WithField("clickhouse", cfg.Addr)
	log.Info("Connected to ClickHouse")
	return &ClickHouse{conn: conn, log: log}, nil
}

func (c *ClickHouse) Write(ctx context.Context, r *wattsup.Record) error {
	batch, err := c.conn.PrepareBatch(ctx, insertReadingsSQL)
	if err != nil {
		return errors.Wrap(err, "preparing insert")
	}
	for _, f := range r.Fields {
		if err := batch.Append(r.Time, r.Device, f.Label, f.Value); err != nil {
			batch.Abort()
			return errors.Wrapf(err, "appending %s", f.Label)
		}
	}
	if err := batch.Send(); err != nil {
		return errors.Wrap(err, "inserting readings")
	}
	return nil
}

func (c *ClickHouse) Close() error {
	return c.conn.Close()
}
