package sketch

import (
	"context"
	"fmt"
	"time"

	"Go2NetSketch/internal/config"
	"Go2NetSketch/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/rs/zerolog/log"
)

// Row kinds stored in the Type column.
const (
	RowHeavyHitter   uint8 = 0
	RowOverThreshold uint8 = 1
)

// TimestampLayout is the snapshot timestamp format shared by all writers.
const TimestampLayout = "2006-01-02_15-04-05"

const createHeavyHittersTableStatement = `
CREATE TABLE IF NOT EXISTS cms_heavy_hitters (
    Timestamp     DateTime,
    TaskName      String,
    Flow          String,
    Value         Int32,
    Type          UInt8,
    ElementsAdded Int64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (TaskName, Timestamp);
`

// ClickHouseWriter implements the model.Writer interface for ClickHouse.
type ClickHouseWriter struct {
	conn     driver.Conn
	interval time.Duration
}

// NewClickHouseWriter connects to ClickHouse and ensures the table exists.
func NewClickHouseWriter(cfg config.ClickHouseConfig, interval time.Duration) (*ClickHouseWriter, error) {
	conn, err := Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createHeavyHittersTableStatement); err != nil {
		return nil, fmt.Errorf("failed to create cms_heavy_hitters table: %w", err)
	}
	log.Info().Msg("[writer] connected to ClickHouse and ensured cms_heavy_hitters table exists")

	return &ClickHouseWriter{conn: conn, interval: interval}, nil
}

// Connect opens and pings a ClickHouse connection.
func Connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

func (w *ClickHouseWriter) Name() string { return "clickhouse" }

func (w *ClickHouseWriter) GetInterval() time.Duration {
	return w.interval
}

type hitterRow struct {
	flow  string
	value int32
	kind  uint8
}

func hitterRows(snap *model.SketchSnapshot) []hitterRow {
	rows := make([]hitterRow, 0, len(snap.HeavyHitters)+len(snap.OverThreshold))
	for _, h := range snap.HeavyHitters {
		rows = append(rows, hitterRow{flow: h.Key, value: h.Count, kind: RowHeavyHitter})
	}
	for _, h := range snap.OverThreshold {
		rows = append(rows, hitterRow{flow: h.Key, value: h.Count, kind: RowOverThreshold})
	}
	return rows
}

func (w *ClickHouseWriter) Write(snap *model.SketchSnapshot, timestamp string) error {
	rows := hitterRows(snap)
	if len(rows) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(context.Background(), "INSERT INTO cms_heavy_hitters")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	snapshotTime, err := time.Parse(TimestampLayout, timestamp)
	if err != nil {
		snapshotTime = snap.Timestamp
	}
	for _, r := range rows {
		if err := batch.Append(snapshotTime, snap.TaskName, r.flow, r.value, r.kind, snap.Info.ElementsAdded); err != nil {
			return fmt.Errorf("failed to append heavy hitter to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	log.Debug().Msgf("[writer] wrote %d rows for %s to ClickHouse", len(rows), snap.TaskName)
	return nil
}
