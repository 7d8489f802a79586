package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// HistoryPoint is one stored heavy-hitter row.
type HistoryPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	Flow          string    `json:"flow"`
	Value         int32     `json:"value"`
	Kind          uint8     `json:"kind"`
	ElementsAdded int64     `json:"elements_added"`
}

// HistoryRequest filters stored rows. Flow and Since are optional.
type HistoryRequest struct {
	Task  string
	Flow  string
	Since time.Time
	Limit int
}

// HistoryQuerier reads heavy hitters persisted by the ClickHouse writer.
type HistoryQuerier struct {
	conn driver.Conn
}

// NewHistoryQuerier wraps an open ClickHouse connection.
func NewHistoryQuerier(conn driver.Conn) *HistoryQuerier {
	return &HistoryQuerier{conn: conn}
}

// History returns matching rows, newest first.
func (q *HistoryQuerier) History(ctx context.Context, req HistoryRequest) ([]HistoryPoint, error) {
	sql, args := historyQuery(req)
	rows, err := q.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var out []HistoryPoint
	for rows.Next() {
		var p HistoryPoint
		if err := rows.Scan(&p.Timestamp, &p.Flow, &p.Value, &p.Kind, &p.ElementsAdded); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func historyQuery(req HistoryRequest) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT Timestamp, Flow, Value, Type, ElementsAdded FROM cms_heavy_hitters")

	where := []string{"TaskName = ?"}
	args := []any{req.Task}
	if req.Flow != "" {
		where = append(where, "Flow = ?")
		args = append(args, req.Flow)
	}
	if !req.Since.IsZero() {
		where = append(where, "Timestamp >= ?")
		args = append(args, req.Since)
	}
	b.WriteString(" WHERE " + strings.Join(where, " AND "))
	b.WriteString(" ORDER BY Timestamp DESC, Value DESC")

	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	fmt.Fprintf(&b, " LIMIT %d", limit)
	return b.String(), args
}
