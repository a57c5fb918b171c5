// Package journal persists completed query/answer exchanges so operators can
// review what the agent did after the fact. SQLite is the default backend;
// postgres is available for shared deployments.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"

	defaultRecentLimit = 50
)

// Exchange is one completed round trip through the agent: the operator's
// query, the final answer, and enough model telemetry to audit it later.
type Exchange struct {
	ID           string
	RequestID    uint64
	Query        string
	Answer       string
	StopReason   string
	ToolName     string
	LatencyMs    int64
	InputTokens  int
	OutputTokens int
	CreatedAt    time.Time
}

// Store records exchanges and reads them back newest-first.
type Store interface {
	RecordExchange(ctx context.Context, ex Exchange) error
	RecentExchanges(ctx context.Context, limit int) ([]Exchange, error)
	Close() error
}

// Options selects and configures the backing database.
type Options struct {
	Driver string // "sqlite" (default) or "postgres"
	Path   string // sqlite file path, ":memory:" for ephemeral stores
	DSN    string // postgres connection string
}

// Open returns a migrated Store for the configured driver.
func Open(opts Options) (Store, error) {
	switch strings.TrimSpace(opts.Driver) {
	case "", driverSQLite:
		return openSQLite(opts.Path)
	case driverPostgres:
		return openPostgres(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported journal driver %q", opts.Driver)
	}
}

type sqlStore struct {
	db     *sql.DB
	driver string
}

const insertExchangeQuery = `INSERT INTO exchanges
	(id, request_id, query, answer, stop_reason, tool_name, latency_ms, input_tokens, output_tokens, created_at)
	VALUES(?,?,?,?,?,?,?,?,?,?)`

const selectRecentQuery = `SELECT id, request_id, query, answer, stop_reason, tool_name, latency_ms, input_tokens, output_tokens, created_at
	FROM exchanges
	ORDER BY created_at DESC, request_id DESC
	LIMIT ?`

func (s *sqlStore) RecordExchange(ctx context.Context, ex Exchange) error {
	if strings.TrimSpace(ex.ID) == "" {
		return errors.New("journal: exchange id is required")
	}
	created := ex.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(insertExchangeQuery),
		ex.ID,
		int64(ex.RequestID),
		ex.Query,
		ex.Answer,
		ex.StopReason,
		ex.ToolName,
		ex.LatencyMs,
		ex.InputTokens,
		ex.OutputTokens,
		created.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("journal: record exchange: %w", err)
	}
	return nil
}

func (s *sqlStore) RecentExchanges(ctx context.Context, limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(selectRecentQuery), limit)
	if err != nil {
		return nil, fmt.Errorf("journal: list exchanges: %w", err)
	}
	defer rows.Close()

	var result []Exchange
	for rows.Next() {
		var (
			ex        Exchange
			requestID int64
			createdAt string
		)
		if err := rows.Scan(
			&ex.ID,
			&requestID,
			&ex.Query,
			&ex.Answer,
			&ex.StopReason,
			&ex.ToolName,
			&ex.LatencyMs,
			&ex.InputTokens,
			&ex.OutputTokens,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("journal: scan exchange: %w", err)
		}
		ex.RequestID = uint64(requestID)
		if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
			ex.CreatedAt = ts
		}
		result = append(result, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: list exchanges: %w", err)
	}
	return result, nil
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// rebind rewrites ? placeholders to $N for the pgx driver. The sqlite driver
// consumes the queries as written.
func (s *sqlStore) rebind(query string) string {
	if s.driver != driverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
