// Package sqlcoll is a collection backend over a single SQL table.
package sqlcoll

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/kailas-cloud/selectd/internal/collection"
	"github.com/kailas-cloud/selectd/internal/domain"
	"github.com/kailas-cloud/selectd/internal/validation"
)

var tracer = otel.Tracer("selectd/repository/sqlcoll")

// Supported dialects.
const (
	Postgres = "postgres"
	SQLite   = "sqlite"
	MySQL    = "mysql"
)

// Config describes one table-backed source.
type Config struct {
	Driver       string
	DSN          string
	Table        string
	Columns      []string
	MaxOpenConns int
	// ConnectTimeout bounds the initial ping retries. Zero means one minute.
	ConnectTimeout time.Duration
	Logger         *zap.Logger
}

// Store runs collection queries against one table.
type Store struct {
	db      *sql.DB
	stbl    sq.StatementBuilderType
	dialect string
	table   string
	columns []string
	allowed map[string]struct{}
	ownsDB  bool
}

// Open connects to the database and waits until it answers a ping.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driverName, err := driverFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = cfg.ConnectTimeout
	if policy.MaxElapsedTime == 0 {
		policy.MaxElapsedTime = time.Minute
	}
	attempt := 1
	err = backoff.Retry(func() error {
		if perr := db.PingContext(ctx); perr != nil {
			log.Info("waiting for database", zap.String("driver", cfg.Driver), zap.Int("attempt", attempt))
			attempt++
			return perr
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}

	s, err := New(db, cfg.Driver, cfg.Table, cfg.Columns)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// New wraps an existing handle. The caller keeps ownership of db.
func New(db *sql.DB, dialect, table string, columns []string) (*Store, error) {
	if _, err := driverFor(dialect); err != nil {
		return nil, err
	}
	if err := validation.Var("table", table, "required,ident"); err != nil {
		return nil, domain.NewConfigurationError("sql source", err)
	}
	if len(columns) == 0 {
		return nil, domain.NewConfigurationError("sql source "+table, errors.New("columns are required"))
	}
	allowed := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if err := validation.Var("column", c, "required,ident"); err != nil {
			return nil, domain.NewConfigurationError("sql source "+table, err)
		}
		allowed[c] = struct{}{}
	}

	stbl := sq.StatementBuilder.RunWith(db)
	if dialect == Postgres {
		stbl = stbl.PlaceholderFormat(sq.Dollar)
	}
	return &Store{
		db:      db,
		stbl:    stbl,
		dialect: dialect,
		table:   table,
		columns: append([]string(nil), columns...),
		allowed: allowed,
	}, nil
}

func driverFor(dialect string) (string, error) {
	switch dialect {
	case Postgres:
		return "pgx", nil
	case SQLite:
		return "sqlite", nil
	case MySQL:
		return "mysql", nil
	default:
		return "", domain.NewConfigurationError("sql source", fmt.Errorf("unsupported driver %q", dialect))
	}
}

func (s *Store) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "sqlcoll."+op, trace.WithAttributes(
		attribute.String("db.system", s.dialect),
		attribute.String("db.sql.table", s.table),
	))
}

// Count implements collection.Backend.
func (s *Store) Count(ctx context.Context, q collection.Query) (int, error) {
	ctx, span := s.startSpan(ctx, "Count")
	defer span.End()

	where, err := s.where(q)
	if err != nil {
		return 0, err
	}
	sb := s.stbl.Select("COUNT(*)").From(s.table)
	if where != nil {
		sb = sb.Where(where)
	}
	var n int
	if err := sb.QueryRowContext(ctx).Scan(&n); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("count %s: %w", s.table, err)
	}
	return n, nil
}

// Fetch implements collection.Backend.
func (s *Store) Fetch(ctx context.Context, q collection.Query, offset, limit int) ([]collection.Record, error) {
	ctx, span := s.startSpan(ctx, "Fetch")
	defer span.End()

	where, err := s.where(q)
	if err != nil {
		return nil, err
	}
	sb := s.stbl.Select(s.columns...).From(s.table)
	if where != nil {
		sb = sb.Where(where)
	}
	for _, k := range q.Order {
		if _, ok := s.allowed[k.Field]; !ok {
			return nil, fmt.Errorf("%w: unknown ordering column %q", domain.ErrInvalidFilter, k.Field)
		}
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		sb = sb.OrderBy(k.Field + " " + dir)
	}
	sb = sb.Limit(uint64(limit)).Offset(uint64(offset))

	rows, err := sb.QueryContext(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("fetch %s: %w", s.table, err)
	}
	defer func() { _ = rows.Close() }()

	out, err := scanRecords(rows)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("scan %s: %w", s.table, err)
	}
	span.SetAttributes(attribute.Int("db.rows", len(out)))
	return out, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool when the store opened it.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

func scanRecords(rows *sql.Rows) ([]collection.Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := make([]collection.Record, 0)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(collection.Record, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				rec[c] = string(b)
				continue
			}
			rec[c] = vals[i]
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// likeEscape is the escape character for LIKE patterns; '!' needs no
// quoting in any supported dialect.
const likeEscape = "!"

func escapeLike(s string) string {
	r := strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")
	return r.Replace(s)
}
