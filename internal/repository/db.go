package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Driver           string
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
	ConnectAttempts  uint
}

func ConfigFrom(dc common.DatabaseConfig) Config {
	return Config{
		Driver:           dc.Driver,
		DSN:              dc.DSN,
		MaxConns:         dc.MaxConns,
		MinConns:         dc.MinConns,
		MaxConnLifetime:  dc.MaxConnLifetime,
		MaxConnIdleTime:  dc.MaxConnIdleTime,
		DialTimeout:      dc.DialTimeout,
		StatementTimeout: dc.StatementTimeout,
		ConnectAttempts:  dc.ConnectAttempts,
	}
}

// DB is a database/sql handle plus the dialect its queries are written for.
type DB struct {
	*sql.DB
	driver string
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects to postgres through a pgx pool or to an embedded sqlite file,
// then pings until the database answers or the attempts run out.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	if cfg.ConnectAttempts == 0 {
		cfg.ConnectAttempts = 1
	}
	logger.Info("db.open.start", "driver", cfg.Driver)

	d := &DB{driver: cfg.Driver, logger: logger}
	switch cfg.Driver {
	case DriverPostgres:
		pc, err := pgxpool.ParseConfig(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse postgres dsn: %w", err)
		}
		if cfg.MaxConns > 0 {
			pc.MaxConns = cfg.MaxConns
		}
		pc.MinConns = cfg.MinConns
		if cfg.MaxConnLifetime > 0 {
			pc.MaxConnLifetime = cfg.MaxConnLifetime
		}
		if cfg.MaxConnIdleTime > 0 {
			pc.MaxConnIdleTime = cfg.MaxConnIdleTime
		}
		pc.ConnConfig.RuntimeParams["application_name"] = "invoice-pipeline"
		if cfg.StatementTimeout > 0 {
			pc.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
		}
		pool, err := pgxpool.NewWithConfig(ctx, pc)
		if err != nil {
			return nil, fmt.Errorf("create postgres pool: %w", err)
		}
		d.pool = pool
		d.DB = stdlib.OpenDBFromPool(pool)
	case DriverSQLite:
		db, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// one connection keeps ":memory:" databases shared and serializes writers
		db.SetMaxOpenConns(1)
		d.DB = db
	default:
		return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("unsupported database driver %q", cfg.Driver), common.ErrInvalidInput)
	}

	err := retry.Do(
		func() error {
			pctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
			defer cancel()
			return d.PingContext(pctx)
		},
		retry.Context(ctx),
		retry.Attempts(cfg.ConnectAttempts),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("db.open.retry", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		d.Close()
		logger.Error("db.open.failed", "driver", cfg.Driver, "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}

	if cfg.Driver == DriverSQLite {
		for _, pragma := range []string{"PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
			if _, err := d.ExecContext(ctx, pragma); err != nil {
				d.Close()
				return nil, fmt.Errorf("set pragma: %w", err)
			}
		}
	}

	logger.Info("db.open.ok", "driver", cfg.Driver)
	return d, nil
}

func (d *DB) Driver() string { return d.driver }

// Close releases the handle and, for postgres, the pool underneath it.
func (d *DB) Close() {
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			d.logger.Error("db.close.failed", "error", err)
		}
	}
	if d.pool != nil {
		d.pool.Close()
	}
}

// HealthCheck pings the database, bounded by timeout when it is positive.
func (d *DB) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := d.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (d *DB) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Migrate creates the invoice tables when they do not exist.
func (d *DB) Migrate(ctx context.Context) error {
	idType := "INTEGER PRIMARY KEY AUTOINCREMENT"
	realType := "REAL"
	if d.driver == DriverPostgres {
		idType = "BIGSERIAL PRIMARY KEY"
		realType = "DOUBLE PRECISION"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS invoices (
			id ` + idType + `,
			codigo_factura TEXT NOT NULL UNIQUE,
			job_id TEXT,
			archivo_origen TEXT,
			codigo_cliente TEXT,
			razon_social_cliente TEXT NOT NULL,
			direccion_cliente TEXT,
			distrito TEXT,
			forma_pago TEXT,
			moneda TEXT,
			subtotal ` + realType + `,
			igv ` + realType + `,
			total ` + realType + `,
			detraccion_porcentaje ` + realType + `,
			detraccion_monto ` + realType + `,
			estado TEXT NOT NULL DEFAULT 'procesada',
			datos_raw TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS invoice_items (
			id ` + idType + `,
			invoice_id BIGINT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
			line_no INTEGER NOT NULL,
			descripcion TEXT NOT NULL,
			cantidad ` + realType + `,
			precio_unitario ` + realType + `,
			subtotal ` + realType + `
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invoice_items_invoice ON invoice_items(invoice_id)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_cliente ON invoices(codigo_cliente)`,
	}
	for _, s := range stmts {
		if _, err := d.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("%w: migrate: %v", common.ErrDatabase, err)
		}
	}
	d.logger.Info("db.migrate.ok", "driver", d.driver)
	return nil
}
