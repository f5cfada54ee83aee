package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/agile-platform/backend/internal/app/pool"
	"github.com/agile-platform/backend/internal/infra/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	ErrClosing        = errors.New("database pool is shutting down")
	errReleasedBroken = errors.New("connection released broken")
)

// Publisher receives pool lifecycle events.
type Publisher interface {
	Publish(pool.Event)
}

// Limits is the static pool configuration reported by the stats endpoint.
type Limits struct {
	MaxConns         int32
	MinConns         int32
	IdleTimeout      time.Duration
	ConnectTimeout   time.Duration
	StatementTimeout time.Duration
}

// Millis renders the limits with millisecond durations for JSON responses.
func (l Limits) Millis() map[string]int64 {
	return map[string]int64{
		"max":                     int64(l.MaxConns),
		"min":                     int64(l.MinConns),
		"idleTimeoutMillis":       l.IdleTimeout.Milliseconds(),
		"connectionTimeoutMillis": l.ConnectTimeout.Milliseconds(),
		"statementTimeoutMillis":  l.StatementTimeout.Milliseconds(),
	}
}

// Pool wraps pgxpool so every acquisition is counted while it waits and
// every failure reaches the monitor.
type Pool struct {
	pool    *pgxpool.Pool
	sqlDB   *sql.DB
	events  Publisher
	limits  Limits
	waiting atomic.Int64
	closing atomic.Bool
	log     *zap.Logger
}

func poolConfig(cfg *config.Config, events Publisher) (*pgxpool.Config, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pcfg.MaxConns = cfg.DBMaxConns
	pcfg.MinConns = cfg.DBMinConns
	pcfg.MaxConnIdleTime = cfg.DBIdleTimeout
	pcfg.ConnConfig.ConnectTimeout = cfg.DBConnectTimeout
	if cfg.DBStatementTimeout > 0 {
		pcfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(cfg.DBStatementTimeout.Milliseconds(), 10)
	}

	pcfg.ConnConfig.Tracer = &lifecycleTracer{events: events}
	return pcfg, nil
}

func Open(ctx context.Context, cfg *config.Config, events Publisher, log *zap.Logger) (*Pool, error) {
	pcfg, err := poolConfig(cfg, events)
	if err != nil {
		return nil, err
	}

	pgPool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	p := &Pool{
		pool:   pgPool,
		events: events,
		log:    log,
		limits: Limits{
			MaxConns:         cfg.DBMaxConns,
			MinConns:         cfg.DBMinConns,
			IdleTimeout:      cfg.DBIdleTimeout,
			ConnectTimeout:   cfg.DBConnectTimeout,
			StatementTimeout: cfg.DBStatementTimeout,
		},
	}

	p.sqlDB = newSQLBridge(p, stdlib.GetPoolConnector(pgPool))

	log.Info("database pool created",
		zap.Int32("max_conns", cfg.DBMaxConns),
		zap.Int32("min_conns", cfg.DBMinConns),
		zap.Duration("connect_timeout", cfg.DBConnectTimeout),
	)
	return p, nil
}

// SQL returns a database/sql handle that borrows from the same pool.
func (p *Pool) SQL() *sql.DB { return p.sqlDB }

func (p *Pool) Limits() Limits { return p.limits }

func (p *Pool) Gorm() (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: p.sqlDB}), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
}

func (p *Pool) Gauges() pool.Gauges {
	st := p.pool.Stat()
	return pool.Gauges{
		Total:   int(st.TotalConns()),
		Idle:    int(st.IdleConns()),
		Waiting: int(p.waiting.Load()),
	}
}

func (p *Pool) acquireContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.limits.ConnectTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.limits.ConnectTimeout)
}

func (p *Pool) acquire(ctx context.Context) (*pgxpool.Conn, error) {
	if p.closing.Load() {
		return nil, ErrClosing
	}
	p.waiting.Add(1)
	defer p.waiting.Add(-1)

	actx, cancel := p.acquireContext(ctx)
	defer cancel()

	return p.pool.Acquire(actx)
}

// QueryRow runs sql on a freshly acquired connection which is released
// once the row is scanned.
func (p *Pool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	conn, err := p.acquire(ctx)
	if err != nil {
		return errRow{err: err}
	}
	return &releasingRow{row: conn.QueryRow(ctx, sql, args...), conn: conn}
}

// Close stops new acquisitions and waits for borrowed connections to come
// back. It gives up when ctx is done.
func (p *Pool) Close(ctx context.Context) error {
	if !p.closing.CompareAndSwap(false, true) {
		return nil
	}
	p.log.Info("draining database pool")

	if err := p.sqlDB.Close(); err != nil {
		p.log.Warn("close sql handle", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		p.pool.Close()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info("database pool closed")
		return nil
	case <-ctx.Done():
		p.log.Warn("database pool drain abandoned", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// newSQLBridge opens a database/sql handle over inner. It keeps no idle
// connections and sets no open limit: pgxpool's MaxConns is the only bound,
// so every caller that has to wait does so inside trackingConnector.Connect
// where it is counted.
func newSQLBridge(p *Pool, inner driver.Connector) *sql.DB {
	sqlDB := sql.OpenDB(&trackingConnector{inner: inner, p: p})
	sqlDB.SetMaxIdleConns(0)
	sqlDB.SetMaxOpenConns(0)
	return sqlDB
}

// trackingConnector counts database/sql callers waiting for a pool
// connection.
type trackingConnector struct {
	inner driver.Connector
	p     *Pool
}

func (c *trackingConnector) Connect(ctx context.Context) (driver.Conn, error) {
	if c.p.closing.Load() {
		return nil, ErrClosing
	}
	c.p.waiting.Add(1)
	defer c.p.waiting.Add(-1)

	actx, cancel := c.p.acquireContext(ctx)
	defer cancel()

	return c.inner.Connect(actx)
}

func (c *trackingConnector) Driver() driver.Driver { return c.inner.Driver() }

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

type releasingRow struct {
	row  pgx.Row
	conn *pgxpool.Conn
}

func (r *releasingRow) Scan(dest ...any) error {
	defer r.conn.Release()
	return r.row.Scan(dest...)
}

// lifecycleTracer turns pgxpool acquire and release into monitor events.
// A checkout is a Connect; every return is a Release, flagged with an error
// when pgxpool is about to destroy the connection instead of reusing it.
type lifecycleTracer struct {
	events Publisher
}

func (t *lifecycleTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, _ pgx.TraceQueryStartData) context.Context {
	return ctx
}

func (t *lifecycleTracer) TraceQueryEnd(context.Context, *pgx.Conn, pgx.TraceQueryEndData) {}

func (t *lifecycleTracer) TraceAcquireStart(ctx context.Context, _ *pgxpool.Pool, _ pgxpool.TraceAcquireStartData) context.Context {
	return ctx
}

func (t *lifecycleTracer) TraceAcquireEnd(_ context.Context, _ *pgxpool.Pool, data pgxpool.TraceAcquireEndData) {
	if data.Err != nil {
		t.events.Publish(pool.Event{Kind: pool.Error, Err: data.Err})
		return
	}
	t.events.Publish(pool.Event{Kind: pool.Connect})
}

func (t *lifecycleTracer) TraceRelease(_ *pgxpool.Pool, data pgxpool.TraceReleaseData) {
	if releasedBroken(data.Conn) {
		t.events.Publish(pool.Event{Kind: pool.Release, Err: errReleasedBroken})
		return
	}
	t.events.Publish(pool.Event{Kind: pool.Release})
}

// releasedBroken mirrors the checks pgxpool uses to destroy a returned
// connection: closed, mid-query, or left inside a transaction.
func releasedBroken(conn *pgx.Conn) bool {
	if conn == nil || conn.IsClosed() {
		return true
	}
	pg := conn.PgConn()
	return pg.IsBusy() || pg.TxStatus() != 'I'
}
