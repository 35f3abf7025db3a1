package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Klingon-tech/ticketbox/internal/storage/migrations"
)

// SQLSTATE codes that mean "re-run the transaction".
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// PostgresDB implements Store on a single kv table. Update runs at
// SERIALIZABLE isolation, so a lost race surfaces as ErrConflict exactly
// like Badger's optimistic transactions.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to url and verifies connectivity.
func NewPostgres(ctx context.Context, url string, maxConns int32) (*PostgresDB, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresDB{pool: pool}, nil
}

// Migrate applies the embedded schema migrations to the database at url.
func Migrate(url string) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	defer src.Close()

	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	defer m.Close()

	_, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return errors.New("database schema is in dirty state")
	}
	if err := m.Migrate(migrations.Version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Get retrieves a value by key.
func (p *PostgresDB) Get(key []byte) ([]byte, error) {
	return pgGet(context.Background(), p.pool, key)
}

// Put stores a key-value pair.
func (p *PostgresDB) Put(key, value []byte) error {
	return pgPut(context.Background(), p.pool, key, value)
}

// Delete removes a key.
func (p *PostgresDB) Delete(key []byte) error {
	return pgDelete(context.Background(), p.pool, key)
}

// Has checks if a key exists.
func (p *PostgresDB) Has(key []byte) (bool, error) {
	return pgHas(context.Background(), p.pool, key)
}

// ForEach iterates over all keys with the given prefix in key order.
func (p *PostgresDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return pgForEach(context.Background(), p.pool, prefix, fn)
}

// Close closes the connection pool.
func (p *PostgresDB) Close() error {
	p.pool.Close()
	return nil
}

// Update runs fn in a SERIALIZABLE read-write transaction.
func (p *PostgresDB) Update(ctx context.Context, fn func(txn Txn) error) error {
	return p.run(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, false, fn)
}

// View runs fn in a read-only snapshot.
func (p *PostgresDB) View(ctx context.Context, fn func(txn Txn) error) error {
	return p.run(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, true, fn)
}

func (p *PostgresDB) run(ctx context.Context, opts pgx.TxOptions, readOnly bool, fn func(txn Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := p.pool.BeginTx(ctx, opts)
	if err != nil {
		return mapPgErr(fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&pgTxn{ctx: ctx, tx: tx, readOnly: readOnly}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapPgErr(fmt.Errorf("commit: %w", err))
	}
	return nil
}

type pgTxn struct {
	ctx      context.Context
	tx       pgx.Tx
	readOnly bool
}

func (t *pgTxn) Get(key []byte) ([]byte, error) { return pgGet(t.ctx, t.tx, key) }

func (t *pgTxn) Has(key []byte) (bool, error) { return pgHas(t.ctx, t.tx, key) }

func (t *pgTxn) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return pgForEach(t.ctx, t.tx, prefix, fn)
}

func (t *pgTxn) Put(key, value []byte) error {
	if t.readOnly {
		return ErrReadOnly
	}
	return pgPut(t.ctx, t.tx, key, value)
}

func (t *pgTxn) Delete(key []byte) error {
	if t.readOnly {
		return ErrReadOnly
	}
	return pgDelete(t.ctx, t.tx, key)
}

func pgGet(ctx context.Context, q querier, key []byte) ([]byte, error) {
	var v []byte
	err := q.QueryRow(ctx, `SELECT value FROM kv WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, mapPgErr(fmt.Errorf("postgres get: %w", err))
	}
	return v, nil
}

func pgHas(ctx context.Context, q querier, key []byte) (bool, error) {
	var ok bool
	err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM kv WHERE key = $1)`, key).Scan(&ok)
	if err != nil {
		return false, mapPgErr(fmt.Errorf("postgres has: %w", err))
	}
	return ok, nil
}

func pgPut(ctx context.Context, q querier, key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := q.Exec(ctx,
		`INSERT INTO kv (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		return mapPgErr(fmt.Errorf("postgres put: %w", err))
	}
	return nil
}

func pgDelete(ctx context.Context, q querier, key []byte) error {
	if _, err := q.Exec(ctx, `DELETE FROM kv WHERE key = $1`, key); err != nil {
		return mapPgErr(fmt.Errorf("postgres delete: %w", err))
	}
	return nil
}

func pgForEach(ctx context.Context, q querier, prefix []byte, fn func(key, value []byte) error) error {
	var (
		rows pgx.Rows
		err  error
	)
	if end := prefixEnd(prefix); end != nil {
		rows, err = q.Query(ctx, `SELECT key, value FROM kv WHERE key >= $1 AND key < $2 ORDER BY key`, prefix, end)
	} else {
		rows, err = q.Query(ctx, `SELECT key, value FROM kv WHERE key >= $1 ORDER BY key`, prefix)
	}
	if err != nil {
		return mapPgErr(fmt.Errorf("postgres scan: %w", err))
	}
	defer rows.Close()

	// Collect first so fn may issue queries on the same connection.
	type kv struct{ k, v []byte }
	var all []kv
	for rows.Next() {
		var e kv
		if err := rows.Scan(&e.k, &e.v); err != nil {
			return mapPgErr(fmt.Errorf("postgres scan: %w", err))
		}
		all = append(all, e)
	}
	if err := rows.Err(); err != nil {
		return mapPgErr(fmt.Errorf("postgres scan: %w", err))
	}
	rows.Close()

	for _, e := range all {
		if err := fn(e.k, e.v); err != nil {
			return err
		}
	}
	return nil
}

// mapPgErr turns serialization failures into ErrConflict.
func mapPgErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		}
	}
	return err
}
