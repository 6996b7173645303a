package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// txBeginner exposes the minimal pgx pool behaviour needed by DB.
type txBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// DB wraps a pgx pool to execute work inside transactions pinned to the hotspot schema.
type DB struct {
	pool   txBeginner
	schema string
}

type DBConfig struct {
	Pool   *pgxpool.Pool
	Schema string
}

func NewDB(cfg DBConfig) *DB {
	if cfg.Pool == nil {
		panic("DB requires pool")
	}

	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		panic("DB requires schema")
	}
	return &DB{pool: cfg.Pool, schema: schema}
}

// WithTx executes fn inside a read-write transaction. The transaction commits only when fn
// returns nil; any error rolls back every statement fn issued.
func (db *DB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return db.run(ctx, pgx.TxOptions{}, fn)
}

// WithReadTx executes fn inside a read-only transaction.
func (db *DB) WithReadTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return db.run(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, fn)
}

func (db *DB) run(ctx context.Context, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, db.schema); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
