// Package pgtx carries a pgx transaction through context.Context so stores in
// different packages can join one unit of work.
package pgtx

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Beginner is a DB that can open transactions (pgxpool.Pool, pgxmock).
type Beginner interface {
	DB
	Begin(ctx context.Context) (pgx.Tx, error)
}

type txKey struct{}

// WithTx returns a context carrying tx.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFrom returns the ambient transaction, if any.
func TxFrom(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok && tx != nil
}

// Conn returns the ambient transaction when present, otherwise db.
func Conn(ctx context.Context, db DB) DB {
	if tx, ok := TxFrom(ctx); ok {
		return tx
	}
	return db
}

// Run executes fn inside a transaction. When ctx already carries one, fn joins
// it and commit is left to the owner.
func Run(ctx context.Context, db Beginner, fn func(ctx context.Context) error) (err error) {
	if _, ok := TxFrom(ctx); ok {
		return fn(ctx)
	}
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgtx: begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("pgtx: rollback: %w", rbErr))
			}
		}
	}()

	if err = fn(WithTx(ctx, tx)); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgtx: commit: %w", err)
	}
	return nil
}

// Nested runs fn in a savepoint of the ambient transaction, or in a new
// transaction when there is none. A failure inside fn rolls back only fn's
// work, leaving the ambient transaction usable.
func Nested(ctx context.Context, db Beginner, fn func(ctx context.Context) error) (err error) {
	outer, ok := TxFrom(ctx)
	if !ok {
		return Run(ctx, db, fn)
	}
	sp, err := outer.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgtx: savepoint: %w", err)
	}
	if err = fn(WithTx(ctx, sp)); err != nil {
		if rbErr := sp.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			err = errors.Join(err, fmt.Errorf("pgtx: rollback savepoint: %w", rbErr))
		}
		return err
	}
	if err = sp.Commit(ctx); err != nil {
		return fmt.Errorf("pgtx: release savepoint: %w", err)
	}
	return nil
}
