package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const (
	DBTxKey    contextKey = "db_tx"
	txHooksKey contextKey = "db_tx_hooks"
)

// TxRunner runs fn inside a database transaction. Implementations must make
// the transaction visible to repositories through the context passed to fn.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TxFromContext returns the transaction bound to ctx, if any.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// WithTx binds tx to ctx.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, DBTxKey, tx)
}

type txHooks struct {
	afterCommit []func(context.Context)
}

// AfterCommit registers fn to run once the outermost transaction in ctx has
// committed. Without a transaction fn runs immediately. Hooks are dropped on
// rollback.
func AfterCommit(ctx context.Context, fn func(context.Context)) {
	hooks, ok := ctx.Value(txHooksKey).(*txHooks)
	if !ok {
		fn(ctx)
		return
	}
	hooks.afterCommit = append(hooks.afterCommit, fn)
}

// WithCommitHooks returns a context collecting AfterCommit callbacks and a
// function that runs them. Fake transaction runners use it in tests.
func WithCommitHooks(ctx context.Context) (context.Context, func(context.Context)) {
	hooks := &txHooks{}
	return context.WithValue(ctx, txHooksKey, hooks), func(ctx context.Context) {
		for _, fn := range hooks.afterCommit {
			fn(ctx)
		}
	}
}

// TxManager begins READ COMMITTED transactions on the pool. A call made
// while a transaction is already bound to the context opens a savepoint,
// so a failing inner unit rolls back alone.
type TxManager struct {
	pool *pgxpool.Pool
}

func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

func (m *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if outer := TxFromContext(ctx); outer != nil {
		return runSavepoint(ctx, outer, fn)
	}

	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txCtx, runHooks := WithCommitHooks(WithTx(ctx, tx))

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(txCtx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	runHooks(ctx)
	return nil
}

func runSavepoint(ctx context.Context, outer pgx.Tx, fn func(ctx context.Context) error) (err error) {
	sp, err := outer.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin savepoint: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sp.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = sp.Rollback(ctx)
		}
	}()

	inner := &txHooks{}
	if err = fn(context.WithValue(WithTx(ctx, sp), txHooksKey, inner)); err != nil {
		return err
	}
	if err = sp.Commit(ctx); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}

	// hooks of a released savepoint wait for the outer commit
	for _, fn := range inner.afterCommit {
		AfterCommit(ctx, fn)
	}
	return nil
}
