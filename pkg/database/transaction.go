package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type TxContextKey string

const txKey = TxContextKey("tx-context-key")

type Tx interface {
	Queryer
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transaction wraps sqlx.Tx. Only the handle that began the transaction may
// finish it; handles joined through GetTx on a ctx that already carries a
// transaction treat Commit and Rollback as no-ops and leave that to the owner.
type Transaction struct {
	*sqlx.Tx
	logger   ectologger.Logger
	isClosed bool
	parent   *Transaction
}

func NewTx(tx *sqlx.Tx, logger ectologger.Logger) *Transaction {
	return &Transaction{
		Tx:     tx,
		logger: logger,
	}
}

func txFromContext(ctx context.Context) *Transaction {
	tx, ok := ctx.Value(txKey).(*Transaction)
	if !ok || tx == nil || !tx.IsOpen() {
		return nil
	}
	return tx
}

func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if open := txFromContext(ctx); open != nil {
		owner := open
		if open.parent != nil {
			owner = open.parent
		}
		return ctx, &Transaction{Tx: owner.Tx, logger: logger, parent: owner}, nil
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Errorf("error while beginning transaction")
		return ctx, nil, fmt.Errorf("error while beginning transaction: %w", err)
	}

	newTx := NewTx(tx, logger)
	return context.WithValue(ctx, txKey, newTx), newTx, nil
}

func (t *Transaction) IsOpen() bool {
	if t.parent != nil {
		return t.parent.IsOpen()
	}
	return !t.isClosed
}

func (t *Transaction) Rollback(ctx context.Context) error {
	if t.parent != nil || t.isClosed {
		return nil
	}

	t.isClosed = true
	if err := t.Tx.Rollback(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while rolling back transaction")
		return fmt.Errorf("error while rolling back transaction: %w", err)
	}
	return nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	if t.parent != nil || t.isClosed {
		return nil
	}

	t.isClosed = true
	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while committing transaction")
		return fmt.Errorf("error while committing transaction: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction, committing when fn returns nil.
// Nested calls join the outer transaction.
func WithTx(ctx context.Context, db DB, fn func(ctx context.Context) error) error {
	ctx, tx, err := db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Transactor runs work inside one transaction. Services depend on it instead
// of DB so they can be exercised without a database.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type dbTransactor struct {
	db DB
}

func NewTransactor(db DB) Transactor {
	return dbTransactor{db: db}
}

func (t dbTransactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return WithTx(ctx, t.db, fn)
}
