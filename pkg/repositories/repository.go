package repositories

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/clover/pkg/database"
)

// Repository provides the shared plumbing for the entity repositories
type Repository struct {
	db           database.DB
	logger       ectologger.Logger
	queryTimeout time.Duration
}

// NewRepository creates a new base repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// DB returns the database instance
func (r *Repository) DB() database.DB {
	return r.db
}

// SetQueryTimeout bounds every statement the repository issues. Zero means
// the caller's deadline alone applies.
func (r *Repository) SetQueryTimeout(d time.Duration) {
	r.queryTimeout = d
}

// q returns the transaction carried by ctx or the pool, plus a ctx bounded
// by the query timeout. The returned cancel must always be called.
func (r *Repository) q(ctx context.Context) (context.Context, database.Queryer, context.CancelFunc) {
	queryer := r.db.Querier(ctx)
	if r.queryTimeout <= 0 {
		return ctx, queryer, func() {}
	}
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	return ctx, queryer, cancel
}

// storeError wraps a driver failure so it propagates with its cause intact.
func storeError(action string, err error) error {
	return errors.Wrapf(err, "failed to %s", action)
}
