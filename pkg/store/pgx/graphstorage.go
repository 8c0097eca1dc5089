// Package pgx implements GraphStorage on PostgreSQL with pgvector for
// chunk similarity search.
package pgx

import (
	"context"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stratum-kg/stratum/pkg/store"
)

// insertBatchSize bounds the rows written per statement batch.
const insertBatchSize = 500

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// GraphDBStorage implements the store.GraphStorage interface bound to one
// workspace. All statements filter on the workspace column, so two
// handles over the same pool never observe each other's rows.
type GraphDBStorage struct {
	conn      pgxIConn
	workspace string
}

var _ store.GraphStorage = (*GraphDBStorage)(nil)

// NewGraphDBStorage creates a workspace-bound storage handle on an
// existing connection or pool.
func NewGraphDBStorage(conn pgxIConn, workspace string) *GraphDBStorage {
	return &GraphDBStorage{conn: conn, workspace: workspace}
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *GraphDBStorage) inTx(ctx context.Context, fn func(tx pgxv5.Tx) error) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
