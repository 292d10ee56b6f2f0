package repositories

import (
	"context"
	"database/sql"
	"strings"
	"time"

	intdb "charterops/internal/db"
	"charterops/internal/store"
)

// dbtx is the subset shared by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// MySQLStore implements store.Store over the repositories below.
type MySQLStore struct {
	ReferenceRepository
	FleetRepository
	BookingRepository
	TripRepository

	conn *sql.DB
	inTx bool
}

func NewMySQLStore(conn *sql.DB) *MySQLStore {
	return newMySQLStore(conn, conn, false)
}

func newMySQLStore(conn *sql.DB, q dbtx, inTx bool) *MySQLStore {
	return &MySQLStore{
		ReferenceRepository: ReferenceRepository{DB: q},
		FleetRepository:     FleetRepository{DB: q},
		BookingRepository:   BookingRepository{DB: q},
		TripRepository:      TripRepository{DB: q},
		conn:                conn,
		inTx:                inTx,
	}
}

// WithTx runs fn under READ COMMITTED. Row locks come from the forUpdate
// reads; nested calls join the outer transaction.
func (s *MySQLStore) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return intdb.MapError("transaction", err)
	}
	defer tx.Rollback()

	if err := fn(newMySQLStore(s.conn, tx, true)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return intdb.MapError("transaction", err)
	}
	return nil
}

func lockSuffix(forUpdate bool) string {
	if forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

// inClause renders "?,?,?" for ids and the matching args.
func inClause(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

func nullInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

var _ store.Store = (*MySQLStore)(nil)
