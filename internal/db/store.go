package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/Spok95/achievement-service/internal/ctxutil"
	"github.com/Spok95/achievement-service/internal/workflow"
)

// Store — хранилище достижений в PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ workflow.Store = (*Store)(nil)

func NewStore(database *sql.DB) *Store { return &Store{db: database} }

func (s *Store) DB() *sql.DB { return s.db }

// Ping — для /healthz.
func (s *Store) Ping(ctx context.Context) error { return Ping(ctx, s.db) }

// queryer — общее у *sql.DB и *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// WithTx — одна транзакция на операцию; любая ошибка откатывает всё.
func (s *Store) WithTx(ctx context.Context, fn func(tx workflow.Tx) error) error {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

var _ workflow.Tx = (*txStore)(nil)

// uniqueViolation — 23505 от pgx или lib/pq; constraint — имя ограничения.
func uniqueViolation(err error) (constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint, true
	}
	return "", false
}
