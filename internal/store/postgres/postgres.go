package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"paintstore/backend/internal/domain"
	"paintstore/backend/internal/store"
)

//go:embed schema.sql
var schemaSQL string

const maxTxAttempts = 3

var (
	_ store.Repository = (*Store)(nil)
	_ store.Tx         = (*txQueries)(nil)
)

type Store struct {
	reader
	db   *sql.DB
	opts store.Options
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func New(ctx context.Context, databaseURL string, opts store.Options) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{reader: reader{q: db}, db: db, opts: opts}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn in a serializable transaction, retrying when Postgres
// aborts it with a serialization failure.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if !isSerializationFailure(err) {
			return err
		}
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := fn(ctx, &txQueries{reader: reader{q: pgTx}, tx: pgTx, opts: s.opts}); err != nil {
		return err
	}
	return pgTx.Commit()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	return insertAudit(ctx, s.db, entry)
}

func (s *Store) Export(ctx context.Context) (*domain.Backup, error) {
	var backup *domain.Backup
	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.(*txQueries).exportAll(ctx)
		backup = b
		return err
	})
	return backup, err
}

func (s *Store) Import(ctx context.Context, backup domain.Backup) error {
	if err := store.ValidateBackup(backup); err != nil {
		return err
	}
	return s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.(*txQueries).replaceAll(ctx, backup)
	})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}

func orNow(val time.Time) time.Time {
	if val.IsZero() {
		return time.Now().UTC()
	}
	return val
}
