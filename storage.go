package auth

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-errors"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// OpenDB opens a bun database for driver, postgres or sqlite.
func OpenDB(driver, dsn string) (*bun.DB, error) {
	switch strings.ToLower(driver) {
	case DriverPostgres, "pgx", "postgresql":
		sqldb, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to open postgres")
		}
		return bun.NewDB(sqldb, pgdialect.New()), nil
	case DriverSQLite, "sqlite3":
		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to open sqlite")
		}
		// sqlite serialises writers, a single connection avoids busy errors
		sqldb.SetMaxOpenConns(1)
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	default:
		return nil, errors.New(fmt.Sprintf("unsupported database driver %q", driver), errors.CategoryBadInput)
	}
}

var gooseMu sync.Mutex

// Migrate applies the embedded migrations for driver.
func Migrate(ctx context.Context, db *bun.DB, driver string) error {
	dir, dialect := "data/sql/migrations/sqlite", "sqlite3"
	if d := strings.ToLower(driver); d == DriverPostgres || d == "pgx" || d == "postgresql" {
		dir, dialect = "data/sql/migrations/postgres", "postgres"
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(GetMigrationsFS())
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to set migration dialect")
	}

	if err := goose.UpContext(ctx, db.DB, dir); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to apply migrations")
	}
	return nil
}

// affectedOne reports whether a conditional statement touched a row.
func affectedOne(res sql.Result, err error, operation string) (bool, error) {
	if err != nil {
		return false, storeError(err, operation)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeError(err, operation)
	}
	return n > 0, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	for e := err; e != nil; e = stderrors.Unwrap(e) {
		if strings.Contains(e.Error(), "UNIQUE constraint failed") {
			return true
		}
		var richErr *errors.Error
		if stderrors.As(e, &richErr) && richErr.Source != nil && richErr.Source != e {
			if strings.Contains(richErr.Source.Error(), "UNIQUE constraint failed") {
				return true
			}
		}
	}
	return false
}
