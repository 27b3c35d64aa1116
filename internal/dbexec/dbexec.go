// Package dbexec is the query-execution boundary. The engine only ever talks
// to a Querier, so tests can substitute an in-memory implementation and the
// engine stays agnostic to the underlying driver.
package dbexec

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Result carries the rows and affected-row count of one statement.
type Result struct {
	Rows     []map[string]any
	RowCount int
}

// Querier executes SQL against a target database. Query is for statements that
// return rows, Exec for DDL and writes.
type Querier interface {
	Query(ctx context.Context, stmt string, args ...any) (Result, error)
	Exec(ctx context.Context, stmt string, args ...any) (Result, error)
}

// DB adapts a *sql.DB to the Querier interface.
type DB struct {
	db *sql.DB
}

// Open connects to the given dialect's database. Supported dialects are
// postgres (pgx), sqlite/d1 (modernc) and mysql.
func Open(dialect, dsn string) (*DB, error) {
	switch strings.ToLower(dialect) {
	case "postgres":
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, err
		}
		db.SetConnMaxIdleTime(5 * time.Minute)
		db.SetMaxOpenConns(5)
		return &DB{db: db}, nil
	case "sqlite", "d1":
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		// A single connection keeps in-memory databases coherent.
		db.SetMaxOpenConns(1)
		return &DB{db: db}, nil
	case "mysql":
		// Validate DSN early to provide actionable errors.
		if _, err := mysql.ParseDSN(dsn); err != nil {
			return nil, fmt.Errorf("invalid mysql dsn: %w", err)
		}
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, err
		}
		db.SetConnMaxIdleTime(5 * time.Minute)
		db.SetMaxOpenConns(5)
		return &DB{db: db}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect %s", dialect)
	}
}

// Wrap adapts an already-open *sql.DB.
func Wrap(db *sql.DB) *DB { return &DB{db: db} }

// Close releases the underlying connection pool.
func (d *DB) Close() error { return d.db.Close() }

func (d *DB) Query(ctx context.Context, stmt string, args ...any) (Result, error) {
	rows, err := d.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}

	var out Result
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, err
		}
		record := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = values[i]
			}
		}
		out.Rows = append(out.Rows, record)
	}
	out.RowCount = len(out.Rows)
	return out, rows.Err()
}

func (d *DB) Exec(ctx context.Context, stmt string, args ...any) (Result, error) {
	res, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return Result{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		// Some drivers cannot report affected rows for DDL.
		affected = 0
	}
	return Result{RowCount: int(affected)}, nil
}

// SplitStatements breaks a migration script into individual statements,
// respecting single- and double-quoted regions so quoted semicolons survive.
func SplitStatements(sqlText string) []string {
	var (
		out      []string
		current  strings.Builder
		inSingle bool
		inDouble bool
	)

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			out = append(out, stmt)
		}
		current.Reset()
	}

	for _, r := range sqlText {
		switch r {
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		case ';':
			if !inSingle && !inDouble {
				flush()
				continue
			}
		}
		current.WriteRune(r)
	}
	flush()
	return out
}
