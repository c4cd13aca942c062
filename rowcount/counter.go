// Package rowcount counts materialized view rows kept in a SQL database.
//
// Each view is a table named by the configured prefix followed by the view
// name. DuckDB and SQLite are supported:
//
//	counter, err := rowcount.Open("duckdb", "", "mv_")
//	n, err := counter.CountView(ctx, "ActiveUsers")
package rowcount

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/mattn/go-sqlite3"
)

var ErrUnsupportedDriver = errors.New("unsupported row counter driver")

// SQLCounter counts and stores materialized rows in SQL tables.
type SQLCounter struct {
	db     *sql.DB
	driver string
	prefix string
}

// Open connects to driver ("duckdb" or "sqlite3"). An empty dsn opens an
// in-memory database.
func Open(driver, dsn, tablePrefix string) (*SQLCounter, error) {
	switch driver {
	case "duckdb":
	case "sqlite3":
		if dsn == "" {
			dsn = ":memory:"
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	// in-memory databases are per connection
	db.SetMaxOpenConns(1)

	return &SQLCounter{db: db, driver: driver, prefix: tablePrefix}, nil
}

func (c *SQLCounter) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *SQLCounter) table(viewName string) string {
	return quoteIdent(c.prefix + viewName)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (c *SQLCounter) tableExists(ctx context.Context, name string) (bool, error) {
	query := "SELECT count(*) FROM information_schema.tables WHERE table_name = ?"
	if c.driver == "sqlite3" {
		query = "SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	}

	var n int
	if err := c.db.QueryRowContext(ctx, query, name).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountView returns the number of rows stored for viewName. A view without a
// table has zero rows.
func (c *SQLCounter) CountView(ctx context.Context, viewName string) (int64, error) {
	exists, err := c.tableExists(ctx, c.prefix+viewName)
	if err != nil {
		return 0, fmt.Errorf("failed to look up table for %s: %w", viewName, err)
	}
	if !exists {
		return 0, nil
	}

	var count int64
	if err := c.db.QueryRowContext(ctx, "SELECT count(*) FROM "+c.table(viewName)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", viewName, err)
	}
	return count, nil
}

// ReplaceRows recreates the table of viewName with rows. Columns are the
// union of the row keys; values are stored as text.
func (c *SQLCounter) ReplaceRows(ctx context.Context, viewName string, rows []map[string]string) error {
	columnSet := map[string]struct{}{}
	for _, row := range rows {
		for col := range row {
			columnSet[col] = struct{}{}
		}
	}
	columns := slices.Sorted(maps.Keys(columnSet))
	if len(columns) == 0 {
		columns = []string{"_row"}
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+c.table(viewName)); err != nil {
		return fmt.Errorf("failed to drop table for %s: %w", viewName, err)
	}

	defs := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = quoteIdent(col) + " TEXT"
		marks[i] = "?"
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", c.table(viewName), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to create table for %s: %w", viewName, err)
	}

	insert := fmt.Sprintf("INSERT INTO %s VALUES (%s)", c.table(viewName), strings.Join(marks, ", "))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return err
	}
	defer stmt.Close()

	args := make([]any, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			if v, ok := row[col]; ok {
				args[i] = v
			} else {
				args[i] = nil
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert row into %s: %w", viewName, err)
		}
	}

	return tx.Commit()
}
