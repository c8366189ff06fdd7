package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

var ErrInvalidTableName = errors.New("invalid table name")

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// TableReader is the read-only view components depend on.
type TableReader interface {
	ReadTable(ctx context.Context, name string) (Table, error)
}

// DB is a read-only handle over the relational store. It is created once by
// the process bootstrap and shared by every branch.
type DB struct {
	db     *sqlx.DB
	driver string
}

// sqliteDSN turns a path or file: URI into a read-only URI. Query
// parameters only reach SQLite when the DSN carries the file: prefix.
func sqliteDSN(dsn string) string {
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "mode=ro&_pragma=busy_timeout(5000)&_pragma=query_only(1)"
}

// Open connects to the store. driver is "sqlite" (default) or "postgres".
func Open(driver, dsn string) (*DB, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" {
		driver = "sqlite"
	}
	switch driver {
	case "sqlite":
		db, err := sqlx.Open("sqlite", sqliteDSN(dsn))
		if err != nil {
			return nil, eris.Wrap(err, "open sqlite")
		}
		db.SetMaxOpenConns(4)
		return &DB{db: db, driver: driver}, nil
	case "postgres":
		db, err := sqlx.Open("postgres", dsn)
		if err != nil {
			return nil, eris.Wrap(err, "open postgres")
		}
		return &DB{db: db, driver: driver}, nil
	default:
		return nil, eris.Errorf("unsupported store driver %q", driver)
	}
}

// FromDB wraps an existing connection.
func FromDB(db *sqlx.DB) *DB {
	return &DB{db: db, driver: db.DriverName()}
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// ReadTable returns every row of the named table.
func (d *DB) ReadTable(ctx context.Context, name string) (Table, error) {
	return d.read(ctx, name, 0)
}

// ReadTablePreview returns at most limit rows of the named table.
func (d *DB) ReadTablePreview(ctx context.Context, name string, limit int) (Table, error) {
	if limit <= 0 {
		limit = 20
	}
	return d.read(ctx, name, limit)
}

func (d *DB) read(ctx context.Context, name string, limit int) (Table, error) {
	if !identRe.MatchString(name) {
		return Table{}, eris.Wrapf(ErrInvalidTableName, "%q", name)
	}
	q := fmt.Sprintf(`SELECT * FROM "%s"`, name)
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := d.db.QueryxContext(ctx, q)
	if err != nil {
		return Table{}, eris.Wrapf(err, "read table %s", name)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Table{}, eris.Wrapf(err, "columns of %s", name)
	}
	t := Table{Name: name, Columns: cols}
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return Table{}, eris.Wrapf(err, "scan %s", name)
		}
		row := make([]string, len(vals))
		for i, v := range vals {
			row[i] = stringify(v)
		}
		t.Rows = append(t.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Table{}, eris.Wrapf(err, "iterate %s", name)
	}
	return t, nil
}

// ListTables returns the user tables in name order.
func (d *DB) ListTables(ctx context.Context) ([]string, error) {
	q := `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	if d.driver == "postgres" {
		q = `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name`
	}
	var names []string
	if err := d.db.SelectContext(ctx, &names, q); err != nil {
		return nil, eris.Wrap(err, "list tables")
	}
	return names, nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
