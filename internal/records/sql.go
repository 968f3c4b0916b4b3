package records

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations
var migrations embed.FS

type dialect string

const (
	dialectPostgres dialect = "postgres"
	dialectSQLite   dialect = "sqlite"
)

type Credentials struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// SQLStore implements Store over Postgres (lib/pq) or SQLite (modernc).
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

func OpenPostgres(ctx context.Context, cred Credentials) (*SQLStore, error) {
	sslMode := cred.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName,
		sslMode)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &SQLStore{db: db, dialect: dialectPostgres}, nil
}

func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	return &SQLStore{db: db, dialect: dialectSQLite}, nil
}

// Open connects to the named driver, postgres or sqlite, and brings the
// schema up to date.
func Open(ctx context.Context, driver string, cred Credentials, sqlitePath string) (*SQLStore, error) {
	var (
		s   *SQLStore
		err error
	)
	switch driver {
	case "postgres":
		s, err = OpenPostgres(ctx, cred)
	case "sqlite":
		s, err = OpenSQLite(ctx, sqlitePath)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	if err := s.RunMigrations(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// RunMigrations applies the embedded schema for the store's dialect.
func (s *SQLStore) RunMigrations() error {
	var (
		driver database.Driver
		err    error
	)
	switch s.dialect {
	case dialectPostgres:
		driver, err = postgres.WithInstance(s.db, &postgres.Config{
			MigrationsTable: "storefront_schema_migrations",
		})
	case dialectSQLite:
		driver, err = migratesqlite.WithInstance(s.db, &migratesqlite.Config{
			MigrationsTable: "storefront_schema_migrations",
		})
	}
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	src, err := iofs.New(migrations, "migrations/"+string(s.dialect))
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(s.dialect), driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (s *SQLStore) Select(ctx context.Context, table string, filter Filter, order ...Ordering) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT * FROM %s", table)
	where, args, err := s.where(filter, 0)
	if err != nil {
		return nil, err
	}
	b.WriteString(where)

	if len(order) > 0 {
		parts := make([]string, 0, len(order))
		for _, o := range order {
			if err := checkColumn(o.Column); err != nil {
				return nil, err
			}
			dir := "ASC"
			if o.Descending {
				dir = "DESC"
			}
			parts = append(parts, o.Column+" "+dir)
		}
		b.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	return scanRows(rows)
}

func (s *SQLStore) Insert(ctx context.Context, table string, row Row) (Row, error) {
	out, err := s.InsertMany(ctx, table, []Row{row})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (s *SQLStore) InsertMany(ctx context.Context, table string, rows []Row) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrEmptyPayload
	}

	columns := sortedColumns(rows[0])
	for _, c := range columns {
		if err := checkColumn(c); err != nil {
			return nil, err
		}
	}

	args := make([]any, 0, len(rows)*len(columns))
	tuples := make([]string, 0, len(rows))
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, fmt.Errorf("insert %s: row %d has %d columns, want %d", table, i, len(r), len(columns))
		}
		marks := make([]string, len(columns))
		for j, c := range columns {
			v, ok := r[c]
			if !ok {
				return nil, fmt.Errorf("insert %s: row %d is missing column %s", table, i, c)
			}
			args = append(args, s.value(v))
			marks[j] = fmt.Sprintf("$%d", len(args))
		}
		tuples = append(tuples, "("+strings.Join(marks, ", ")+")")
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s RETURNING *",
		table, strings.Join(columns, ", "), strings.Join(tuples, ", "))

	result, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.mapError(fmt.Sprintf("insert %s", table), err)
	}
	defer result.Close()

	out, err := scanRows(result)
	if err != nil {
		return nil, s.mapError(fmt.Sprintf("insert %s", table), err)
	}
	return out, nil
}

func (s *SQLStore) Update(ctx context.Context, table string, filter Filter, values Row) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, ErrEmptyPayload
	}
	if len(filter) == 0 {
		return 0, ErrUnfilteredUpdate
	}

	columns := sortedColumns(values)
	sets := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns)+len(filter))
	for _, c := range columns {
		if err := checkColumn(c); err != nil {
			return 0, err
		}
		args = append(args, s.value(values[c]))
		sets = append(sets, fmt.Sprintf("%s = $%d", c, len(args)))
	}

	where, whereArgs, err := s.where(filter, len(args))
	if err != nil {
		return 0, err
	}
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s%s", table, strings.Join(sets, ", "), where)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, s.mapError(fmt.Sprintf("update %s", table), err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	return n, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) where(filter Filter, offset int) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}

	columns := make([]string, 0, len(filter))
	for c := range filter {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	conds := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns))
	for _, c := range columns {
		if err := checkColumn(c); err != nil {
			return "", nil, err
		}
		v := filter[c]
		if v == nil {
			conds = append(conds, c+" IS NULL")
			continue
		}
		args = append(args, s.value(v))
		conds = append(conds, fmt.Sprintf("%s = $%d", c, offset+len(args)))
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func (s *SQLStore) value(v any) any {
	switch t := v.(type) {
	case time.Time:
		if s.dialect == dialectSQLite {
			return t.UTC().Format(sqliteTimeLayout)
		}
		return t.UTC()
	case *string:
		if t == nil {
			return nil
		}
		return *t
	default:
		return v
	}
}

func (s *SQLStore) mapError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%s: %w", op, ErrUniqueViolation)
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%s: %w", op, ErrUniqueViolation)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make(Row, len(columns))
		for i, c := range columns {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = values[i]
		}
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

func sortedColumns(r Row) []string {
	columns := make([]string, 0, len(r))
	for c := range r {
		columns = append(columns, c)
	}
	sort.Strings(columns)
	return columns
}
