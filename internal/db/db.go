package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "pgx"

	sqlitePragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
)

// ErrDuplicate is returned when an insert violates a uniqueness constraint
var ErrDuplicate = errors.New("duplicate record")

// DB wraps the database connection
type DB struct {
	*sql.DB
	driver string
}

// Init opens the database named by dsn and runs migrations.
// postgres:// and postgresql:// DSNs use pgx; anything else is a SQLite file path.
func Init(dsn string) (*DB, error) {
	if err := Migrate(dsn, "up"); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	driver, source, err := resolveDSN(dsn)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(driver, source)
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return &DB{DB: sqlDB, driver: driver}, nil
}

// Driver returns the database/sql driver name in use
func (db *DB) Driver() string {
	return db.driver
}

// resolveDSN maps a DATABASE_URL to a database/sql driver and data source
func resolveDSN(dsn string) (driver, source string, err error) {
	if dsn == "" {
		return "", "", errors.New("DATABASE_URL is not set")
	}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return driverPostgres, dsn, nil
	}

	path := strings.TrimPrefix(dsn, "sqlite://")

	// Ensure data directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", "", err
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return driverSQLite, path + sep + sqlitePragmas, nil
}

// rebind rewrites ? placeholders to $n for postgres
func (db *DB) rebind(query string) string {
	if db.driver != driverPostgres {
		return query
	}

	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// isUniqueViolation reports whether err is a uniqueness constraint failure on either driver
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
	}

	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// CreateUser inserts a new local user. A user with the same Stytch user id
// already present yields an error wrapping ErrDuplicate.
func (db *DB) CreateUser(ctx context.Context, user *User) error {
	_, err := db.ExecContext(ctx,
		db.rebind("INSERT INTO users (id, stytch_user_id, created_at) VALUES (?, ?, ?)"),
		user.ID, user.StytchUserID, user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user for stytch user %s: %v", ErrDuplicate, user.StytchUserID, err)
		}
		return err
	}

	return nil
}

// GetUserByID retrieves a user by local id. It returns nil, nil when no user matches.
func (db *DB) GetUserByID(ctx context.Context, id string) (*User, error) {
	return db.getUser(ctx, "SELECT id, stytch_user_id, created_at FROM users WHERE id = ?", id)
}

// GetUserByStytchUserID retrieves a user by Stytch user id. It returns nil, nil when no user matches.
func (db *DB) GetUserByStytchUserID(ctx context.Context, stytchUserID string) (*User, error) {
	return db.getUser(ctx, "SELECT id, stytch_user_id, created_at FROM users WHERE stytch_user_id = ?", stytchUserID)
}

func (db *DB) getUser(ctx context.Context, query string, arg string) (*User, error) {
	user := &User{}
	err := db.QueryRowContext(ctx, db.rebind(query), arg).Scan(&user.ID, &user.StytchUserID, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CountUsers returns the number of local users
func (db *DB) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
