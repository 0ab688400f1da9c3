package opstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/XSAM/otelsql"
	"github.com/go-sql-driver/mysql"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
)

const (
	netTypeUnix      = "unix"
	schemePostgres   = "postgres"
	schemePostgresql = "postgresql"
)

// Type identifies the SQL dialect backing the operational store.
type Type uint8

const (
	TypeUnknown Type = iota
	TypeMySQL
	TypePostgreSQL
	TypeSQLite
)

func (t Type) String() string {
	switch t {
	case TypeMySQL:
		return "MySQL"
	case TypePostgreSQL:
		return "PostgreSQL"
	case TypeSQLite:
		return "SQLite"
	case TypeUnknown:
		fallthrough
	default:
		return "unknown"
	}
}

// ErrUnsupportedDriver is returned when the store URL scheme is not
// recognized.
var ErrUnsupportedDriver = errors.New("unsupported operational store driver")

// ErrInvalidPostgresUnixURL is returned when a postgres+unix URL is
// malformed.
var ErrInvalidPostgresUnixURL = errors.New("invalid postgres+unix URL")

// ErrInvalidMySQLUnixURL is returned when a mysql+unix URL is malformed.
var ErrInvalidMySQLUnixURL = errors.New("invalid mysql+unix URL")

// detectType determines the dialect from a store URL's scheme.
func detectType(storeURL string) (Type, error) {
	u, err := url.Parse(storeURL)
	if err != nil {
		return TypeUnknown, fmt.Errorf("error parsing the operational store URL %q: %w", storeURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "mysql":
		return TypeMySQL, nil
	case "postgres", "postgresql":
		return TypePostgreSQL, nil
	case "sqlite", "sqlite3":
		return TypeSQLite, nil
	default:
		return TypeUnknown, fmt.Errorf("%w: %q", ErrUnsupportedDriver, u.Scheme)
	}
}

// PoolConfig holds connection pool settings. Nil uses dialect-specific
// defaults.
type PoolConfig struct {
	MaxOpenConns int
	MaxIdleConns int
}

func applyPoolSettings(sdb *sql.DB, poolCfg *PoolConfig, defaultMaxOpen, defaultMaxIdle int) {
	maxOpen := defaultMaxOpen
	maxIdle := defaultMaxIdle

	if poolCfg != nil {
		if poolCfg.MaxOpenConns > 0 {
			maxOpen = poolCfg.MaxOpenConns
		}

		if poolCfg.MaxIdleConns > 0 {
			maxIdle = poolCfg.MaxIdleConns
		}
	}

	if maxOpen > 0 {
		sdb.SetMaxOpenConns(maxOpen)
	}

	if maxIdle > 0 {
		sdb.SetMaxIdleConns(maxIdle)
	}
}

func openSQL(storeURL string, poolCfg *PoolConfig) (*sql.DB, Type, error) {
	dbType, err := detectType(storeURL)
	if err != nil {
		return nil, TypeUnknown, err
	}

	var sdb *sql.DB

	switch dbType {
	case TypeSQLite:
		sdb, err = openSQLite(storeURL, poolCfg)
	case TypePostgreSQL:
		sdb, err = openPostgreSQL(storeURL, poolCfg)
	case TypeMySQL:
		sdb, err = openMySQL(storeURL, poolCfg)
	case TypeUnknown:
		fallthrough
	default:
		return nil, TypeUnknown, ErrUnsupportedDriver
	}

	if err != nil {
		return nil, TypeUnknown, fmt.Errorf("error opening the operational store at %q: %w", storeURL, err)
	}

	return sdb, dbType, nil
}

func openSQLite(storeURL string, poolCfg *PoolConfig) (*sql.DB, error) {
	u, err := url.Parse(storeURL)
	if err != nil {
		return nil, err
	}

	sdb, err := otelsql.Open("sqlite3", u.Path, otelsql.WithAttributes(semconv.DBSystemSqlite))
	if err != nil {
		return nil, err
	}

	if _, err := sdb.ExecContext(context.Background(), "PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("error enabling foreign keys: %w", err)
	}

	// SQLite requires MaxOpenConns=1 to avoid "database is locked" errors
	// under concurrent writers; this is enforced and not user-overridable.
	sdb.SetMaxOpenConns(1)

	if poolCfg != nil && poolCfg.MaxIdleConns > 0 {
		sdb.SetMaxIdleConns(poolCfg.MaxIdleConns)
	}

	return sdb, nil
}

func openPostgreSQL(storeURL string, poolCfg *PoolConfig) (*sql.DB, error) {
	processedURL, err := parsePostgreSQLURL(storeURL)
	if err != nil {
		return nil, err
	}

	sdb, err := otelsql.Open("pgx", processedURL, otelsql.WithAttributes(semconv.DBSystemPostgreSQL))
	if err != nil {
		return nil, err
	}

	applyPoolSettings(sdb, poolCfg, 10, 2)

	return sdb, nil
}

func parsePostgreSQLURL(storeURL string) (string, error) {
	u, err := url.Parse(storeURL)
	if err != nil {
		return "", err
	}

	scheme := strings.ToLower(u.Scheme)
	if strings.Contains(scheme, "+unix") {
		socketDir, dbName := path.Split(u.Path)
		if dbName == "" {
			return "", fmt.Errorf("%w: missing database name in path: %s", ErrInvalidPostgresUnixURL, storeURL)
		}

		if socketDir == "" {
			return "", fmt.Errorf("%w: missing socket directory in path: %s", ErrInvalidPostgresUnixURL, storeURL)
		}

		socketDir = path.Clean(socketDir)

		u.Path = "/" + dbName
		q := u.Query()
		q.Set("host", socketDir)
		u.RawQuery = q.Encode()
	}

	if strings.Contains(scheme, "+") {
		switch {
		case strings.HasPrefix(scheme, schemePostgresql):
			u.Scheme = schemePostgresql
		case strings.HasPrefix(scheme, schemePostgres):
			u.Scheme = schemePostgres
		}
	}

	return u.String(), nil
}

func openMySQL(storeURL string, poolCfg *PoolConfig) (*sql.DB, error) {
	cfg, err := parseMySQLConfig(storeURL)
	if err != nil {
		return nil, err
	}

	sdb, err := otelsql.Open("mysql", cfg.FormatDSN(), otelsql.WithAttributes(semconv.DBSystemMySQL))
	if err != nil {
		return nil, err
	}

	applyPoolSettings(sdb, poolCfg, 10, 2)

	return sdb, nil
}

func parseMySQLConfig(storeURL string) (*mysql.Config, error) {
	u, err := url.Parse(storeURL)
	if err != nil {
		return nil, err
	}

	cfg := mysql.NewConfig()

	if u.User != nil {
		cfg.User = u.User.Username()
		if password, ok := u.User.Password(); ok {
			cfg.Passwd = password
		}
	}

	query := u.Query()

	scheme := strings.ToLower(u.Scheme)
	switch {
	case strings.Contains(scheme, "+unix"):
		if err := parseMySQLUnixPath(cfg, u, storeURL); err != nil {
			return nil, err
		}
	case query.Get("socket") != "":
		cfg.Net = netTypeUnix
		cfg.Addr = query.Get("socket")
	case u.Host != "":
		cfg.Net = "tcp"
		cfg.Addr = u.Host
	}

	if cfg.DBName == "" && u.Path != "" {
		cfg.DBName = strings.TrimPrefix(u.Path, "/")
	}

	cfg.Params = map[string]string{
		"parseTime": "true",
		"loc":       "UTC",
	}

	for k, v := range query {
		if len(v) > 0 {
			cfg.Params[k] = v[0]
		}
	}

	return cfg, nil
}

func parseMySQLUnixPath(cfg *mysql.Config, u *url.URL, storeURL string) error {
	socketPath, dbName := path.Split(u.Path)
	if dbName == "" {
		return fmt.Errorf("%w: missing database name in path: %s", ErrInvalidMySQLUnixURL, storeURL)
	}

	if socketPath == "" {
		return fmt.Errorf("%w: missing socket path in path: %s", ErrInvalidMySQLUnixURL, storeURL)
	}

	cfg.Net = netTypeUnix
	cfg.Addr = path.Clean(socketPath)
	cfg.DBName = dbName

	return nil
}
