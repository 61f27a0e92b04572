package repository

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	"github.com/opensource-finance/kestrel/internal/domain"
	_ "modernc.org/sqlite"
)

const memoryPath = ":memory:"

// sqlitePragmas apply to every file-backed connection.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
	"foreign_keys(ON)",
}

// open connects to the configured database and verifies it responds.
func open(cfg domain.RepositoryConfig) (*sql.DB, error) {
	var driverName, dsn string
	switch cfg.Driver {
	case "sqlite":
		path, err := sqlitePath(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		driverName, dsn = "sqlite", sqliteDSN(path)
	case "postgres":
		driverName, dsn = "postgres", cfg.PostgresURL
		if dsn == "" {
			dsn = postgresURL(cfg)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	// Each connection to :memory: sees its own database.
	if cfg.Driver == "sqlite" && cfg.SQLitePath == memoryPath {
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", cfg.Driver, err)
	}
	return db, nil
}

// sqlitePath defaults the path and creates its parent directory.
func sqlitePath(path string) (string, error) {
	if path == "" {
		path = "./kestrel.db"
	}
	if path == memoryPath {
		return path, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return path, nil
}

func sqliteDSN(path string) string {
	if path == memoryPath {
		return memoryPath + "?_pragma=foreign_keys(ON)"
	}
	// Transactions take the write lock at BEGIN so read-then-insert
	// sequences serialize across connections.
	q := url.Values{"_pragma": sqlitePragmas, "_txlock": {"immediate"}}
	return "file:" + path + "?" + q.Encode()
}

// postgresURL builds a connection URL from the individual fields.
func postgresURL(cfg domain.RepositoryConfig) string {
	host := cmpOr(cfg.PostgresHost, "localhost")
	port := cfg.PostgresPort
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%d", host, port),
		Path:     "/" + cmpOr(cfg.PostgresDB, "kestrel"),
		RawQuery: "sslmode=" + url.QueryEscape(cmpOr(cfg.PostgresSSLMode, "disable")),
	}
	if cfg.PostgresUser != "" {
		u.User = url.UserPassword(cfg.PostgresUser, cfg.PostgresPassword)
	}
	return u.String()
}

func cmpOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
