package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"characterlab/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// SQLKV stores the mapping in a single kv table, so deployments that already
// run sqlite or mysql can keep everything in one place.
type SQLKV struct {
	db     *sql.DB
	upsert string
}

// OpenSQL connects to the configured sqlite or mysql database and ensures the
// kv table exists.
func OpenSQL(driver string, cfg *config.Config) (*SQLKV, error) {
	dbCfg, ok := cfg.Databases[driver]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", driver)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
			dbCfg.Username,
			dbCfg.Password,
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.DBName,
			dbCfg.Params,
		)
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	kv, err := newSQLKV(db, driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	return kv, nil
}

func newSQLKV(db *sql.DB, driver string) (*SQLKV, error) {
	var schema, upsert string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		schema = `CREATE TABLE IF NOT EXISTS kv (
			k TEXT PRIMARY KEY,
			v TEXT NOT NULL
		)`
		upsert = `INSERT INTO kv (k, v) VALUES (?, ?)
			ON CONFLICT(k) DO UPDATE SET v = excluded.v`
	case "mysql":
		schema = `CREATE TABLE IF NOT EXISTS kv (
			k VARCHAR(255) NOT NULL,
			v MEDIUMTEXT NOT NULL,
			PRIMARY KEY (k)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
		upsert = `INSERT INTO kv (k, v) VALUES (?, ?)
			ON DUPLICATE KEY UPDATE v = VALUES(v)`
	default:
		return nil, fmt.Errorf("unsupported driver for migration: %s", driver)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate (%s): %w", driver, err)
	}
	return &SQLKV{db: db, upsert: upsert}, nil
}

func (s *SQLKV) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT v FROM kv WHERE k = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("kv get %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLKV) Set(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, s.upsert, key, value); err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

func (s *SQLKV) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE k = ?`, key); err != nil {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLKV) Close() error {
	return s.db.Close()
}
