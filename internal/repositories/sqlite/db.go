// Package sqlite implements the clipforge stores on an embedded SQLite file
// (modernc.org/sqlite, no cgo). It backs single-binary deployments and tests.
// Timestamps are stored as unix milliseconds.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	apperrors "clipforge/internal/pkg/errors"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps the SQLite handle.
type DB struct {
	*sql.DB
}

// Open creates the parent directory, connects, applies pragmas and the schema.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; conditional updates rely on serialized writes.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{DB: db}, nil
}

// Ping satisfies ports.Pinger.
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

func nowMillis() int64 {
	return time.Now().UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isCheckViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "CHECK constraint failed")
}

func persistence(err error, op, msg string) error {
	if isCheckViolation(err) {
		return apperrors.WrapWithCode(err, apperrors.CodeConflict, op, msg)
	}
	return apperrors.WrapWithCode(err, apperrors.CodePersistence, op, msg)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
