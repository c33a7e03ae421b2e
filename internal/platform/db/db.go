package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const pingTimeout = 5 * time.Second

// Open connects to the shared Postgres database (status, ledger, geocode
// cache) through the pgx stdlib driver.
func Open(databaseURL string) (*sql.DB, error) {
	conn, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("openDB: open postgres database: %w", err)
	}

	// Writes come from per-user bridge writers plus HTTP handlers.
	conn.SetMaxOpenConns(20)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxIdleTime(5 * time.Minute)
	conn.SetConnMaxLifetime(30 * time.Minute)

	if err := verify(conn); err != nil {
		return nil, fmt.Errorf("openDB: verify postgres connection: %w", err)
	}
	return conn, nil
}

// verify pings conn with a bounded wait and closes it on failure.
func verify(conn *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return err
	}
	return nil
}
