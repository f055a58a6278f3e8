package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Pool limits. Checkout holds a connection for the whole reservation
// transaction, so the pool is sized for concurrent checkouts, not reads.
const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = 5 * time.Minute
	pingTimeout     = 5 * time.Second
)

// DB wraps the instrumented MySQL connection pool
type DB struct {
	*sql.DB
	serviceName string
}

// NewDB opens a MySQL pool through the otelsql driver wrapper and reports
// pool stats on the given meter provider.
func NewDB(ctx context.Context, dsn string, provider metric.MeterProvider, serviceName string) (*DB, error) {
	attrs := otelsql.WithAttributes(
		attribute.String("db.system", "mysql"),
		attribute.String("service.name", serviceName),
	)

	driverName, err := otelsql.Register("mysql", attrs, otelsql.WithMeterProvider(provider))
	if err != nil {
		return nil, fmt.Errorf("failed to register otelsql: %w", err)
	}

	pool, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pool.SetMaxOpenConns(maxOpenConns)
	pool.SetMaxIdleConns(maxIdleConns)
	pool.SetConnMaxLifetime(connMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := otelsql.RegisterDBStatsMetrics(pool, attrs, otelsql.WithMeterProvider(provider)); err != nil {
		log.Printf("Warning: failed to register otelsql stats metrics: %v", err)
	}

	return &DB{DB: pool, serviceName: serviceName}, nil
}

// Close closes the connection pool
func (db *DB) Close() error {
	return db.DB.Close()
}

// InitSchema executes the statements of schemaSQL one by one.
// Statements must be idempotent (CREATE TABLE IF NOT EXISTS).
func (db *DB) InitSchema(ctx context.Context, schemaSQL string) error {
	statements := splitSQLStatements(schemaSQL)
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute statement %d: %w\nStatement: %s", i+1, err, stmt)
		}
	}

	log.Printf("[DB] schema initialized: %d statements", len(statements))
	return nil
}

// splitSQLStatements drops "--" comment lines and splits on semicolons.
// Semicolons inside string literals are not supported.
func splitSQLStatements(schemaSQL string) []string {
	var cleaned strings.Builder
	for _, line := range strings.Split(schemaSQL, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		cleaned.WriteString(line)
		cleaned.WriteByte('\n')
	}

	var result []string
	for _, stmt := range strings.Split(cleaned.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			result = append(result, stmt)
		}
	}
	return result
}
