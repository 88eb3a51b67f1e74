package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// ConnectorPool hands out pooled *sql.DB handles per registered connection.
// Handles are opened lazily and cached for the process lifetime.
type ConnectorPool struct {
	mu      sync.Mutex
	handles map[string]*sql.DB
}

func NewConnectorPool() *ConnectorPool {
	return &ConnectorPool{handles: make(map[string]*sql.DB)}
}

// Open returns a live handle for the connection, pinging on first use.
func (p *ConnectorPool) Open(ctx context.Context, conn *Connection) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := conn.ID.Hex()
	if db, ok := p.handles[key]; ok {
		return db, nil
	}

	driver := conn.Driver
	if driver == "postgresql" {
		driver = "postgres"
	}

	db, err := sql.Open(driver, conn.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	p.handles[key] = db
	return db, nil
}

// Close closes every cached handle.
func (p *ConnectorPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for key, db := range p.handles {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.handles, key)
	}
	return firstErr
}

// QuoteIdent quotes a single SQL identifier for the given driver.
func QuoteIdent(driver, ident string) string {
	if driver == "mysql" {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// QualifyTable quotes an optionally schema-qualified table name.
func QualifyTable(driver, schema, table string) string {
	if schema != "" {
		return QuoteIdent(driver, schema) + "." + QuoteIdent(driver, table)
	}
	return QuoteIdent(driver, table)
}

// Placeholder returns the parameter marker for position n (1-based).
func Placeholder(driver string, n int) string {
	if driver == "mysql" {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

// SplitTableName splits "schema.table" into its parts, falling back to the
// connection default schema for bare names.
func SplitTableName(qualified, defaultSchema string) (schema, table string) {
	if idx := strings.IndexByte(qualified, '.'); idx >= 0 {
		return qualified[:idx], qualified[idx+1:]
	}
	return defaultSchema, qualified
}
