package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"
)

// sqlConnector is the shared implementation for MySQL, Postgres, and SQLite.
type sqlConnector struct {
	driverName string
	db         *sql.DB
	quote      func(ident string) string

	mu         sync.Mutex
	activeRows *sql.Rows
	cancel     context.CancelFunc
	columns    []string
	fetched    int
}

// newSQLConnector creates a generic SQL connector.
func newSQLConnector(driverName, dsn string, quote func(string) string) (*sqlConnector, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	// One run reads one table; a small pool is plenty.
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(10 * time.Minute)

	return &sqlConnector{driverName: driverName, db: db, quote: quote}, nil
}

func (c *sqlConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.db.PingContext(ctx)
}

// quoteQualified quotes each dot-separated part of a table name.
func quoteQualified(table string, quote func(string) string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = quote(p)
	}
	return strings.Join(parts, ".")
}

// selectAllQuery builds the full-table read.
func (c *sqlConnector) selectAllQuery(table string) string {
	return "SELECT * FROM " + quoteQualified(table, c.quote)
}

func (c *sqlConnector) ReadTable(ctx context.Context, table string, fetchSize int) (*QueryPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Close any previously open cursor
	c.closeCursorLocked()

	if fetchSize <= 0 {
		fetchSize = 500
	}

	// The cursor outlives this call, so its context is cancelled on close
	// rather than on return.
	qctx, cancel := context.WithCancel(ctx)
	rows, err := c.db.QueryContext(qctx, c.selectAllQuery(table))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("query %s: %w", table, err)
	}

	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		cancel()
		return nil, fmt.Errorf("columns: %w", err)
	}

	c.activeRows = rows
	c.cancel = cancel
	c.columns = cols
	c.fetched = 0

	return c.fetchBatchLocked(fetchSize)
}

func (c *sqlConnector) FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeRows == nil {
		return nil, fmt.Errorf("no active cursor, read a table first")
	}
	if fetchSize <= 0 {
		fetchSize = 500
	}
	return c.fetchBatchLocked(fetchSize)
}

// fetchBatchLocked reads up to fetchSize rows from the active cursor.
// Must be called while holding c.mu.
func (c *sqlConnector) fetchBatchLocked(fetchSize int) (*QueryPage, error) {
	var resultRows [][]any
	numCols := len(c.columns)

	for i := 0; i < fetchSize; i++ {
		if !c.activeRows.Next() {
			break
		}
		values := make([]any, numCols)
		ptrs := make([]any, numCols)
		for j := range values {
			ptrs[j] = &values[j]
		}
		if err := c.activeRows.Scan(ptrs...); err != nil {
			c.closeCursorLocked()
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make([]any, numCols)
		for j, v := range values {
			row[j] = formatValue(v)
		}
		resultRows = append(resultRows, row)
	}

	c.fetched += len(resultRows)

	// Check for iteration errors before the cursor is released
	if err := c.activeRows.Err(); err != nil {
		c.closeCursorLocked()
		return nil, fmt.Errorf("iterate: %w", err)
	}

	hasMore := true
	if len(resultRows) < fetchSize {
		hasMore = false
		c.closeCursorLocked()
	}

	return &QueryPage{
		Columns:      c.columns,
		Rows:         resultRows,
		TotalFetched: c.fetched,
		HasMore:      hasMore,
	}, nil
}

// formatValue normalizes driver values: bytes become text and timestamps
// RFC 3339 strings, which the mapper parses like any other input.
func formatValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return val
	}
}

func (c *sqlConnector) Close() error {
	c.mu.Lock()
	c.closeCursorLocked()
	c.mu.Unlock()
	return c.db.Close()
}

func (c *sqlConnector) closeCursorLocked() {
	if c.activeRows != nil {
		c.activeRows.Close()
		c.activeRows = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}
