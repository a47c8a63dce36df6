package dbclient

import (
	"context"
	"fmt"

	"arcsync/internal/domain"
)

// QueryPage is a batch of rows fetched from a read cursor.
type QueryPage struct {
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	TotalFetched int      `json:"totalFetched"` // total rows fetched so far
	HasMore      bool     `json:"hasMore"`      // cursor has more rows
}

// Connector abstracts reading from an external database.
type Connector interface {
	// TestConnection verifies connectivity.
	TestConnection(ctx context.Context) error

	// ReadTable opens a cursor over every row of table (a collection for
	// MongoDB) and returns the first batch of fetchSize rows.
	ReadTable(ctx context.Context, table string, fetchSize int) (*QueryPage, error)

	// FetchMore continues reading from the open cursor.
	FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error)

	// Close closes the connection and any open cursors.
	Close() error
}

// NewConnector creates a Connector for the given database connection.
// The password is provided separately so it never sits in logged structs.
func NewConnector(conn domain.DatabaseConnection, password string) (Connector, error) {
	switch conn.Driver {
	case domain.DatabaseDriverSQLite:
		return newSQLiteConnector(conn)
	case domain.DatabaseDriverMySQL:
		return newSQLConnector("mysql", buildMySQLDSN(conn, password), quoteMySQL)
	case domain.DatabaseDriverPostgres:
		return newSQLConnector("postgres", buildPostgresDSN(conn, password), quotePostgres)
	case domain.DatabaseDriverMongoDB:
		return newMongoConnector(conn, password)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", conn.Driver)
	}
}
