package dbclient

import (
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"arcsync/internal/domain"
)

// newSQLiteConnector creates a connector for an existing SQLite file.
// A missing file is an error; opening would silently create an empty one.
func newSQLiteConnector(conn domain.DatabaseConnection) (*sqlConnector, error) {
	if _, err := os.Stat(conn.Host); err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	dsn := conn.Host + "?_pragma=busy_timeout(5000)"
	return newSQLConnector("sqlite", dsn, quoteSQLite)
}

func quoteSQLite(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
