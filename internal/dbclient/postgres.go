package dbclient

import (
	"net"
	"net/url"
	"strconv"

	"github.com/lib/pq"

	"arcsync/internal/domain"
)

// buildPostgresDSN constructs a Postgres connection URL from a DatabaseConnection.
func buildPostgresDSN(conn domain.DatabaseConnection, password string) string {
	port := conn.Port
	if port == 0 {
		port = domain.DatabaseDriverPostgres.DefaultPort()
	}
	sslMode := conn.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := &url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(conn.Host, strconv.Itoa(port)),
		Path:     "/" + conn.Database,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	if conn.Username != "" {
		u.User = url.UserPassword(conn.Username, password)
	}
	return u.String()
}

func quotePostgres(ident string) string {
	return pq.QuoteIdentifier(ident)
}
