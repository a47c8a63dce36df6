package dbclient

import (
	"net"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"arcsync/internal/domain"
)

// buildMySQLDSN constructs a MySQL DSN from a DatabaseConnection.
func buildMySQLDSN(conn domain.DatabaseConnection, password string) string {
	port := conn.Port
	if port == 0 {
		port = domain.DatabaseDriverMySQL.DefaultPort()
	}
	cfg := mysql.NewConfig()
	cfg.User = conn.Username
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(conn.Host, strconv.Itoa(port))
	cfg.DBName = conn.Database
	cfg.ParseTime = true
	if conn.SSLMode == "require" {
		cfg.TLSConfig = "true"
	}
	return cfg.FormatDSN()
}

func quoteMySQL(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}
