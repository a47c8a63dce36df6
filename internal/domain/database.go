package domain

// DatabaseDriver represents the type of database engine.
type DatabaseDriver string

const (
	DatabaseDriverMySQL    DatabaseDriver = "mysql"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
	DatabaseDriverMongoDB  DatabaseDriver = "mongodb"
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
)

// Valid reports whether d is one of the supported dialects.
func (d DatabaseDriver) Valid() bool {
	switch d {
	case DatabaseDriverMySQL, DatabaseDriverPostgres, DatabaseDriverMongoDB, DatabaseDriverSQLite:
		return true
	}
	return false
}

// DefaultPort returns the conventional port for the dialect, or 0 when the
// dialect has no network listener.
func (d DatabaseDriver) DefaultPort() int {
	switch d {
	case DatabaseDriverMySQL:
		return 3306
	case DatabaseDriverPostgres:
		return 5432
	case DatabaseDriverMongoDB:
		return 27017
	default:
		return 0
	}
}

// DatabaseConnection holds the metadata for connecting to a source database.
// The password travels separately so it never ends up in logged structs.
type DatabaseConnection struct {
	Driver   DatabaseDriver `json:"driver"`
	Host     string         `json:"host"`     // hostname, connection URI (mongodb) or file path (sqlite)
	Port     int            `json:"port"`     // 0 means the dialect default
	Database string         `json:"database"` // db name, empty for sqlite
	Username string         `json:"username"`
	SSLMode  string         `json:"sslMode"`
	Table    string         `json:"table"` // table or collection to read
}
