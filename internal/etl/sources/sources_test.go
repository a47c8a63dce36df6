package sources

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"arcsync/internal/config"
	"arcsync/internal/dbclient"
	"arcsync/internal/domain"
	"arcsync/internal/etl"
)

// drain reads every record and the terminal error from a source.
func drain(t *testing.T, src etl.Source) ([]etl.Record, error) {
	t.Helper()
	records, errCh := src.Read(context.Background())
	var out []etl.Record
	for r := range records {
		out = append(out, r)
	}
	return out, <-errCh
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCSVFile_Read(t *testing.T) {
	path := writeFile(t, "sites.csv", "\xEF\xBB\xBFid,name,lat,lon\n1, Depot ,40.7,-74.0\n2,,41.1\n")

	records, err := drain(t, &CSVFile{Path: path})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, 1, records[0].Row)
	assert.Equal(t, "1", records[0].Data["id"], "BOM must not leak into the first header")
	assert.Equal(t, "Depot", records[0].Data["name"])
	assert.Equal(t, "40.7", records[0].Data["lat"])

	assert.Equal(t, 2, records[1].Row)
	assert.Nil(t, records[1].Data["name"])
	assert.Contains(t, records[1].Data, "lon")
	assert.Nil(t, records[1].Data["lon"], "short rows are padded with null")
}

func TestCSVFile_KeepsLeadingZeros(t *testing.T) {
	path := writeFile(t, "codes.csv", "code\n007\n")
	records, err := drain(t, &CSVFile{Path: path})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "007", records[0].Data["code"])
}

func TestCSVFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty file", ""},
		{"duplicate header", "id,id\n1,2\n"},
		{"blank header", "id,,name\n1,2,3\n"},
		{"extra column", "id,name\n1,a,unexpected\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "bad.csv", tt.content)
			_, err := drain(t, &CSVFile{Path: path})
			require.Error(t, err)
			assert.True(t, errors.Is(err, etl.ErrSourceUnavailable))
		})
	}
}

func TestCSVFile_TrailingEmptyColumnsAllowed(t *testing.T) {
	path := writeFile(t, "trail.csv", "id,name\n1,a,,\n")
	records, err := drain(t, &CSVFile{Path: path})
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestCSVFile_MissingFile(t *testing.T) {
	_, err := drain(t, &CSVFile{Path: filepath.Join(t.TempDir(), "nope.csv")})
	require.Error(t, err)
	assert.ErrorIs(t, err, etl.ErrSourceUnavailable)
}

func TestCSVFile_Name(t *testing.T) {
	assert.Equal(t, "csv parcels.csv", (&CSVFile{Path: "/data/parcels.csv"}).Name())
}

func newSQLiteTable(t *testing.T, rows int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE sites (id INTEGER PRIMARY KEY, name TEXT, lat REAL, lon REAL)`)
	require.NoError(t, err)
	for i := 1; i <= rows; i++ {
		_, err = db.Exec(`INSERT INTO sites (id, name, lat, lon) VALUES (?, ?, ?, ?)`, i, "site", 40.0, -74.0)
		require.NoError(t, err)
	}
	return path
}

func TestDatabase_ReadSQLite(t *testing.T) {
	// More rows than one page so FetchMore is exercised.
	path := newSQLiteTable(t, fetchPageSize+3)

	src := NewDatabase(domain.DatabaseConnection{
		Driver: domain.DatabaseDriverSQLite,
		Host:   path,
		Table:  "sites",
	}, "")
	assert.Equal(t, "sqlite sites", src.Name())

	records, err := drain(t, src)
	require.NoError(t, err)
	require.Len(t, records, fetchPageSize+3)

	assert.Equal(t, 1, records[0].Row)
	assert.Equal(t, fetchPageSize+3, records[len(records)-1].Row)
	assert.Equal(t, "site", records[0].Data["name"])
	assert.Equal(t, 40.0, records[0].Data["lat"])
}

func TestDatabase_MissingTable(t *testing.T) {
	path := newSQLiteTable(t, 1)
	src := NewDatabase(domain.DatabaseConnection{
		Driver: domain.DatabaseDriverSQLite,
		Host:   path,
		Table:  "nope",
	}, "")

	_, err := drain(t, src)
	require.Error(t, err)
	assert.ErrorIs(t, err, etl.ErrSourceUnavailable)
}

func TestDatabase_ConnectFailure(t *testing.T) {
	src := &Database{
		Conn: domain.DatabaseConnection{Driver: domain.DatabaseDriverPostgres, Table: "t"},
		connect: func(domain.DatabaseConnection, string) (dbclient.Connector, error) {
			return nil, errors.New("connection refused")
		},
	}
	_, err := drain(t, src)
	require.Error(t, err)
	assert.ErrorIs(t, err, etl.ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestNew(t *testing.T) {
	src, err := New(&config.Config{Source: config.SourceConfig{Type: domain.SourceCSV, Path: "a.csv"}})
	require.NoError(t, err)
	assert.IsType(t, &CSVFile{}, src)

	src, err = New(&config.Config{Source: config.SourceConfig{
		Type: domain.SourceDB,
		DBConnection: &config.DBConnectionConfig{
			Dialect:  domain.DatabaseDriverPostgres,
			Host:     "db.local",
			Password: "secret",
			Table:    "gis.sites",
		},
	}})
	require.NoError(t, err)
	db, ok := src.(*Database)
	require.True(t, ok)
	assert.Equal(t, "secret", db.Password)
	assert.Equal(t, "gis.sites", db.Conn.Table)

	_, err = New(&config.Config{Source: config.SourceConfig{Type: "ftp"}})
	assert.Error(t, err)
}
