package sources

import (
	"context"
	"fmt"
	"log/slog"

	"arcsync/internal/dbclient"
	"arcsync/internal/domain"
	"arcsync/internal/etl"
)

// ── Database Source ────────────────────────────────────────
// Reads every row of one table (or MongoDB collection) through a
// dbclient.Connector, one page at a time.

const fetchPageSize = 500

// Database reads a single table.
type Database struct {
	Conn     domain.DatabaseConnection
	Password string

	// connect is swapped in tests.
	connect func(domain.DatabaseConnection, string) (dbclient.Connector, error)
}

// NewDatabase returns a source for conn.
func NewDatabase(conn domain.DatabaseConnection, password string) *Database {
	return &Database{Conn: conn, Password: password, connect: dbclient.NewConnector}
}

func (s *Database) Name() string {
	return string(s.Conn.Driver) + " " + s.Conn.Table
}

func (s *Database) Read(ctx context.Context) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		connect := s.connect
		if connect == nil {
			connect = dbclient.NewConnector
		}
		conn, err := connect(s.Conn, s.Password)
		if err != nil {
			errCh <- fmt.Errorf("%w: %w", etl.ErrSourceUnavailable, err)
			return
		}
		defer conn.Close()

		if err := conn.TestConnection(ctx); err != nil {
			errCh <- fmt.Errorf("%w: connect: %w", etl.ErrSourceUnavailable, err)
			return
		}

		page, err := conn.ReadTable(ctx, s.Conn.Table, fetchPageSize)
		if err != nil {
			errCh <- fmt.Errorf("%w: %w", etl.ErrSourceUnavailable, err)
			return
		}

		row := 0
		if !emitPage(ctx, out, page, &row) {
			return
		}

		for page.HasMore {
			page, err = conn.FetchMore(ctx, fetchPageSize)
			if err != nil {
				errCh <- fmt.Errorf("%w: fetch more: %w", etl.ErrSourceUnavailable, err)
				return
			}
			if !emitPage(ctx, out, page, &row) {
				return
			}
		}
		slog.Debug("table read", "source", s.Name(), "rows", row)
	}()

	return out, errCh
}

// emitPage sends one page of rows, numbering them from *row+1.
func emitPage(ctx context.Context, out chan<- etl.Record, page *dbclient.QueryPage, row *int) bool {
	for _, values := range page.Rows {
		data := make(map[string]any, len(page.Columns))
		for i, col := range page.Columns {
			if i < len(values) {
				data[col] = values[i]
			}
		}
		*row++
		select {
		case out <- etl.Record{Row: *row, Data: data}:
		case <-ctx.Done():
			return false
		}
	}
	return true
}
