package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"arcsync/internal/etl"
)

// HistoryStore records one row per sync run.
type HistoryStore struct {
	db *DB
}

// NewHistoryStore creates a new HistoryStore.
func NewHistoryStore(db *DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Record inserts log, assigning an ID when it has none.
func (s *HistoryStore) Record(ctx context.Context, log *etl.RunLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	_, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO run_history (id, project, layer, started_at, finished_at, status,
		 records_read, records_valid, records_invalid, records_uploaded, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.Project, log.Layer, log.StartedAt.UTC(), log.FinishedAt.UTC(), log.Status,
		log.Read, log.Valid, log.Invalid, log.Uploaded, log.Error,
	)
	return err
}

// List returns up to limit runs, newest first.
func (s *HistoryStore) List(ctx context.Context, limit int) ([]etl.RunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT id, project, layer, started_at, finished_at, status,
		 records_read, records_valid, records_invalid, records_uploaded, error
		 FROM run_history ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []etl.RunLog
	for rows.Next() {
		var l etl.RunLog
		var started, finished time.Time
		if err := rows.Scan(&l.ID, &l.Project, &l.Layer, &started, &finished, &l.Status,
			&l.Read, &l.Valid, &l.Invalid, &l.Uploaded, &l.Error); err != nil {
			return nil, err
		}
		l.StartedAt = started.Local()
		l.FinishedAt = finished.Local()
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
