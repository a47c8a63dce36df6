package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcsync/internal/etl"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Migrations are idempotent.
	db, err = Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, db.Path())
	require.NoError(t, db.Close())
}

func TestHistoryStore_RecordAndList(t *testing.T) {
	store := NewHistoryStore(openTestDB(t))
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, status := range []string{etl.StatusSuccess, etl.StatusError, etl.StatusSuccess} {
		log := &etl.RunLog{
			Project:    "parcels",
			Layer:      "Parcels",
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
			Status:     status,
			Read:       10 + i,
			Valid:      9,
			Invalid:    1 + i,
			Uploaded:   9,
		}
		if status == etl.StatusError {
			log.Error = "upload: token expired"
		}
		require.NoError(t, store.Record(ctx, log))
		assert.NotEmpty(t, log.ID)
	}

	logs, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	assert.Equal(t, 12, logs[0].Read, "newest first")
	assert.True(t, logs[0].StartedAt.Equal(base.Add(2*time.Hour)))
	assert.Equal(t, etl.StatusError, logs[1].Status)
	assert.Equal(t, "upload: token expired", logs[1].Error)
	assert.Equal(t, "Parcels", logs[1].Layer)
}

func TestHistoryStore_ListEmpty(t *testing.T) {
	store := NewHistoryStore(openTestDB(t))
	logs, err := store.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
}
