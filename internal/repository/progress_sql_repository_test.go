package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/database"
	"github.com/stemsi/exstem-session/internal/recovery"
)

func newSQLiteRepo(t *testing.T) *ProgressSQLRepository {
	t.Helper()
	db, err := database.OpenSnapshotDB(context.Background(), database.SQLDriverSQLite, "file::memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewProgressSQLRepository(db)
}

func TestProgressSQLRepository(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepo(t)
	key := "profile:p1:test_progress_3"

	if _, err := repo.Load(ctx, key); !errors.Is(err, recovery.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	for _, v := range []string{`{"a":1}`, `{"a":2}`} {
		if err := repo.Save(ctx, key, []byte(v)); err != nil {
			t.Fatalf("save %s: %v", v, err)
		}
	}
	data, err := repo.Load(ctx, key)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(data) != `{"a":2}` {
		t.Errorf("expected upsert to keep the last write, got %s", data)
	}

	if err := repo.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Load(ctx, key); !errors.Is(err, recovery.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestProgressSQLRepositoryPurge(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepo(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	repo.now = func() time.Time { return base }
	_ = repo.Save(ctx, "old", []byte("{}"))
	repo.now = func() time.Time { return base.Add(48 * time.Hour) }
	_ = repo.Save(ctx, "new", []byte("{}"))

	n, err := repo.PurgeOlderThan(ctx, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged row, got %d", n)
	}
	if _, err := repo.Load(ctx, "old"); !errors.Is(err, recovery.ErrNotFound) {
		t.Errorf("expected old snapshot purged, got %v", err)
	}
	if _, err := repo.Load(ctx, "new"); err != nil {
		t.Errorf("expected new snapshot kept, got %v", err)
	}
}
