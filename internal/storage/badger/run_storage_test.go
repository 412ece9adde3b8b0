package badger

import (
	"context"
	"testing"
	"time"

	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()

	options := badgerhold.DefaultOptions
	options.Dir = t.TempDir()
	options.ValueDir = options.Dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return &BadgerDB{store: store}
}

func TestRunStorageSaveAndGet(t *testing.T) {
	db := newTestDB(t)
	storage := NewRunStorage(db, nil)
	ctx := context.Background()

	run := &models.Run{
		ID:        models.NewRunID(),
		Status:    models.RunStatusQueued,
		InputURL:  "https://example.com/channel/abc",
		CreatedAt: time.Now(),
	}

	if err := storage.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := storage.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != models.RunStatusQueued {
		t.Errorf("expected status %s, got %s", models.RunStatusQueued, got.Status)
	}
	if got.InputURL != run.InputURL {
		t.Errorf("expected input URL %s, got %s", run.InputURL, got.InputURL)
	}
}

func TestRunStorageGetMissingRun(t *testing.T) {
	db := newTestDB(t)
	storage := NewRunStorage(db, nil)

	_, err := storage.GetRun(context.Background(), "run_missing")
	if err != models.ErrUnknownRun {
		t.Errorf("expected ErrUnknownRun, got %v", err)
	}
}

func TestRunStorageSaveRequiresID(t *testing.T) {
	db := newTestDB(t)
	storage := NewRunStorage(db, nil)

	if err := storage.SaveRun(context.Background(), &models.Run{}); err == nil {
		t.Error("expected error for run without ID")
	}
}

func TestRunStorageListFiltersByStatus(t *testing.T) {
	db := newTestDB(t)
	storage := NewRunStorage(db, nil)
	ctx := context.Background()

	base := time.Now()
	statuses := []models.RunStatus{
		models.RunStatusQueued,
		models.RunStatusRunning,
		models.RunStatusDone,
		models.RunStatusDone,
	}
	for i, status := range statuses {
		run := &models.Run{
			ID:        models.NewRunID(),
			Status:    status,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := storage.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
	}

	done, err := storage.ListRuns(ctx, &interfaces.RunListOptions{Status: models.RunStatusDone})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(done) != 2 {
		t.Errorf("expected 2 done runs, got %d", len(done))
	}

	all, err := storage.ListRuns(ctx, nil)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("expected 4 runs, got %d", len(all))
	}
	// Newest first
	if !all[0].CreatedAt.After(all[len(all)-1].CreatedAt) {
		t.Error("expected runs sorted newest first")
	}
}

