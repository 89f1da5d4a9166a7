package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Failed to create BoltStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBoltStore_SaveAndGetJob(t *testing.T) {
	store := newTestStore(t)
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	job := &JobRecord{
		ID:          "job-123",
		Destination: "s3://bucket/out.log",
		Mode:        "bytes",
		State:       StatePending,
		StartedAt:   started,
		UpdatedAt:   started,
	}
	if err := store.SaveJob(job); err != nil {
		t.Fatalf("Failed to save job: %v", err)
	}

	got, err := store.GetJob("job-123")
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	if got.Destination != job.Destination {
		t.Errorf("Expected destination %s, got %s", job.Destination, got.Destination)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("Expected started at %v, got %v", started, got.StartedAt)
	}

	job.State = StateInProgress
	job.UploadID = "upload-1"
	job.BytesTransferred = 512
	if err := store.SaveJob(job); err != nil {
		t.Fatalf("Failed to update job: %v", err)
	}

	got, err = store.GetJob("job-123")
	if err != nil {
		t.Fatalf("Failed to get updated job: %v", err)
	}
	if got.State != StateInProgress {
		t.Errorf("Expected updated job State %s, got %s", StateInProgress, got.State)
	}
	if got.BytesTransferred != 512 {
		t.Errorf("Expected updated bytes %d, got %d", 512, got.BytesTransferred)
	}
	if !got.OrphanedUpload() {
		t.Error("Expected in-progress job with upload id to own an open upload")
	}

	if _, err := store.GetJob("non-existent"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
}

func TestBoltStore_SaveJobRequiresID(t *testing.T) {
	store := newTestStore(t)
	if err := store.SaveJob(&JobRecord{}); err == nil {
		t.Error("Expected error for job without id")
	}
}

func TestBoltStore_ListJobs(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, state := range []JobState{StateCompleted, StateFailed, StateInProgress} {
		rec := &JobRecord{
			ID:        string(rune('a' + i)),
			State:     state,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if state != StateCompleted {
			rec.UploadID = "u-" + rec.ID
		}
		if err := store.SaveJob(rec); err != nil {
			t.Fatalf("Failed to save job: %v", err)
		}
	}

	all, err := store.ListJobs(nil)
	if err != nil {
		t.Fatalf("Failed to list jobs: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 jobs, got %d", len(all))
	}
	if all[0].ID != "c" || all[2].ID != "a" {
		t.Errorf("Expected most recent first, got %s..%s", all[0].ID, all[2].ID)
	}

	orphans, err := store.ListJobs((*JobRecord).OrphanedUpload)
	if err != nil {
		t.Fatalf("Failed to list orphans: %v", err)
	}
	if len(orphans) != 2 {
		t.Errorf("Expected 2 orphaned uploads, got %d", len(orphans))
	}
}

func TestBoltStore_DeleteJob(t *testing.T) {
	store := newTestStore(t)
	if err := store.SaveJob(&JobRecord{ID: "gone"}); err != nil {
		t.Fatalf("Failed to save job: %v", err)
	}
	if err := store.DeleteJob("gone"); err != nil {
		t.Fatalf("Failed to delete job: %v", err)
	}
	if _, err := store.GetJob("gone"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound after delete, got %v", err)
	}
	if err := store.DeleteJob("gone"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound deleting twice, got %v", err)
	}
}

func TestBoltStore_Close(t *testing.T) {
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "test_close.db"))
	if err != nil {
		t.Fatalf("Failed to create BoltStore: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Errorf("Failed to close BoltStore: %v", err)
	}

	// Try to get a job on closed store
	if _, err := store.GetJob("job-123"); err == nil {
		t.Error("Expected error when accessing closed store, got nil")
	}
}
