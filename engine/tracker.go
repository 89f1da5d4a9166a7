package engine

import (
	"io"
	"sync"
	"time"

	"github.com/franksops/cloudsave/store"
)

// CheckpointConfig defines the criteria for when to save a job's progress
type CheckpointConfig struct {
	// BytesInterval triggers a save after this many bytes have been transferred
	BytesInterval int64
	// TimeInterval triggers a save after this much time has passed
	TimeInterval time.Duration
}

// DefaultCheckpointConfig provides reasonable defaults for checkpointing
var DefaultCheckpointConfig = CheckpointConfig{
	BytesInterval: 10 * 1024 * 1024, // 10 MB
	TimeInterval:  5 * time.Second,
}

// JobTracker records save invocations in the journal.
type JobTracker struct {
	store  store.Store
	config CheckpointConfig
}

// NewJobTracker creates a new JobTracker
func NewJobTracker(store store.Store, config CheckpointConfig) *JobTracker {
	return &JobTracker{
		store:  store,
		config: config,
	}
}

// InitJob records job as pending.
func (jt *JobTracker) InitJob(job Job) error {
	dest := ""
	if job.Destination != nil {
		dest = job.Destination.String()
	}
	record := &store.JobRecord{
		ID:          job.ID,
		Destination: dest,
		Mode:        string(job.Mode),
		State:       store.StatePending,
		StartedAt:   job.StartedAt,
		UpdatedAt:   time.Now(),
	}
	return jt.store.SaveJob(record)
}

func (jt *JobTracker) update(jobID string, fn func(*store.JobRecord)) error {
	record, err := jt.store.GetJob(jobID)
	if err != nil {
		return err
	}
	fn(record)
	record.UpdatedAt = time.Now()
	return jt.store.SaveJob(record)
}

// MarkInProgress moves a job to InProgress and remembers the multipart
// upload it owns, if any.
func (jt *JobTracker) MarkInProgress(jobID, uploadID string) error {
	return jt.update(jobID, func(r *store.JobRecord) {
		r.State = store.StateInProgress
		r.UploadID = uploadID
	})
}

// MarkCompleted records the final byte count and checksum.
func (jt *JobTracker) MarkCompleted(jobID string, bytes int64, checksum uint64) error {
	return jt.update(jobID, func(r *store.JobRecord) {
		r.State = store.StateCompleted
		r.BytesTransferred = bytes
		r.Checksum = checksum
		r.Error = ""
	})
}

// MarkFailed updates a job's state to Failed with an error message. The
// upload ID is kept so the upload can be aborted later.
func (jt *JobTracker) MarkFailed(jobID string, err error) error {
	return jt.update(jobID, func(r *store.JobRecord) {
		r.State = store.StateFailed
		if err != nil {
			r.Error = err.Error()
		}
	})
}

// MarkAborted records that the job's multipart upload was discarded on the
// backend. A nil cause keeps the previous error message.
func (jt *JobTracker) MarkAborted(jobID string, cause error) error {
	return jt.update(jobID, func(r *store.JobRecord) {
		r.State = store.StateAborted
		if cause != nil {
			r.Error = cause.Error()
		}
	})
}

// TrackedWriter wraps an io.Writer to track bytes written and checkpoint progress
type TrackedWriter struct {
	io.Writer
	tracker *JobTracker
	jobID   string

	mu              sync.Mutex
	bytesWritten    int64
	lastCheckpoint  int64
	lastCheckpointT time.Time
}

// NewTrackedWriter creates a new TrackedWriter
func (jt *JobTracker) NewTrackedWriter(w io.Writer, jobID string, startBytes int64) *TrackedWriter {
	return &TrackedWriter{
		Writer:          w,
		tracker:         jt,
		jobID:           jobID,
		bytesWritten:    startBytes,
		lastCheckpoint:  startBytes,
		lastCheckpointT: time.Now(),
	}
}

// Write implements io.Writer and checkpoints progress
func (tw *TrackedWriter) Write(p []byte) (int, error) {
	n, err := tw.Writer.Write(p)
	if n > 0 {
		tw.mu.Lock()
		tw.bytesWritten += int64(n)

		needsCheckpoint := false
		if tw.bytesWritten-tw.lastCheckpoint >= tw.tracker.config.BytesInterval {
			needsCheckpoint = true
		} else if time.Since(tw.lastCheckpointT) >= tw.tracker.config.TimeInterval {
			needsCheckpoint = true
		}

		currentBytes := tw.bytesWritten
		tw.mu.Unlock()

		if needsCheckpoint {
			tw.checkpoint(currentBytes)
		}
	}
	return n, err
}

func (tw *TrackedWriter) checkpoint(bytes int64) {
	// a failed checkpoint must not fail the transfer
	err := tw.tracker.update(tw.jobID, func(r *store.JobRecord) {
		r.BytesTransferred = bytes
	})
	if err == nil {
		tw.mu.Lock()
		tw.lastCheckpoint = bytes
		tw.lastCheckpointT = time.Now()
		tw.mu.Unlock()
	}
}

// BytesWritten returns the total number of bytes written
func (tw *TrackedWriter) BytesWritten() int64 {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.bytesWritten
}
