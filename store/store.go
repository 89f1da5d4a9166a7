package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.etcd.io/bbolt"
)

var (
	// ErrJobNotFound is returned when a job is not found in the journal.
	ErrJobNotFound = errors.New("job not found")
)

var (
	jobsBucket = []byte("jobs")
)

// JobState represents the current state of a save invocation.
type JobState string

const (
	StatePending    JobState = "Pending"
	StateInProgress JobState = "InProgress"
	StateCompleted  JobState = "Completed"
	StateFailed     JobState = "Failed"
	StateAborted    JobState = "Aborted"
)

// Terminal reports whether no further transition is expected from s.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

// JobRecord is the journal entry of one save invocation.
type JobRecord struct {
	ID               string    `json:"id"`
	Destination      string    `json:"destination"`
	Mode             string    `json:"mode"`
	State            JobState  `json:"state"`
	UploadID         string    `json:"upload_id,omitempty"`
	BytesTransferred int64     `json:"bytes_transferred"`
	Checksum         uint64    `json:"checksum,omitempty"`
	Error            string    `json:"error,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// OrphanedUpload reports whether the record still owns an open multipart
// upload on the backend.
func (r *JobRecord) OrphanedUpload() bool {
	return r.UploadID != "" && !r.State.Terminal()
}

// Store defines the interface of the transfer journal.
type Store interface {
	SaveJob(job *JobRecord) error
	GetJob(id string) (*JobRecord, error)
	// ListJobs returns the records accepted by filter (all when nil), most
	// recently started first.
	ListJobs(filter func(*JobRecord) bool) ([]*JobRecord, error)
	DeleteJob(id string) error
	Close() error
}

// BoltStore is a Store implementation backed by bbolt.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore creates a new BoltStore at the given path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(jobsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create jobs bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// SaveJob saves a job to the journal.
func (s *BoltStore) SaveJob(job *JobRecord) error {
	if job.ID == "" {
		return errors.New("job id is required")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(jobsBucket)

		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}

		if err := b.Put([]byte(job.ID), data); err != nil {
			return fmt.Errorf("failed to put job: %w", err)
		}
		return nil
	})
}

// GetJob retrieves a job from the journal.
func (s *BoltStore) GetJob(id string) (*JobRecord, error) {
	var job JobRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(jobsBucket).Get([]byte(id))
		if data == nil {
			return ErrJobNotFound
		}
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("failed to unmarshal job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *BoltStore) ListJobs(filter func(*JobRecord) bool) ([]*JobRecord, error) {
	var jobs []*JobRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(jobsBucket).ForEach(func(k, v []byte) error {
			var job JobRecord
			if err := json.Unmarshal(v, &job); err != nil {
				return fmt.Errorf("failed to unmarshal job %s: %w", k, err)
			}
			if filter == nil || filter(&job) {
				jobs = append(jobs, &job)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(jobs, func(a, b *JobRecord) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return jobs, nil
}

func (s *BoltStore) DeleteJob(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(jobsBucket)
		if b.Get([]byte(id)) == nil {
			return ErrJobNotFound
		}
		return b.Delete([]byte(id))
	})
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
