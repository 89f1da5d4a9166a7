package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/franksops/cloudsave/location"
)

// Mode names the path the dispatcher took for one save.
type Mode string

const (
	// ModeBytes streams a raw byte source through a multipart upload.
	ModeBytes Mode = "bytes"

	// ModeRawList writes each value of a value stream as one chunk of a
	// multipart upload.
	ModeRawList Mode = "raw-list"

	// ModeValue materializes the input and writes it with a single put.
	ModeValue Mode = "value"

	// ModeNoop is a child process without captured output; nothing is written.
	ModeNoop Mode = "noop"
)

// Job describes one save invocation.
type Job struct {
	// ID identifies the invocation in logs and in the journal.
	ID string

	// Destination is where the bytes go.
	Destination *location.Destination

	// Mode is the dispatch path.
	Mode Mode

	// Raw disables the format bridge.
	Raw bool

	StartedAt time.Time
}

// NewJob creates a job with a fresh ID.
func NewJob(dest *location.Destination, mode Mode, raw bool) Job {
	return Job{
		ID:          uuid.NewString(),
		Destination: dest,
		Mode:        mode,
		Raw:         raw,
		StartedAt:   time.Now(),
	}
}
