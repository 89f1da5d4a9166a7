package provider

import (
	"context"
	"fmt"
)

// MinPartSize is the smallest part most object stores accept for any part
// but the last one.
const MinPartSize = 5 * 1024 * 1024

// PutOptions carries the object attributes applied at write time.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Part identifies one uploaded part of a multipart upload.
type Part struct {
	Number int
	ETag   string
	Size   int64
}

// ObjectStore represents a storage backend that objects are saved into.
// A typical ObjectStore is an S3 bucket, a MinIO bucket, an OSS bucket or a
// local directory tree.
type ObjectStore interface {
	// Put writes data as the complete object at key in a single request.
	Put(ctx context.Context, key string, data []byte, opts PutOptions) error

	// NewMultipartUpload opens a multipart upload session for key.
	NewMultipartUpload(ctx context.Context, key string, opts PutOptions) (MultipartUpload, error)
}

// MultipartUpload is an open multipart upload session. The object is not
// visible until Complete succeeds.
type MultipartUpload interface {
	// ID returns the backend's identifier for the session.
	ID() string

	// UploadPart uploads data as part number (1-based, ascending).
	UploadPart(ctx context.Context, number int, data []byte) (Part, error)

	// Complete assembles parts into the final object.
	Complete(ctx context.Context, parts []Part) error

	// Abort discards the session and every uploaded part.
	Abort(ctx context.Context) error
}

// UploadAborter is implemented by stores that can abort an upload session
// knowing only its key and ID, for instance one left behind by a crashed
// process.
type UploadAborter interface {
	AbortUpload(ctx context.Context, key, uploadID string) error
}

// OpError describes a failed backend request.
type OpError struct {
	Backend string
	Op      string
	Bucket  string
	Key     string
	Err     error
}

func (e *OpError) Error() string {
	if e.Bucket == "" {
		return fmt.Sprintf("%s %s %q: %v", e.Backend, e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s %s %s/%s: %v", e.Backend, e.Op, e.Bucket, e.Key, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
