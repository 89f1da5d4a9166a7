package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/franksops/cloudsave/pipeline"
	"github.com/franksops/cloudsave/provider"
)

// DefaultPartSize is the part size used when none is configured.
const DefaultPartSize = provider.MinPartSize

// ErrSessionFinalized is returned for any use of a sink after Finalize.
var ErrSessionFinalized = errors.New("multipart session already finalized")

// SinkStats counts what a sink has accepted and uploaded.
type SinkStats struct {
	Bytes  int64
	Chunks int
	Parts  int
}

// MultipartSink adapts a multipart upload to io.Writer.
//
// Writes are buffered into parts of partSize bytes and each full part is
// uploaded before Write returns; there is never more than one part in
// flight. Write reports no backend failure: the first one is latched, later
// data is dropped, and the failure surfaces from Finalize.
type MultipartSink struct {
	ctx      context.Context
	upload   provider.MultipartUpload
	partSize int
	logger   logrus.FieldLogger

	mu        sync.Mutex
	buf       []byte
	parts     []provider.Part
	err       error
	finalized bool
	stats     SinkStats
}

// NewMultipartSink wraps upload. Parts are uploaded with ctx. A partSize
// <= 0 selects DefaultPartSize.
func NewMultipartSink(ctx context.Context, upload provider.MultipartUpload, partSize int, logger logrus.FieldLogger) *MultipartSink {
	if partSize <= 0 {
		partSize = DefaultPartSize
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MultipartSink{
		ctx:      ctx,
		upload:   upload,
		partSize: partSize,
		logger:   logger.WithField("upload_id", upload.ID()),
		buf:      make([]byte, 0, partSize),
	}
}

// Write accepts p. It fails only when the sink was already finalized.
func (s *MultipartSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalized {
		return 0, ErrSessionFinalized
	}
	s.stats.Bytes += int64(len(p))
	s.stats.Chunks++
	if s.err != nil {
		return len(p), nil
	}

	s.buf = append(s.buf, p...)
	for len(s.buf) >= s.partSize && s.err == nil {
		s.flush(s.buf[:s.partSize])
		n := copy(s.buf, s.buf[s.partSize:])
		s.buf = s.buf[:n]
	}
	return len(p), nil
}

func (s *MultipartSink) flush(data []byte) {
	number := len(s.parts) + 1
	part, err := s.upload.UploadPart(s.ctx, number, data)
	if err != nil {
		s.logger.WithError(err).WithField("part", number).Warn("part upload failed")
		s.err = err
		return
	}
	s.parts = append(s.parts, part)
	s.stats.Parts++
	s.logger.WithFields(logrus.Fields{"part": number, "size": len(data)}).Debug("uploaded part")
}

// Finalize uploads the buffered remainder and completes the upload. When
// nothing was ever written a single empty part is uploaded, so the result is
// an empty object. Finalize may be called once.
func (s *MultipartSink) Finalize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalized {
		return ErrSessionFinalized
	}
	s.finalized = true

	if s.err == nil && (len(s.buf) > 0 || len(s.parts) == 0) {
		s.flush(s.buf)
		s.buf = s.buf[:0]
	}
	if s.err != nil {
		return pipeline.NewError(pipeline.BackendWriteFailed, "finalize", s.err).
			WithMessage("could not upload part")
	}

	if err := s.upload.Complete(ctx, s.parts); err != nil {
		return pipeline.NewError(pipeline.BackendWriteFailed, "finalize", err).
			WithMessage("could not complete upload")
	}
	s.logger.WithFields(logrus.Fields{"parts": len(s.parts), "bytes": s.stats.Bytes}).Debug("completed upload")
	return nil
}

// Abort discards the upload on the backend. It also marks the sink
// finalized.
func (s *MultipartSink) Abort(ctx context.Context) error {
	s.mu.Lock()
	s.finalized = true
	s.buf = nil
	s.mu.Unlock()

	if err := s.upload.Abort(ctx); err != nil {
		return pipeline.NewError(pipeline.BackendWriteFailed, "abort", err).
			WithMessage("could not abort upload")
	}
	return nil
}

// Stats returns a snapshot of the sink's counters.
func (s *MultipartSink) Stats() SinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Err returns the latched backend error, if any.
func (s *MultipartSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
