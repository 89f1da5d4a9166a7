package engine

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/franksops/cloudsave/location"
	"github.com/franksops/cloudsave/pipeline"
	"github.com/franksops/cloudsave/provider"
	"github.com/franksops/cloudsave/store"
)

// StoreResolver maps a destination to the object store that owns it.
type StoreResolver interface {
	Resolve(ctx context.Context, dest *location.Destination) (provider.ObjectStore, string, error)
}

// Progress is reported to an Observer while a save runs.
type Progress struct {
	JobID       string
	Destination string
	Mode        Mode
	Bytes       int64
	Chunks      int
	Parts       int
	Done        bool
	Err         error
}

// Observer receives progress updates. It is called on the transfer's
// goroutine and must not block.
type Observer func(Progress)

// Options configures a Saver.
type Options struct {
	Resolver StoreResolver
	Formats  Registry
	Signals  pipeline.Signals
	Logger   logrus.FieldLogger

	// Tracker journals every save; nil disables the journal.
	Tracker *JobTracker

	// PartSize is the multipart part size; <= 0 selects DefaultPartSize.
	PartSize int

	// KeepFailedUploads leaves the backend upload of a failed save in place
	// instead of aborting it, for later inspection or cleanup.
	KeepFailedUploads bool

	Metadata *provider.MetadataMapper
	Observer Observer
}

// Result summarizes a finished save.
type Result struct {
	JobID    string
	Mode     Mode
	Bytes    int64
	Chunks   int
	Parts    int
	Checksum uint64
	Duration time.Duration
}

// Saver writes pipeline data to object storage.
type Saver struct {
	opts   Options
	logger logrus.FieldLogger
}

func NewSaver(opts Options) *Saver {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Saver{opts: opts, logger: logger}
}

// Save writes input to the object named by loc.
//
// Byte streams are copied chunk by chunk into a multipart upload. A value
// stream saved raw is written one value per chunk into a multipart upload.
// Anything else is materialized, formatted for the destination's extension
// unless raw, and written with a single put. An invalid loc fails before
// any backend is contacted.
func (s *Saver) Save(ctx context.Context, input pipeline.Channel, loc string, locSpan pipeline.Span, raw bool) (*Result, error) {
	dest, err := location.Parse(loc, locSpan)
	if err != nil {
		return nil, err
	}

	signals := s.opts.Signals.WithContext(ctx)

	switch in := input.(type) {
	case *pipeline.ByteStream:
		src, ok := in.Source()
		if !ok {
			s.logger.WithField("destination", dest.String()).Debug("byte stream has no output, nothing to save")
			return &Result{Mode: ModeNoop}, nil
		}
		job := NewJob(dest, ModeBytes, raw)
		return s.streamed(ctx, job, func(w io.Writer) error {
			_, err := Copy(src, w, signals, in.Span())
			return err
		})

	case *pipeline.ListStream:
		if raw {
			job := NewJob(dest, ModeRawList, raw)
			return s.streamed(ctx, job, func(w io.Writer) error {
				return writeValues(in, w, signals, locSpan)
			})
		}
		// materialized below; the formatter sees the whole list
		input = pipeline.NewValue(in.Collect())
	}

	return s.single(ctx, NewJob(dest, ModeValue, raw), input, signals)
}

// writeValues writes each value as one chunk, checking for cancellation
// before every value.
func writeValues(in *pipeline.ListStream, w io.Writer, signals pipeline.Signals, span pipeline.Span) error {
	for v := range in.Values() {
		if err := signals.Check(span); err != nil {
			return err
		}
		data, err := ValueToBytes(v)
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return pipeline.NewError(pipeline.BackendWriteFailed, "write", err).WithSpan(span)
		}
	}
	return nil
}

func (s *Saver) jobLogger(job Job) logrus.FieldLogger {
	return s.logger.WithFields(logrus.Fields{
		"job_id":      job.ID,
		"destination": job.Destination.String(),
		"mode":        job.Mode,
	})
}

func (s *Saver) putOptions(job Job, contentType string) provider.PutOptions {
	return provider.PutOptions{
		ContentType: contentType,
		Metadata:    s.opts.Metadata.Map(map[string]string{"job-id": job.ID}),
	}
}

// streamed runs produce against a multipart sink and finalizes it.
func (s *Saver) streamed(ctx context.Context, job Job, produce func(io.Writer) error) (*Result, error) {
	log := s.jobLogger(job)
	log.Debug("starting multipart save")
	s.initJob(log, job)

	objects, key, err := s.opts.Resolver.Resolve(ctx, job.Destination)
	if err != nil {
		return nil, s.fail(log, job, err)
	}

	upload, err := objects.NewMultipartUpload(ctx, key, s.putOptions(job, provider.ContentTypeForKey(key)))
	if err != nil {
		err = pipeline.NewError(pipeline.BackendWriteFailed, "open", err).
			WithSpan(job.Destination.Span).
			WithMessage("Could not write to %s", job.Destination)
		return nil, s.fail(log, job, err)
	}
	log = log.WithField("upload_id", upload.ID())
	if t := s.opts.Tracker; t != nil {
		if err := t.MarkInProgress(job.ID, upload.ID()); err != nil {
			log.WithError(err).Warn("could not journal upload")
		}
	}

	sink := NewMultipartSink(ctx, upload, s.opts.PartSize, log)
	var w io.Writer = sink
	if t := s.opts.Tracker; t != nil {
		w = t.NewTrackedWriter(w, job.ID, 0)
	}
	w = &observedWriter{Writer: w, sink: sink, job: job, observe: s.opts.Observer}
	cw := NewChecksumWriter(w)

	err = produce(cw)
	if err == nil {
		err = sink.Finalize(ctx)
		if err != nil {
			err = withLocation(err, job.Destination)
		}
	}

	stats := sink.Stats()
	if err != nil {
		s.abort(ctx, log, job, sink)
		s.notify(job, stats, true, err)
		return nil, s.fail(log, job, err)
	}

	res := &Result{
		JobID:    job.ID,
		Mode:     job.Mode,
		Bytes:    stats.Bytes,
		Chunks:   stats.Chunks,
		Parts:    stats.Parts,
		Checksum: cw.Checksum(),
		Duration: time.Since(job.StartedAt),
	}
	s.complete(log, res)
	s.notify(job, stats, true, nil)
	return res, nil
}

// single materializes input and writes it with one put.
func (s *Saver) single(ctx context.Context, job Job, input pipeline.Channel, signals pipeline.Signals) (*Result, error) {
	log := s.jobLogger(job)
	ext := ""
	if !job.Raw {
		ext = job.Destination.Extension()
	}

	data, err := inputToBytes(ctx, s.opts.Formats, input, ext, job.Raw, job.Destination.Span)
	if err != nil {
		log.WithError(err).Debug("could not convert input")
		return nil, err
	}
	if err := signals.Check(job.Destination.Span); err != nil {
		return nil, err
	}

	s.initJob(log, job)
	objects, key, err := s.opts.Resolver.Resolve(ctx, job.Destination)
	if err != nil {
		return nil, s.fail(log, job, err)
	}

	opts := s.putOptions(job, provider.DetectContentType(key, data))
	if err := objects.Put(ctx, key, data, opts); err != nil {
		err = pipeline.NewError(pipeline.BackendWriteFailed, "put", err).
			WithSpan(job.Destination.Span).
			WithMessage("Could not write to %s", job.Destination)
		return nil, s.fail(log, job, err)
	}

	stats := SinkStats{Bytes: int64(len(data)), Chunks: 1}
	res := &Result{
		JobID:    job.ID,
		Mode:     job.Mode,
		Bytes:    stats.Bytes,
		Chunks:   stats.Chunks,
		Checksum: Checksum(data),
		Duration: time.Since(job.StartedAt),
	}
	s.complete(log, res)
	s.notify(job, stats, true, nil)
	return res, nil
}

func (s *Saver) abort(ctx context.Context, log logrus.FieldLogger, job Job, sink *MultipartSink) {
	if s.opts.KeepFailedUploads {
		log.Info("keeping failed upload for later cleanup")
		return
	}
	// the transfer context may already be cancelled
	abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := sink.Abort(abortCtx); err != nil {
		log.WithError(err).Warn("could not abort upload")
		return
	}
	log.Debug("aborted upload")
	if t := s.opts.Tracker; t != nil {
		if err := t.MarkAborted(job.ID, nil); err != nil {
			log.WithError(err).Warn("could not journal abort")
		}
	}
}

func (s *Saver) fail(log logrus.FieldLogger, job Job, err error) error {
	kind, _ := pipeline.KindOf(err)
	log.WithError(err).WithField("kind", kind).Info("save failed")
	if t := s.opts.Tracker; t != nil {
		rec, getErr := t.store.GetJob(job.ID)
		// an aborted record keeps its state, only the cause is added
		if getErr == nil && rec.State == store.StateAborted {
			_ = t.MarkAborted(job.ID, err)
		} else if markErr := t.MarkFailed(job.ID, err); markErr != nil {
			log.WithError(markErr).Warn("could not journal failure")
		}
	}
	return err
}

func (s *Saver) complete(log logrus.FieldLogger, res *Result) {
	log.WithFields(logrus.Fields{
		"bytes":    res.Bytes,
		"chunks":   res.Chunks,
		"parts":    res.Parts,
		"duration": res.Duration.Round(time.Millisecond),
	}).Info("saved")
	if t := s.opts.Tracker; t != nil {
		if err := t.MarkCompleted(res.JobID, res.Bytes, res.Checksum); err != nil {
			log.WithError(err).Warn("could not journal completion")
		}
	}
}

func (s *Saver) notify(job Job, stats SinkStats, done bool, err error) {
	if s.opts.Observer == nil {
		return
	}
	s.opts.Observer(Progress{
		JobID:       job.ID,
		Destination: job.Destination.String(),
		Mode:        job.Mode,
		Bytes:       stats.Bytes,
		Chunks:      stats.Chunks,
		Parts:       stats.Parts,
		Done:        done,
		Err:         err,
	})
}

func (s *Saver) initJob(log logrus.FieldLogger, job Job) {
	if t := s.opts.Tracker; t != nil {
		if err := t.InitJob(job); err != nil {
			log.WithError(err).Warn("could not journal job")
		}
	}
}

// withLocation attributes backend errors that carry no span to dest.
func withLocation(err error, dest *location.Destination) error {
	if pe, ok := err.(*pipeline.Error); ok && pe.Span.IsZero() {
		pe.Span = dest.Span
		if pe.Kind == pipeline.BackendWriteFailed {
			pe.Msg = "Could not write to " + dest.String() + ": " + pe.Msg
		}
	}
	return err
}

// observedWriter reports progress after every chunk.
type observedWriter struct {
	io.Writer
	sink    *MultipartSink
	job     Job
	observe Observer
}

func (w *observedWriter) Write(p []byte) (int, error) {
	n, err := w.Writer.Write(p)
	if w.observe != nil {
		stats := w.sink.Stats()
		w.observe(Progress{
			JobID:       w.job.ID,
			Destination: w.job.Destination.String(),
			Mode:        w.job.Mode,
			Bytes:       stats.Bytes,
			Chunks:      stats.Chunks,
			Parts:       stats.Parts,
		})
	}
	return n, err
}
