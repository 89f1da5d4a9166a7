package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/franksops/cloudsave/location"
	"github.com/franksops/cloudsave/pipeline"
	"github.com/franksops/cloudsave/provider"
	"github.com/franksops/cloudsave/store"
)

// ErrAbortUnsupported is reported for uploads whose backend cannot abort an
// upload by ID.
var ErrAbortUnsupported = errors.New("backend can not abort uploads by id")

// CleanupReport lists the outcome of one cleanup run.
type CleanupReport struct {
	Aborted []string
	Failed  map[string]error
}

// Cleaner aborts multipart uploads left open by saves that failed without
// aborting them or whose process died mid-transfer.
type Cleaner struct {
	store    store.Store
	tracker  *JobTracker
	resolver StoreResolver
	logger   logrus.FieldLogger
	workers  int
}

func NewCleaner(st store.Store, resolver StoreResolver, workers int, logger logrus.FieldLogger) *Cleaner {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Cleaner{
		store:    st,
		tracker:  NewJobTracker(st, DefaultCheckpointConfig),
		resolver: resolver,
		logger:   logger,
		workers:  workers,
	}
}

// Run aborts every journaled upload that is still open. keep, when set,
// excludes records (for instance saves that may still be running).
func (c *Cleaner) Run(ctx context.Context, keep func(*store.JobRecord) bool) (*CleanupReport, error) {
	records, err := c.store.ListJobs(func(r *store.JobRecord) bool {
		return r.OrphanedUpload() && (keep == nil || !keep(r))
	})
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}

	report := &CleanupReport{Failed: make(map[string]error)}
	if len(records) == 0 {
		return report, nil
	}

	var mu sync.Mutex
	queue := make(chan *store.JobRecord, len(records))
	pool := NewWorkerPool[*store.JobRecord](ctx, queue, func(ctx context.Context, rec *store.JobRecord) error {
		err := c.abortRecord(ctx, rec)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.Failed[rec.ID] = err
			return err
		}
		report.Aborted = append(report.Aborted, rec.ID)
		return nil
	})
	for _, rec := range records {
		queue <- rec
	}
	close(queue)

	pool.SetWorkerCount(min(c.workers, len(records)))
	pool.Wait()

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (c *Cleaner) abortRecord(ctx context.Context, rec *store.JobRecord) error {
	log := c.logger.WithFields(logrus.Fields{
		"job_id":      rec.ID,
		"destination": rec.Destination,
		"upload_id":   rec.UploadID,
	})

	dest, err := location.Parse(rec.Destination, pipeline.Span{})
	if err != nil {
		return err
	}
	objects, key, err := c.resolver.Resolve(ctx, dest)
	if err != nil {
		return err
	}
	aborter, ok := objects.(provider.UploadAborter)
	if !ok {
		return ErrAbortUnsupported
	}
	if err := aborter.AbortUpload(ctx, key, rec.UploadID); err != nil {
		log.WithError(err).Warn("could not abort upload")
		return err
	}

	if err := c.tracker.MarkAborted(rec.ID, nil); err != nil {
		log.WithError(err).Warn("could not journal abort")
	}
	log.Info("aborted orphaned upload")
	return nil
}
