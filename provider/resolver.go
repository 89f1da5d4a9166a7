package provider

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/franksops/cloudsave/location"
	"github.com/franksops/cloudsave/pipeline"
)

// Factory opens the ObjectStore for one bucket of a scheme.
type Factory func(ctx context.Context, bucket string) (ObjectStore, error)

// Resolver maps destinations to ObjectStores by URL scheme. Stores are
// opened lazily and cached per scheme and bucket.
type Resolver struct {
	mu        sync.Mutex
	factories map[string]Factory
	stores    map[string]ObjectStore
}

func NewResolver() *Resolver {
	return &Resolver{
		factories: make(map[string]Factory),
		stores:    make(map[string]ObjectStore),
	}
}

// Register installs the factory for scheme, replacing any previous one.
func (r *Resolver) Register(scheme string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[scheme] = f
	for k := range r.stores {
		if strings.HasPrefix(k, scheme+"/") {
			delete(r.stores, k)
		}
	}
}

// Schemes lists the registered schemes.
func (r *Resolver) Schemes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// Resolve returns the store that owns dest and the object key within it.
func (r *Resolver) Resolve(ctx context.Context, dest *location.Destination) (ObjectStore, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cacheKey := dest.Scheme + "/" + dest.Bucket
	if s, ok := r.stores[cacheKey]; ok {
		return s, dest.Key, nil
	}

	f, ok := r.factories[dest.Scheme]
	if !ok {
		return nil, "", pipeline.NewError(pipeline.InvalidLocation, "resolve", nil).
			WithSpan(dest.Span).
			WithMessage("Invalid Url: unsupported scheme %q", dest.Scheme)
	}
	s, err := f(ctx, dest.Bucket)
	if err != nil {
		return nil, "", pipeline.NewError(pipeline.BackendWriteFailed, "resolve", err).
			WithSpan(dest.Span).
			WithMessage("Could not open %s", dest)
	}
	r.stores[cacheKey] = s
	return s, dest.Key, nil
}

// LocalFactory serves the file scheme from store.
func LocalFactory(store *LocalStore) Factory {
	return func(context.Context, string) (ObjectStore, error) {
		return store, nil
	}
}

// MemoryFactory serves buckets of the memory scheme from b.
func MemoryFactory(b *MemoryBuckets) Factory {
	return func(_ context.Context, bucket string) (ObjectStore, error) {
		return b.Bucket(bucket), nil
	}
}

// S3Factory opens S3 buckets with opts.
func S3Factory(opts S3Options) Factory {
	return func(ctx context.Context, bucket string) (ObjectStore, error) {
		return NewS3Store(ctx, bucket, opts)
	}
}

// MinioFactory opens buckets on the MinIO endpoint in opts.
func MinioFactory(opts MinioOptions) Factory {
	return func(_ context.Context, bucket string) (ObjectStore, error) {
		return NewMinioStore(bucket, opts)
	}
}

// OSSFactory opens OSS buckets with opts.
func OSSFactory(opts OSSOptions) Factory {
	return func(_ context.Context, bucket string) (ObjectStore, error) {
		return NewOSSStore(bucket, opts)
	}
}
