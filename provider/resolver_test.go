package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/cloudsave/location"
	"github.com/franksops/cloudsave/pipeline"
)

func mustParse(t *testing.T, raw string) *location.Destination {
	t.Helper()
	d, err := location.Parse(raw, pipeline.Span{Start: 4, End: 8})
	require.NoError(t, err)
	return d
}

func TestResolver_Resolve(t *testing.T) {
	buckets := NewMemoryBuckets()
	r := NewResolver()
	r.Register("memory", MemoryFactory(buckets))

	store, key, err := r.Resolve(context.Background(), mustParse(t, "memory://b1/dir/obj.txt"))
	require.NoError(t, err)
	assert.Equal(t, "dir/obj.txt", key)
	assert.Same(t, buckets.Bucket("b1"), store)

	again, _, err := r.Resolve(context.Background(), mustParse(t, "memory://b1/other"))
	require.NoError(t, err)
	assert.Same(t, store, again)

	assert.Equal(t, []string{"memory"}, r.Schemes())
}

func TestResolver_UnknownScheme(t *testing.T) {
	r := NewResolver()
	_, _, err := r.Resolve(context.Background(), mustParse(t, "gs://bucket/key"))
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrInvalidLocation)
	assert.Contains(t, err.Error(), "unsupported scheme")
}

func TestResolver_FactoryError(t *testing.T) {
	r := NewResolver()
	calls := 0
	r.Register("s3", func(context.Context, string) (ObjectStore, error) {
		calls++
		return nil, errors.New("no credentials")
	})

	for range 2 {
		_, _, err := r.Resolve(context.Background(), mustParse(t, "s3://bucket/key"))
		require.Error(t, err)
		assert.ErrorIs(t, err, pipeline.ErrBackendWriteFailed)
	}
	assert.Equal(t, 2, calls, "failed stores are not cached")
}

func TestResolver_LocalFactory(t *testing.T) {
	dir := t.TempDir()
	local := NewLocalStore("")
	r := NewResolver()
	r.Register(location.SchemeFile, LocalFactory(local))

	store, key, err := r.Resolve(context.Background(), mustParse(t, "file://"+dir+"/x.txt"))
	require.NoError(t, err)
	assert.Same(t, local, store)
	assert.Equal(t, dir+"/x.txt", key)
}
