package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/cloudsave/engine"
	"github.com/franksops/cloudsave/format"
	"github.com/franksops/cloudsave/pipeline"
	"github.com/franksops/cloudsave/provider"
)

func newFormattingSaver() (*engine.Saver, *provider.MemoryBuckets) {
	buckets := provider.NewMemoryBuckets()
	resolver := provider.NewResolver()
	resolver.Register("mem", provider.MemoryFactory(buckets))
	logger, _ := test.NewNullLogger()
	return engine.NewSaver(engine.Options{
		Resolver: resolver,
		Formats:  format.New(),
		Signals:  pipeline.EmptySignals(),
		Logger:   logger,
	}), buckets
}

func TestSave_ErrorValueInFormattedListIsReturnedVerbatim(t *testing.T) {
	for _, key := range []string{"x.json", "x.yaml", "x.csv", "x.toml", "x.txt", "x"} {
		t.Run(key, func(t *testing.T) {
			saver, buckets := newFormattingSaver()
			upstream := errors.New("upstream exploded")
			in := pipeline.ListStreamOf(pipeline.Span{},
				pipeline.String{Val: "a"},
				pipeline.ErrorValue{Err: upstream})

			_, err := saver.Save(context.Background(), in, "mem://b/"+key, pipeline.Span{}, false)
			assert.Same(t, upstream, err)
			assert.Empty(t, buckets.Bucket("b").Keys())
			assert.Empty(t, buckets.Bucket("b").PendingUploads())
		})
	}
}

func TestSave_ErrorValueInFormattedRecord(t *testing.T) {
	saver, buckets := newFormattingSaver()
	upstream := errors.New("column failed")
	rec := pipeline.Record{
		Cols: []string{"ok", "bad"},
		Vals: []pipeline.Value{pipeline.Int{Val: 1}, pipeline.ErrorValue{Err: upstream}},
	}

	_, err := saver.Save(context.Background(), pipeline.NewValue(rec), "mem://b/r.json", pipeline.Span{}, false)
	assert.Same(t, upstream, err)
	assert.Empty(t, buckets.Bucket("b").Keys())
}

func TestSave_FormatsDotfileAsIs(t *testing.T) {
	saver, buckets := newFormattingSaver()

	_, err := saver.Save(context.Background(), pipeline.NewValue(pipeline.Int{Val: 7}), "mem://b/dir/.json", pipeline.Span{}, false)
	require.NoError(t, err)
	obj, ok := buckets.Bucket("b").Object("dir/.json")
	require.True(t, ok)
	assert.Equal(t, "7", string(obj.Data))
}
