package location

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/cloudsave/pipeline"
)

func TestParse(t *testing.T) {
	tests := []struct {
		raw    string
		scheme string
		bucket string
		key    string
		ext    string
	}{
		{"s3://my-bucket/reports/2024/q1.json", "s3", "my-bucket", "reports/2024/q1.json", "json"},
		{"S3://bucket/obj", "s3", "bucket", "obj", ""},
		{"minio://media/archive.tar.gz", "minio", "media", "archive.tar.gz", "gz"},
		{"oss://backups/db/dump.sql", "oss", "backups", "db/dump.sql", "sql"},
		{"memory://scratch/out.yaml", "memory", "scratch", "out.yaml", "yaml"},
		{"file:///tmp/out/data.csv", "file", "", "/tmp/out/data.csv", "csv"},
		{"  s3://b/k.txt  ", "s3", "b", "k.txt", "txt"},
		{"s3://b/dir/.json", "s3", "b", "dir/.json", ""},
		{"s3://b/.config.yaml", "s3", "b", ".config.yaml", "yaml"},
		{"s3://b/conf.d/plain", "s3", "b", "conf.d/plain", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			d, err := Parse(tt.raw, pipeline.Span{Start: 1, End: 2})
			require.NoError(t, err)
			assert.Equal(t, tt.scheme, d.Scheme)
			assert.Equal(t, tt.bucket, d.Bucket)
			assert.Equal(t, tt.key, d.Key)
			assert.Equal(t, tt.ext, d.Extension())
			assert.Equal(t, pipeline.Span{Start: 1, End: 2}, d.Span)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	span := pipeline.Span{Start: 10, End: 24}
	for _, raw := range []string{
		"",
		"not a url",
		"://missing-scheme",
		"s3:bucket/key",
		"s3:///key-without-bucket",
		"s3://bucket",
		"s3://bucket/",
		"s3://bucket/folder/",
		"file://remote-host/tmp/x",
		"file:///tmp/dir/",
	} {
		t.Run(raw, func(t *testing.T) {
			d, err := Parse(raw, span)
			require.Error(t, err)
			assert.Nil(t, d)
			assert.ErrorIs(t, err, pipeline.ErrInvalidLocation)
			assert.Contains(t, err.Error(), "Invalid Url")

			var pe *pipeline.Error
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, span, pe.Span)
		})
	}
}

func TestDestinationString(t *testing.T) {
	d, err := Parse("s3://bucket/a/b.json", pipeline.Span{})
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/a/b.json", d.String())

	d, err = Parse("file:///var/tmp/../tmp/x.bin", pipeline.Span{})
	require.NoError(t, err)
	assert.Equal(t, "file:///var/tmp/x.bin", d.String())
}
